package proxy

import (
	"context"
	"fmt"
)

// OpenRequest identifies the object to open. Exactly one of DN and WorkflowID
// is expected.
type OpenRequest struct {
	DN         string `json:"dn,omitempty"`
	WorkflowID string `json:"workflowId,omitempty"`
	Type       string `json:"type,omitempty"`
	Subtype    string `json:"subtype,omitempty"`
}

// Key returns the identity the request opens.
func (r OpenRequest) Key() string {
	if r.WorkflowID != "" {
		return "workflow:" + r.WorkflowID
	}
	return r.DN
}

// Definition is the backend's answer to an open request.
type Definition struct {
	InstanceID string   `json:"instanceId"`
	ObjectType string   `json:"objectType"`
	DN         string   `json:"dn,omitempty"`
	UUID       string   `json:"uuid,omitempty"`
	Methods    []string `json:"methods"`
	Attributes []string `json:"attributes"`
}

// Info carries type and extension state of an open instance.
type Info struct {
	Base             string              `json:"base"`
	Extensions       map[string]bool     `json:"extensions"`
	ExtensionDeps    map[string][]string `json:"extensionDeps"`
	ExtensionAllowed map[string]bool     `json:"extensionAllowed,omitempty"`
}

// AttributeMeta describes one attribute and carries its current values.
type AttributeMeta struct {
	Type       string `json:"type"`
	Multivalue bool   `json:"multivalue"`
	Mandatory  bool   `json:"mandatory"`
	ReadOnly   bool   `json:"readonly"`
	Pattern    string `json:"pattern,omitempty"`
	Extension  string `json:"extension,omitempty"`
	Enum       []any  `json:"values,omitempty"`
	Value      Values `json:"value"`
}

// Backend is the remote object protocol the proxy drives.
type Backend interface {
	OpenObject(ctx context.Context, req OpenRequest) (Definition, error)
	ObjectInfo(ctx context.Context, instanceID, locale string) (Info, error)
	Attributes(ctx context.Context, instanceID string) (map[string]AttributeMeta, error)
	SetProperty(ctx context.Context, instanceID, attribute string, values Values) error
	Dispatch(ctx context.Context, instanceID, method string, args ...any) (any, error)
	CloseObject(ctx context.Context, instanceID string) error
}

// ProtocolError reports a request the backend rejected or could not complete.
type ProtocolError struct {
	Op      string
	Code    int
	Message string
	// Path names the attribute a validation failure refers to, when known.
	Path string
	Err  error
}

func (e *ProtocolError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != 0 {
		return fmt.Sprintf("proxy: %s: %s (code %d)", e.Op, msg, e.Code)
	}
	return fmt.Sprintf("proxy: %s: %s", e.Op, msg)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func protocolErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if perr, ok := err.(*ProtocolError); ok {
		if perr.Op == "" {
			clone := *perr
			clone.Op = op
			return &clone
		}
		return perr
	}
	return &ProtocolError{Op: op, Err: err}
}
