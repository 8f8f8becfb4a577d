// Package jsonrpc implements proxy.Backend over JSON-RPC 2.0 on HTTP and
// receives push events over a websocket.
package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/goliatone/go-formbind/pkg/proxy"
)

// Version is the protocol version sent with every request.
const Version = "2.0"

// Method names of the object protocol.
const (
	MethodOpenObject     = "openObject"
	MethodGetObjectInfo  = "getObjectInfo"
	MethodGetAttributes  = "getAttributes"
	MethodSetProperty    = "setObjectProperty"
	MethodDispatchMethod = "dispatchObjectMethod"
	MethodCloseObject    = "closeObject"
)

// Request is a JSON-RPC request envelope.
type Request struct {
	Version string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC response envelope.
type Response struct {
	Version string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC error object. Data may carry the attribute path of a
// validation failure.
type Error struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

// ErrorData is the structured detail of an Error.
type ErrorData struct {
	Path string `json:"path,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc: %s (code %d)", e.Message, e.Code)
}

// Client talks to a JSON-RPC endpoint.
type Client struct {
	endpoint string
	http     *http.Client
	header   http.Header
	logger   *log.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) ClientOption {
	return func(cl *Client) {
		cl.header.Add(key, value)
	}
}

// WithClientLogger sets the logger used for event stream diagnostics.
func WithClientLogger(logger *log.Logger) ClientOption {
	return func(cl *Client) {
		if logger != nil {
			cl.logger = logger
		}
	}
}

// NewClient returns a Client posting to endpoint.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint: endpoint,
		http:     http.DefaultClient,
		header:   make(http.Header),
		logger:   log.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Call invokes method with positional params and decodes the result into out
// when out is non-nil.
func (c *Client) Call(ctx context.Context, method string, out any, params ...any) error {
	if params == nil {
		params = []any{}
	}
	rawParams, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("jsonrpc: encode %s params: %w", method, err)
	}
	reqBody, err := json.Marshal(Request{
		Version: Version,
		ID:      uuid.NewString(),
		Method:  method,
		Params:  rawParams,
	})
	if err != nil {
		return fmt.Errorf("jsonrpc: encode %s: %w", method, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("jsonrpc: build %s request: %w", method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for key, values := range c.header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return &proxy.ProtocolError{Op: method, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &proxy.ProtocolError{Op: method, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK && len(bytes.TrimSpace(body)) == 0 {
		return &proxy.ProtocolError{Op: method, Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	var envelope Response
	if err := json.Unmarshal(body, &envelope); err != nil {
		return &proxy.ProtocolError{Op: method, Code: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if envelope.Error != nil {
		perr := &proxy.ProtocolError{
			Op:      method,
			Code:    envelope.Error.Code,
			Message: envelope.Error.Message,
			Err:     envelope.Error,
		}
		if envelope.Error.Data != nil {
			perr.Path = envelope.Error.Data.Path
		}
		return perr
	}
	if out == nil || len(envelope.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return &proxy.ProtocolError{Op: method, Err: fmt.Errorf("decode result: %w", err)}
	}
	return nil
}

// OpenObject implements proxy.Backend.
func (c *Client) OpenObject(ctx context.Context, req proxy.OpenRequest) (proxy.Definition, error) {
	kind := req.Type
	key := req.DN
	if req.WorkflowID != "" {
		key = req.WorkflowID
		if kind == "" {
			kind = "workflow"
		}
	}
	if kind == "" {
		kind = "object"
	}
	if key == "" {
		return proxy.Definition{}, proxy.ErrInvalidRequest
	}
	params := []any{kind, key}
	if req.Subtype != "" {
		params = append(params, req.Subtype)
	}
	var def proxy.Definition
	err := c.Call(ctx, MethodOpenObject, &def, params...)
	return def, err
}

// ObjectInfo implements proxy.Backend.
func (c *Client) ObjectInfo(ctx context.Context, instanceID, locale string) (proxy.Info, error) {
	var info proxy.Info
	err := c.Call(ctx, MethodGetObjectInfo, &info, instanceID, locale)
	return info, err
}

// Attributes implements proxy.Backend.
func (c *Client) Attributes(ctx context.Context, instanceID string) (map[string]proxy.AttributeMeta, error) {
	var out map[string]proxy.AttributeMeta
	if err := c.Call(ctx, MethodGetAttributes, &out, instanceID); err != nil {
		return nil, err
	}
	if out == nil {
		out = make(map[string]proxy.AttributeMeta)
	}
	return out, nil
}

// SetProperty implements proxy.Backend.
func (c *Client) SetProperty(ctx context.Context, instanceID, attribute string, values proxy.Values) error {
	if values == nil {
		values = proxy.Values{}
	}
	return c.Call(ctx, MethodSetProperty, nil, instanceID, attribute, values)
}

// Dispatch implements proxy.Backend.
func (c *Client) Dispatch(ctx context.Context, instanceID, method string, args ...any) (any, error) {
	params := append([]any{instanceID, method}, args...)
	var result any
	err := c.Call(ctx, MethodDispatchMethod, &result, params...)
	return result, err
}

// CloseObject implements proxy.Backend.
func (c *Client) CloseObject(ctx context.Context, instanceID string) error {
	return c.Call(ctx, MethodCloseObject, nil, instanceID)
}

// IsRemote reports whether err was returned by the remote side as a JSON-RPC
// error object.
func IsRemote(err error) bool {
	var rpcErr *Error
	return errors.As(err, &rpcErr)
}

var _ proxy.Backend = (*Client)(nil)
