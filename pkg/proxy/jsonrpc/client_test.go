package jsonrpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/goliatone/go-formbind/pkg/proxy"
)

type recorded struct {
	req    Request
	params []any
	header http.Header
}

func newRecordingServer(t *testing.T, reply func(Request) Response) (*httptest.Server, *[]recorded) {
	t.Helper()
	var calls []recorded
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		var params []any
		if err := json.Unmarshal(req.Params, &params); err != nil {
			t.Errorf("decode params: %v", err)
		}
		calls = append(calls, recorded{req: req, params: params, header: r.Header.Clone()})
		resp := reply(req)
		resp.Version = Version
		resp.ID = req.ID
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(ts.Close)
	return ts, &calls
}

func TestClientSendsEnvelope(t *testing.T) {
	ts, calls := newRecordingServer(t, func(req Request) Response {
		raw, _ := json.Marshal(proxy.Definition{InstanceID: "i-1", ObjectType: "object", Methods: []string{"commit"}})
		return Response{Result: raw}
	})
	client := NewClient(ts.URL, WithHeader("X-Session", "abc"))

	def, err := client.OpenObject(context.Background(), proxy.OpenRequest{DN: "cn=x", Subtype: "User"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if def.InstanceID != "i-1" {
		t.Fatalf("instance id = %q", def.InstanceID)
	}

	if len(*calls) != 1 {
		t.Fatalf("calls = %d", len(*calls))
	}
	call := (*calls)[0]
	if call.req.Version != Version || call.req.Method != MethodOpenObject {
		t.Fatalf("unexpected envelope: %+v", call.req)
	}
	if _, err := uuid.Parse(call.req.ID); err != nil {
		t.Fatalf("request id is not a uuid: %q", call.req.ID)
	}
	if diff := cmp.Diff([]any{"object", "cn=x", "User"}, call.params); diff != "" {
		t.Fatalf("params mismatch (-want +got):\n%s", diff)
	}
	if got := call.header.Get("X-Session"); got != "abc" {
		t.Fatalf("header = %q", got)
	}
}

func TestClientWorkflowOpen(t *testing.T) {
	ts, calls := newRecordingServer(t, func(Request) Response {
		return Response{Result: json.RawMessage(`{"instanceId":"w-1"}`)}
	})
	client := NewClient(ts.URL)
	if _, err := client.OpenObject(context.Background(), proxy.OpenRequest{WorkflowID: "add-user"}); err != nil {
		t.Fatalf("open: %v", err)
	}
	if diff := cmp.Diff([]any{"workflow", "add-user"}, (*calls)[0].params); diff != "" {
		t.Fatalf("params mismatch (-want +got):\n%s", diff)
	}
}

func TestClientMapsErrorObject(t *testing.T) {
	ts, _ := newRecordingServer(t, func(Request) Response {
		return Response{Error: &Error{Code: -32001, Message: "value is required", Data: &ErrorData{Path: "sn"}}}
	})
	client := NewClient(ts.URL)

	err := client.SetProperty(context.Background(), "i-1", "sn", nil)
	perr, ok := err.(*proxy.ProtocolError)
	if !ok {
		t.Fatalf("expected *proxy.ProtocolError, got %T", err)
	}
	if perr.Code != -32001 || perr.Path != "sn" || perr.Op != MethodSetProperty {
		t.Fatalf("unexpected error: %+v", perr)
	}
	if !IsRemote(err) {
		t.Fatalf("expected remote error")
	}
}

func TestClientSetPropertySendsEmptyContainer(t *testing.T) {
	ts, calls := newRecordingServer(t, func(Request) Response { return Response{} })
	client := NewClient(ts.URL)
	if err := client.SetProperty(context.Background(), "i-1", "mail", nil); err != nil {
		t.Fatalf("set: %v", err)
	}
	if diff := cmp.Diff([]any{"i-1", "mail", []any{}}, (*calls)[0].params); diff != "" {
		t.Fatalf("params mismatch (-want +got):\n%s", diff)
	}
}

func TestClientDispatchPassesArgs(t *testing.T) {
	ts, calls := newRecordingServer(t, func(Request) Response {
		return Response{Result: json.RawMessage(`"ok"`)}
	})
	client := NewClient(ts.URL)
	result, err := client.Dispatch(context.Background(), "i-1", "extend", "PosixUser")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result != "ok" {
		t.Fatalf("result = %v", result)
	}
	if diff := cmp.Diff([]any{"i-1", "extend", "PosixUser"}, (*calls)[0].params); diff != "" {
		t.Fatalf("params mismatch (-want +got):\n%s", diff)
	}
}
