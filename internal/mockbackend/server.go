// Package mockbackend serves an in-memory directory over the JSON-RPC object
// protocol, with change events pushed over a websocket. Object types come
// from an OpenAPI document.
package mockbackend

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"github.com/goliatone/go-formbind/pkg/proxy"
	"github.com/goliatone/go-formbind/pkg/proxy/jsonrpc"
)

//go:embed assets/directory.yaml
var defaultSchema []byte

//go:embed assets/seed.yaml
var defaultSeed []byte

// New builds a Store from the embedded schema document and seed objects.
func New(ctx context.Context) (*Store, error) {
	catalog, err := LoadCatalog(ctx, defaultSchema)
	if err != nil {
		return nil, err
	}
	store := NewStore(catalog)
	if err := store.Seed(defaultSeed); err != nil {
		return nil, err
	}
	return store, nil
}

// Server exposes a Store over HTTP.
type Server struct {
	store  *Store
	logger *log.Logger

	mu      sync.Mutex
	clients map[chan proxy.Event]struct{}
}

// NewServer wraps store. Change events of the store are broadcast to every
// connected event stream.
func NewServer(store *Store, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{store: store, logger: logger, clients: make(map[chan proxy.Event]struct{})}
	store.OnEvent(s.Broadcast)
	return s
}

// RegisterRoutes registers the rpc and event stream endpoints on r.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Post("/rpc", s.serveRPC)
	r.Get("/events", s.serveEvents)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

// Handler returns a router serving the endpoints.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	s.RegisterRoutes(r)
	return r
}

// Broadcast sends evt to every connected event stream. Slow clients miss
// events rather than block the store.
func (s *Server) Broadcast(evt proxy.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.clients {
		select {
		case ch <- evt:
		default:
			s.logger.Printf("mockbackend: dropping %s event for slow client", evt.Type)
		}
	}
}

// Clients returns the number of connected event streams.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) serveRPC(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req jsonrpc.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, jsonrpc.Response{
			Version: jsonrpc.Version,
			Error:   &jsonrpc.Error{Code: CodeParseError, Message: "parse error"},
		})
		return
	}
	resp := jsonrpc.Response{Version: jsonrpc.Version, ID: req.ID}
	if req.Version != jsonrpc.Version || req.Method == "" {
		resp.Error = &jsonrpc.Error{Code: CodeInvalidRequest, Message: "invalid request"}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	var params []json.RawMessage
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			resp.Error = &jsonrpc.Error{Code: CodeInvalidParams, Message: "params must be an array"}
			writeJSON(w, http.StatusOK, resp)
			return
		}
	}

	result, err := s.call(r.Context(), req.Method, params)
	if err != nil {
		resp.Error = toRPCError(err)
		s.logger.Printf("mockbackend: %s: %v", req.Method, err)
	} else {
		raw, err := json.Marshal(result)
		if err != nil {
			resp.Error = &jsonrpc.Error{Code: CodeInvalidRequest, Message: err.Error()}
		} else {
			resp.Result = raw
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) call(ctx context.Context, method string, params []json.RawMessage) (any, error) {
	switch method {
	case jsonrpc.MethodOpenObject:
		var kind, key, subtype string
		if err := decodeParams(params, 2, &kind, &key, &subtype); err != nil {
			return nil, err
		}
		req := proxy.OpenRequest{Type: kind, DN: key, Subtype: subtype}
		if kind == "workflow" {
			req = proxy.OpenRequest{Type: kind, WorkflowID: key}
		}
		return s.store.OpenObject(ctx, req)
	case jsonrpc.MethodGetObjectInfo:
		var id, locale string
		if err := decodeParams(params, 1, &id, &locale); err != nil {
			return nil, err
		}
		return s.store.ObjectInfo(ctx, id, locale)
	case jsonrpc.MethodGetAttributes:
		var id string
		if err := decodeParams(params, 1, &id); err != nil {
			return nil, err
		}
		return s.store.Attributes(ctx, id)
	case jsonrpc.MethodSetProperty:
		var (
			id, attr string
			values   proxy.Values
		)
		if err := decodeParams(params, 3, &id, &attr, &values); err != nil {
			return nil, err
		}
		return nil, s.store.SetProperty(ctx, id, attr, values)
	case jsonrpc.MethodDispatchMethod:
		var id, name string
		if err := decodeParams(params, 2, &id, &name); err != nil {
			return nil, err
		}
		args := make([]any, 0, len(params)-2)
		for _, raw := range params[2:] {
			var arg any
			if err := json.Unmarshal(raw, &arg); err != nil {
				return nil, &proxy.ProtocolError{Code: CodeInvalidParams, Message: err.Error()}
			}
			args = append(args, arg)
		}
		return s.store.Dispatch(ctx, id, name, args...)
	case jsonrpc.MethodCloseObject:
		var id string
		if err := decodeParams(params, 1, &id); err != nil {
			return nil, err
		}
		return nil, s.store.CloseObject(ctx, id)
	}
	return nil, &proxy.ProtocolError{Code: CodeMethodNotFound, Message: fmt.Sprintf("method %q not found", method)}
}

// decodeParams decodes positional params into targets; the first required
// ones must be present.
func decodeParams(params []json.RawMessage, required int, targets ...any) error {
	if len(params) < required {
		return &proxy.ProtocolError{Code: CodeInvalidParams, Message: fmt.Sprintf("expected at least %d params, got %d", required, len(params))}
	}
	for i, target := range targets {
		if i >= len(params) {
			break
		}
		if err := json.Unmarshal(params[i], target); err != nil {
			return &proxy.ProtocolError{Code: CodeInvalidParams, Message: fmt.Sprintf("param %d: %v", i, err)}
		}
	}
	return nil
}

func toRPCError(err error) *jsonrpc.Error {
	var perr *proxy.ProtocolError
	if errors.As(err, &perr) {
		out := &jsonrpc.Error{Code: perr.Code, Message: perr.Message}
		if out.Message == "" {
			out.Message = perr.Error()
		}
		if perr.Path != "" {
			out.Data = &jsonrpc.ErrorData{Path: perr.Path}
		}
		return out
	}
	return &jsonrpc.Error{Code: CodeInvalidRequest, Message: err.Error()}
}

func (s *Server) serveEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("mockbackend: websocket accept: %v", err)
		return
	}
	defer conn.CloseNow()

	events := make(chan proxy.Event, 32)
	s.mu.Lock()
	s.clients[events] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.clients, events)
		s.mu.Unlock()
	}()

	// CloseRead handles control frames and cancels ctx once the peer goes away.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-events:
			if err := wsjson.Write(ctx, conn, evt); err != nil {
				if websocket.CloseStatus(err) == -1 {
					s.logger.Printf("mockbackend: write event: %v", err)
				}
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("mockbackend: encode response: %v", err)
	}
}
