// Package mcptest provides an in-process MCP server for tests. It
// answers JSON-RPC POSTs with single-event event-stream bodies, the way
// hosted MCP endpoints do, and records every request it receives.
package mcptest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/tmaxmax/go-sse"

	"github.com/nugget/toolcall/internal/mcp"
)

// Handler produces the result for one request. Returning a non-nil
// *mcp.RPCError sends a JSON-RPC error frame instead.
type Handler func(req mcp.Request) (any, *mcp.RPCError)

// Received is a request as seen by the server.
type Received struct {
	Request mcp.Request
	Header  http.Header
	Body    []byte
}

// Server is a fake MCP endpoint backed by httptest.
type Server struct {
	*httptest.Server

	token string

	mu        sync.Mutex
	handlers  map[string]Handler
	received  []Received
	status    int
	plainJSON bool
}

// NewServer starts a server that accepts the given bearer token. It is
// closed automatically when the test ends.
func NewServer(t testing.TB, token string) *Server {
	t.Helper()
	s := &Server{
		token:    token,
		handlers: make(map[string]Handler),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Handle registers h for method.
func (s *Server) Handle(method string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// HandleResult registers a fixed result for method.
func (s *Server) HandleResult(method string, result any) {
	s.Handle(method, func(mcp.Request) (any, *mcp.RPCError) { return result, nil })
}

// FailWith makes every subsequent request answer with status. Zero
// restores normal behavior.
func (s *Server) FailWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// PlainJSON makes the server answer with a bare application/json body
// rather than an event stream. Such bodies carry no data: line.
func (s *Server) PlainJSON(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plainJSON = on
}

// Requests returns a copy of every request received so far.
func (s *Server) Requests() []Received {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Received(nil), s.received...)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req mcp.Request
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, fmt.Sprintf("bad request envelope: %v", err), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.received = append(s.received, Received{Request: req, Header: r.Header.Clone(), Body: body})
	status := s.status
	plain := s.plainJSON
	h := s.handlers[req.Method]
	s.mu.Unlock()

	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}
	if r.Header.Get("Authorization") != "Bearer "+s.token {
		http.Error(w, "invalid credential", http.StatusUnauthorized)
		return
	}

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if h == nil {
		resp["error"] = &mcp.RPCError{Code: -32601, Message: "Method not found"}
	} else if result, rpcErr := h(req); rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if plain {
		w.Header().Set("Content-Type", "application/json")
		w.Write(payload)
		return
	}

	sess, err := sse.Upgrade(w, r)
	if err != nil {
		http.Error(w, fmt.Sprintf("upgrade session: %v", err), http.StatusInternalServerError)
		return
	}
	msg := &sse.Message{Type: sse.Type("message")}
	msg.AppendData(string(payload))
	if err := sess.Send(msg); err != nil {
		return
	}
	_ = sess.Flush()
}
