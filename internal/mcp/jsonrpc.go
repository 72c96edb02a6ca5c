package mcp

import (
	"encoding/json"
	"fmt"
)

// jsonrpcVersion is the JSON-RPC protocol version used by MCP.
const jsonrpcVersion = "2.0"

// JSON-RPC methods issued by the client.
const (
	MethodInitialize = "initialize"
	MethodToolsList  = "tools/list"
	MethodToolsCall  = "tools/call"
)

// Request is a JSON-RPC 2.0 request message. Params is dropped from the
// encoded form when nil or empty; servers treat a missing params member
// differently from an empty object.
type Request struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      int64          `json:"id"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
}

// NewRequest creates a JSON-RPC 2.0 request with the given method and params.
func NewRequest(id int64, method string, params map[string]any) *Request {
	if len(params) == 0 {
		params = nil
	}
	return &Request{
		JSONRPC: jsonrpcVersion,
		ID:      id,
		Method:  method,
		Params:  params,
	}
}

// Response is the conventional shape of a JSON-RPC 2.0 response. It is
// only used when a caller asks a [Frame] to decode itself; the client
// never requires a frame to look like this.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface for RPCError.
func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}
