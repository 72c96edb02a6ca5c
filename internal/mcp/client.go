package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/toolcall/internal/buildinfo"
	"github.com/nugget/toolcall/internal/config"
)

// clientName is the fixed clientInfo.name sent during initialization.
const clientName = "toolcall"

// Option configures a Client built by NewClient.
type Option func(*Client)

// WithTransport overrides the default HTTP transport.
func WithTransport(t Transport) Option {
	return func(c *Client) { c.transport = t }
}

// WithLogger sets the structured logger for request diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithObserver registers an observer notified after every exchange.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithIDCheck rejects frames whose "id" does not equal the request id.
// Off by default: calls are sequential, so correlation is not enforced.
func WithIDCheck() Option {
	return func(c *Client) { c.checkIDs = true }
}

// Client holds one MCP session against a single endpoint. The request
// id counter starts at zero and is bumped exactly once per outbound
// request, errors included, so ids are never reused.
//
// A Client is safe for concurrent use, but each operation blocks for a
// full round trip; there is no pipelining.
type Client struct {
	endpoint  string
	header    http.Header
	transport Transport
	logger    *slog.Logger
	observer  Observer
	checkIDs  bool
	sessionID string
	nextID    atomic.Int64
}

// NewClient creates a client for endpoint, authenticating with a bearer
// token. No network activity happens until the first operation.
func NewClient(endpoint, token string, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, errors.New("mcp: endpoint URL is required")
	}
	if token == "" {
		return nil, errors.New("mcp: credential token is required")
	}

	header := make(http.Header, 3)
	header.Set("Content-Type", "application/json")
	header.Set("Authorization", "Bearer "+token)
	header.Set("Accept", "application/json, text/event-stream")

	c := &Client{
		endpoint:  endpoint,
		header:    header,
		sessionID: uuid.NewString(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("mcp_session", c.sessionID)
	if c.transport == nil {
		c.transport = NewHTTPTransport(HTTPConfig{Logger: c.logger})
	}
	c.nextID.Store(0)
	return c, nil
}

// Endpoint returns the URL requests are posted to.
func (c *Client) Endpoint() string { return c.endpoint }

// SessionID returns the client's local session identifier. It only
// correlates logs and journal rows and is never sent to the server.
func (c *Client) SessionID() string { return c.sessionID }

// Initialize sends the initialize request. Every call advertises the
// same protocol version and client info, whatever the server answered
// before.
func (c *Client) Initialize(ctx context.Context) (*Frame, error) {
	return c.issue(ctx, MethodInitialize, initializeParams())
}

// ListTools sends tools/list with no params. The tools are under
// result.tools; see [Frame.Tools].
func (c *Client) ListTools(ctx context.Context) (*Frame, error) {
	return c.issue(ctx, MethodToolsList, nil)
}

// CallTool invokes the named tool. args is passed through unmodified.
// The content items are under result.content; see [Frame.CallResult].
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*Frame, error) {
	if name == "" {
		return nil, errors.New("tools/call: tool name is required")
	}
	return c.issue(ctx, MethodToolsCall, map[string]any{
		"name":      name,
		"arguments": args,
	})
}

func initializeParams() map[string]any {
	return map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    clientName,
			"version": buildinfo.Version,
		},
	}
}

// issue sends one JSON-RPC request and decodes the reply. It returns
// (nil, nil) when the reply carried no data: frame.
func (c *Client) issue(ctx context.Context, method string, params map[string]any) (*Frame, error) {
	id := c.nextID.Add(1)
	req := NewRequest(id, method, params)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", method, err)
	}

	reqLog := c.logger.With("method", method, "request_id", id)
	reqLog.Debug("sending MCP request")
	reqLog.Log(ctx, config.LevelTrace, "request payload", "json", string(body))

	start := time.Now()
	ex := Exchange{SessionID: c.sessionID, RequestID: id, Method: method}

	frame, err := c.exchange(ctx, req, body, &ex)
	ex.Duration = time.Since(start)
	ex.Err = err
	if c.observer != nil {
		c.observer.ObserveExchange(ctx, ex)
	}

	if err != nil {
		reqLog.Debug("MCP request failed", "outcome", ex.Outcome, "elapsed", ex.Duration, "error", err)
		return nil, err
	}
	reqLog.Debug("MCP request complete", "outcome", ex.Outcome, "elapsed", ex.Duration)
	return frame, nil
}

// exchange posts body and classifies the reply into ex.
func (c *Client) exchange(ctx context.Context, req *Request, body []byte, ex *Exchange) (*Frame, error) {
	reply, err := c.transport.Post(ctx, c.endpoint, c.header.Clone(), body)
	if err != nil {
		ex.Outcome = OutcomeTransportError
		return nil, &TransportError{Method: req.Method, Err: err}
	}
	ex.StatusCode = reply.StatusCode

	if reply.StatusCode != http.StatusOK {
		ex.Outcome = OutcomeTransportError
		return nil, &TransportError{
			Method:     req.Method,
			StatusCode: reply.StatusCode,
			Status:     reply.Status,
			Body:       excerpt(string(reply.Body), maxPayloadExcerpt),
		}
	}

	c.logger.Log(ctx, config.LevelTrace, "response body", "request_id", req.ID, "body", string(reply.Body))

	frame, err := ParseFrame(reply.Body)
	if err != nil {
		ex.Outcome = OutcomeParseError
		return nil, fmt.Errorf("%s: %w", req.Method, err)
	}
	if frame == nil {
		ex.Outcome = OutcomeEmpty
		return nil, nil
	}

	if c.checkIDs && !frame.matchesID(req.ID) {
		ex.Outcome = OutcomeIDMismatch
		return nil, &IDMismatchError{Method: req.Method, Want: req.ID, Got: frame.idText()}
	}

	ex.Outcome = OutcomeFrame
	return frame, nil
}
