package mcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nugget/toolcall/internal/httpkit"
)

// Body size limits for HTTP replies.
const (
	maxReplyBody = 10 << 20 // 10 MiB
	maxErrorBody = 1 << 20
)

// HTTPConfig configures an HTTP transport.
type HTTPConfig struct {
	// Timeout bounds each exchange. Zero uses the httpkit default.
	Timeout time.Duration

	// Client replaces the httpkit-built client entirely (tests, proxies).
	Client *http.Client

	// Logger is the structured logger for transport diagnostics.
	Logger *slog.Logger
}

// HTTPTransport posts request bodies over HTTP. It returns whatever the
// server sent, whatever the status; the [Client] decides what a status
// means.
type HTTPTransport struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPTransport creates an HTTP transport for the given config.
// Unless cfg.Client is set, the HTTP client is constructed via httpkit.
func NewHTTPTransport(cfg HTTPConfig) *HTTPTransport {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := cfg.Client
	if client == nil {
		opts := []httpkit.ClientOption{httpkit.WithLogger(logger)}
		if cfg.Timeout > 0 {
			opts = append(opts, httpkit.WithTimeout(cfg.Timeout))
		}
		client = httpkit.NewClient(opts...)
	}

	return &HTTPTransport{
		httpClient: client,
		logger:     logger,
	}
}

// Post sends body to url with the given headers.
func (t *HTTPTransport) Post(ctx context.Context, url string, header http.Header, body []byte) (*Reply, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create HTTP request: %w", err)
	}
	for k, vs := range header {
		httpReq.Header[k] = append([]string(nil), vs...)
	}

	httpResp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request to %s: %w", url, err)
	}

	reply := &Reply{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
	}

	if httpResp.StatusCode != http.StatusOK {
		// ReadErrorBody drains and closes the body.
		reply.Body = []byte(httpkit.ReadErrorBody(httpResp.Body, maxErrorBody))
		t.logger.Debug("MCP server returned non-OK status",
			"status", httpResp.StatusCode,
			"content_type", httpResp.Header.Get("Content-Type"),
		)
		return reply, nil
	}

	defer httpkit.DrainAndClose(httpResp.Body, 1<<20)
	reply.Body, err = io.ReadAll(io.LimitReader(httpResp.Body, maxReplyBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return reply, nil
}
