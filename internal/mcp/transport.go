package mcp

import (
	"context"
	"net/http"
)

// Reply is the raw outcome of one HTTP exchange.
type Reply struct {
	StatusCode int
	Status     string
	Body       []byte
}

// Transport performs a single HTTP POST of a JSON body and returns the
// raw status and body. Implementations must not interpret the body;
// framing, status policy and decoding belong to the [Client].
//
// Timeouts and cancellation are enforced here, through ctx or the
// implementation's own configuration.
type Transport interface {
	Post(ctx context.Context, url string, header http.Header, body []byte) (*Reply, error)
}

// TransportFunc adapts an ordinary function to the [Transport] interface.
type TransportFunc func(ctx context.Context, url string, header http.Header, body []byte) (*Reply, error)

// Post calls f.
func (f TransportFunc) Post(ctx context.Context, url string, header http.Header, body []byte) (*Reply, error) {
	return f(ctx, url, header, body)
}
