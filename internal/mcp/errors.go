package mcp

import (
	"errors"
	"fmt"
)

// Sentinel errors for matching with [errors.Is].
var (
	// ErrTransport matches every *TransportError.
	ErrTransport = errors.New("mcp transport error")

	// ErrParse matches every *ParseError.
	ErrParse = errors.New("mcp parse error")

	// ErrIDMismatch matches every *IDMismatchError.
	ErrIDMismatch = errors.New("mcp response id mismatch")
)

// TransportError reports that the HTTP exchange failed: either the send
// itself errored (Err is set) or the server answered with a status other
// than 200 (StatusCode is set). The body is never parsed in either case.
type TransportError struct {
	Method     string
	StatusCode int
	Status     string
	Body       string // bounded excerpt of the error body
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: send request: %v", e.Method, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("%s: MCP server returned %d: %s", e.Method, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: MCP server returned %d", e.Method, e.StatusCode)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is reports whether target is [ErrTransport].
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// ParseError reports that the server replied with a data: frame whose
// payload is not valid JSON.
type ParseError struct {
	Payload string // the text after "data:", truncated
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("decode data frame %q: %v", e.Payload, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is reports whether target is [ErrParse].
func (e *ParseError) Is(target error) bool { return target == ErrParse }

// IDMismatchError is returned when id checking is enabled (see
// [WithIDCheck]) and the frame's id differs from the request's.
type IDMismatchError struct {
	Method string
	Want   int64
	Got    string // raw JSON of the frame's id, empty if missing
}

func (e *IDMismatchError) Error() string {
	got := e.Got
	if got == "" {
		got = "<missing>"
	}
	return fmt.Sprintf("%s: response id %s does not match request id %d", e.Method, got, e.Want)
}

// Is reports whether target is [ErrIDMismatch].
func (e *IDMismatchError) Is(target error) bool { return target == ErrIDMismatch }
