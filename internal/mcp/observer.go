package mcp

import (
	"context"
	"time"
)

// Outcome classifies how an exchange ended.
type Outcome string

// Exchange outcomes reported to an [Observer].
const (
	OutcomeFrame          Outcome = "frame"
	OutcomeEmpty          Outcome = "empty"
	OutcomeParseError     Outcome = "parse_error"
	OutcomeTransportError Outcome = "transport_error"
	OutcomeIDMismatch     Outcome = "id_mismatch"
)

// Exchange describes one completed request/response round trip. It
// never carries the credential or the payloads.
type Exchange struct {
	SessionID  string
	RequestID  int64
	Method     string
	StatusCode int // zero when the send itself failed
	Outcome    Outcome
	Duration   time.Duration
	Err        error
}

// Observer is notified after every exchange, successful or not.
// ObserveExchange runs synchronously on the caller's goroutine and
// should return quickly.
type Observer interface {
	ObserveExchange(ctx context.Context, ex Exchange)
}
