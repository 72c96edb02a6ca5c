package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// LevelTrace is a custom slog level below [slog.LevelDebug] for
// wire-level forensics: full JSON request envelopes and response bodies.
// The value -8 follows the OpenTelemetry convention.
const LevelTrace = slog.Level(-8)

// redacted replaces secret attribute values in log output.
const redacted = "[REDACTED]"

// secretKeys are attribute keys whose values never reach log output.
var secretKeys = map[string]bool{
	"token":         true,
	"authorization": true,
	"api_key":       true,
}

// ParseLogLevel converts a case-insensitive string to an [slog.Level].
//
// Accepted values:
//   - "trace" → [LevelTrace] (wire-level payloads)
//   - "debug" → [slog.LevelDebug] (per-request detail)
//   - "info" or "" → [slog.LevelInfo] (normal operation)
//   - "warn" or "warning" → [slog.LevelWarn]
//   - "error" → [slog.LevelError]
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (valid: trace, debug, info, warn, error)", s)
	}
}

// ReplaceLogAttrs is an [slog.HandlerOptions.ReplaceAttr] function. It
// renders [LevelTrace] as "TRACE" (slog would print "DEBUG-4") and
// blanks the value of any credential-like attribute.
//
//	slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level:       config.LevelTrace,
//	    ReplaceAttr: config.ReplaceLogAttrs,
//	})
func ReplaceLogAttrs(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok && level == LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
		return a
	}
	if secretKeys[strings.ToLower(a.Key)] {
		a.Value = slog.StringValue(redacted)
	}
	return a
}
