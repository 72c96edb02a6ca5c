// Package journal keeps a persistent log of MCP exchanges: which method
// was called, when, how long it took and how it ended. Rows are
// append-only and never contain credentials or payloads.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/nugget/toolcall/internal/mcp"
)

// tsLayout sorts lexically in chronological order (fixed width, UTC).
const tsLayout = "2006-01-02T15:04:05.000000Z"

// Entry is one recorded exchange.
type Entry struct {
	ID         string        `json:"id"`
	Timestamp  time.Time     `json:"timestamp"`
	SessionID  string        `json:"session_id"`
	RequestID  int64         `json:"request_id"`
	Method     string        `json:"method"`
	StatusCode int           `json:"status_code,omitempty"`
	Outcome    mcp.Outcome   `json:"outcome"`
	Duration   time.Duration `json:"duration_ns"`
	Error      string        `json:"error,omitempty"`
}

// Summary holds aggregated totals for one method.
type Summary struct {
	Total         int
	Failures      int // transport, parse and id-mismatch outcomes
	Empty         int
	TotalDuration time.Duration
}

// Store is an append-only SQLite journal. All public methods are safe
// for concurrent use (SQLite serializes writes).
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore opens (or creates) a journal at dbPath.
func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS exchanges (
		id          TEXT PRIMARY KEY,
		timestamp   TEXT NOT NULL,
		session_id  TEXT NOT NULL,
		request_id  INTEGER NOT NULL,
		method      TEXT NOT NULL,
		status_code INTEGER NOT NULL,
		outcome     TEXT NOT NULL,
		duration_us INTEGER NOT NULL,
		error       TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_exchanges_timestamp ON exchanges(timestamp);
	CREATE INDEX IF NOT EXISTS idx_exchanges_session ON exchanges(session_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record persists an entry. If e.ID is empty, a UUIDv7 is generated;
// a zero Timestamp becomes now.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate journal entry ID: %w", err)
		}
		e.ID = id.String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exchanges
			(id, timestamp, session_id, request_id, method, status_code, outcome, duration_us, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.Timestamp.UTC().Format(tsLayout),
		e.SessionID,
		e.RequestID,
		e.Method,
		e.StatusCode,
		string(e.Outcome),
		e.Duration.Microseconds(),
		e.Error,
	)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// ObserveExchange implements [mcp.Observer]. Write failures are logged,
// never returned: the journal must not break a tool call.
func (s *Store) ObserveExchange(ctx context.Context, ex mcp.Exchange) {
	e := Entry{
		SessionID:  ex.SessionID,
		RequestID:  ex.RequestID,
		Method:     ex.Method,
		StatusCode: ex.StatusCode,
		Outcome:    ex.Outcome,
		Duration:   ex.Duration,
	}
	if ex.Err != nil {
		e.Error = errorSummary(ex.Err)
	}
	// Record even when the caller's context is already cancelled.
	if err := s.Record(context.WithoutCancel(ctx), e); err != nil {
		s.logger.Warn("failed to journal MCP exchange",
			"method", ex.Method,
			"request_id", ex.RequestID,
			"error", err,
		)
	}
}

// errorSummary describes err without any server payload. Parse errors
// and non-200 replies carry body excerpts; only their class is kept.
func errorSummary(err error) string {
	var (
		te *mcp.TransportError
		pe *mcp.ParseError
	)
	switch {
	case errors.As(err, &pe):
		return "invalid JSON in data frame: " + pe.Err.Error()
	case errors.As(err, &te) && te.Err == nil:
		status := te.Status
		if status == "" {
			status = strconv.Itoa(te.StatusCode)
		}
		return "HTTP " + status
	}
	return err.Error()
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, session_id, request_id, method, status_code, outcome, duration_us, COALESCE(error, '')
		 FROM exchanges
		 ORDER BY timestamp DESC, id DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent exchanges: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e          Entry
			ts         string
			outcome    string
			durationUS int64
		)
		if err := rows.Scan(&e.ID, &ts, &e.SessionID, &e.RequestID, &e.Method, &e.StatusCode, &outcome, &durationUS, &e.Error); err != nil {
			return nil, fmt.Errorf("scan exchange: %w", err)
		}
		e.Timestamp, err = time.Parse(tsLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("parse exchange timestamp %q: %w", ts, err)
		}
		e.Outcome = mcp.Outcome(outcome)
		e.Duration = time.Duration(durationUS) * time.Microsecond
		out = append(out, e)
	}
	return out, rows.Err()
}

// SummaryByMethod returns per-method totals over the whole journal.
func (s *Store) SummaryByMethod(ctx context.Context) (map[string]*Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT method,
		        COUNT(*),
		        COALESCE(SUM(CASE WHEN outcome IN (?, ?, ?) THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(duration_us), 0)
		 FROM exchanges
		 GROUP BY method
		 ORDER BY method`,
		string(mcp.OutcomeTransportError),
		string(mcp.OutcomeParseError),
		string(mcp.OutcomeIDMismatch),
		string(mcp.OutcomeEmpty),
	)
	if err != nil {
		return nil, fmt.Errorf("query exchange summary: %w", err)
	}
	defer rows.Close()

	result := make(map[string]*Summary)
	for rows.Next() {
		var (
			method     string
			sum        Summary
			durationUS int64
		)
		if err := rows.Scan(&method, &sum.Total, &sum.Failures, &sum.Empty, &durationUS); err != nil {
			return nil, fmt.Errorf("scan exchange summary: %w", err)
		}
		sum.TotalDuration = time.Duration(durationUS) * time.Microsecond
		result[method] = &sum
	}
	return result, rows.Err()
}
