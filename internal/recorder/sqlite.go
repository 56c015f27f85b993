package recorder

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder is the reference SessionRecorder implementation, backed
// by a local SQLite database so recorded event logs survive process
// restarts.
type SQLiteRecorder struct {
	db       *sql.DB
	dbPath   string
	mu       sync.RWMutex
	redactor Redactor
}

// OpenSQLiteRecorder creates or opens a SQLite database at dbPath,
// applying WAL mode and a busy timeout the same way the teacher's
// persistence store does for its own write-heavy workload.
func OpenSQLiteRecorder(dbPath string, redactor Redactor) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?cache=shared&mode=rwc&_journal_mode=WAL", dbPath))
	if err != nil {
		return nil, fmt.Errorf("open recorder database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if redactor == nil {
		redactor = NoopRedactor
	}

	r := &SQLiteRecorder{db: db, dbPath: dbPath, redactor: redactor}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate recorder schema: %w", err)
	}

	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS session_events (
			session_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '{}',
			recorded_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_session_events_session ON session_events(session_id, recorded_at);
	`)
	if err != nil {
		return fmt.Errorf("create session_events table: %w", err)
	}
	return nil
}

// RecordEvent persists event after passing it through the configured
// Redactor.
func (r *SQLiteRecorder) RecordEvent(sessionID string, event Event) error {
	event = r.redactor.Redact(event)
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	detail := event.Detail
	if detail == nil {
		detail = json.RawMessage("{}")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Fixed-width UTC timestamps sort chronologically as text, which
	// Replay's ORDER BY recorded_at relies on.
	_, err := r.db.Exec(
		"INSERT INTO session_events (session_id, kind, detail, recorded_at) VALUES (?, ?, ?, ?)",
		sessionID, event.Kind, string(detail), event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000000Z07:00"),
	)
	if err != nil {
		return fmt.Errorf("insert session event: %w", err)
	}
	return nil
}

// Replay returns every recorded event for sessionID in chronological
// order.
func (r *SQLiteRecorder) Replay(sessionID string) ([]Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.Query(
		"SELECT kind, detail, recorded_at FROM session_events WHERE session_id = ? ORDER BY recorded_at ASC",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query session events: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0)
	for rows.Next() {
		var kind, detail, recordedAt string
		if err := rows.Scan(&kind, &detail, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan session event: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, recordedAt)
		if err != nil {
			slog.Warn("recorder: dropping event with unparseable timestamp", "session_id", sessionID, "error", err)
			continue
		}
		events = append(events, Event{
			SessionID: sessionID,
			Kind:      kind,
			Detail:    json.RawMessage(detail),
			Timestamp: ts,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session events: %w", err)
	}

	return events, nil
}

// DeleteSession removes every recorded event for sessionID.
func (r *SQLiteRecorder) DeleteSession(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec("DELETE FROM session_events WHERE session_id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("delete session events: %w", err)
	}
	return nil
}

// Close closes the underlying database, logging its final on-disk size in
// human-readable form for operators scanning logs for recorders that have
// grown unexpectedly large.
func (r *SQLiteRecorder) Close() error {
	if info, err := os.Stat(r.dbPath); err == nil {
		slog.Info("recorder database closed", "path", r.dbPath, "size", humanize.Bytes(uint64(info.Size())))
	}
	return r.db.Close()
}

var _ SessionRecorder = (*SQLiteRecorder)(nil)
