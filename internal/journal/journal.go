// Package journal persists engine lifecycle events to SQLite for post-hoc
// analysis. It is a plain event-hub subscriber: the engine never depends on
// it and no durability guarantee is implied for admission state.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/haasonsaas/splitdeck/internal/engine"
)

// Journal is an append-only record of emitted events.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
	wg     sync.WaitGroup
}

// Open creates or opens a journal at path. An empty path uses an in-memory
// database.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	if path == "" {
		path = ":memory:"
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	j := &Journal{db: db, logger: logger.With("component", "journal")}
	if err := j.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) init() error {
	_, err := j.db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			ts INTEGER NOT NULL,
			data TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
		CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts);
	`)
	if err != nil {
		return fmt.Errorf("init journal schema: %w", err)
	}
	return nil
}

// Record appends a single event.
func (j *Journal) Record(evt engine.Event) error {
	data, err := json.Marshal(evt.Data)
	if err != nil {
		return fmt.Errorf("encode event data: %w", err)
	}
	_, err = j.db.Exec(
		`INSERT OR IGNORE INTO events (id, type, ts, data) VALUES (?, ?, ?, ?)`,
		evt.ID, string(evt.Type), evt.Timestamp.UnixNano(), string(data),
	)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// Follow consumes events from the subscription channel until it closes or
// the context is cancelled. Call Wait for a clean shutdown.
func (j *Journal) Follow(ctx context.Context, events <-chan engine.Event) {
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				if err := j.Record(evt); err != nil {
					j.logger.Warn("event not journaled", "type", evt.Type, "error", err)
				}
			}
		}
	}()
}

// Wait blocks until all Follow loops have exited.
func (j *Journal) Wait() {
	j.wg.Wait()
}

// EventsByType returns up to limit events of the given type, newest first.
func (j *Journal) EventsByType(eventType engine.EventType, limit int) ([]engine.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.Query(
		`SELECT id, type, ts, data FROM events WHERE type = ? ORDER BY ts DESC LIMIT ?`,
		string(eventType), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// EventsBetween returns events within [start, end], oldest first.
func (j *Journal) EventsBetween(start, end time.Time) ([]engine.Event, error) {
	rows, err := j.db.Query(
		`SELECT id, type, ts, data FROM events WHERE ts >= ? AND ts <= ? ORDER BY ts ASC`,
		start.UnixNano(), end.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]engine.Event, error) {
	var out []engine.Event
	for rows.Next() {
		var (
			evt     engine.Event
			evtType string
			ts      int64
			data    sql.NullString
		)
		if err := rows.Scan(&evt.ID, &evtType, &ts, &data); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		evt.Type = engine.EventType(evtType)
		evt.Timestamp = time.Unix(0, ts)
		if data.Valid && data.String != "" && data.String != "null" {
			if err := json.Unmarshal([]byte(data.String), &evt.Data); err != nil {
				return nil, fmt.Errorf("decode event data: %w", err)
			}
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
