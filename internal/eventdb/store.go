// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

package eventdb

import (
	"context"
	"database/sql"
	"fmt"

	json "github.com/goccy/go-json"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/n6-community/n6/internal/config"
	"github.com/n6-community/n6/internal/record"
)

// Store runs compiled Queries against the recorder's event table. It
// opens its own read path onto the same DuckDB file the recorder
// writes, so the query stage never blocks ingestion on a shared handle.
type Store struct {
	db          *sql.DB
	maxPageSize int
}

// Open opens cfg.DuckDBPath (the recorder's file — C11 never creates its
// own schema, it only reads the recorder's).
func Open(cfg config.EventDBConfig) (*Store, error) {
	db, err := sql.Open("duckdb", cfg.DuckDBPath)
	if err != nil {
		return nil, fmt.Errorf("eventdb: open duckdb: %w", err)
	}
	maxPageSize := cfg.MaxPageSize
	if maxPageSize <= 0 {
		maxPageSize = 1000
	}
	return &Store{db: db, maxPageSize: maxPageSize}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// Search runs q against the event table, returning up to the
// configured MaxPageSize rows in descending time order (newest first,
// matching a typical incident-response "show me recent events" use).
func (s *Store) Search(ctx context.Context, q *Query) ([]*record.Record, error) {
	sqlText := "SELECT DISTINCT events.custom FROM events"
	if q.NeedsClientJoin {
		sqlText += " JOIN client_to_event ON client_to_event.id = events.id AND client_to_event.time = events.time"
	}
	sqlText += fmt.Sprintf(" WHERE %s ORDER BY events.time DESC LIMIT %d", q.Where, s.maxPageSize)

	rows, err := s.db.QueryContext(ctx, sqlText, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("eventdb: query: %w", err)
	}
	defer rows.Close()

	var out []*record.Record
	for rows.Next() {
		var custom []byte
		if err := rows.Scan(&custom); err != nil {
			return nil, fmt.Errorf("eventdb: scan row: %w", err)
		}
		r := &record.Record{}
		if err := json.Unmarshal(custom, r); err != nil {
			return nil, fmt.Errorf("eventdb: unmarshal row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("eventdb: iterate rows: %w", err)
	}
	return out, nil
}

// Count runs q as a COUNT(*), used by the notifier's counter lookups and
// any caller that only needs how many events match, not the events
// themselves.
func (s *Store) Count(ctx context.Context, q *Query) (int64, error) {
	sqlText := "SELECT COUNT(DISTINCT (events.id, events.time)) FROM events"
	if q.NeedsClientJoin {
		sqlText += " JOIN client_to_event ON client_to_event.id = events.id AND client_to_event.time = events.time"
	}
	sqlText += fmt.Sprintf(" WHERE %s", q.Where)

	var count int64
	if err := s.db.QueryRowContext(ctx, sqlText, q.Args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("eventdb: count: %w", err)
	}
	return count, nil
}
