// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

package recorder

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/n6-community/n6/internal/config"
	"github.com/n6-community/n6/internal/record"
)

// ErrValueOutOfRange is returned when the database rejects a row under
// strict-mode column constraints (spec.md §4.8): the recorder fails the
// message rather than silently truncating or coercing the value.
var ErrValueOutOfRange = errors.New("recorder: value out of range for strict-mode column")

// Store is the DuckDB-backed event store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the DuckDB file at cfg.DuckDBPath and
// runs schema migration. Connection pool sizing mirrors the teacher's
// configureConnectionPool idiom: max-open pinned to NumCPU for
// parallelism, a small idle pool, and bounded connection lifetimes to
// avoid stale file handles across long-running processes.
func Open(cfg config.RecorderConfig) (*Store, error) {
	db, err := sql.Open("duckdb", cfg.DuckDBPath)
	if err != nil {
		return nil, fmt.Errorf("recorder: open duckdb: %w", err)
	}

	db.SetMaxOpenConns(runtime.NumCPU())
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("recorder: migrate schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Upsert writes r's row keyed by (id, time, ip), one client_to_event row
// per recipient org id, and — for bl-* event types — applies the
// blacklist lifecycle transition on the same (id, source). A repeated
// (id, time, ip) is a no-op beyond refreshing modified; duplicate
// client_to_event rows are ignored via ON CONFLICT DO NOTHING.
func (s *Store) Upsert(ctx context.Context, r *record.Record, clientOrgIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("recorder: begin tx: %w", err)
	}
	defer tx.Rollback()

	ip := primaryIP(r)
	modified := time.Now().UTC()

	status, expires := r.Status, r.Expires
	if isBlacklistType(r.Type) {
		var currentStatus string
		var currentExpires *time.Time
		row := tx.QueryRowContext(ctx, `SELECT status, expires FROM events WHERE id = ? AND source = ? ORDER BY time DESC LIMIT 1`, r.ID, r.Source)
		switch err := row.Scan(&currentStatus, &currentExpires); {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("recorder: read prior blacklist row: %w", err)
		}
		status, expires = nextBlacklistState(r.Type, currentExpires, currentStatus, r.Expires)
	}

	custom, err := r.GetReadyJSON()
	if err != nil {
		return fmt.Errorf("recorder: marshal custom payload: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (id, time, ip, dip, source, restriction, confidence, category, type, name, target, status, expires, modified, md5, sha1, sha256, custom)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id, time, ip) DO UPDATE SET
			status = excluded.status,
			expires = excluded.expires,
			modified = excluded.modified
	`, r.ID, r.Time, ip, dipOrNil(r), r.Source, string(r.Restriction), string(r.Confidence), string(r.Category), string(r.Type),
		r.Name, r.Target, status, expires, modified, hexToBytes(r.MD5), hexToBytes(r.SHA1), hexToBytes(r.SHA256), custom)
	if err != nil {
		if isOutOfRangeError(err) {
			return fmt.Errorf("%w: %v", ErrValueOutOfRange, err)
		}
		return fmt.Errorf("recorder: upsert event row: %w", err)
	}

	for _, orgID := range clientOrgIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO client_to_event (id, time, client_org_id) VALUES (?, ?, ?)
			ON CONFLICT (id, time, client_org_id) DO NOTHING
		`, r.ID, r.Time, orgID); err != nil {
			return fmt.Errorf("recorder: insert client_to_event row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("recorder: commit tx: %w", err)
	}
	return nil
}

func primaryIP(r *record.Record) uint32 {
	if len(r.Address) == 0 {
		return 0
	}
	return ipToUint32(r.Address[0].IP)
}

func dipOrNil(r *record.Record) *uint32 {
	if r.DIP == "" {
		return nil
	}
	v := ipToUint32(r.DIP)
	return &v
}

func isOutOfRangeError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "out of range") || strings.Contains(msg, "overflow") || strings.Contains(msg, "conversion error")
}

// hexToBytes decodes a hex digest to raw bytes for the fixed-size BLOB
// hash columns; an empty or malformed digest maps to nil (NULL).
func hexToBytes(digest string) []byte {
	if digest == "" {
		return nil
	}
	b, err := hex.DecodeString(digest)
	if err != nil {
		return nil
	}
	return b
}
