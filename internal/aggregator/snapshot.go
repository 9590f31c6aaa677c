// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

package aggregator

import (
	"context"
	"errors"

	json "github.com/goccy/go-json"

	"github.com/n6-community/n6/internal/wal"
)

// ErrNoSnapshot is returned by BadgerSnapshotter.Load when the WAL holds
// no prior aggregator state (first run).
var ErrNoSnapshot = errors.New("aggregator: no snapshot in wal")

// BadgerSnapshotter persists aggregator snapshots through the shared
// durable WAL rather than a bare file: a new snapshot is written as a WAL
// entry, the previously pending entry (the prior snapshot) is confirmed
// so compaction reclaims it, and Load returns the most recent pending
// entry's payload. This reuses the WAL's crash-safe write path instead
// of hand-rolling a second atomic-file mechanism.
type BadgerSnapshotter struct {
	w wal.WAL
}

// NewBadgerSnapshotter wraps w for use as an Aggregator Snapshotter.
func NewBadgerSnapshotter(w wal.WAL) *BadgerSnapshotter {
	return &BadgerSnapshotter{w: w}
}

// Save confirms any previously pending snapshot entry, then writes data
// as the new pending entry.
func (s *BadgerSnapshotter) Save(data []byte) error {
	ctx := context.Background()

	pending, err := s.w.GetPending(ctx)
	if err == nil {
		for _, entry := range pending {
			_ = s.w.Confirm(ctx, entry.ID)
		}
	}

	_, err = s.w.Write(ctx, json.RawMessage(data))
	return err
}

// Load returns the payload of the most recently written, still-pending
// snapshot entry, or ErrNoSnapshot if none exists.
func (s *BadgerSnapshotter) Load() ([]byte, error) {
	pending, err := s.w.GetPending(context.Background())
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, ErrNoSnapshot
	}

	latest := pending[0]
	for _, entry := range pending[1:] {
		if entry.CreatedAt.After(latest.CreatedAt) {
			latest = entry
		}
	}
	return latest.Payload, nil
}
