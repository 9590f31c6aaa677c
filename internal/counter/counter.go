// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

package counter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/n6-community/n6/internal/anonymizer"
	"github.com/n6-community/n6/internal/authindex"
	"github.com/n6-community/n6/internal/record"
)

// timeLayout matches the notifier's control-field format exactly, so the
// two stages agree on how _tmin/_tmax/_time are encoded in the shared
// Redis hash.
const timeLayout = "2006-01-02 15:04:05"

const (
	fieldTMin = "_tmin"
	fieldTMax = "_tmax"
	fieldTime = "_time"
)

// Store is the Redis-backed live counter hash writer, one hash per org
// id keyed bare (no suffix) -- the same key internal/notifier.Store
// reads as RawCounter.
type Store struct {
	rdb *redis.Client
}

// NewStore returns a Store backed by the given client.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Increment bumps orgID's category count by delta and rolls the
// _tmax/_time control fields forward to now. _tmin is set only if
// absent, establishing the window's start on the org's first count.
func (s *Store) Increment(ctx context.Context, orgID, category string, delta int, now time.Time) error {
	nowStr := now.Format(timeLayout)

	if err := s.rdb.HIncrBy(ctx, orgID, category, int64(delta)).Err(); err != nil {
		return fmt.Errorf("counter: increment %s/%s: %w", orgID, category, err)
	}
	if err := s.rdb.HSetNX(ctx, orgID, fieldTMin, nowStr).Err(); err != nil {
		return fmt.Errorf("counter: set _tmin: %w", err)
	}
	if err := s.rdb.HSet(ctx, orgID, fieldTMax, nowStr, fieldTime, nowStr).Err(); err != nil {
		return fmt.Errorf("counter: set _tmax/_time: %w", err)
	}
	return nil
}

// Counter re-derives an event's recipients (the same computation the
// anonymizer uses) and increments each recipient's counter by category.
type Counter struct {
	Index *authindex.Index
	Store *Store
	Now   func() time.Time
}

// New returns a Counter bound to idx and store.
func New(idx *authindex.Index, store *Store) *Counter {
	return &Counter{Index: idx, Store: store, Now: func() time.Time { return time.Now().UTC() }}
}

// Process increments every recipient org's counter for event's category
// by one. clientOrgIDs is the filter-supplied inside-zone client list,
// exactly as the anonymizer receives it.
func (c *Counter) Process(ctx context.Context, event *record.Record, clientOrgIDs []string) error {
	recipients := anonymizer.RecipientOrgIDs(c.Index, event, clientOrgIDs)
	now := c.Now()
	for _, orgID := range recipients {
		if err := c.Store.Increment(ctx, orgID, string(event.Category), 1, now); err != nil {
			return fmt.Errorf("counter: org %s: %w", orgID, err)
		}
	}
	return nil
}
