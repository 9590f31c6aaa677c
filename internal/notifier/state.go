// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// sendTimeLayout matches the upstream "%Y-%m-%d %H:%M:%S" format exactly,
// so a deployment's existing Redis state (written by the legacy process)
// remains readable across a cutover.
const sendTimeLayout = "2006-01-02 15:04:05"

// control fields embedded in the live per-org counter hash alongside the
// per-category counts (spec.md §6.3).
const (
	fieldTMin = "_tmin"
	fieldTMax = "_tmax"
	fieldTime = "_time"
)

// Store is the Redis-backed per-org state store: last send time, last
// send counter snapshot, and the live counter hash C12 populates.
type Store struct {
	rdb *redis.Client
}

// NewStore returns a Store backed by the given client. The caller owns
// the client's lifecycle (Close).
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// LastSendTime returns the org's last successful send time, or the zero
// time with ok=false if the org has never sent (first run).
func (s *Store) LastSendTime(ctx context.Context, orgID string) (t time.Time, ok bool, err error) {
	v, err := s.rdb.Get(ctx, orgID+"_last_send_dt").Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("notifier: read last send time: %w", err)
	}
	t, err = time.Parse(sendTimeLayout, v)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("notifier: parse last send time %q: %w", v, err)
	}
	return t, true, nil
}

// SetLastSendTime stamps now as orgID's last send time.
func (s *Store) SetLastSendTime(ctx context.Context, orgID string, now time.Time) error {
	if err := s.rdb.Set(ctx, orgID+"_last_send_dt", now.Format(sendTimeLayout), 0).Err(); err != nil {
		return fmt.Errorf("notifier: write last send time: %w", err)
	}
	return nil
}

// LastSendCounter returns the counter snapshot as of the org's last
// successful send, or nil if there is none yet.
func (s *Store) LastSendCounter(ctx context.Context, orgID string) (map[string]string, error) {
	m, err := s.rdb.HGetAll(ctx, orgID+"_last_send_counter").Result()
	if err != nil {
		return nil, fmt.Errorf("notifier: read last send counter: %w", err)
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}

// SetLastSendCounter overwrites orgID's last-send counter snapshot.
func (s *Store) SetLastSendCounter(ctx context.Context, orgID string, counter map[string]string) error {
	key := orgID + "_last_send_counter"
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("notifier: clear last send counter: %w", err)
	}
	if len(counter) == 0 {
		return nil
	}
	values := make(map[string]interface{}, len(counter))
	for k, v := range counter {
		values[k] = v
	}
	if err := s.rdb.HSet(ctx, key, values).Err(); err != nil {
		return fmt.Errorf("notifier: write last send counter: %w", err)
	}
	return nil
}

// RawCounter returns orgID's live counter hash as populated by C12, or
// nil if the org has no counter data at all yet.
func (s *Store) RawCounter(ctx context.Context, orgID string) (map[string]string, error) {
	m, err := s.rdb.HGetAll(ctx, orgID).Result()
	if err != nil {
		return nil, fmt.Errorf("notifier: read raw counter: %w", err)
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}

// SetTimeMin rolls orgID's _tmin control field forward to the value of
// its _tmax, as the upstream send completion step does.
func (s *Store) SetTimeMin(ctx context.Context, orgID string, currentState map[string]string) error {
	tmax, ok := currentState[fieldTMax]
	if !ok {
		return nil
	}
	if err := s.rdb.HSet(ctx, orgID, fieldTMin, tmax).Err(); err != nil {
		return fmt.Errorf("notifier: roll _tmin forward: %w", err)
	}
	return nil
}

// ClearTime deletes orgID's _time control field, as the upstream send
// completion step does.
func (s *Store) ClearTime(ctx context.Context, orgID string) error {
	if err := s.rdb.HDel(ctx, orgID, fieldTime).Err(); err != nil {
		return fmt.Errorf("notifier: clear _time: %w", err)
	}
	return nil
}
