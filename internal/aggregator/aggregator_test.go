// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

package aggregator

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/n6-community/n6/internal/record"
)

type memSnapshotter struct {
	data []byte
}

func (m *memSnapshotter) Save(data []byte) error {
	m.data = append([]byte(nil), data...)
	return nil
}

func (m *memSnapshotter) Load() ([]byte, error) {
	if m.data == nil {
		return nil, errNoSnapshot
	}
	return m.data, nil
}

var errNoSnapshot = errors.New("no snapshot saved yet")

func TestAggregateThenSuppress(t *testing.T) {
	a := New(DefaultTimeTolerance, nil)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	payload := &record.Record{Source: "acme.feed"}

	decision, err := a.Process("acme.feed", "group-1", base, payload)
	require.NoError(t, err)
	require.Equal(t, DecisionPublishEvent, decision)

	decision, err = a.Process("acme.feed", "group-1", base.Add(time.Minute), payload)
	require.NoError(t, err)
	require.Equal(t, DecisionSuppress, decision)

	decision, err = a.Process("acme.feed", "group-1", base.Add(2*time.Minute), payload)
	require.NoError(t, err)
	require.Equal(t, DecisionSuppress, decision)

	events := a.GenerateSuppressedEvents("acme.feed")
	require.Empty(t, events, "group is still within the aggregate window, nothing should flush yet")
}

func TestOutOfOrderWithNoPriorGroupIsDropped(t *testing.T) {
	a := New(DefaultTimeTolerance, nil)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	payload := &record.Record{Source: "acme.feed"}

	_, err := a.Process("acme.feed", "group-1", base, payload)
	require.NoError(t, err)

	stale := base.Add(-2 * DefaultTimeTolerance)
	decision, err := a.Process("acme.feed", "group-2", stale, payload)
	require.ErrorIs(t, err, ErrOutOfOrder)
	require.Equal(t, DecisionSuppress, decision)
}

func TestRolloverAfterAggregateWaitOpensNewGroup(t *testing.T) {
	a := New(DefaultTimeTolerance, nil)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	payload := &record.Record{Source: "acme.feed"}

	decision, err := a.Process("acme.feed", "group-1", base, payload)
	require.NoError(t, err)
	require.Equal(t, DecisionPublishEvent, decision)

	decision, err = a.Process("acme.feed", "group-1", base.Add(time.Minute), payload)
	require.NoError(t, err)
	require.Equal(t, DecisionSuppress, decision)

	later := base.Add(AggregateWait + time.Hour)
	decision, err = a.Process("acme.feed", "group-1", later, payload)
	require.NoError(t, err)
	require.Equal(t, DecisionPublishEvent, decision, "rollover after AggregateWait must open a fresh group")
}

func TestGenerateSuppressedEventsOnlyEmitsWhenCountAboveOne(t *testing.T) {
	a := New(DefaultTimeTolerance, nil)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	payload := &record.Record{Source: "acme.feed"}

	_, err := a.Process("acme.feed", "singleton", base, payload)
	require.NoError(t, err)

	a.mu.Lock()
	src := a.sources["acme.feed"]
	src.CurrentTime = base.Add(24*time.Hour + DefaultTimeTolerance + time.Hour)
	a.mu.Unlock()

	events := a.GenerateSuppressedEvents("acme.feed")
	require.Empty(t, events, "a group seen exactly once must never be emitted as suppressed")
}

func TestSaveRestoreRoundTrip(t *testing.T) {
	snap := &memSnapshotter{}
	a := New(DefaultTimeTolerance, nil)
	a.snapshotter = snap

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	payload := &record.Record{Source: "acme.feed", ID: "abc123"}

	_, err := a.Process("acme.feed", "group-1", base, payload)
	require.NoError(t, err)
	_, err = a.Process("acme.feed", "group-1", base.Add(time.Minute), payload)
	require.NoError(t, err)

	require.NoError(t, a.Save())

	restored := &Aggregator{sources: make(map[string]*SourceData), defaultTolerance: DefaultTimeTolerance, snapshotter: snap, now: time.Now}
	require.NoError(t, restored.Restore())

	src, ok := restored.sources["acme.feed"]
	require.True(t, ok)
	g, ok := src.groups.get("group-1")
	require.True(t, ok)
	require.Equal(t, 2, g.Count)
	require.Equal(t, "abc123", g.Payload.ID)
}

func TestRestoreFallsBackToEmptyStateOnLoadFailure(t *testing.T) {
	snap := &memSnapshotter{}
	a := &Aggregator{sources: map[string]*SourceData{"stale": newSourceData(DefaultTimeTolerance)}, defaultTolerance: DefaultTimeTolerance, snapshotter: snap, now: time.Now}

	err := a.Restore()
	require.Error(t, err)
	require.Empty(t, a.sources)
}
