// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

package aggregator

import (
	"errors"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/n6-community/n6/internal/logging"
	"github.com/n6-community/n6/internal/metrics"
	"github.com/n6-community/n6/internal/record"
)

// Constants ported from aggregator.py (see SPEC_FULL.md §5).
const (
	AggregateWait          = 12 * time.Hour
	SourceInactivityTimeout = 24 * time.Hour
	Tick                   = time.Hour
	DefaultTimeTolerance   = 600 * time.Second
)

// ErrOutOfOrder is returned when an event falls outside the tolerance
// window and there is no existing group it can be attributed to; the
// caller must drop the message (nack-without-requeue), never retry.
var ErrOutOfOrder = errors.New("aggregator: event out of order")

// Decision is the aggregator's verdict for one input event.
type Decision int

const (
	// DecisionSuppress means the event was folded into an existing
	// aggregate; no output event is published for this input.
	DecisionSuppress Decision = iota
	// DecisionPublishEvent means a new aggregate was opened and the
	// input event itself should be published as type "event".
	DecisionPublishEvent
)

// Aggregator holds per-source aggregation state and persists it through a
// Snapshotter (normally internal/wal's atomic-replace-on-write file).
type Aggregator struct {
	mu      sync.Mutex
	sources map[string]*SourceData

	defaultTolerance time.Duration
	snapshotter      Snapshotter

	now func() time.Time
}

// Snapshotter persists and restores the aggregator's full state. Grounded
// on internal/wal's durable write + fsync + atomic rename primitives.
type Snapshotter interface {
	Save(data []byte) error
	Load() ([]byte, error)
}

// New returns an Aggregator. If snap is non-nil, New attempts to restore
// prior state from it; a restore failure (other than ErrNoSnapshot on a
// first run) is logged and the aggregator falls back to a fresh empty
// state, mirroring the Python
// `except: LOGGER.error(...); self.aggr_data = AggregatorData()` fallback.
func New(defaultTolerance time.Duration, snap Snapshotter) *Aggregator {
	a := &Aggregator{
		sources:          make(map[string]*SourceData),
		defaultTolerance: defaultTolerance,
		snapshotter:      snap,
		now:              time.Now,
	}
	if snap != nil {
		if err := a.Restore(); err != nil && !errors.Is(err, ErrNoSnapshot) {
			logging.Error().Err(err).Msg("aggregator: restore failed, starting with empty state")
		}
	}
	return a
}

func (a *Aggregator) sourceFor(source string) *SourceData {
	src, ok := a.sources[source]
	if !ok {
		src = newSourceData(a.defaultTolerance)
		a.sources[source] = src
	}
	return src
}

// Process runs one input event through the five-way branch described in
// SPEC_FULL.md §5 / spec.md §4.4. payload is stored verbatim as the
// group's current representative record when a new aggregate opens.
func (a *Aggregator) Process(source, group string, t time.Time, payload *record.Record) (Decision, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	src := a.sourceFor(source)
	if src.CurrentTime.IsZero() {
		src.CurrentTime = t
	}

	decision, err := a.processLocked(src, group, t, payload)

	if t.After(src.CurrentTime) {
		src.CurrentTime = t
	}
	src.LastWallSeen = a.now()

	if err == nil {
		metrics.RecordAggregatorEvent(source, decisionLabel(decision))
	} else {
		metrics.RecordAggregatorOutOfOrder(source)
	}
	metrics.AggregatorActiveGroups.WithLabelValues(source).Set(float64(src.groups.len()))

	return decision, err
}

func decisionLabel(d Decision) string {
	if d == DecisionPublishEvent {
		return "new"
	}
	return "folded"
}

func (a *Aggregator) processLocked(src *SourceData, group string, t time.Time, payload *record.Record) (Decision, error) {
	// Branch 1/2: event predates current_time beyond tolerance.
	if t.Add(src.TimeTolerance).Before(src.CurrentTime) {
		existing, hasGroup := src.groups.get(group)
		if !hasGroup || t.Before(existing.FirstTime) {
			return DecisionSuppress, ErrOutOfOrder
		}
		existing.Count++
		if t.After(existing.LastTime) {
			existing.LastTime = t
		}
		return DecisionSuppress, nil
	}

	existing, hasGroup := src.groups.get(group)

	// Branch 3: no active group yet.
	if !hasGroup {
		if t.Before(src.CurrentTime) {
			if buffered, ok := src.buffer.get(group); ok {
				buffered.Count++
				if t.After(buffered.LastTime) {
					buffered.LastTime = t
				}
				return DecisionSuppress, nil
			}
		}
		src.groups.set(group, &HiFreqEventData{Payload: payload, FirstTime: t, LastTime: t, Count: 1})
		return DecisionPublishEvent, nil
	}

	// Branch 4: active group, but rollover conditions met.
	if t.After(existing.LastTime.Add(AggregateWait)) || dateUTC(t).After(dateUTC(src.CurrentTime)) {
		src.buffer.set(group, existing)
		src.groups.set(group, &HiFreqEventData{Payload: payload, FirstTime: t, LastTime: t, Count: 1})
		return DecisionPublishEvent, nil
	}

	// Branch 5: fold into the active group.
	existing.Count++
	if t.After(existing.LastTime) {
		existing.LastTime = t
	}
	return DecisionSuppress, nil
}

// dateUTC compares calendar dates in UTC (resolves spec.md §9 OQ1: the
// source's naive datetimes are treated as UTC throughout).
func dateUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// SuppressedEvent is a summary of a finished aggregate, emitted only when
// Count > 1.
type SuppressedEvent struct {
	Source    string
	Group     string
	Payload   *record.Record
	FirstTime time.Time
	LastTime  time.Time
	Count     int
}

// GenerateSuppressedEvents runs the two-phase, insertion-ordered,
// early-break scan described in SPEC_FULL.md §5: groups older than
// AggregateWait roll into the buffer; buffered groups older than the
// tolerance window are popped and (if Count > 1) emitted.
func (a *Aggregator) GenerateSuppressedEvents(source string) []SuppressedEvent {
	a.mu.Lock()
	defer a.mu.Unlock()

	src, ok := a.sources[source]
	if !ok {
		return nil
	}
	return a.generateSuppressedLocked(src)
}

func (a *Aggregator) generateSuppressedLocked(src *SourceData) []SuppressedEvent {
	groupCutoff := src.CurrentTime.Add(-AggregateWait)
	for _, key := range append([]string(nil), src.groups.order...) {
		g, _ := src.groups.get(key)
		if g.LastTime.After(groupCutoff) || !dateUTC(g.LastTime).Before(dateUTC(src.CurrentTime)) {
			break // early-break: insertion order means later entries are newer
		}
		src.buffer.set(key, g)
		src.groups.delete(key)
	}

	var out []SuppressedEvent
	bufferCutoff := src.CurrentTime.Add(-src.TimeTolerance)
	for _, key := range append([]string(nil), src.buffer.order...) {
		g, _ := src.buffer.get(key)
		if g.LastTime.After(bufferCutoff) {
			break
		}
		src.buffer.delete(key)
		if g.Count > 1 {
			out = append(out, SuppressedEvent{Count: g.Count, FirstTime: g.FirstTime, LastTime: g.LastTime, Payload: g.Payload})
		}
	}
	return out
}

// FlushIdleSources runs the periodic Tick: any source untouched for
// SourceInactivityTimeout has all its groups/buffers flushed as
// suppressed events, then cleared.
func (a *Aggregator) FlushIdleSources() map[string][]SuppressedEvent {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	out := make(map[string][]SuppressedEvent)
	for name, src := range a.sources {
		if now.Sub(src.LastWallSeen) < SourceInactivityTimeout {
			continue
		}
		var flushed []SuppressedEvent
		for _, key := range src.groups.order {
			g, _ := src.groups.get(key)
			if g.Count > 1 {
				flushed = append(flushed, SuppressedEvent{Count: g.Count, FirstTime: g.FirstTime, LastTime: g.LastTime, Payload: g.Payload})
			}
		}
		for _, key := range src.buffer.order {
			g, _ := src.buffer.get(key)
			if g.Count > 1 {
				flushed = append(flushed, SuppressedEvent{Count: g.Count, FirstTime: g.FirstTime, LastTime: g.LastTime, Payload: g.Payload})
			}
		}
		if len(flushed) > 0 {
			out[name] = flushed
		}
		src.groups = newOrderedGroups()
		src.buffer = newOrderedGroups()
	}
	return out
}

// Save serializes all source state to the configured Snapshotter.
func (a *Aggregator) Save() error {
	if a.snapshotter == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := snapshot{Sources: make(map[string]*sourceSnapshot, len(a.sources))}
	for name, src := range a.sources {
		s := &sourceSnapshot{
			CurrentTime:   src.CurrentTime,
			LastWallSeen:  src.LastWallSeen,
			TimeTolerance: src.TimeTolerance,
			GroupOrder:    append([]string(nil), src.groups.order...),
			Groups:        make(map[string]*groupSnapshot, src.groups.len()),
			BufferOrder:   append([]string(nil), src.buffer.order...),
			Buffer:        make(map[string]*groupSnapshot, src.buffer.len()),
		}
		for k, v := range src.groups.data {
			s.Groups[k] = &groupSnapshot{Payload: v.Payload, FirstTime: v.FirstTime, LastTime: v.LastTime, Count: v.Count}
		}
		for k, v := range src.buffer.data {
			s.Buffer[k] = &groupSnapshot{Payload: v.Payload, FirstTime: v.FirstTime, LastTime: v.LastTime, Count: v.Count}
		}
		snap.Sources[name] = s
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return a.snapshotter.Save(data)
}

// Restore loads prior state from the configured Snapshotter. On any
// failure it resets to a fresh empty state and returns the error for the
// caller to log — it never leaves the aggregator half-restored.
func (a *Aggregator) Restore() error {
	data, err := a.snapshotter.Load()
	if err != nil {
		a.mu.Lock()
		a.sources = make(map[string]*SourceData)
		a.mu.Unlock()
		return err
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		a.mu.Lock()
		a.sources = make(map[string]*SourceData)
		a.mu.Unlock()
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.sources = make(map[string]*SourceData, len(snap.Sources))
	for name, s := range snap.Sources {
		src := &SourceData{
			CurrentTime:   s.CurrentTime,
			LastWallSeen:  s.LastWallSeen,
			TimeTolerance: s.TimeTolerance,
			groups:        newOrderedGroups(),
			buffer:        newOrderedGroups(),
		}
		for _, k := range s.GroupOrder {
			g := s.Groups[k]
			src.groups.set(k, &HiFreqEventData{Payload: g.Payload, FirstTime: g.FirstTime, LastTime: g.LastTime, Count: g.Count})
		}
		for _, k := range s.BufferOrder {
			g := s.Buffer[k]
			src.buffer.set(k, &HiFreqEventData{Payload: g.Payload, FirstTime: g.FirstTime, LastTime: g.LastTime, Count: g.Count})
		}
		a.sources[name] = src
	}
	return nil
}
