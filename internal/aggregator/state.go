// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

package aggregator

import (
	"time"

	"github.com/n6-community/n6/internal/record"
)

// HiFreqEventData is the running aggregate for one (source, group).
type HiFreqEventData struct {
	Payload   *record.Record
	FirstTime time.Time
	LastTime  time.Time
	Count     int
}

// orderedGroups is an insertion-ordered map, needed because
// generate_suppressed_events must scan groups/buffer in insertion order
// and stop at the first entry still inside its cutoff window.
type orderedGroups struct {
	order []string
	data  map[string]*HiFreqEventData
}

func newOrderedGroups() *orderedGroups {
	return &orderedGroups{data: make(map[string]*HiFreqEventData)}
}

func (g *orderedGroups) get(key string) (*HiFreqEventData, bool) {
	v, ok := g.data[key]
	return v, ok
}

func (g *orderedGroups) set(key string, val *HiFreqEventData) {
	if _, exists := g.data[key]; !exists {
		g.order = append(g.order, key)
	}
	g.data[key] = val
}

func (g *orderedGroups) delete(key string) {
	if _, exists := g.data[key]; !exists {
		return
	}
	delete(g.data, key)
	for i, k := range g.order {
		if k == key {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
}

func (g *orderedGroups) len() int { return len(g.order) }

// SourceData tracks one source's in-flight aggregation state.
type SourceData struct {
	CurrentTime  time.Time
	LastWallSeen time.Time
	TimeTolerance time.Duration

	groups *orderedGroups
	buffer *orderedGroups
}

func newSourceData(timeTolerance time.Duration) *SourceData {
	return &SourceData{
		TimeTolerance: timeTolerance,
		groups:        newOrderedGroups(),
		buffer:        newOrderedGroups(),
	}
}

// snapshot is the wire form persisted to the WAL file on stop/periodically.
type snapshot struct {
	Sources map[string]*sourceSnapshot `json:"sources"`
}

type sourceSnapshot struct {
	CurrentTime   time.Time                  `json:"current_time"`
	LastWallSeen  time.Time                  `json:"last_wall_seen"`
	TimeTolerance time.Duration              `json:"time_tolerance"`
	GroupOrder    []string                   `json:"group_order"`
	Groups        map[string]*groupSnapshot  `json:"groups"`
	BufferOrder   []string                   `json:"buffer_order"`
	Buffer        map[string]*groupSnapshot  `json:"buffer"`
}

type groupSnapshot struct {
	Payload   *record.Record `json:"payload"`
	FirstTime time.Time      `json:"first_time"`
	LastTime  time.Time      `json:"last_time"`
	Count     int            `json:"count"`
}
