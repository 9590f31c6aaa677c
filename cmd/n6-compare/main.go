// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command n6-compare is an ops CLI that diffs two aggregator snapshot
// stores (C12 "comparator"): one per deployment, so an operator can check
// whether a hot standby or a freshly-restored aggregator has drifted from
// the primary before cutting traffic over to it.
//
// It is a one-shot tool, not a supervised service: unlike the other n6
// binaries it opens its inputs, prints a report, and exits.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	json "github.com/goccy/go-json"

	"github.com/n6-community/n6/internal/aggregator"
	"github.com/n6-community/n6/internal/wal"
)

func main() {
	aPath := flag.String("a", "", "path to the first aggregator snapshot store (WAL data dir)")
	bPath := flag.String("b", "", "path to the second aggregator snapshot store (WAL data dir)")
	flag.Parse()

	if *aPath == "" || *bPath == "" {
		fmt.Fprintln(os.Stderr, "n6-compare: both -a and -b are required")
		flag.Usage()
		os.Exit(2)
	}

	snapA, err := loadSnapshot(*aPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "n6-compare: load %s: %v\n", *aPath, err)
		os.Exit(1)
	}
	snapB, err := loadSnapshot(*bPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "n6-compare: load %s: %v\n", *bPath, err)
		os.Exit(1)
	}

	diffs := diffSnapshots(snapA, snapB)
	if len(diffs) == 0 {
		fmt.Println("n6-compare: snapshots are equivalent")
		return
	}

	for _, d := range diffs {
		fmt.Println(d)
	}
	os.Exit(1)
}

// loadSnapshot opens the WAL-backed snapshot store at path and decodes the
// most recent aggregator snapshot it holds.
func loadSnapshot(path string) (*compareSnapshot, error) {
	cfg := wal.DefaultConfig()
	cfg.Path = path

	w, err := wal.Open(&cfg)
	if err != nil {
		return nil, fmt.Errorf("open wal: %w", err)
	}
	defer w.Close()

	snapshotter := aggregator.NewBadgerSnapshotter(w)
	data, err := snapshotter.Load()
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap compareSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// compareSnapshot mirrors the wire shape aggregator.Aggregator.Save writes
// (internal/aggregator/state.go's unexported snapshot/sourceSnapshot/
// groupSnapshot). The aggregator package keeps those types private since
// nothing outside it needs to construct one; this tool only ever reads the
// JSON back, so a local, read-only mirror of the same tags is enough.
type compareSnapshot struct {
	Sources map[string]*compareSourceSnapshot `json:"sources"`
}

type compareSourceSnapshot struct {
	CurrentTime  time.Time                        `json:"current_time"`
	LastWallSeen time.Time                        `json:"last_wall_seen"`
	GroupOrder   []string                         `json:"group_order"`
	Groups       map[string]*compareGroupSnapshot `json:"groups"`
	BufferOrder  []string                         `json:"buffer_order"`
	Buffer       map[string]*compareGroupSnapshot `json:"buffer"`
}

type compareGroupSnapshot struct {
	FirstTime time.Time `json:"first_time"`
	LastTime  time.Time `json:"last_time"`
	Count     int       `json:"count"`
}

// diffSnapshots reports, in deterministic order, every divergence worth an
// operator's attention: sources present on only one side, and for sources
// present on both, clock drift and group/buffer count mismatches.
func diffSnapshots(a, b *compareSnapshot) []string {
	var diffs []string

	sources := make(map[string]struct{}, len(a.Sources)+len(b.Sources))
	for s := range a.Sources {
		sources[s] = struct{}{}
	}
	for s := range b.Sources {
		sources[s] = struct{}{}
	}

	names := make([]string, 0, len(sources))
	for s := range sources {
		names = append(names, s)
	}
	sort.Strings(names)

	for _, name := range names {
		sa, okA := a.Sources[name]
		sb, okB := b.Sources[name]
		switch {
		case okA && !okB:
			diffs = append(diffs, fmt.Sprintf("source %q: only in a", name))
		case !okA && okB:
			diffs = append(diffs, fmt.Sprintf("source %q: only in b", name))
		default:
			diffs = append(diffs, diffSource(name, sa, sb)...)
		}
	}

	return diffs
}

func diffSource(name string, a, b *compareSourceSnapshot) []string {
	var diffs []string

	if !a.CurrentTime.Equal(b.CurrentTime) {
		diffs = append(diffs, fmt.Sprintf("source %q: current_time a=%s b=%s", name, a.CurrentTime, b.CurrentTime))
	}
	if !a.LastWallSeen.Equal(b.LastWallSeen) {
		diffs = append(diffs, fmt.Sprintf("source %q: last_wall_seen a=%s b=%s", name, a.LastWallSeen, b.LastWallSeen))
	}
	if len(a.Groups) != len(b.Groups) {
		diffs = append(diffs, fmt.Sprintf("source %q: group count a=%d b=%d", name, len(a.Groups), len(b.Groups)))
	}
	if len(a.Buffer) != len(b.Buffer) {
		diffs = append(diffs, fmt.Sprintf("source %q: buffer count a=%d b=%d", name, len(a.Buffer), len(b.Buffer)))
	}

	for key, ga := range a.Groups {
		gb, ok := b.Groups[key]
		if !ok {
			diffs = append(diffs, fmt.Sprintf("source %q: group %q only in a", name, key))
			continue
		}
		if ga.Count != gb.Count {
			diffs = append(diffs, fmt.Sprintf("source %q: group %q count a=%d b=%d", name, key, ga.Count, gb.Count))
		}
	}
	for key := range b.Groups {
		if _, ok := a.Groups[key]; !ok {
			diffs = append(diffs, fmt.Sprintf("source %q: group %q only in b", name, key))
		}
	}

	return diffs
}
