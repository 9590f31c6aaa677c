// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

package authindex

import (
	"sort"
	"sync/atomic"

	"github.com/n6-community/n6/internal/record"
)

// SubsourceEntry is one subsource's compiled access rule.
type SubsourceEntry struct {
	Predicate Predicate
	// Zones maps a zone name ("inside", "threats", "search",
	// "notification") to the set of org ids granted access in it.
	Zones map[string][]string
}

type sourceEntry struct {
	subsources        map[string]*SubsourceEntry
	anonymizedSource  string
}

// snapshot is the immutable index state readers hold a reference to.
type snapshot struct {
	sources map[string]*sourceEntry
}

// Index is the atomically-swappable authorization index. The zero value
// is usable and resolves everything to "no access" until Swap is called.
type Index struct {
	current atomic.Pointer[snapshot]
}

// New returns an empty Index.
func New() *Index {
	idx := &Index{}
	idx.current.Store(&snapshot{sources: map[string]*sourceEntry{}})
	return idx
}

// SourceBuild is the builder-facing shape for one source's rebuild input.
type SourceBuild struct {
	Source           string
	AnonymizedSource string
	Subsources       map[string]*SubsourceEntry
}

// Swap atomically installs a freshly built set of sources, replacing
// the prior snapshot in one pointer store — readers already holding the
// old snapshot keep seeing a fully consistent view.
func (idx *Index) Swap(sources []SourceBuild) {
	next := &snapshot{sources: make(map[string]*sourceEntry, len(sources))}
	for _, s := range sources {
		next.sources[s.Source] = &sourceEntry{subsources: s.Subsources, anonymizedSource: s.AnonymizedSource}
	}
	idx.current.Store(next)
}

// load returns the current snapshot, or an empty one for a zero-value
// Index that has never been swapped.
func (idx *Index) load() *snapshot {
	if s := idx.current.Load(); s != nil {
		return s
	}
	return &snapshot{}
}

// Resolve returns the sorted list of org ids whose predicate for any
// subsource of event.Source matches event, restricted to those granted
// access in zone.
func (idx *Index) Resolve(event *record.Record, zone string) []string {
	snap := idx.load()
	src, ok := snap.sources[event.Source]
	if !ok {
		return nil
	}

	seen := make(map[string]struct{})
	for _, sub := range src.subsources {
		if !sub.Predicate.Match(event) {
			continue
		}
		for _, org := range sub.Zones[zone] {
			seen[org] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for org := range seen {
		out = append(out, org)
	}
	sort.Strings(out)
	return out
}

// SubsourceAccessInfoEntry is one row of SubsourceAccessInfo's result.
type SubsourceAccessInfoEntry struct {
	Predicate Predicate
	Zones     map[string][]string
}

// SubsourceAccessInfo returns, for a source, each subsource's predicate
// and its per-zone org-id grants.
func (idx *Index) SubsourceAccessInfo(source string) map[string]SubsourceAccessInfoEntry {
	snap := idx.load()
	src, ok := snap.sources[source]
	if !ok {
		return nil
	}

	out := make(map[string]SubsourceAccessInfoEntry, len(src.subsources))
	for refint, sub := range src.subsources {
		out[refint] = SubsourceAccessInfoEntry{Predicate: sub.Predicate, Zones: sub.Zones}
	}
	return out
}

// Anonymize returns the anonymized identifier configured for source, or
// source unchanged if none is configured.
func (idx *Index) Anonymize(source string) string {
	snap := idx.load()
	src, ok := snap.sources[source]
	if !ok || src.anonymizedSource == "" {
		return source
	}
	return src.anonymizedSource
}
