// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

package authindex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/n6-community/n6/internal/record"
)

func buildTestIndex(t *testing.T) *Index {
	t.Helper()

	pred, err := CompilePredicate([]Clause{{Field: "category", Op: OpIn, Values: []string{"bots"}}})
	require.NoError(t, err)

	idx := New()
	idx.Swap([]SourceBuild{
		{
			Source:           "acme.feed",
			AnonymizedSource: "hidden.acme-feed",
			Subsources: map[string]*SubsourceEntry{
				"acme.feed.sub1": {
					Predicate: pred,
					Zones: map[string][]string{
						"inside": {"org-b", "org-a"},
					},
				},
			},
		},
	})
	return idx
}

func TestResolveReturnsSortedOrgIDs(t *testing.T) {
	idx := buildTestIndex(t)
	r := &record.Record{Source: "acme.feed", Category: record.CategoryBots}

	orgs := idx.Resolve(r, "inside")
	require.Equal(t, []string{"org-a", "org-b"}, orgs)
}

func TestResolveReturnsEmptyWhenPredicateDoesNotMatch(t *testing.T) {
	idx := buildTestIndex(t)
	r := &record.Record{Source: "acme.feed", Category: record.CategoryScanning}

	orgs := idx.Resolve(r, "inside")
	require.Empty(t, orgs)
}

func TestResolveReturnsEmptyForUnknownZone(t *testing.T) {
	idx := buildTestIndex(t)
	r := &record.Record{Source: "acme.feed", Category: record.CategoryBots}

	orgs := idx.Resolve(r, "notification")
	require.Empty(t, orgs)
}

func TestAnonymizeFallsBackToSourceWhenUnconfigured(t *testing.T) {
	idx := New()
	require.Equal(t, "unknown.source", idx.Anonymize("unknown.source"))
}

func TestAnonymizeReturnsConfiguredValue(t *testing.T) {
	idx := buildTestIndex(t)
	require.Equal(t, "hidden.acme-feed", idx.Anonymize("acme.feed"))
}

type fakeLoader struct {
	sources []SourceBuild
	calls   int
}

func (f *fakeLoader) Load(context.Context) ([]SourceBuild, error) {
	f.calls++
	return f.sources, nil
}

func TestReloaderLoadsImmediatelyOnServe(t *testing.T) {
	idx := New()
	loader := &fakeLoader{sources: []SourceBuild{{Source: "x", Subsources: map[string]*SubsourceEntry{}}}}
	r := NewReloader(idx, loader, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = r.Serve(ctx)

	require.Equal(t, 1, loader.calls)
}
