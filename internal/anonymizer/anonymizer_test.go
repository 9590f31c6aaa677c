// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

package anonymizer

import (
	"errors"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/require"

	"github.com/n6-community/n6/internal/authindex"
	"github.com/n6-community/n6/internal/record"
)

var errPublishFailed = errors.New("amqp: channel closed")

type recordingPublisher struct {
	mu    sync.Mutex
	calls []publishCall
	err   error
}

type publishCall struct {
	topic  string
	orgID  string
}

func (p *recordingPublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	for _, m := range messages {
		p.calls = append(p.calls, publishCall{topic: topic, orgID: m.Metadata.Get(ClientHeaderKey)})
	}
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func buildIndexForAnonymizerTest(t *testing.T) *authindex.Index {
	t.Helper()
	pred, err := authindex.CompilePredicate(nil)
	require.NoError(t, err)

	idx := authindex.New()
	idx.Swap([]authindex.SourceBuild{
		{
			Source:           "example.feed",
			AnonymizedSource: "hidden.abc",
			Subsources: map[string]*authindex.SubsourceEntry{
				"example.feed.sub": {
					Predicate: pred,
					Zones: map[string][]string{
						"inside":  {"org-a", "org-b"},
						"threats": {},
					},
				},
			},
		},
	})
	return idx
}

func TestProcessPublishesInDescendingOrgIDOrderPerResource(t *testing.T) {
	idx := buildIndexForAnonymizerTest(t)
	pub := &recordingPublisher{}
	a := New(idx, pub)

	event := &record.Record{ID: "evt-1", Source: "example.feed", Category: record.CategoryMalurl}

	err := a.Process(event, []string{"org-a", "org-b"})
	require.NoError(t, err)

	require.Len(t, pub.calls, 2)
	require.Equal(t, "inside.malurl.hidden.abc", pub.calls[0].topic)
	require.Equal(t, "org-b", pub.calls[0].orgID, "descending pop order publishes the lexicographically-last org id first")
	require.Equal(t, "org-a", pub.calls[1].orgID)
}

func TestProcessDropsEventWithNoRecipients(t *testing.T) {
	idx := authindex.New()
	pub := &recordingPublisher{}
	a := New(idx, pub)

	event := &record.Record{ID: "evt-2", Source: "unknown.feed"}

	err := a.Process(event, nil)
	require.NoError(t, err)
	require.Empty(t, pub.calls)
}

func TestProcessIntersectsInsideZoneWithClientOrgIDs(t *testing.T) {
	idx := buildIndexForAnonymizerTest(t)
	pub := &recordingPublisher{}
	a := New(idx, pub)

	event := &record.Record{ID: "evt-3", Source: "example.feed", Category: record.CategoryMalurl}

	err := a.Process(event, []string{"org-a"})
	require.NoError(t, err)

	require.Len(t, pub.calls, 1)
	require.Equal(t, "org-a", pub.calls[0].orgID)
}

func TestProcessPropagatesPublishFailure(t *testing.T) {
	idx := buildIndexForAnonymizerTest(t)
	pub := &recordingPublisher{err: errPublishFailed}
	a := New(idx, pub)

	event := &record.Record{ID: "evt-4", Source: "example.feed", Category: record.CategoryMalurl}

	err := a.Process(event, []string{"org-a", "org-b"})
	require.Error(t, err)
}
