// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

package anonymizer

import (
	"fmt"
	"sort"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	json "github.com/goccy/go-json"

	"github.com/n6-community/n6/internal/authindex"
	"github.com/n6-community/n6/internal/logging"
	"github.com/n6-community/n6/internal/record"
)

// ClientHeaderKey is the AMQP header carrying the recipient org id on
// every message published to the clients exchange.
const ClientHeaderKey = "n6-client-id"

// Anonymizer computes recipients via an authindex.Index and publishes
// one shared, anonymized body to each of them.
type Anonymizer struct {
	Index     *authindex.Index
	Publisher message.Publisher
}

// New returns an Anonymizer bound to idx and pub.
func New(idx *authindex.Index, pub message.Publisher) *Anonymizer {
	return &Anonymizer{Index: idx, Publisher: pub}
}

// resourceToOrgIDs mirrors _get_resource_to_org_ids: for each subsource
// of event.Source whose predicate matches, the inside-zone grant is
// intersected with clientOrgIDs (the filter-supplied inside-zone client
// list) and the threats-zone grant is taken as-is; both sets are unioned
// across subsources, then sorted.
func resourceToOrgIDs(idx *authindex.Index, event *record.Record, clientOrgIDs []string) map[string][]string {
	client := make(map[string]struct{}, len(clientOrgIDs))
	for _, id := range clientOrgIDs {
		client[id] = struct{}{}
	}

	inside := idx.Resolve(event, "inside")
	threats := idx.Resolve(event, "threats")

	var insideFiltered []string
	for _, org := range inside {
		if _, ok := client[org]; ok {
			insideFiltered = append(insideFiltered, org)
		}
	}

	return map[string][]string{
		"inside":  insideFiltered,
		"threats": threats,
	}
}

// RecipientOrgIDs returns the sorted, deduplicated union of org ids
// entitled to receive event across all resources (inside and threats
// zones) — the same recipient computation Process uses, exposed for the
// per-client counter stage (C12), which increments counters for exactly
// this set instead of publishing to it.
func RecipientOrgIDs(idx *authindex.Index, event *record.Record, clientOrgIDs []string) []string {
	resources := resourceToOrgIDs(idx, event, clientOrgIDs)
	seen := make(map[string]struct{})
	for _, orgs := range resources {
		for _, org := range orgs {
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

// HasRecipients reports whether any resource has a non-empty org list.
func HasRecipients(resourceToOrgIDs map[string][]string) bool {
	for _, orgs := range resourceToOrgIDs {
		if len(orgs) > 0 {
			return true
		}
	}
	return false
}

// Process computes recipients for event (given the filter-supplied
// inside-zone client org list), and if there are any, publishes the
// anonymized body to each in the original's exact order. If there are
// no recipients, it logs at debug and returns nil — the event is simply
// dropped, matching spec.md §4.7 step 2.
func (a *Anonymizer) Process(event *record.Record, clientOrgIDs []string) error {
	resources := resourceToOrgIDs(a.Index, event, clientOrgIDs)
	if !HasRecipients(resources) {
		logging.WithComponent("anonymizer").Debug().Str("id", event.ID).Msg("no recipients for event")
		return nil
	}

	anonSource := a.Index.Anonymize(event.Source)
	body, err := projectOutputBody(event, anonSource)
	if err != nil {
		return fmt.Errorf("anonymizer: project output body: %w", err)
	}

	return a.publishOutputData(event, resources, anonSource, body)
}

// projectOutputBody replaces source with its anonymized form and
// re-serializes the record as the single body shared by every
// recipient, regardless of resource or org — matching anonymizer.py's
// single cleaned_result_dict/output_body (see SPEC_FULL.md §5).
func projectOutputBody(event *record.Record, anonSource string) ([]byte, error) {
	projected := event.Clone()
	projected.Source = anonSource
	return json.Marshal(projected)
}

// publishOutputData visits resources in sorted name order and, within
// each, pops org ids off the end of the ascending-sorted list — the
// exact traversal of anonymizer.py's _publish_output_data. On a publish
// failure it logs which org ids were already delivered and which were
// still pending for every resource, then propagates the error so the
// caller nacks the message without requeue.
func (a *Anonymizer) publishOutputData(event *record.Record, resources map[string][]string, anonSource string, body []byte) error {
	resourceNames := make([]string, 0, len(resources))
	for r := range resources {
		resourceNames = append(resourceNames, r)
	}
	sort.Strings(resourceNames)

	done := make(map[string][]string, len(resources))

	for _, resource := range resourceNames {
		pending := append([]string(nil), resources[resource]...)
		sort.Strings(pending)
		routingKey := fmt.Sprintf("%s.%s.%s", resource, event.Category, anonSource)

		for len(pending) > 0 {
			orgID := pending[len(pending)-1]

			msg := message.NewMessage(watermill.NewUUID(), body)
			msg.Metadata.Set(ClientHeaderKey, orgID)

			if err := a.Publisher.Publish(routingKey, msg); err != nil {
				logPublishFailure(event, resource, orgID, resources, done)
				return fmt.Errorf("anonymizer: publish to org %q resource %q: %w", orgID, resource, err)
			}

			done[resource] = append(done[resource], orgID)
			pending = pending[:len(pending)-1]
		}
	}
	return nil
}

func logPublishFailure(event *record.Record, failedResource, failedOrg string, resources, done map[string][]string) {
	evt := logging.WithComponent("anonymizer")
	for resource, orgIDs := range resources {
		doneIDs := done[resource]
		doneSet := make(map[string]struct{}, len(doneIDs))
		for _, id := range doneIDs {
			doneSet[id] = struct{}{}
		}
		var pendingIDs []string
		for _, id := range orgIDs {
			if _, ok := doneSet[id]; !ok {
				pendingIDs = append(pendingIDs, id)
			}
		}
		evt.Error().
			Str("id", event.ID).
			Str("resource", resource).
			Strs("pending_org_ids", pendingIDs).
			Strs("done_org_ids", doneIDs).
			Msg("could not send anonymized record to a client")
	}
	_ = failedResource
	_ = failedOrg
}
