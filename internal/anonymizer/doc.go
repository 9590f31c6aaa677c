// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package anonymizer computes per-event recipient sets from the
// authorization index, projects the event to its anonymized publish
// form, and emits it to the clients headers exchange in the exact
// resource-then-descending-org-id order of the original anonymizer.py
// (see SPEC_FULL.md §5): resources are visited in sorted name order, and
// within a resource org ids are popped off the end of an ascending sort,
// giving an observable descending publish order per resource.
package anonymizer
