// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics provides Prometheus instrumentation for every n6 pipeline
// stage and service. Metrics are registered via promauto at package init,
// so a stage's /metrics endpoint is self-describing whether or not a given
// code path has run yet. Naming follows <component>_<noun>_<unit>, with
// label vectors for cardinality that matters operationally (source, stage,
// decision, outcome) and none for cardinality that doesn't (event id, ip).
package metrics
