// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package recorder upserts filtered events into the DuckDB-backed event
// store: one row per (id, time, ip), a client_to_event join row per
// recipient org id, and blacklist lifecycle transitions for bl-* event
// types on the same (id, source).
package recorder
