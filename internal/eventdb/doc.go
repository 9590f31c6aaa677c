// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package eventdb compiles a map of query parameters into a storage
// predicate against the recorder's event table (C11), and runs the
// resulting paginated query. The same compiler backs both the REST pull
// API and the notifier's count lookups, so the grammar lives in one
// place instead of being duplicated per caller.
package eventdb
