// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package authindex builds and serves the in-memory authorization index
// described in spec.md §3.3/§4.6: for each source, a set of subsources
// each carrying a compiled predicate and a per-zone set of organization
// ids. The whole index is rebuilt from the auth database on reload and
// swapped in atomically, so readers never observe a partially-updated
// snapshot.
package authindex
