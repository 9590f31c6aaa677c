// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package counter implements the per-client per-category counter stage
// (C12). For every filtered event it re-runs the anonymizer's recipient
// computation to find which org ids are entitled to see the event, then
// increments each org's live Redis counter hash by category. The
// notifier (internal/notifier) reads the same hash, including the
// _tmin/_tmax/_time control fields this package maintains.
package counter
