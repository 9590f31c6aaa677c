// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package notifier runs the per-org scheduled email digest. On each tick
// it walks every org's notification config, checks the business-day
// calendar and configured send times, computes the counter delta since
// the last successful send, and — if there is anything new to report —
// renders and emails a digest via SMTP. Per-org state (last send time,
// last send counter snapshot) and the live counters populated by C12
// both live in Redis, under the key scheme the org id is embedded in.
package notifier
