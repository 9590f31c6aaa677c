// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

package recorder

import (
	"time"

	"github.com/n6-community/n6/internal/record"
)

// Row statuses for the blacklist lifecycle (spec.md §4.8).
const (
	StatusActive   = "active"
	StatusDelisted = "delisted"
	StatusExpired  = "expired"
)

// isBlacklistType reports whether t is one of the bl-* lifecycle types.
func isBlacklistType(t record.Type) bool {
	switch t {
	case record.TypeBlNew, record.TypeBlUpdate, record.TypeBlDelist, record.TypeBlChange, record.TypeBlExpire:
		return true
	default:
		return false
	}
}

// nextBlacklistState computes the row's new status/expires given an
// incoming bl-* event and the row's current state. bl-new/bl-update/
// bl-change keep the row active and advance expires to the later of the
// two timestamps (a blacklist entry's validity window only ever grows
// under renewal); bl-delist marks the row delisted; bl-expire marks it
// expired. Both terminal transitions freeze expires at its current
// value — a delisted or expired entry is not renewed by its own event.
func nextBlacklistState(eventType record.Type, currentExpires *time.Time, currentStatus string, incomingExpires *time.Time) (status string, expires *time.Time) {
	switch eventType {
	case record.TypeBlDelist:
		return StatusDelisted, currentExpires
	case record.TypeBlExpire:
		return StatusExpired, currentExpires
	default: // bl-new, bl-update, bl-change
		return StatusActive, laterOf(currentExpires, incomingExpires)
	}
}

func laterOf(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.After(*a):
		return b
	default:
		return a
	}
}
