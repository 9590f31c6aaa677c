// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package services holds small suture.Service adapters shared across the
// n6-* stage binaries, so each cmd/ package doesn't re-derive the same
// ListenAndServe/Shutdown translation.
package services
