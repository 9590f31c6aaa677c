// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pipeline provides the stage base shared by every consumer in
// this module: a Watermill message.Router pre-wired with panic recovery,
// bounded retry, optional throttling, and poison-queue routing, plus a
// FLUSH_OUT-sentinel-driven iterative publishing mode for stages (the
// notifier) that produce output from an internal ticker rather than
// consumed messages.
package pipeline
