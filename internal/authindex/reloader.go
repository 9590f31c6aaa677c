// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

package authindex

import (
	"context"
	"time"

	"github.com/n6-community/n6/internal/logging"
)

// Loader produces a fresh set of sources from the auth database. A
// Loader implementation owns its own DSN/connection handling; authindex
// only calls Load on a schedule and installs whatever it returns.
type Loader interface {
	Load(ctx context.Context) ([]SourceBuild, error)
}

// Reloader periodically rebuilds and swaps an Index. It implements
// suture.Service (Serve(ctx) error) so it can run as a leaf in the
// supervisor tree alongside the other long-running components.
type Reloader struct {
	idx      *Index
	loader   Loader
	interval time.Duration
}

// NewReloader returns a Reloader that rebuilds idx from loader every
// interval.
func NewReloader(idx *Index, loader Loader, interval time.Duration) *Reloader {
	return &Reloader{idx: idx, loader: loader, interval: interval}
}

// Serve runs the reload loop until ctx is canceled. The first reload
// happens immediately so the index is populated before the service
// reports ready.
func (r *Reloader) Serve(ctx context.Context) error {
	if err := r.reloadOnce(ctx); err != nil {
		logging.CtxErr(ctx, err).Msg("authindex: initial load failed, serving with an empty index")
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.reloadOnce(ctx); err != nil {
				logging.CtxErr(ctx, err).Msg("authindex: reload failed, keeping previous snapshot")
			}
		}
	}
}

func (r *Reloader) reloadOnce(ctx context.Context) error {
	sources, err := r.loader.Load(ctx)
	if err != nil {
		return err
	}
	r.idx.Swap(sources)
	return nil
}
