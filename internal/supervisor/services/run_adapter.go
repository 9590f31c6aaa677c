// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

package services

import "context"

// RunAdapter turns any blocking run(ctx) error function into a named
// suture.Service. Useful for types whose existing method is spelled Run
// rather than Serve (pipeline.Stage, pipeline.IterativePublisher) so a
// stage binary doesn't have to add a Serve forwarding method to packages
// whose primary API predates the supervisor tree.
type RunAdapter struct {
	name string
	run  func(ctx context.Context) error
}

// NewRunAdapter returns a RunAdapter named name that delegates Serve to run.
func NewRunAdapter(name string, run func(ctx context.Context) error) *RunAdapter {
	return &RunAdapter{name: name, run: run}
}

// Serve implements suture.Service.
func (r *RunAdapter) Serve(ctx context.Context) error { return r.run(ctx) }

// String implements fmt.Stringer.
func (r *RunAdapter) String() string { return r.name }
