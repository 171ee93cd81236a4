// SPDX-License-Identifier: Apache-2.0

package core

import (
	"context"

	"github.com/google/uuid"
)

// Run identifies one processing pass over a task. It travels in the context
// so events and log lines emitted deep inside the pass share its id.
type Run struct {
	ID        string
	NetworkID string
	TaskID    string
}

type runKey struct{}

// WithRun attaches r to the context.
func WithRun(ctx context.Context, r Run) context.Context {
	return context.WithValue(ctx, runKey{}, r)
}

// RunFrom returns the run carried by ctx.
func RunFrom(ctx context.Context) (Run, bool) {
	if ctx == nil {
		return Run{}, false
	}
	r, ok := ctx.Value(runKey{}).(Run)
	return r, ok && r.ID != ""
}

// RunID returns the id of the run carried by ctx.
func RunID(ctx context.Context) (string, bool) {
	r, ok := RunFrom(ctx)
	return r.ID, ok
}

// StartRun opens a run for taskID. A run already in ctx for the same task
// keeps its id, so retried passes stay correlated.
func StartRun(ctx context.Context, networkID, taskID string) (context.Context, Run) {
	if r, ok := RunFrom(ctx); ok && r.TaskID == taskID {
		return ctx, r
	}
	r := Run{ID: "run-" + uuid.NewString(), NetworkID: networkID, TaskID: taskID}
	return WithRun(ctx, r), r
}
