// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	stderrors "errors"

	"github.com/jllopis/agentnet/pkg/errors"
)

func agentBreaker(agentID string) string { return "agent:" + agentID }
func modelBreaker(model string) string   { return "model:" + model }

// wrapMemoryErr keeps typed memory errors and classifies the rest.
func wrapMemoryErr(err error, networkID string) error {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return err
	}
	return errors.New(errors.CodeMemoryError, "memory operation failed", err).
		WithContext("network_id", networkID).
		WithRecoverable(true)
}

// wrapGenerationErr labels a generation failure with the agent it served.
func wrapGenerationErr(err error, a Agent, model string) error {
	if err == nil {
		return nil
	}
	return errors.New(errors.CodeGeneration, "generation failed", err).
		WithContext("agent_id", a.ID).
		WithContext("agent_type", string(a.Type)).
		WithContext("model", model).
		WithRecoverable(true)
}

// wrapRunErr maps a processing failure to the code recorded on the task.
// A deadline becomes TIMEOUT and a cancellation CONTEXT_LOST.
func wrapRunErr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded):
		if errors.HasCode(err, errors.CodeTimeout) {
			return err
		}
		return errors.New(errors.CodeTimeout, "task processing timed out", err)
	case stderrors.Is(err, context.Canceled):
		if errors.HasCode(err, errors.CodeContextLost) {
			return err
		}
		return errors.New(errors.CodeContextLost, "task processing canceled", err)
	}
	return errors.As(err)
}
