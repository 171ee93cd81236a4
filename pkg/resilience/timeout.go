// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/jllopis/agentnet/pkg/errors"
)

// WithTimeout runs fn with a derived context that expires after d.
// fn must honour ctx; when the deadline is what stopped it, the error is
// reported as TIMEOUT. A zero duration runs fn without a deadline.
func WithTimeout(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	if d <= 0 {
		return fn(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	err := fn(tctx)
	if err != nil && stderrors.Is(tctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return errors.New(errors.CodeTimeout, "operation exceeded timeout", err).
			WithContext("timeout", d.String()).
			WithRecoverable(false)
	}
	return err
}
