// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jllopis/agentnet/pkg/core"
	"github.com/jllopis/agentnet/pkg/resilience"
)

// BreakerHealthChecker is degraded while any agent or model breaker is not
// closed. Open breakers fall back locally, so the service itself stays up.
type BreakerHealthChecker struct {
	registry *resilience.Registry
}

// NewBreakerHealthChecker reports on the breakers of registry.
func NewBreakerHealthChecker(registry *resilience.Registry) *BreakerHealthChecker {
	return &BreakerHealthChecker{registry: registry}
}

// Check implements core.HealthChecker.
func (h *BreakerHealthChecker) Check(_ context.Context) core.HealthResult {
	result := core.HealthResult{
		Component: "orchestrator.breakers",
		Status:    core.HealthHealthy,
		LastCheck: time.Now(),
	}
	var tripped []string
	for _, s := range h.registry.Snapshots() {
		if s.State != resilience.StateClosed {
			tripped = append(tripped, fmt.Sprintf("%s=%s", s.Name, s.State))
		}
	}
	if len(tripped) == 0 {
		result.Message = "all breakers closed"
		return result
	}
	sort.Strings(tripped)
	result.Status = core.HealthDegraded
	result.Message = "breakers not closed: " + strings.Join(tripped, ", ")
	return result
}

var _ core.HealthChecker = (*BreakerHealthChecker)(nil)
