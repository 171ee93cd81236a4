// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"time"

	"github.com/jllopis/agentnet/pkg/errors"
)

// TierPolicy holds the migration thresholds of a TieredStore.
type TierPolicy struct {
	// HotTTL is the sliding expiry of hot items.
	HotTTL time.Duration
	// PromoteAccessCount is the cold access count above which an item is
	// promoted, inline on Get or by the rotation sweep.
	PromoteAccessCount int64
	// PromoteWithin restricts sweep promotion to items read this recently.
	PromoteWithin time.Duration
	// DemoteAfter is how long a hot item must sit idle before demotion.
	DemoteAfter time.Duration
	// HotRetentionCount keeps idle hot items that were read at least this
	// many times since entering the hot tier.
	HotRetentionCount int64
	// ColdMaxAge is the age after which cold items are pruned.
	ColdMaxAge time.Duration
}

// DefaultTierPolicy returns the standard thresholds.
func DefaultTierPolicy() TierPolicy {
	return TierPolicy{
		HotTTL:             7 * 24 * time.Hour,
		PromoteAccessCount: 5,
		PromoteWithin:      24 * time.Hour,
		DemoteAfter:        24 * time.Hour,
		HotRetentionCount:  3,
		ColdMaxAge:         90 * 24 * time.Hour,
	}
}

// Validate rejects policies that could make items oscillate between tiers.
func (p TierPolicy) Validate() error {
	if p.HotTTL <= 0 {
		return errors.Validation("hot ttl must be positive")
	}
	if p.PromoteAccessCount < 1 || p.HotRetentionCount < 0 {
		return errors.Validation("access thresholds must be positive")
	}
	if p.PromoteWithin > p.DemoteAfter {
		return errors.Validation("promote window %s exceeds demote cutoff %s", p.PromoteWithin, p.DemoteAfter)
	}
	if p.DemoteAfter >= p.HotTTL {
		return errors.Validation("demote cutoff %s must be shorter than hot ttl %s", p.DemoteAfter, p.HotTTL)
	}
	return nil
}

func (p TierPolicy) shouldDemote(it Item, now time.Time) bool {
	return now.Sub(it.LastAccessed) > p.DemoteAfter && it.TierHits < p.HotRetentionCount
}

func (p TierPolicy) shouldPromote(it Item, now time.Time) bool {
	return it.AccessCount > p.PromoteAccessCount && now.Sub(it.LastAccessed) <= p.PromoteWithin
}
