// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory implements the tiered network memory: a low-latency hot
// tier with sliding TTL, a durable cold tier, an optional vector index and
// the rotation and pruning sweeps that migrate items between tiers.
package memory

import (
	"time"

	"github.com/jllopis/agentnet/pkg/errors"
)

// Type classifies a memory item.
type Type string

const (
	TypeFact     Type = "fact"
	TypeContext  Type = "context"
	TypeDecision Type = "decision"
	TypeFeedback Type = "feedback"
)

// Valid reports whether t is a known memory type.
func (t Type) Valid() bool {
	switch t {
	case TypeFact, TypeContext, TypeDecision, TypeFeedback:
		return true
	}
	return false
}

// Tier names where an item currently lives.
type Tier string

const (
	TierHot  Tier = "hot"
	TierCold Tier = "cold"
)

// Item is a piece of shared knowledge scoped to a network.
type Item struct {
	ID           string         `json:"id"`
	NetworkID    string         `json:"network_id"`
	Type         Type           `json:"type"`
	Content      string         `json:"content"`
	Confidence   float64        `json:"confidence"`
	CreatedAt    time.Time      `json:"created_at"`
	LastAccessed time.Time      `json:"last_accessed"`
	AccessCount  int64          `json:"access_count"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Embedding    []float32      `json:"embedding,omitempty"`
	Tier         Tier           `json:"tier"`
	// TierHits counts reads since the item entered its current tier.
	TierHits int64 `json:"tier_hits"`
	// Score is the search similarity, set only on search results.
	Score float64 `json:"score,omitempty"`
}

// Validate checks the fields a caller must supply.
func (it Item) Validate() error {
	if it.ID == "" {
		return errors.Validation("memory id is required")
	}
	if it.NetworkID == "" {
		return errors.Validation("memory network_id is required")
	}
	if !it.Type.Valid() {
		return errors.Validation("unknown memory type %q", it.Type)
	}
	if it.Content == "" {
		return errors.Validation("memory content is required")
	}
	if it.Confidence < 0 || it.Confidence > 1 {
		return errors.Validation("memory confidence %v outside [0,1]", it.Confidence)
	}
	return nil
}

// inTier returns a copy of it placed in tier with its tier hit counter reset.
func (it Item) inTier(tier Tier) Item {
	it.Tier = tier
	it.TierHits = 0
	it.Score = 0
	return it
}

// touched returns a copy of it reflecting one read at now.
func (it Item) touched(now time.Time) Item {
	it.AccessCount++
	it.TierHits++
	it.LastAccessed = now
	return it
}
