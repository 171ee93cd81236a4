// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/agentnet/pkg/core"
	"github.com/jllopis/agentnet/pkg/errors"
	"github.com/jllopis/agentnet/pkg/runtime"
	"github.com/jllopis/agentnet/pkg/telemetry"
)

const defaultPromoteBatch = 100

// Options configures a TieredStore. Hot and Cold are required.
type Options struct {
	Hot  HotTier
	Cold ColdTier
	// Vectors, when set, indexes embeddings and serves cold-tier similarity
	// search.
	Vectors    VectorStore
	Collection string
	// Embedder fills missing embeddings on Store and Search.
	Embedder Embedder
	Policy   TierPolicy
	// PromoteBatch caps promotions per rotation.
	PromoteBatch int
	Clock        func() time.Time
	Logger       *slog.Logger
	Metrics      *telemetry.Metrics
	Events       core.EventEmitter
}

// TieredStore keeps each memory item in exactly one of two tiers and
// migrates items between them by access pattern.
type TieredStore struct {
	hot        HotTier
	cold       ColdTier
	vectors    VectorStore
	collection string
	embedder   Embedder
	policy     TierPolicy
	batch      int
	clock      func() time.Time
	logger     *slog.Logger
	metrics    *telemetry.Metrics
	events     core.EventEmitter
	tracer     trace.Tracer
}

// NewTieredStore validates opts and builds a store.
func NewTieredStore(opts Options) (*TieredStore, error) {
	if opts.Hot == nil || opts.Cold == nil {
		return nil, errors.Validation("hot and cold tiers are required")
	}
	if opts.Policy == (TierPolicy{}) {
		opts.Policy = DefaultTierPolicy()
	}
	if err := opts.Policy.Validate(); err != nil {
		return nil, err
	}
	if opts.Collection == "" {
		opts.Collection = "agentnet_memory"
	}
	if opts.PromoteBatch <= 0 {
		opts.PromoteBatch = defaultPromoteBatch
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Events == nil {
		opts.Events = core.NoopEventEmitter{}
	}
	return &TieredStore{
		hot:        opts.Hot,
		cold:       opts.Cold,
		vectors:    opts.Vectors,
		collection: opts.Collection,
		embedder:   opts.Embedder,
		policy:     opts.Policy,
		batch:      opts.PromoteBatch,
		clock:      opts.Clock,
		logger:     telemetry.Component(opts.Logger, "memory"),
		metrics:    opts.Metrics,
		events:     opts.Events,
		tracer:     otel.Tracer("agentnet/memory"),
	}, nil
}

// Policy returns the migration thresholds in effect.
func (s *TieredStore) Policy() TierPolicy { return s.policy }

// Store writes it to the hot tier, or to the cold tier when force is
// TierCold, and removes any copy from the other tier. A missing id is
// generated. The stored item is returned.
func (s *TieredStore) Store(ctx context.Context, it Item, force Tier) (Item, error) {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if err := it.Validate(); err != nil {
		return Item{}, err
	}
	now := s.clock().UTC()
	if it.CreatedAt.IsZero() {
		it.CreatedAt = now
	}
	if it.LastAccessed.IsZero() {
		it.LastAccessed = now
	}
	if len(it.Embedding) == 0 {
		it.Embedding = s.embed(ctx, it.Content)
	}

	ctx, span := s.tracer.Start(ctx, "memory.store",
		trace.WithAttributes(telemetry.MemoryAttributes(it.ID, string(it.Type), string(force))...))
	defer span.End()

	var replaced bool
	switch force {
	case TierCold:
		it = it.inTier(TierCold)
		if err := s.cold.Upsert(ctx, it); err != nil {
			return Item{}, err
		}
		var err error
		if replaced, err = s.hot.Delete(ctx, it.ID); err != nil {
			return Item{}, err
		}
	case TierHot, "":
		it = it.inTier(TierHot)
		if err := s.hot.Put(ctx, it); err != nil {
			return Item{}, err
		}
		var err error
		if replaced, err = s.cold.Delete(ctx, it.ID); err != nil {
			return Item{}, err
		}
	default:
		return Item{}, errors.Validation("unknown tier %q", force)
	}

	s.index(ctx, it)

	eventType := core.EventMemoryAdded
	if replaced {
		eventType = core.EventMemoryUpdated
	}
	s.emit(ctx, eventType, it.NetworkID, map[string]any{"memory_id": it.ID, "type": string(it.Type), "tier": string(it.Tier)})
	s.logger.Debug("memory.store",
		slog.String("memory_id", it.ID),
		slog.String("network_id", it.NetworkID),
		slog.String("tier", string(it.Tier)),
	)
	return it, nil
}

// Get returns id from the hot tier, or from the cold tier counting the
// read. A cold item whose access count passes the promotion threshold is
// moved to the hot tier before returning.
func (s *TieredStore) Get(ctx context.Context, id string) (Item, error) {
	now := s.clock().UTC()
	it, ok, err := s.hot.Touch(ctx, id, now)
	if err != nil {
		return Item{}, err
	}
	if ok {
		return it, nil
	}

	it, ok, err = s.cold.Touch(ctx, id, now)
	if err != nil {
		return Item{}, err
	}
	if !ok {
		return Item{}, errors.NotFound("memory", id)
	}
	if it.AccessCount <= s.policy.PromoteAccessCount {
		return it, nil
	}

	promoted := it.inTier(TierHot)
	if err := s.hot.Put(ctx, promoted); err != nil {
		s.logger.Warn("memory.promote.failed", slog.String("memory_id", id), slog.String("error", err.Error()))
		return it, nil
	}
	if _, err := s.cold.Delete(ctx, id); err != nil {
		// The hot copy is authoritative; the stale cold row is removed by the
		// next Store or Delete of this id.
		s.logger.Warn("memory.promote.cleanup_failed", slog.String("memory_id", id), slog.String("error", err.Error()))
	}
	s.metrics.RecordMigrations(ctx, "promote", 1)
	s.logger.Debug("memory.promote", slog.String("memory_id", id), slog.Int64("access_count", it.AccessCount))
	return promoted, nil
}

// List returns up to limit items of a network, hot tier first and then
// cold, most recently accessed first. Reads are not counted.
func (s *TieredStore) List(ctx context.Context, networkID string, typ Type, limit int) ([]Item, error) {
	hot, err := s.hot.Items(ctx, networkID)
	if err != nil {
		return nil, err
	}
	out := make([]Item, 0, len(hot))
	hotIDs := make([]string, 0, len(hot))
	for _, it := range hot {
		hotIDs = append(hotIDs, it.ID)
		if typ == "" || it.Type == typ {
			out = append(out, it)
		}
	}
	sortByRecency(out)
	if limit > 0 && len(out) >= limit {
		return out[:limit], nil
	}

	q := ColdQuery{NetworkID: networkID, Type: typ, ExcludeIDs: hotIDs}
	if limit > 0 {
		q.Limit = limit - len(out)
	}
	cold, err := s.cold.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return append(out, cold...), nil
}

// SearchQuery selects items for Search. Offset and Limit paginate the
// ranked result.
type SearchQuery struct {
	NetworkID string
	Query     string
	Type      Type
	Embedding []float32
	// MinScore drops vector matches scoring below it.
	MinScore float64
	Limit    int
	Offset   int
}

// Search ranks a network's items by cosine similarity when an embedding is
// available, otherwise by keyword match, and orders unscored items by
// recency. Hot tier matches come first; the cold tier fills the remaining
// quota without repeating hot ids.
func (s *TieredStore) Search(ctx context.Context, q SearchQuery) ([]Item, error) {
	if q.NetworkID == "" {
		return nil, errors.Validation("network_id is required")
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}
	emb := q.Embedding
	if len(emb) == 0 && q.Query != "" {
		emb = s.embed(ctx, q.Query)
	}
	terms := strings.Fields(strings.ToLower(q.Query))
	quota := q.Offset + q.Limit

	ctx, span := s.tracer.Start(ctx, "memory.search", trace.WithAttributes(
		attribute.String(telemetry.AttrNetworkID, q.NetworkID),
		attribute.Bool("memory.search.vector", len(emb) > 0),
	))
	defer span.End()

	hot, err := s.hot.Items(ctx, q.NetworkID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(hot))
	hotIDs := make([]string, 0, len(hot))
	var results []Item
	for _, it := range hot {
		seen[it.ID] = true
		hotIDs = append(hotIDs, it.ID)
		if q.Type != "" && it.Type != q.Type {
			continue
		}
		if scored, ok := match(it, emb, terms, q.MinScore); ok {
			results = append(results, scored)
		}
	}

	if remaining := quota - len(results); remaining > 0 {
		cold, err := s.searchCold(ctx, q, emb, terms, hotIDs, remaining)
		if err != nil {
			return nil, err
		}
		for _, it := range cold {
			if seen[it.ID] {
				continue
			}
			seen[it.ID] = true
			results = append(results, it)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].LastAccessed.After(results[j].LastAccessed)
	})
	if q.Offset >= len(results) {
		return nil, nil
	}
	results = results[q.Offset:]
	if len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, nil
}

func (s *TieredStore) searchCold(ctx context.Context, q SearchQuery, emb []float32, terms, hotIDs []string, remaining int) ([]Item, error) {
	if len(emb) > 0 && s.vectors != nil {
		filter := map[string]string{"network_id": q.NetworkID}
		if q.Type != "" {
			filter["type"] = string(q.Type)
		}
		// The index covers both tiers, so ask for enough to survive
		// dropping the hot ids.
		hits, err := s.vectors.Search(ctx, s.collection, emb, remaining+len(hotIDs), float32(q.MinScore), filter)
		if err != nil {
			s.logger.Warn("memory.search.vector_failed", slog.String("error", err.Error()))
		} else {
			return s.coldByHits(ctx, hits, hotIDs, remaining)
		}
	}

	cold, err := s.cold.Query(ctx, ColdQuery{
		NetworkID:  q.NetworkID,
		Type:       q.Type,
		Terms:      keywordTerms(emb, terms),
		ExcludeIDs: hotIDs,
		Limit:      remaining,
	})
	if err != nil {
		return nil, err
	}
	out := cold[:0]
	for _, it := range cold {
		if scored, ok := match(it, emb, terms, q.MinScore); ok {
			out = append(out, scored)
		}
	}
	return out, nil
}

func (s *TieredStore) coldByHits(ctx context.Context, hits []SearchResult, hotIDs []string, remaining int) ([]Item, error) {
	skip := make(map[string]bool, len(hotIDs))
	for _, id := range hotIDs {
		skip[id] = true
	}
	scores := make(map[string]float64, len(hits))
	var ids []string
	for _, h := range hits {
		if skip[h.ID] {
			continue
		}
		scores[h.ID] = float64(h.Score)
		ids = append(ids, h.ID)
		if len(ids) == remaining {
			break
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	items, err := s.cold.Query(ctx, ColdQuery{IDs: ids})
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Score = scores[items[i].ID]
	}
	return items, nil
}

// Delete removes id from both tiers and the vector index. It reports
// whether any copy existed.
func (s *TieredStore) Delete(ctx context.Context, id string) (bool, error) {
	return s.remove(ctx, "", id)
}

// DeleteItem is Delete for a known item, so the removal event reaches the
// item's network channel.
func (s *TieredStore) DeleteItem(ctx context.Context, it Item) (bool, error) {
	return s.remove(ctx, it.NetworkID, it.ID)
}

func (s *TieredStore) remove(ctx context.Context, networkID, id string) (bool, error) {
	hotGone, err := s.hot.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	coldGone, err := s.cold.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	s.unindex(ctx, []string{id})
	// A Get that read the cold row before it was deleted may have just
	// promoted it.
	again, err := s.hot.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	existed := hotGone || coldGone || again
	if existed {
		s.logger.Debug("memory.delete", slog.String("memory_id", id))
		s.emit(ctx, core.EventMemoryRemoved, networkID, map[string]any{"memory_id": id})
	}
	return existed, nil
}

// Clear removes every item of a network from both tiers and the vector
// index and returns how many distinct items were removed.
func (s *TieredStore) Clear(ctx context.Context, networkID string) (int, error) {
	hot, err := s.hot.Items(ctx, networkID)
	if err != nil {
		return 0, err
	}
	ids := make(map[string]bool, len(hot))
	for _, it := range hot {
		ids[it.ID] = true
	}
	if _, err := s.hot.DeleteNetwork(ctx, networkID); err != nil {
		return 0, err
	}
	coldIDs, err := s.cold.DeleteNetwork(ctx, networkID)
	if err != nil {
		return 0, err
	}
	for _, id := range coldIDs {
		ids[id] = true
	}
	if _, err := s.hot.DeleteNetwork(ctx, networkID); err != nil {
		return 0, err
	}

	all := make([]string, 0, len(ids))
	for id := range ids {
		all = append(all, id)
	}
	s.unindex(ctx, all)
	if len(all) > 0 {
		s.emit(ctx, core.EventMemoryRemoved, networkID, map[string]any{"count": len(all)})
	}
	s.logger.Info("memory.clear", slog.String("network_id", networkID), slog.Int("removed", len(all)))
	return len(all), nil
}

// RotationResult reports one rotation pass.
type RotationResult struct {
	Demoted  int
	Promoted int
	Failed   int
}

// Rotate demotes idle, rarely read hot items to the cold tier and promotes
// frequently and recently read cold items to the hot tier. The cold write
// always lands before the hot copy is released. Repeated passes without new
// reads leave every item where it is.
func (s *TieredStore) Rotate(ctx context.Context) (RotationResult, error) {
	now := s.clock().UTC()
	var res RotationResult

	hot, err := s.hot.Items(ctx, "")
	if err != nil {
		return res, err
	}
	for _, it := range hot {
		if !s.policy.shouldDemote(it, now) {
			continue
		}
		ok, err := s.demote(ctx, it)
		if err != nil {
			res.Failed++
			s.logger.Warn("memory.demote.failed", slog.String("memory_id", it.ID), slog.String("error", err.Error()))
			continue
		}
		if ok {
			res.Demoted++
		}
	}

	candidates, err := s.cold.PromotionCandidates(ctx, s.policy.PromoteAccessCount, now.Add(-s.policy.PromoteWithin), s.batch)
	if err != nil {
		return res, err
	}
	for _, it := range candidates {
		if err := s.hot.Put(ctx, it.inTier(TierHot)); err != nil {
			res.Failed++
			s.logger.Warn("memory.promote.failed", slog.String("memory_id", it.ID), slog.String("error", err.Error()))
			continue
		}
		if _, err := s.cold.Delete(ctx, it.ID); err != nil {
			s.logger.Warn("memory.promote.cleanup_failed", slog.String("memory_id", it.ID), slog.String("error", err.Error()))
		}
		res.Promoted++
	}

	s.metrics.RecordMigrations(ctx, "demote", res.Demoted)
	s.metrics.RecordMigrations(ctx, "promote", res.Promoted)
	s.logger.Info("memory.rotate.complete",
		slog.Int("demoted", res.Demoted),
		slog.Int("promoted", res.Promoted),
		slog.Int("failed", res.Failed),
	)
	return res, nil
}

// demote copies it to the cold tier and then releases the hot copy unless
// it was read in the meantime, in which case the cold copy is withdrawn.
func (s *TieredStore) demote(ctx context.Context, it Item) (bool, error) {
	if err := s.cold.Upsert(ctx, it.inTier(TierCold)); err != nil {
		return false, err
	}
	released, err := s.hot.ReleaseIfIdle(ctx, it.ID, it.LastAccessed)
	if err != nil {
		return false, err
	}
	if !released {
		_, err := s.cold.Delete(ctx, it.ID)
		return false, err
	}
	return true, nil
}

// Prune deletes cold items older than the policy's maximum age. Hot items
// expire by TTL and need no pass.
func (s *TieredStore) Prune(ctx context.Context) (int, error) {
	cutoff := s.clock().UTC().Add(-s.policy.ColdMaxAge)
	refs, err := s.cold.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if len(refs) == 0 {
		return 0, nil
	}
	ids := make([]string, len(refs))
	byNetwork := make(map[string][]string)
	for i, r := range refs {
		ids[i] = r.ID
		byNetwork[r.NetworkID] = append(byNetwork[r.NetworkID], r.ID)
	}
	s.unindex(ctx, ids)
	for nid, expired := range byNetwork {
		s.emit(ctx, core.EventMemoryExpired, nid, map[string]any{"memory_ids": expired})
	}
	s.metrics.RecordMigrations(ctx, "prune", len(ids))
	s.logger.Info("memory.prune.complete", slog.Int("removed", len(ids)), slog.Time("cutoff", cutoff))
	return len(ids), nil
}

// Sweeps returns the rotation and prune jobs for a runtime.
func (s *TieredStore) Sweeps(rotateEvery, pruneEvery time.Duration) []runtime.Sweep {
	return []runtime.Sweep{
		{
			Name:     "memory.rotate",
			Interval: rotateEvery,
			Run: func(ctx context.Context) (int, error) {
				res, err := s.Rotate(ctx)
				return res.Demoted + res.Promoted, err
			},
		},
		{
			Name:     "memory.prune",
			Interval: pruneEvery,
			Run:      s.Prune,
		},
	}
}

func (s *TieredStore) embed(ctx context.Context, text string) []float32 {
	if s.embedder == nil || text == "" {
		return nil
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.logger.Warn("memory.embed.failed", slog.String("error", err.Error()))
		return nil
	}
	return vec
}

func (s *TieredStore) index(ctx context.Context, it Item) {
	if s.vectors == nil || len(it.Embedding) == 0 {
		return
	}
	err := s.vectors.Upsert(ctx, s.collection, []Point{{
		ID:     it.ID,
		Vector: it.Embedding,
		Payload: map[string]interface{}{
			"network_id": it.NetworkID,
			"type":       string(it.Type),
		},
		Timestamp: it.CreatedAt.UnixMilli(),
	}})
	if err != nil {
		s.logger.Warn("memory.index.failed", slog.String("memory_id", it.ID), slog.String("error", err.Error()))
	}
}

func (s *TieredStore) unindex(ctx context.Context, ids []string) {
	if s.vectors == nil || len(ids) == 0 {
		return
	}
	if err := s.vectors.Delete(ctx, s.collection, ids); err != nil {
		s.logger.Warn("memory.unindex.failed", slog.Int("count", len(ids)), slog.String("error", err.Error()))
	}
}

func (s *TieredStore) emit(ctx context.Context, t core.EventType, networkID string, payload map[string]any) {
	s.events.Emit(ctx, core.NewEvent(ctx, t, networkID, "", payload))
}

// match scores it against a query. Items with embeddings are scored by
// cosine similarity; others must contain every term.
func match(it Item, emb []float32, terms []string, minScore float64) (Item, bool) {
	if len(emb) > 0 && len(it.Embedding) > 0 {
		score := Cosine(emb, it.Embedding)
		if score < minScore {
			return it, false
		}
		it.Score = score
		return it, true
	}
	content := strings.ToLower(it.Content)
	for _, t := range terms {
		if !strings.Contains(content, t) {
			return it, false
		}
	}
	return it, true
}

// keywordTerms returns the terms the cold query must filter on. With an
// embedding, candidates are scored in process instead.
func keywordTerms(emb []float32, terms []string) []string {
	if len(emb) > 0 {
		return nil
	}
	return terms
}

func sortByRecency(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].LastAccessed.After(items[j].LastAccessed)
	})
}
