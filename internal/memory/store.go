// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package memory

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vexlabs/vex/internal/clock"
	"github.com/vexlabs/vex/internal/storage"
	"github.com/vexlabs/vex/internal/vexerr"
)

var episodesGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "vex",
	Subsystem: "memory",
	Name:      "episodes",
	Help:      "Live episodes by tenant and horizon.",
}, []string{"tenant", "horizon"})

var evictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "vex",
	Subsystem: "memory",
	Name:      "evictions_total",
	Help:      "Episodes evicted on capacity overflow, by tenant.",
}, []string{"tenant"})

// Summarizer compresses a batch of episode texts into one summary at
// roughly the given ratio. Implemented by the LLM collaborator; memory only
// consumes the surface.
type Summarizer interface {
	Summarize(ctx context.Context, texts []string, ratio int) (string, error)
}

// Config wires a Store.
type Config struct {
	Decay      DecayStrategy
	Capacities map[Horizon]int // per-horizon overrides; zero entries use defaults
	Clock      clock.Clock
	Embedder   Embedder
	Summarizer Summarizer  // nil falls back to lexical truncation
	DB         *storage.DB // nil keeps episodes in-process only
	Cold       *ColdTier   // optional Weaviate recall index
	Log        *slog.Logger
}

// tenantState holds one tenant's rings under the single-writer lock.
// Readers may observe slightly stale scores but never torn writes.
type tenantState struct {
	mu       sync.RWMutex
	horizons map[Horizon][]*Episode
	inserted int
	evicted  int
}

// Store is the multi-horizon episodic memory.
type Store struct {
	cfg Config
	log *slog.Logger

	mu      sync.Mutex
	tenants map[string]*tenantState
}

// NewStore builds a Store; Clock is required, and a nil Embedder defaults
// to HashEmbedder.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Clock == nil {
		return nil, vexerr.New(vexerr.Configuration, "memory.NewStore", "clock is required")
	}
	if cfg.Embedder == nil {
		cfg.Embedder = HashEmbedder{}
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Store{cfg: cfg, log: cfg.Log, tenants: make(map[string]*tenantState)}, nil
}

func (s *Store) tenant(id string) *tenantState {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		t = &tenantState{horizons: make(map[Horizon][]*Episode)}
		s.tenants[id] = t
	}
	return t
}

func (s *Store) capacity(h Horizon) int {
	if c, ok := s.cfg.Capacities[h]; ok && c > 0 {
		return c
	}
	return h.DefaultCapacity()
}

// Insert stores a new episode with the given importance (clamped to [0,1])
// and returns it. New episodes always enter the Immediate horizon; age is
// zero at insert.
func (s *Store) Insert(ctx context.Context, tenant, content string, importance float64) (*Episode, error) {
	if content == "" {
		return nil, vexerr.New(vexerr.Input, "memory.Insert", "content must not be empty")
	}
	if importance < 0 {
		importance = 0
	}
	if importance > 1 {
		importance = 1
	}

	embedding, err := s.cfg.Embedder.Embed(ctx, content)
	if err != nil {
		return nil, vexerr.Wrap(vexerr.Provider, "memory.Insert", "embed content", err)
	}

	now := s.cfg.Clock.Now()
	e := &Episode{
		ID:           uuid.NewString(),
		TimestampMs:  now.UnixMilli(),
		Content:      content,
		Importance:   importance,
		Horizon:      Immediate,
		LastAccessMs: now.UnixMilli(),
		Embedding:    embedding,
		TenantID:     tenant,
	}

	// Persist before the ring insert so a capacity eviction of this very
	// episode (lowest score on arrival) deletes a row that exists, never
	// resurrects one that was already evicted.
	if s.cfg.DB != nil {
		if err := s.cfg.DB.Put(ctx, storage.TableEpisodes, tenant, e.ID, e); err != nil {
			return nil, err
		}
	}
	if s.cfg.Cold != nil {
		if err := s.cfg.Cold.Put(ctx, e); err != nil {
			// The in-process store stays authoritative; a cold-tier miss
			// only degrades recall depth.
			s.log.Warn("cold tier put failed", "tenant", tenant, "episode", e.ID, "error", err)
		}
	}

	st := s.tenant(tenant)
	st.mu.Lock()
	st.horizons[Immediate] = append(st.horizons[Immediate], e)
	st.inserted++
	s.enforceCapacityLocked(ctx, st, tenant, Immediate, now)
	immediateCount := len(st.horizons[Immediate])
	st.mu.Unlock()

	episodesGauge.WithLabelValues(tenant, Immediate.String()).Set(float64(immediateCount))
	return e, nil
}

// Recall returns the top-k episodes across all horizons ranked by a blend
// of current importance score and semantic similarity to query, ties broken
// by recency. Every returned episode's access count is incremented, which
// raises its future survivability.
func (s *Store) Recall(ctx context.Context, tenant, query string, k int) ([]*Episode, error) {
	if k <= 0 {
		return nil, vexerr.New(vexerr.Input, "memory.Recall", "k must be positive")
	}
	queryVec, err := s.cfg.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, vexerr.Wrap(vexerr.Provider, "memory.Recall", "embed query", err)
	}

	now := s.cfg.Clock.Now()
	st := s.tenant(tenant)
	st.mu.Lock()
	defer st.mu.Unlock()

	type scored struct {
		e     *Episode
		score float64
	}
	var candidates []scored
	var maxImportance float64
	for _, ring := range st.horizons {
		for _, e := range ring {
			if sc := s.cfg.Decay.Score(e, now); sc > maxImportance {
				maxImportance = sc
			}
		}
	}
	for _, ring := range st.horizons {
		for _, e := range ring {
			importance := s.cfg.Decay.Score(e, now)
			if maxImportance > 0 {
				importance /= maxImportance
			}
			similarity := cosine(queryVec, e.Embedding)
			candidates = append(candidates, scored{e: e, score: 0.5*importance + 0.5*similarity})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].e.TimestampMs > candidates[j].e.TimestampMs
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	out := make([]*Episode, 0, len(candidates))
	for _, c := range candidates {
		c.e.AccessCount++
		c.e.LastAccessMs = now.UnixMilli()
		out = append(out, c.e)
		if s.cfg.DB != nil {
			if err := s.cfg.DB.Put(ctx, storage.TableEpisodes, tenant, c.e.ID, c.e); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// Tick migrates episodes whose age exceeds their horizon's window into the
// next horizon, then enforces capacity caps. Callers run it periodically;
// it is also safe to call after a burst of inserts.
func (s *Store) Tick(ctx context.Context, tenant string) error {
	now := s.cfg.Clock.Now()
	st := s.tenant(tenant)
	st.mu.Lock()
	defer st.mu.Unlock()

	// Walk from the largest bounded horizon down so an episode migrates at
	// most one step per tick.
	for i := len(AllHorizons) - 2; i >= 0; i-- {
		h := AllHorizons[i]
		next, _ := h.Next()
		var keep []*Episode
		for _, e := range st.horizons[h] {
			if w := h.Window(); w != 0 && e.Age(now) > w {
				e.Horizon = next
				st.horizons[next] = append(st.horizons[next], e)
				if s.cfg.DB != nil {
					if err := s.cfg.DB.Put(ctx, storage.TableEpisodes, tenant, e.ID, e); err != nil {
						return err
					}
				}
				continue
			}
			keep = append(keep, e)
		}
		st.horizons[h] = keep
	}

	for _, h := range AllHorizons {
		s.enforceCapacityLocked(ctx, st, tenant, h, now)
		episodesGauge.WithLabelValues(tenant, h.String()).Set(float64(len(st.horizons[h])))
	}
	return nil
}

// enforceCapacityLocked evicts the lowest-score episodes until the horizon
// fits its cap. Caller holds the tenant write lock.
func (s *Store) enforceCapacityLocked(ctx context.Context, st *tenantState, tenant string, h Horizon, now time.Time) {
	limit := s.capacity(h)
	ring := st.horizons[h]
	for len(ring) > limit {
		lowest := 0
		lowestScore := s.cfg.Decay.Score(ring[0], now)
		for i := 1; i < len(ring); i++ {
			if sc := s.cfg.Decay.Score(ring[i], now); sc < lowestScore {
				lowestScore = sc
				lowest = i
			}
		}
		victim := ring[lowest]
		ring = append(ring[:lowest], ring[lowest+1:]...)
		st.evicted++
		evictionsTotal.WithLabelValues(tenant).Inc()
		if s.cfg.DB != nil {
			if err := s.cfg.DB.Delete(ctx, storage.TableEpisodes, tenant, victim.ID); err != nil {
				s.log.Warn("evicted episode delete failed", "tenant", tenant, "episode", victim.ID, "error", err)
			}
		}
	}
	st.horizons[h] = ring
}

// Compress forces summarization of the below-median-score episodes in a
// horizon into a single compressed episode whose importance is the mean of
// its sources. The sources are removed; the compressed episode takes their
// place in the same horizon.
func (s *Store) Compress(ctx context.Context, tenant string, h Horizon) (*Episode, error) {
	now := s.cfg.Clock.Now()
	st := s.tenant(tenant)
	st.mu.Lock()
	defer st.mu.Unlock()

	ring := st.horizons[h]
	if len(ring) < 2 {
		return nil, nil
	}

	scores := make([]float64, len(ring))
	for i, e := range ring {
		scores[i] = s.cfg.Decay.Score(e, now)
	}
	median := medianOf(scores)

	var below, keep []*Episode
	for i, e := range ring {
		if scores[i] < median {
			below = append(below, e)
		} else {
			keep = append(keep, e)
		}
	}
	if len(below) < 2 {
		return nil, nil
	}

	texts := make([]string, len(below))
	var importanceSum float64
	for i, e := range below {
		texts[i] = e.Content
		importanceSum += e.Importance
	}

	summary, err := s.summarize(ctx, texts, h.CompressionRatio())
	if err != nil {
		return nil, err
	}
	embedding, err := s.cfg.Embedder.Embed(ctx, summary)
	if err != nil {
		return nil, vexerr.Wrap(vexerr.Provider, "memory.Compress", "embed summary", err)
	}

	compressed := &Episode{
		ID:           uuid.NewString(),
		TimestampMs:  now.UnixMilli(),
		Content:      summary,
		Importance:   importanceSum / float64(len(below)),
		Horizon:      h,
		LastAccessMs: now.UnixMilli(),
		Embedding:    embedding,
		TenantID:     tenant,
		Compressed:   true,
		SourceCount:  len(below),
	}
	st.horizons[h] = append(keep, compressed)
	// Conservation accounting: n sources leave, one synthesized episode
	// enters.
	st.evicted += len(below)
	st.inserted++

	if s.cfg.DB != nil {
		for _, e := range below {
			if err := s.cfg.DB.Delete(ctx, storage.TableEpisodes, tenant, e.ID); err != nil {
				return nil, err
			}
		}
		if err := s.cfg.DB.Put(ctx, storage.TableEpisodes, tenant, compressed.ID, compressed); err != nil {
			return nil, err
		}
	}
	s.log.Info("horizon compressed", "tenant", tenant, "horizon", h.String(), "sources", len(below))
	return compressed, nil
}

// summarize delegates to the LLM collaborator when wired, else truncates
// each source to its leading gist.
func (s *Store) summarize(ctx context.Context, texts []string, ratio int) (string, error) {
	if s.cfg.Summarizer != nil {
		summary, err := s.cfg.Summarizer.Summarize(ctx, texts, ratio)
		if err == nil {
			return summary, nil
		}
		s.log.Warn("summarizer failed, falling back to truncation", "error", err)
	}
	var out string
	for i, t := range texts {
		if i > 0 {
			out += " / "
		}
		out += gist(t)
	}
	return out, nil
}

// Counts returns the live episode count per horizon plus cumulative
// inserted/evicted totals — the observables behind the horizon-conservation
// invariant (inserted - evicted = live).
func (s *Store) Counts(tenant string) (perHorizon map[Horizon]int, inserted, evicted int) {
	st := s.tenant(tenant)
	st.mu.RLock()
	defer st.mu.RUnlock()
	perHorizon = make(map[Horizon]int, len(AllHorizons))
	for _, h := range AllHorizons {
		perHorizon[h] = len(st.horizons[h])
	}
	return perHorizon, st.inserted, st.evicted
}

func medianOf(values []float64) float64 {
	sorted := append([]float64{}, values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
