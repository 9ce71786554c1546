// Package speaker resolves speech segments to session-stable speaker labels.
package speaker

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"speaker-diarization-service/internal/acoustic"
	"speaker-diarization-service/internal/observability/metrics"
	"speaker-diarization-service/internal/service/session"
)

// Resolver owns the shared embedding extractor and resolves embeddings
// against the session store.
//
// The extractor sits behind a single-slot semaphore: at most one Compute
// runs at any time across all requests. Waiting for the slot honours the
// caller's context.
type Resolver struct {
	extractor acoustic.Extractor
	slot      *semaphore.Weighted
	store     *session.Store
	metrics   *metrics.Metrics
}

// NewResolver creates a Resolver. m may be nil.
func NewResolver(extractor acoustic.Extractor, store *session.Store, m *metrics.Metrics) *Resolver {
	return &Resolver{
		extractor: extractor,
		slot:      semaphore.NewWeighted(1),
		store:     store,
		metrics:   m,
	}
}

// Embed computes the embedding of samples once the extractor is free. It
// returns ctx.Err() if ctx ends while waiting.
func (r *Resolver) Embed(ctx context.Context, samples []int16) ([]float32, error) {
	waitStart := time.Now()
	if err := r.slot.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.slot.Release(1)

	computeStart := time.Now()
	if r.metrics != nil {
		r.metrics.RecordExtractorWait(computeStart.Sub(waitStart).Seconds())
	}

	emb, err := r.extractor.Compute(samples)
	if r.metrics != nil {
		r.metrics.RecordExtractorLatency(time.Since(computeStart).Seconds())
	}
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	return emb, nil
}

// Resolve assigns emb to a speaker in the session identified by key. It first
// searches for a speaker within threshold and otherwise falls back to the
// best match regardless of threshold. ok is false when the session's
// clustering state yields no identity.
//
// Once a session is at capacity the fallback can attribute a segment to a
// speaker below the similarity threshold.
// TODO: confirm with product whether this degradation is intended or whether
// such segments should be dropped with a warning instead.
func (r *Resolver) Resolve(key string, maxSpeakers int, emb []float32, threshold float32) (label acoustic.Label, ok bool) {
	r.store.Touch(key, maxSpeakers, func(c acoustic.Clusterer) {
		if label, ok = c.SearchSpeaker(emb, threshold); ok {
			return
		}
		label, ok = c.BestSpeakerMatch(emb)
	})
	if label == 0 {
		ok = false
	}
	return label, ok
}
