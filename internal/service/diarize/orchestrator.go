// Package diarize runs one diarization request end to end: validation,
// decoding, segmentation, speaker resolution, timeline mapping and stitching.
package diarize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"speaker-diarization-service/internal/acoustic"
	"speaker-diarization-service/internal/models"
	"speaker-diarization-service/internal/observability/logging"
	"speaker-diarization-service/internal/observability/metrics"
	"speaker-diarization-service/internal/schema"
	"speaker-diarization-service/internal/service/audio"
	"speaker-diarization-service/internal/service/speaker"
	"speaker-diarization-service/internal/service/stitch"
	"speaker-diarization-service/internal/service/timeline"
)

// DefaultSampleRate applies when a request omits sample_rate.
const DefaultSampleRate = 16000

const (
	detailCancelled   = "request cancelled"
	detailBadWindow   = "start_end_ms must be [start,end] and end >= start"
	warnNoIdentity    = "speaker assignment returned 0, segment dropped"
	defaultPublishTTL = 2 * time.Second
)

// Publisher receives the result of every successful request.
type Publisher interface {
	PublishTracks(ctx context.Context, key string, event *models.TracksEvent) error
}

// Defaults are the server-wide values for optional request fields.
type Defaults struct {
	MaxSpeakers int
	Threshold   float32
}

// Orchestrator processes diarize requests. It is safe for concurrent use.
type Orchestrator struct {
	segmenter      acoustic.Segmenter
	resolver       *speaker.Resolver
	validator      *schema.Validator
	defaults       Defaults
	publisher      Publisher
	publishTimeout time.Duration
	metrics        *metrics.Metrics
	now            func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPublisher publishes a tracks event after every successful request.
// Publish failures are logged and never fail the request.
func WithPublisher(p Publisher, timeout time.Duration) Option {
	return func(o *Orchestrator) {
		o.publisher = p
		if timeout > 0 {
			o.publishTimeout = timeout
		}
	}
}

// WithMetrics records request metrics on m. A nil m keeps the default
// metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithClock replaces the wall clock used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator.
func New(segmenter acoustic.Segmenter, resolver *speaker.Resolver, defaults Defaults, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		segmenter:      segmenter,
		resolver:       resolver,
		validator:      schema.New(),
		defaults:       defaults,
		publishTimeout: defaultPublishTTL,
		metrics:        metrics.DefaultMetrics,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// request is a validated DiarizeRequest with defaults applied.
type request struct {
	sessionID   string
	sampleRate  int
	threshold   float32
	maxSpeakers int
	contentB64  string
	startEndMs  []int64
}

// Diarize processes one window of audio for a session. Failures are returned
// as *Error.
func (o *Orchestrator) Diarize(ctx context.Context, req *models.DiarizeRequest) (*models.DiarizeResponse, error) {
	start := time.Now()
	o.metrics.RecordRequestStart()

	resp, err := o.diarize(ctx, req)

	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
	}
	o.metrics.RecordRequestEnd(outcome, time.Since(start).Seconds())
	return resp, err
}

func (o *Orchestrator) diarize(ctx context.Context, in *models.DiarizeRequest) (*models.DiarizeResponse, error) {
	req, err := o.normalize(in)
	if err != nil {
		return nil, err
	}
	logger := logging.WithSession(ctx, req.sessionID)

	samples, err := audio.DecodePCM16(req.contentB64)
	if err != nil {
		return nil, badRequest(err.Error(), err)
	}

	durationMs := audio.DurationMs(len(samples), req.sampleRate)
	window := timeline.Window{StartMs: 0, EndMs: max(durationMs, 0)}
	if req.startEndMs != nil {
		if len(req.startEndMs) != 2 || req.startEndMs[0] < 0 || req.startEndMs[1] < req.startEndMs[0] {
			return nil, badRequest(detailBadWindow, nil)
		}
		window = timeline.Window{StartMs: req.startEndMs[0], EndMs: req.startEndMs[1]}
	}
	o.metrics.RecordAudioReceived(len(samples)*2, float64(durationMs)/1000)

	segments, err := o.segmenter.Segment(ctx, samples, req.sampleRate)
	if err != nil {
		o.metrics.RecordSegmentationError()
		logger.Error().Err(err).Msg("Segmentation failed")
		return nil, internal(fmt.Sprintf("segmentation failed: %v", err), err)
	}

	warnings := []string{}
	var tracks []timeline.Track
	idx := -1
	for seg, segErr := range segments {
		idx++
		if ctx.Err() != nil {
			return nil, internal(detailCancelled, ctx.Err())
		}

		if segErr != nil {
			warnings = append(warnings, fmt.Sprintf("segment skipped: %v", segErr))
			o.metrics.RecordSegmentSkipped("segment_error")
			o.metrics.RecordWarning("segment_error")
			logger.Warn().Err(segErr).Int("segment", idx).Msg("Segment skipped")
			continue
		}
		if len(seg.Samples) == 0 {
			o.metrics.RecordSegmentSkipped("empty")
			continue
		}

		emb, err := o.resolver.Embed(ctx, seg.Samples)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil, internal(detailCancelled, err)
			}
			logger.Error().Err(err).Int("segment", idx).Msg("Embedding failed")
			return nil, internal(err.Error(), err)
		}

		label, ok := o.resolver.Resolve(req.sessionID, req.maxSpeakers, emb, req.threshold)
		if !ok {
			warnings = append(warnings, warnNoIdentity)
			o.metrics.RecordSegmentSkipped("no_identity")
			o.metrics.RecordWarning("no_identity")
			logger.Warn().Int("segment", idx).Msg("Speaker assignment returned no identity, segment dropped")
			continue
		}

		o.metrics.RecordSegmentProcessed()
		tracks = append(tracks, timeline.Map(seg.Start, seg.End, window, label))
	}

	if ctx.Err() != nil {
		return nil, internal(detailCancelled, ctx.Err())
	}

	stitched := stitch.Stitch(tracks)
	o.metrics.RecordTracks(len(stitched))

	resp := &models.DiarizeResponse{
		SessionID: req.sessionID,
		Tracks:    toWire(stitched),
		Warnings:  warnings,
	}

	logger.Debug().
		Int64("windowStartMs", window.StartMs).
		Int64("windowEndMs", window.EndMs).
		Int("tracks", len(resp.Tracks)).
		Int("warnings", len(warnings)).
		Msg("Diarized window")

	o.publish(ctx, window, resp)
	return resp, nil
}

// normalize validates in and applies defaults. Checks run in a fixed order:
// session id, sample rate, max speakers.
func (o *Orchestrator) normalize(in *models.DiarizeRequest) (*request, error) {
	trimmed := *in
	trimmed.SessionID = strings.TrimSpace(in.SessionID)
	if err := o.validator.Validate(&trimmed); err != nil {
		return nil, badRequest(err.Error(), err)
	}

	req := &request{
		sessionID:   trimmed.SessionID,
		sampleRate:  DefaultSampleRate,
		threshold:   o.defaults.Threshold,
		maxSpeakers: o.defaults.MaxSpeakers,
		contentB64:  trimmed.ContentB64,
		startEndMs:  trimmed.StartEndMs,
	}
	if trimmed.SampleRate != nil {
		req.sampleRate = *trimmed.SampleRate
	}
	if trimmed.Threshold != nil {
		req.threshold = *trimmed.Threshold
	}
	req.threshold = min(max(req.threshold, 0), 1)
	if trimmed.MaxSpeakers != nil {
		req.maxSpeakers = *trimmed.MaxSpeakers
	}
	return req, nil
}

func (o *Orchestrator) publish(ctx context.Context, window timeline.Window, resp *models.DiarizeResponse) {
	if o.publisher == nil {
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.publishTimeout)
	defer cancel()

	event := &models.TracksEvent{
		EventType:     models.EventTypeTracks,
		SessionID:     resp.SessionID,
		Timestamp:     o.now().UnixMilli(),
		WindowStartMs: window.StartMs,
		WindowEndMs:   window.EndMs,
		Tracks:        resp.Tracks,
		Warnings:      resp.Warnings,
	}
	if err := o.publisher.PublishTracks(pubCtx, resp.SessionID, event); err != nil {
		logger := logging.WithSession(ctx, resp.SessionID)
		logger.Warn().Err(err).Msg("Failed to publish tracks event")
	}
}

func toWire(tracks []timeline.Track) []models.Track {
	out := make([]models.Track, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, models.Track{
			SpeakerID:    t.Speaker.String(),
			StartMs:      t.StartMs,
			EndMs:        t.EndMs,
			DurationMs:   t.DurationMs,
			LocalStartMs: t.LocalStartMs,
			LocalEndMs:   t.LocalEndMs,
		})
	}
	return out
}
