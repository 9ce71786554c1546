// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "speaker_diarization"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestsActive  prometheus.Gauge
	RequestDuration prometheus.Histogram

	// Audio metrics
	AudioBytesReceived prometheus.Counter
	AudioSecondsTotal  prometheus.Counter

	// Segment metrics
	SegmentsProcessed prometheus.Counter
	SegmentsSkipped   *prometheus.CounterVec
	Warnings          *prometheus.CounterVec
	TracksEmitted     prometheus.Counter

	// Session metrics
	SessionsCreated prometheus.Counter
	SessionsExpired prometheus.Counter
	SessionsActive  prometheus.Gauge

	// Acoustic capability metrics
	ExtractorWait      prometheus.Histogram
	ExtractorLatency   prometheus.Histogram
	SegmentationErrors prometheus.Counter

	// gRPC metrics
	GRPCCalls *prometheus.CounterVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance, registered with the default
// Prometheus registerer.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// Request metrics
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of diarize requests by outcome",
		}, []string{"outcome"}),
		RequestsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_active",
			Help:      "Number of diarize requests currently in flight",
		}),
		RequestDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Duration of diarize requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),

		// Audio metrics
		AudioBytesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total decoded PCM bytes received",
		}),
		AudioSecondsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_seconds_total",
			Help:      "Total seconds of audio diarized",
		}),

		// Segment metrics
		SegmentsProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_processed_total",
			Help:      "Total number of segments resolved to a speaker",
		}),
		SegmentsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_skipped_total",
			Help:      "Total number of segments skipped",
		}, []string{"reason"}),
		Warnings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warnings_total",
			Help:      "Total number of per-segment warnings returned to callers",
		}, []string{"reason"}),
		TracksEmitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracks_emitted_total",
			Help:      "Total number of stitched tracks returned",
		}),

		// Session metrics
		SessionsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Total number of sessions created",
		}),
		SessionsExpired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_expired_total",
			Help:      "Total number of sessions evicted after their TTL",
		}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions held in memory",
		}),

		// Acoustic capability metrics
		ExtractorWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extractor_wait_seconds",
			Help:      "Time spent waiting for the shared embedding extractor",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		ExtractorLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extractor_latency_seconds",
			Help:      "Embedding computation latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		SegmentationErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segmentation_errors_total",
			Help:      "Total number of hard segmentation failures",
		}),

		// gRPC metrics
		GRPCCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_calls_total",
			Help:      "Total number of gRPC calls by method and code",
		}, []string{"method", "code"}),

		// Kafka publish metrics
		KafkaPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordRequestStart records a diarize request starting.
func (m *Metrics) RecordRequestStart() {
	m.RequestsActive.Inc()
}

// RecordRequestEnd records a diarize request finishing with outcome
// ("ok", "bad_request", "internal").
func (m *Metrics) RecordRequestEnd(outcome string, durationSeconds float64) {
	m.RequestsActive.Dec()
	m.RequestsTotal.WithLabelValues(outcome).Inc()
	m.RequestDuration.Observe(durationSeconds)
}

// RecordAudioReceived records a decoded audio window.
func (m *Metrics) RecordAudioReceived(bytes int, seconds float64) {
	m.AudioBytesReceived.Add(float64(bytes))
	m.AudioSecondsTotal.Add(seconds)
}

// RecordSegmentProcessed records a segment resolved to a speaker.
func (m *Metrics) RecordSegmentProcessed() {
	m.SegmentsProcessed.Inc()
}

// RecordSegmentSkipped records a segment that produced no track.
func (m *Metrics) RecordSegmentSkipped(reason string) {
	m.SegmentsSkipped.WithLabelValues(reason).Inc()
}

// RecordWarning records a warning returned to the caller.
func (m *Metrics) RecordWarning(reason string) {
	m.Warnings.WithLabelValues(reason).Inc()
}

// RecordTracks records stitched tracks returned to the caller.
func (m *Metrics) RecordTracks(n int) {
	m.TracksEmitted.Add(float64(n))
}

// RecordSessionCreated records a new session.
func (m *Metrics) RecordSessionCreated() {
	m.SessionsCreated.Inc()
}

// RecordSessionsExpired records sessions evicted by a sweep.
func (m *Metrics) RecordSessionsExpired(n int) {
	m.SessionsExpired.Add(float64(n))
}

// SetSessionsActive sets the number of sessions held in memory.
func (m *Metrics) SetSessionsActive(n int) {
	m.SessionsActive.Set(float64(n))
}

// RecordExtractorWait records time spent waiting for the extractor slot.
func (m *Metrics) RecordExtractorWait(seconds float64) {
	m.ExtractorWait.Observe(seconds)
}

// RecordExtractorLatency records one embedding computation.
func (m *Metrics) RecordExtractorLatency(seconds float64) {
	m.ExtractorLatency.Observe(seconds)
}

// RecordSegmentationError records a hard segmentation failure.
func (m *Metrics) RecordSegmentationError() {
	m.SegmentationErrors.Inc()
}

// RecordGRPCCall records a completed gRPC call.
func (m *Metrics) RecordGRPCCall(method, code string) {
	m.GRPCCalls.WithLabelValues(method, code).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}
