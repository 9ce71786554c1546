package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"

	"speaker-diarization-service/internal/models"
	"speaker-diarization-service/internal/observability/metrics"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func newTestMetrics() *metrics.Metrics {
	return metrics.NewMetrics(prometheus.NewRegistry())
}

func sampleEvent() *models.TracksEvent {
	return &models.TracksEvent{
		EventType:     models.EventTypeTracks,
		SessionID:     "call-1",
		Timestamp:     1700000000000,
		WindowStartMs: 0,
		WindowEndMs:   1000,
		Tracks: []models.Track{
			{SpeakerID: "edge_spk_1", StartMs: 100, EndMs: 400, DurationMs: 300, LocalStartMs: 100, LocalEndMs: 400},
		},
	}
}

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"empty brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg, newTestMetrics())
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.Enabled() {
				t.Error("expected publisher to be disabled")
			}
			if p.writer != nil {
				t.Error("expected nil writer when disabled")
			}
		})
	}
}

func TestNew_ConfigValues(t *testing.T) {
	p := New(&Config{
		Enabled:   false,
		Brokers:   []string{"localhost:9092"},
		Topic:     "test.tracks",
		Principal: "test-principal",
	}, newTestMetrics())

	if p.principal != "test-principal" {
		t.Errorf("expected principal 'test-principal', got %s", p.principal)
	}
	if p.topic != "test.tracks" {
		t.Errorf("expected topic 'test.tracks', got %s", p.topic)
	}
}

func TestNew_EnabledCreatesWriter(t *testing.T) {
	p := New(&Config{Enabled: true, Brokers: []string{"localhost:9092"}, Topic: "t"}, newTestMetrics())
	defer p.Close()

	if !p.Enabled() {
		t.Error("expected publisher to be enabled")
	}
	w, ok := p.writer.(*kafka.Writer)
	if !ok {
		t.Fatalf("expected *kafka.Writer, got %T", p.writer)
	}
	if w.Topic != "t" {
		t.Errorf("expected writer topic 't', got %s", w.Topic)
	}
}

func TestPublisher_PublishTracks_Disabled(t *testing.T) {
	m := newTestMetrics()
	p := New(&Config{Enabled: false, Topic: "diarization.tracks"}, m)

	if err := p.PublishTracks(context.Background(), "call-1", sampleEvent()); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
	if got := testutil.ToFloat64(m.KafkaPublishTotal.WithLabelValues("diarization.tracks", models.EventTypeTracks)); got != 1 {
		t.Errorf("expected publish to be counted, got %v", got)
	}
}

func TestPublisher_PublishTracks_WritesKeyedMessage(t *testing.T) {
	w := &fakeWriter{}
	p := &Publisher{writer: w, principal: "svc", topic: "diarization.tracks", enabled: true, metrics: newTestMetrics()}

	if err := p.PublishTracks(context.Background(), "call-1", sampleEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}

	msg := w.msgs[0]
	if string(msg.Key) != "call-1" {
		t.Errorf("expected key 'call-1', got %s", msg.Key)
	}

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["eventType"] != models.EventTypeTracks {
		t.Errorf("expected eventType header %q, got %q", models.EventTypeTracks, headers["eventType"])
	}
	if headers["principal"] != "svc" {
		t.Errorf("expected principal header 'svc', got %q", headers["principal"])
	}

	var got models.TracksEvent
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got.SessionID != "call-1" || len(got.Tracks) != 1 || got.Tracks[0].SpeakerID != "edge_spk_1" {
		t.Errorf("unexpected payload: %+v", got)
	}
}

func TestPublisher_PublishTracks_WriteError(t *testing.T) {
	boom := errors.New("broker unavailable")
	m := newTestMetrics()
	p := &Publisher{writer: &fakeWriter{err: boom}, topic: "tracks", enabled: true, metrics: m}

	if err := p.PublishTracks(context.Background(), "k", sampleEvent()); !errors.Is(err, boom) {
		t.Errorf("expected write error, got %v", err)
	}
	if got := testutil.ToFloat64(m.KafkaPublishErrors.WithLabelValues("tracks", models.EventTypeTracks)); got != 1 {
		t.Errorf("expected 1 publish error, got %v", got)
	}
}

func TestPublisher_Close(t *testing.T) {
	if err := New(&Config{Enabled: false}, newTestMetrics()).Close(); err != nil {
		t.Errorf("expected no error closing disabled publisher, got %v", err)
	}

	w := &fakeWriter{}
	p := &Publisher{writer: w, enabled: true, metrics: newTestMetrics()}
	if err := p.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !w.closed {
		t.Error("expected writer to be closed")
	}
}
