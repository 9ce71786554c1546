// Package models defines the wire types of the diarization API and its
// events.
package models

// DiarizeRequest is the body of POST /diarize.
type DiarizeRequest struct {
	SessionID   string   `json:"session_id" validate:"required"`
	ContentB64  string   `json:"content_b64"`
	SampleRate  *int     `json:"sample_rate,omitempty" validate:"omitempty,gt=0"`
	StartEndMs  []int64  `json:"start_end_ms,omitempty"`
	Threshold   *float32 `json:"threshold,omitempty"`
	MaxSpeakers *int     `json:"max_speakers,omitempty" validate:"omitempty,gt=0"`
}

// Track is one speaker-attributed interval in the caller's timeline.
type Track struct {
	SpeakerID    string `json:"speaker_id"`
	StartMs      int64  `json:"start_ms"`
	EndMs        int64  `json:"end_ms"`
	DurationMs   int64  `json:"duration_ms"`
	LocalStartMs int64  `json:"local_start_ms"`
	LocalEndMs   int64  `json:"local_end_ms"`
}

// DiarizeResponse is the body of a successful POST /diarize.
type DiarizeResponse struct {
	SessionID string   `json:"session_id"`
	Tracks    []Track  `json:"tracks"`
	Warnings  []string `json:"warnings"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status            string `json:"status"`
	UptimeMs          int64  `json:"uptime_ms"`
	SegmentationModel string `json:"segmentation_model"`
	EmbeddingModel    string `json:"embedding_model"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// TracksEvent is published after a successful diarization.
type TracksEvent struct {
	EventType     string   `json:"eventType"`
	SessionID     string   `json:"sessionId"`
	Timestamp     int64    `json:"timestamp"`
	WindowStartMs int64    `json:"windowStartMs"`
	WindowEndMs   int64    `json:"windowEndMs"`
	Tracks        []Track  `json:"tracks"`
	Warnings      []string `json:"warnings,omitempty"`
}

// EventTypeTracks is the eventType of TracksEvent.
const EventTypeTracks = "diarization.tracks"
