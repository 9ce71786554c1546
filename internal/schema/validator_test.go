package schema

import (
	"testing"

	"speaker-diarization-service/internal/models"
)

func intPtr(v int) *int { return &v }

func TestValidator_DiarizeRequest(t *testing.T) {
	v := New()

	tests := []struct {
		name    string
		req     models.DiarizeRequest
		wantErr string
	}{
		{"valid", models.DiarizeRequest{SessionID: "s", ContentB64: "AAA="}, ""},
		{"valid with optionals", models.DiarizeRequest{SessionID: "s", ContentB64: "AAA=", SampleRate: intPtr(8000), MaxSpeakers: intPtr(2)}, ""},
		{"missing session", models.DiarizeRequest{ContentB64: "AAA="}, "session_id is required"},
		{"zero sample rate", models.DiarizeRequest{SessionID: "s", ContentB64: "AAA=", SampleRate: intPtr(0)}, "sample_rate must be positive"},
		{"negative max speakers", models.DiarizeRequest{SessionID: "s", ContentB64: "AAA=", MaxSpeakers: intPtr(-1)}, "max_speakers must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(&tt.req)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || err.Error() != tt.wantErr {
				t.Errorf("expected %q, got %v", tt.wantErr, err)
			}
		})
	}
}
