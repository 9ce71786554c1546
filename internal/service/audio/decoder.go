// Package audio decodes transport-encoded PCM payloads into samples.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

var errLineBreak = errors.New("line breaks are not allowed")

// DecodeError reports a structurally invalid audio payload.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// DecodePCM16 decodes standard base64 into signed 16-bit little-endian mono
// samples. The decoded payload must be non-empty and an even number of bytes.
// Line breaks inside the payload are rejected.
func DecodePCM16(contentB64 string) ([]int16, error) {
	if strings.ContainsAny(contentB64, "\r\n") {
		return nil, &DecodeError{Reason: "invalid base64 pcm payload", Err: errLineBreak}
	}
	raw, err := base64.StdEncoding.DecodeString(contentB64)
	if err != nil {
		return nil, &DecodeError{Reason: "invalid base64 pcm payload", Err: err}
	}
	if len(raw) == 0 {
		return nil, &DecodeError{Reason: "content_b64 decoded to empty payload"}
	}
	if len(raw)%2 != 0 {
		return nil, &DecodeError{Reason: "pcm payload must contain even number of bytes"}
	}

	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
	}
	return samples, nil
}

// DurationMs returns the duration of n samples at sampleRate, rounded to the
// nearest millisecond.
func DurationMs(n, sampleRate int) int64 {
	if sampleRate <= 0 {
		return 0
	}
	return (int64(n)*1000 + int64(sampleRate)/2) / int64(sampleRate)
}
