// Package energy implements an energy-based voice activity segmenter.
//
// Frames whose RMS level exceeds a dBFS threshold count as speech. Speech runs
// are closed after a configurable stretch of silence, regions shorter than the
// minimum speech length are discarded and long regions are split.
package energy

import (
	"context"
	"fmt"
	"iter"
	"math"
	"slices"

	"speaker-diarization-service/internal/acoustic"
)

// Kind is the model-file kind accepted by Load.
const Kind = "energy-vad"

// Model holds the segmenter parameters.
type Model struct {
	Kind         string  `yaml:"kind"`
	FrameMs      int     `yaml:"frame_ms"`
	ThresholdDb  float64 `yaml:"threshold_db"`
	MinSpeechMs  int     `yaml:"min_speech_ms"`
	MinSilenceMs int     `yaml:"min_silence_ms"`
	MaxSegmentMs int     `yaml:"max_segment_ms"`
	ClipRatio    float64 `yaml:"clip_ratio"`
	SampleRates  []int   `yaml:"sample_rates"`
}

// DefaultModel returns parameters tuned for conversational 16 kHz speech.
func DefaultModel() Model {
	return Model{
		Kind:         Kind,
		FrameMs:      30,
		ThresholdDb:  -42,
		MinSpeechMs:  240,
		MinSilenceMs: 300,
		MaxSegmentMs: 10000,
		ClipRatio:    0.5,
	}
}

// Segmenter implements acoustic.Segmenter. It is stateless and safe for
// concurrent use.
type Segmenter struct {
	model Model
}

// Load reads a segmentation model file. Missing numeric fields take their
// DefaultModel values.
func Load(path string) (*Segmenter, error) {
	m := DefaultModel()
	if err := acoustic.LoadModelFile(path, Kind, &m); err != nil {
		return nil, err
	}
	return New(m), nil
}

// New creates a Segmenter from model parameters.
func New(m Model) *Segmenter {
	d := DefaultModel()
	if m.FrameMs <= 0 {
		m.FrameMs = d.FrameMs
	}
	if m.MinSilenceMs < 0 {
		m.MinSilenceMs = 0
	}
	if m.ClipRatio <= 0 || m.ClipRatio > 1 {
		m.ClipRatio = d.ClipRatio
	}
	return &Segmenter{model: m}
}

type region struct {
	start, end int // frame indices, end exclusive
}

// Segment implements acoustic.Segmenter.
func (s *Segmenter) Segment(ctx context.Context, samples []int16, sampleRate int) (iter.Seq2[acoustic.Segment, error], error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("energy: invalid sample rate %d", sampleRate)
	}
	if len(s.model.SampleRates) > 0 && !slices.Contains(s.model.SampleRates, sampleRate) {
		return nil, fmt.Errorf("energy: unsupported sample rate %d", sampleRate)
	}

	frameLen := max(sampleRate*s.model.FrameMs/1000, 1)

	return func(yield func(acoustic.Segment, error) bool) {
		for _, r := range s.regions(samples, frameLen) {
			if ctx.Err() != nil {
				return
			}
			a := r.start * frameLen
			b := min(r.end*frameLen, len(samples))
			if a >= b {
				continue
			}
			seg := acoustic.Segment{
				Start:   float64(a) / float64(sampleRate),
				End:     float64(b) / float64(sampleRate),
				Samples: samples[a:b],
			}
			if ratio := clippedRatio(seg.Samples); ratio > s.model.ClipRatio {
				err := fmt.Errorf("region %.2fs-%.2fs clipped (%.0f%% saturated)", seg.Start, seg.End, ratio*100)
				if !yield(acoustic.Segment{}, err) {
					return
				}
				continue
			}
			if !yield(seg, nil) {
				return
			}
		}
	}, nil
}

func (s *Segmenter) regions(samples []int16, frameLen int) []region {
	numFrames := (len(samples) + frameLen - 1) / frameLen
	minSpeech := s.model.MinSpeechMs / s.model.FrameMs
	minSilence := max(s.model.MinSilenceMs/s.model.FrameMs, 1)
	maxFrames := 0
	if s.model.MaxSegmentMs > 0 {
		maxFrames = max(s.model.MaxSegmentMs/s.model.FrameMs, 1)
	}

	var out []region
	emit := func(start, end int) {
		if end-start < max(minSpeech, 1) {
			return
		}
		if maxFrames == 0 {
			out = append(out, region{start, end})
			return
		}
		for a := start; a < end; a += maxFrames {
			out = append(out, region{a, min(a+maxFrames, end)})
		}
	}

	inSpeech := false
	start, silence := 0, 0
	for i := 0; i < numFrames; i++ {
		frame := samples[i*frameLen : min((i+1)*frameLen, len(samples))]
		if levelDb(frame) > s.model.ThresholdDb {
			if !inSpeech {
				inSpeech = true
				start = i
			}
			silence = 0
			continue
		}
		if !inSpeech {
			continue
		}
		silence++
		if silence >= minSilence {
			emit(start, i-silence+1)
			inSpeech = false
			silence = 0
		}
	}
	if inSpeech {
		emit(start, numFrames-silence)
	}
	return out
}

// levelDb returns the RMS level of frame in dBFS.
func levelDb(frame []int16) float64 {
	if len(frame) == 0 {
		return math.Inf(-1)
	}
	var sum float64
	for _, v := range frame {
		f := float64(v)
		sum += f * f
	}
	rms := math.Sqrt(sum / float64(len(frame)))
	if rms == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(rms/32768)
}

func clippedRatio(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	n := 0
	for _, v := range samples {
		if v == math.MaxInt16 || v == math.MinInt16 {
			n++
		}
	}
	return float64(n) / float64(len(samples))
}
