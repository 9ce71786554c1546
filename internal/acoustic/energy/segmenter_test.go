package energy

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"speaker-diarization-service/internal/acoustic"
)

const rate = 16000

func silence(seconds float64) []int16 {
	return make([]int16, int(seconds*rate))
}

func tone(seconds float64, amplitude float64) []int16 {
	n := int(seconds * rate)
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amplitude * math.Sin(2*math.Pi*220*float64(i)/rate))
	}
	return out
}

func square(seconds float64) []int16 {
	n := int(seconds * rate)
	out := make([]int16, n)
	for i := range out {
		if (i/40)%2 == 0 {
			out[i] = math.MaxInt16
		} else {
			out[i] = math.MinInt16
		}
	}
	return out
}

func concat(parts ...[]int16) []int16 {
	var out []int16
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

type result struct {
	segs []acoustic.Segment
	errs []error
}

func collect(t *testing.T, s *Segmenter, samples []int16) result {
	t.Helper()
	seq, err := s.Segment(context.Background(), samples, rate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var r result
	for seg, err := range seq {
		if err != nil {
			r.errs = append(r.errs, err)
			continue
		}
		r.segs = append(r.segs, seg)
	}
	return r
}

func TestSegment_SingleSpeechRegion(t *testing.T) {
	s := New(DefaultModel())
	r := collect(t, s, concat(silence(1), tone(1, 8000), silence(1)))

	if len(r.errs) != 0 {
		t.Fatalf("unexpected element errors: %v", r.errs)
	}
	if len(r.segs) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(r.segs))
	}
	seg := r.segs[0]
	if math.Abs(seg.Start-1.0) > 0.05 || math.Abs(seg.End-2.0) > 0.05 {
		t.Errorf("expected segment near [1.0, 2.0], got [%.3f, %.3f]", seg.Start, seg.End)
	}
	if want := int(math.Round((seg.End - seg.Start) * rate)); len(seg.Samples) != want {
		t.Errorf("expected %d samples, got %d", want, len(seg.Samples))
	}
}

func TestSegment_ShortBurstDiscarded(t *testing.T) {
	s := New(DefaultModel())
	r := collect(t, s, concat(silence(0.5), tone(0.06, 8000), silence(0.5)))

	if len(r.segs) != 0 {
		t.Errorf("expected short burst to be discarded, got %d segments", len(r.segs))
	}
}

func TestSegment_SilenceOnly(t *testing.T) {
	s := New(DefaultModel())
	r := collect(t, s, silence(2))
	if len(r.segs) != 0 || len(r.errs) != 0 {
		t.Errorf("expected nothing for silence, got %d segments %d errors", len(r.segs), len(r.errs))
	}
}

func TestSegment_SplitsLongRegions(t *testing.T) {
	m := DefaultModel()
	m.MaxSegmentMs = 900
	s := New(m)
	r := collect(t, s, tone(3, 8000))

	if len(r.segs) < 3 {
		t.Fatalf("expected long region to be split, got %d segments", len(r.segs))
	}
	for i := 1; i < len(r.segs); i++ {
		if r.segs[i].Start < r.segs[i-1].End-1e-9 {
			t.Errorf("segments overlap: %v then %v", r.segs[i-1], r.segs[i])
		}
	}
}

func TestSegment_ClippedRegionYieldsElementError(t *testing.T) {
	s := New(DefaultModel())
	r := collect(t, s, concat(tone(1, 8000), silence(1), square(1)))

	if len(r.segs) != 1 {
		t.Errorf("expected 1 usable segment, got %d", len(r.segs))
	}
	if len(r.errs) != 1 {
		t.Errorf("expected 1 element error for clipped region, got %d", len(r.errs))
	}
}

func TestSegment_UnsupportedSampleRate(t *testing.T) {
	m := DefaultModel()
	m.SampleRates = []int{16000}
	s := New(m)

	if _, err := s.Segment(context.Background(), silence(1), 8000); err == nil {
		t.Error("expected error for unsupported sample rate")
	}
	if _, err := s.Segment(context.Background(), silence(1), 0); err == nil {
		t.Error("expected error for zero sample rate")
	}
}

func TestSegment_StopsOnCancelledContext(t *testing.T) {
	s := New(DefaultModel())
	ctx, cancel := context.WithCancel(context.Background())
	seq, err := s.Segment(ctx, concat(tone(1, 8000), silence(1), tone(1, 8000)), rate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cancel()

	n := 0
	for range seq {
		n++
	}
	if n != 0 {
		t.Errorf("expected no elements after cancellation, got %d", n)
	}
}

func TestLoad_ModelFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segmentation.yaml")
	doc := "kind: energy-vad\nframe_ms: 20\nthreshold_db: -30\nsample_rates: [16000]\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.model.FrameMs != 20 {
		t.Errorf("expected frame_ms 20, got %d", s.model.FrameMs)
	}
	if s.model.ThresholdDb != -30 {
		t.Errorf("expected threshold_db -30, got %v", s.model.ThresholdDb)
	}
	if s.model.MinSilenceMs != DefaultModel().MinSilenceMs {
		t.Errorf("expected default min_silence_ms, got %d", s.model.MinSilenceMs)
	}
}

func TestLoad_WrongKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segmentation.yaml")
	if err := os.WriteFile(path, []byte("kind: fbank-stats\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for wrong model kind")
	}
}
