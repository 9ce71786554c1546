package stitch

import (
	"math/rand"
	"slices"
	"testing"

	"speaker-diarization-service/internal/acoustic"
	"speaker-diarization-service/internal/service/timeline"
)

func track(speaker acoustic.Label, start, end int64) timeline.Track {
	return timeline.Track{
		Speaker:      speaker,
		StartMs:      start,
		EndMs:        end,
		DurationMs:   end - start,
		LocalStartMs: start,
		LocalEndMs:   end,
	}
}

func TestStitch_GapTolerance(t *testing.T) {
	tests := []struct {
		name string
		in   []timeline.Track
		want []timeline.Track
	}{
		{
			name: "gap within tolerance merges",
			in:   []timeline.Track{track(1, 0, 1000), track(1, 1250, 2000)},
			want: []timeline.Track{{Speaker: 1, StartMs: 0, EndMs: 2000, DurationMs: 2000, LocalStartMs: 0, LocalEndMs: 2000}},
		},
		{
			name: "gap beyond tolerance stays split",
			in:   []timeline.Track{track(1, 0, 1000), track(1, 1251, 2000)},
			want: []timeline.Track{track(1, 0, 1000), track(1, 1251, 2000)},
		},
		{
			name: "different speakers never merge",
			in:   []timeline.Track{track(1, 0, 1000), track(2, 1000, 2000)},
			want: []timeline.Track{track(1, 0, 1000), track(2, 1000, 2000)},
		},
		{
			name: "overlap merges to union",
			in:   []timeline.Track{track(1, 0, 1500), track(1, 500, 1200)},
			want: []timeline.Track{{Speaker: 1, StartMs: 0, EndMs: 1500, DurationMs: 1500, LocalStartMs: 0, LocalEndMs: 1500}},
		},
		{
			name: "unsorted input is ordered",
			in:   []timeline.Track{track(2, 3000, 4000), track(1, 0, 1000)},
			want: []timeline.Track{track(1, 0, 1000), track(2, 3000, 4000)},
		},
		{
			name: "other speaker in between prevents merge",
			in:   []timeline.Track{track(1, 0, 500), track(2, 600, 900), track(1, 1000, 1500)},
			want: []timeline.Track{track(1, 0, 500), track(2, 600, 900), track(1, 1000, 1500)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Stitch(tt.in)
			if !slices.Equal(got, tt.want) {
				t.Errorf("Stitch() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStitch_EmptyAndSingle(t *testing.T) {
	if got := Stitch(nil); len(got) != 0 {
		t.Errorf("expected empty result, got %v", got)
	}
	one := []timeline.Track{track(1, 10, 20)}
	if got := Stitch(one); !slices.Equal(got, one) {
		t.Errorf("expected single track unchanged, got %v", got)
	}
}

func TestStitch_Idempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for round := 0; round < 200; round++ {
		var in []timeline.Track
		for i := 0; i < 20; i++ {
			start := rng.Int63n(10000)
			in = append(in, track(acoustic.Label(rng.Intn(3)+1), start, start+rng.Int63n(800)))
		}

		once := Stitch(in)
		twice := Stitch(slices.Clone(once))
		if !slices.Equal(once, twice) {
			t.Fatalf("round %d: stitching is not idempotent:\n once=%+v\ntwice=%+v", round, once, twice)
		}
	}
}
