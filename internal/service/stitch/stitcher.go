// Package stitch merges adjacent same-speaker tracks.
package stitch

import (
	"cmp"
	"slices"

	"speaker-diarization-service/internal/service/timeline"
)

// MaxGapMs is the largest gap between two same-speaker tracks that still
// merges them.
const MaxGapMs = 250

// Stitch sorts tracks by (StartMs, EndMs) and greedily folds each track into
// the previously emitted one when both have the same speaker and the gap
// between them is at most MaxGapMs. The input slice is reordered in place.
func Stitch(tracks []timeline.Track) []timeline.Track {
	if len(tracks) <= 1 {
		return tracks
	}

	slices.SortStableFunc(tracks, func(a, b timeline.Track) int {
		return cmp.Or(cmp.Compare(a.StartMs, b.StartMs), cmp.Compare(a.EndMs, b.EndMs))
	})

	merged := make([]timeline.Track, 0, len(tracks))
	for _, cur := range tracks {
		if n := len(merged); n > 0 {
			last := &merged[n-1]
			if last.Speaker == cur.Speaker && cur.StartMs-last.EndMs <= MaxGapMs {
				last.EndMs = max(last.EndMs, cur.EndMs)
				last.LocalEndMs = max(last.LocalEndMs, cur.LocalEndMs)
				last.DurationMs = max(last.EndMs-last.StartMs, 0)
				continue
			}
		}
		merged = append(merged, cur)
	}
	return merged
}
