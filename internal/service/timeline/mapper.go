// Package timeline maps model-local segment ranges onto the caller's
// absolute window timeline.
package timeline

import (
	"math"

	"speaker-diarization-service/internal/acoustic"
)

// Window is an absolute request window in milliseconds, StartMs <= EndMs.
type Window struct {
	StartMs int64
	EndMs   int64
}

// Track is a speaker-attributed interval on the absolute timeline.
type Track struct {
	Speaker      acoustic.Label
	StartMs      int64
	EndMs        int64
	DurationMs   int64
	LocalStartMs int64
	LocalEndMs   int64
}

// Map converts a segment's local range (seconds, possibly inverted) into a
// track inside w. The result always satisfies
// w.StartMs <= StartMs <= EndMs <= w.EndMs and has non-negative local values.
func Map(localStart, localEnd float64, w Window, speaker acoustic.Label) Track {
	ls := secondsToMs(localStart)
	le := secondsToMs(localEnd)
	if le < ls {
		ls, le = le, ls
	}

	start := w.StartMs + ls
	end := w.StartMs + le
	if end < start {
		start, end = end, start
	}

	start = min(max(start, w.StartMs), w.EndMs)
	end = max(min(end, w.EndMs), start)

	ls = max(ls, 0)
	le = max(le, ls)

	return Track{
		Speaker:      speaker,
		StartMs:      start,
		EndMs:        end,
		DurationMs:   end - start,
		LocalStartMs: ls,
		LocalEndMs:   le,
	}
}

func secondsToMs(s float64) int64 {
	if math.IsNaN(s) {
		return 0
	}
	return int64(math.Round(s * 1000))
}
