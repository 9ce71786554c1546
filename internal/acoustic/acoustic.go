// Package acoustic defines the contract between the diarization service and
// its acoustic capabilities: speech segmentation, speaker embedding
// extraction and embedding-to-speaker clustering.
//
// The service only orchestrates these capabilities. Concrete backends live in
// subpackages (energy, fbank, cluster) and tests use the scripted backends in
// the mock subpackage.
package acoustic

import (
	"context"
	"fmt"
	"iter"
)

// Segment is a contiguous speech region detected in one audio window.
// Start and End are in seconds relative to the start of the window and are
// not guaranteed to be ordered.
type Segment struct {
	Start   float64
	End     float64
	Samples []int16
}

// Label identifies a speaker within one session. Valid labels start at 1.
type Label uint32

// String renders the label the way it is exposed to callers.
func (l Label) String() string {
	return fmt.Sprintf("edge_spk_%d", uint32(l))
}

// Segmenter detects speech regions in a decoded window.
type Segmenter interface {
	// Segment returns a finite, single-pass sequence of segments. Each element
	// is either a segment or a recoverable error for that region only. The
	// returned error means the capability is unavailable for this window.
	Segment(ctx context.Context, samples []int16, sampleRate int) (iter.Seq2[Segment, error], error)
}

// Extractor computes speaker embeddings.
//
// Implementations hold internal state and are not safe for concurrent use.
type Extractor interface {
	Compute(samples []int16) ([]float32, error)
}

// Clusterer maps embeddings to speaker labels for a single session.
// A false second return value means no usable identity.
type Clusterer interface {
	// SearchSpeaker returns the speaker whose representation is within
	// threshold similarity of emb, registering a new speaker when none matches
	// and capacity remains.
	SearchSpeaker(emb []float32, threshold float32) (Label, bool)

	// BestSpeakerMatch returns the most similar known speaker regardless of
	// threshold.
	BestSpeakerMatch(emb []float32) (Label, bool)
}

// ClustererFactory creates clustering state capped at maxSpeakers speakers.
type ClustererFactory func(maxSpeakers int) Clusterer
