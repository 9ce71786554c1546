// Package mock provides scripted acoustic backends for tests that need
// deterministic segmentation, embeddings and speaker assignment without
// model files.
package mock

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"speaker-diarization-service/internal/acoustic"
)

// Element is one scripted segmentation outcome.
type Element struct {
	Segment acoustic.Segment
	Err     error
}

// Seg builds a successful element for the region [start, end] seconds. The
// segment carries n samples.
func Seg(start, end float64, n int) Element {
	return Element{Segment: acoustic.Segment{Start: start, End: end, Samples: make([]int16, n)}}
}

// Fail builds a recoverable element error.
func Fail(err error) Element {
	return Element{Err: err}
}

// Segmenter replays Elements for every call, or fails with Err.
type Segmenter struct {
	Elements []Element
	Err      error

	calls atomic.Int32
}

// Segment implements acoustic.Segmenter.
func (s *Segmenter) Segment(_ context.Context, _ []int16, _ int) (iter.Seq2[acoustic.Segment, error], error) {
	s.calls.Add(1)
	if s.Err != nil {
		return nil, s.Err
	}
	elems := s.Elements
	return func(yield func(acoustic.Segment, error) bool) {
		for _, e := range elems {
			if !yield(e.Segment, e.Err) {
				return
			}
		}
	}, nil
}

// Calls returns how many times Segment was invoked.
func (s *Segmenter) Calls() int {
	return int(s.calls.Load())
}

// Extractor returns embeddings from Fn (or a constant vector when Fn is nil)
// and records the peak number of concurrent Compute calls.
type Extractor struct {
	Fn    func(samples []int16) ([]float32, error)
	Delay time.Duration

	mu       sync.Mutex
	inFlight int
	peak     int
	calls    int
}

// Compute implements acoustic.Extractor.
func (e *Extractor) Compute(samples []int16) ([]float32, error) {
	e.mu.Lock()
	e.inFlight++
	e.calls++
	if e.inFlight > e.peak {
		e.peak = e.inFlight
	}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.inFlight--
		e.mu.Unlock()
	}()

	if e.Delay > 0 {
		time.Sleep(e.Delay)
	}
	if e.Fn != nil {
		return e.Fn(samples)
	}
	return []float32{1, 0, 0}, nil
}

// Peak returns the highest number of concurrent Compute calls observed.
func (e *Extractor) Peak() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.peak
}

// Calls returns the number of Compute calls.
func (e *Extractor) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Clusterer returns scripted labels in order. A zero entry means no identity.
// When the script is exhausted it keeps returning the last entry.
type Clusterer struct {
	Labels []acoustic.Label

	next int
}

// SearchSpeaker implements acoustic.Clusterer.
func (c *Clusterer) SearchSpeaker(_ []float32, _ float32) (acoustic.Label, bool) {
	return c.pop()
}

// BestSpeakerMatch implements acoustic.Clusterer. Scripted clusterers resolve
// everything in SearchSpeaker, so this always reports no identity.
func (c *Clusterer) BestSpeakerMatch(_ []float32) (acoustic.Label, bool) {
	return 0, false
}

func (c *Clusterer) pop() (acoustic.Label, bool) {
	if len(c.Labels) == 0 {
		return 0, false
	}
	i := min(c.next, len(c.Labels)-1)
	c.next++
	l := c.Labels[i]
	return l, l != 0
}

// ScriptedFactory returns a ClustererFactory whose clusterers all replay
// labels.
func ScriptedFactory(labels ...acoustic.Label) acoustic.ClustererFactory {
	return func(int) acoustic.Clusterer {
		return &Clusterer{Labels: labels}
	}
}
