// Package cluster assigns session-scoped speaker labels to embeddings by
// incremental nearest-centroid matching on cosine similarity.
package cluster

import (
	"math"

	"speaker-diarization-service/internal/acoustic"
)

type speaker struct {
	label    acoustic.Label
	centroid []float32
	count    int
}

// Manager is the clustering state of one session. Labels are assigned
// sequentially starting at 1 and never reused.
//
// Manager is not safe for concurrent use; the session store serializes access.
type Manager struct {
	maxSpeakers int
	speakers    []speaker
}

// New creates a Manager that registers at most maxSpeakers speakers.
func New(maxSpeakers int) *Manager {
	if maxSpeakers < 0 {
		maxSpeakers = 0
	}
	return &Manager{maxSpeakers: maxSpeakers}
}

// Factory adapts New to acoustic.ClustererFactory.
func Factory(maxSpeakers int) acoustic.Clusterer {
	return New(maxSpeakers)
}

// SearchSpeaker returns the most similar speaker whose similarity is strictly
// above threshold. When none qualifies a new speaker is registered while
// capacity remains; otherwise no label is returned.
func (m *Manager) SearchSpeaker(emb []float32, threshold float32) (acoustic.Label, bool) {
	if len(emb) == 0 {
		return 0, false
	}

	idx, sim := m.nearest(emb)
	if idx >= 0 && sim > threshold {
		m.absorb(idx, emb)
		return m.speakers[idx].label, true
	}

	if len(m.speakers) < m.maxSpeakers {
		return m.register(emb), true
	}
	return 0, false
}

// BestSpeakerMatch returns the most similar known speaker regardless of
// threshold. It returns no label when nothing is registered yet.
func (m *Manager) BestSpeakerMatch(emb []float32) (acoustic.Label, bool) {
	if len(emb) == 0 {
		return 0, false
	}
	idx, _ := m.nearest(emb)
	if idx < 0 {
		return 0, false
	}
	return m.speakers[idx].label, true
}

// Len returns the number of registered speakers.
func (m *Manager) Len() int {
	return len(m.speakers)
}

func (m *Manager) nearest(emb []float32) (int, float32) {
	bestIdx := -1
	bestSim := float32(-2)
	for i, s := range m.speakers {
		sim := cosineSim(emb, s.centroid)
		if sim > bestSim {
			bestSim = sim
			bestIdx = i
		}
	}
	return bestIdx, bestSim
}

func (m *Manager) register(emb []float32) acoustic.Label {
	c := make([]float32, len(emb))
	copy(c, emb)
	l2Norm(c)
	label := acoustic.Label(len(m.speakers) + 1)
	m.speakers = append(m.speakers, speaker{label: label, centroid: c, count: 1})
	return label
}

// absorb folds emb into the running-mean centroid of speaker idx.
func (m *Manager) absorb(idx int, emb []float32) {
	s := &m.speakers[idx]
	if len(emb) != len(s.centroid) {
		return
	}
	n := float32(s.count)
	normed := make([]float32, len(emb))
	copy(normed, emb)
	l2Norm(normed)
	for i := range s.centroid {
		s.centroid[i] = (s.centroid[i]*n + normed[i]) / (n + 1)
	}
	l2Norm(s.centroid)
	s.count++
}

// cosineSim returns the cosine similarity of a and b, or 0 when the vectors
// differ in length or either is all zeros.
func cosineSim(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func l2Norm(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
