// Package session keeps per-session speaker-identity state between requests
// and expires idle sessions lazily.
package session

import (
	"sync"
	"time"

	"speaker-diarization-service/internal/acoustic"
	"speaker-diarization-service/internal/observability/metrics"
)

// MinTTL is the shortest idle time-to-live a Store accepts.
const MinTTL = 60 * time.Second

type entry struct {
	clusterer      acoustic.Clusterer
	lastActivityMs int64
}

// Store maps session keys to clustering state. All access goes through one
// mutex that is held only for a single Touch.
type Store struct {
	mu           sync.Mutex
	sessions     map[string]*entry
	ttlMs        int64
	newClusterer acoustic.ClustererFactory
	now          func() time.Time
	metrics      *metrics.Metrics
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithMetrics records session lifecycle metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New creates a Store. ttl is raised to MinTTL when shorter.
func New(ttl time.Duration, factory acoustic.ClustererFactory, opts ...Option) *Store {
	s := &Store{
		sessions:     make(map[string]*entry),
		ttlMs:        max(ttl, MinTTL).Milliseconds(),
		newClusterer: factory,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the effective idle time-to-live.
func (s *Store) TTL() time.Duration {
	return time.Duration(s.ttlMs) * time.Millisecond
}

// Touch expires idle sessions, looks up or creates the session for key,
// bumps its last activity and runs fn with exclusive access to its clustering
// state. maxSpeakers only applies when the session is created. The sweep,
// lookup and fn run under a single lock hold, so the session cannot be
// evicted while fn uses it.
func (s *Store) Touch(key string, maxSpeakers int, fn func(acoustic.Clusterer)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nowMs := s.now().UnixMilli()
	s.sweepLocked(nowMs)

	e, ok := s.sessions[key]
	if !ok {
		e = &entry{clusterer: s.newClusterer(maxSpeakers)}
		s.sessions[key] = e
		if s.metrics != nil {
			s.metrics.RecordSessionCreated()
		}
	}
	e.lastActivityMs = nowMs
	s.reportActiveLocked()

	fn(e.clusterer)
}

// Sweep removes expired sessions and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.sweepLocked(s.now().UnixMilli())
	s.reportActiveLocked()
	return n
}

// Len returns the number of live sessions, including ones that have expired
// but not yet been swept.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) sweepLocked(nowMs int64) int {
	n := 0
	for key, e := range s.sessions {
		if nowMs-e.lastActivityMs > s.ttlMs {
			delete(s.sessions, key)
			n++
		}
	}
	if n > 0 && s.metrics != nil {
		s.metrics.RecordSessionsExpired(n)
	}
	return n
}

func (s *Store) reportActiveLocked() {
	if s.metrics != nil {
		s.metrics.SetSessionsActive(len(s.sessions))
	}
}
