package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"speaker-diarization-service/internal/acoustic"
	"speaker-diarization-service/internal/acoustic/mock"
	"speaker-diarization-service/internal/observability/metrics"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingFactory remembers the maxSpeakers value of every clusterer it
// creates.
type recordingFactory struct {
	created []int
}

func (f *recordingFactory) New(maxSpeakers int) acoustic.Clusterer {
	f.created = append(f.created, maxSpeakers)
	return &mock.Clusterer{}
}

func touch(s *Store, key string, maxSpeakers int) acoustic.Clusterer {
	var got acoustic.Clusterer
	s.Touch(key, maxSpeakers, func(c acoustic.Clusterer) { got = c })
	return got
}

func TestStore_Touch_CreatesOnceAndReuses(t *testing.T) {
	f := &recordingFactory{}
	s := New(time.Hour, f.New, WithClock(newFakeClock().Now))

	a := touch(s, "s1", 4)
	b := touch(s, "s1", 9)

	if a != b {
		t.Error("expected the same clustering state for repeated touches")
	}
	if len(f.created) != 1 || f.created[0] != 4 {
		t.Errorf("expected one clusterer created with maxSpeakers 4, got %v", f.created)
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 session, got %d", s.Len())
	}
}

func TestStore_LazyExpiry(t *testing.T) {
	clock := newFakeClock()
	f := &recordingFactory{}
	s := New(2*time.Minute, f.New, WithClock(clock.Now))

	first := touch(s, "s1", 2)
	clock.Advance(2*time.Minute + time.Millisecond)

	// Any key triggers the sweep.
	touch(s, "s2", 2)
	if s.Len() != 1 {
		t.Fatalf("expected expired session to be swept, got %d sessions", s.Len())
	}

	again := touch(s, "s1", 2)
	if again == first {
		t.Error("expected a fresh clustering state after expiry")
	}
	if len(f.created) != 3 {
		t.Errorf("expected 3 clusterers created, got %d", len(f.created))
	}
}

func TestStore_NotExpiredAtExactlyTTL(t *testing.T) {
	clock := newFakeClock()
	s := New(2*time.Minute, (&recordingFactory{}).New, WithClock(clock.Now))

	first := touch(s, "s1", 2)
	clock.Advance(2 * time.Minute)

	if got := touch(s, "s1", 2); got != first {
		t.Error("expected session to survive at exactly the TTL")
	}
}

func TestStore_TouchExtendsTTL(t *testing.T) {
	clock := newFakeClock()
	s := New(time.Minute, (&recordingFactory{}).New, WithClock(clock.Now))

	first := touch(s, "s1", 2)
	for i := 0; i < 5; i++ {
		clock.Advance(50 * time.Second)
		if got := touch(s, "s1", 2); got != first {
			t.Fatalf("touch %d: expected session to be kept alive", i)
		}
	}
}

func TestStore_TTLFloor(t *testing.T) {
	s := New(5*time.Second, (&recordingFactory{}).New)
	if s.TTL() != MinTTL {
		t.Errorf("expected TTL raised to %v, got %v", MinTTL, s.TTL())
	}
}

func TestStore_Sweep(t *testing.T) {
	clock := newFakeClock()
	s := New(time.Minute, (&recordingFactory{}).New, WithClock(clock.Now))

	touch(s, "old", 2)
	clock.Advance(30 * time.Second)
	touch(s, "recent", 2)
	clock.Advance(31 * time.Second)

	if n := s.Sweep(); n != 1 {
		t.Errorf("expected 1 session swept, got %d", n)
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 session left, got %d", s.Len())
	}
}

func TestStore_PanicInCallbackDoesNotPoisonLock(t *testing.T) {
	s := New(time.Hour, (&recordingFactory{}).New)

	func() {
		defer func() { _ = recover() }()
		s.Touch("s1", 2, func(acoustic.Clusterer) { panic("boom") })
	}()

	done := make(chan struct{})
	go func() {
		touch(s, "s1", 2)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("store lock still held after panic")
	}
}

func TestStore_ConcurrentTouches(t *testing.T) {
	s := New(time.Hour, (&recordingFactory{}).New)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				touch(s, fmt.Sprintf("s%d", i%10), 2)
			}
		}(i)
	}
	wg.Wait()

	if s.Len() != 10 {
		t.Errorf("expected 10 sessions, got %d", s.Len())
	}
}

func TestStore_Metrics(t *testing.T) {
	clock := newFakeClock()
	m := metrics.NewMetrics(prometheus.NewRegistry())
	s := New(time.Minute, (&recordingFactory{}).New, WithClock(clock.Now), WithMetrics(m))

	touch(s, "a", 2)
	touch(s, "b", 2)
	touch(s, "a", 2)
	clock.Advance(2 * time.Minute)
	touch(s, "c", 2)

	if got := testutil.ToFloat64(m.SessionsCreated); got != 3 {
		t.Errorf("expected 3 sessions created, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsExpired); got != 2 {
		t.Errorf("expected 2 sessions expired, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsActive); got != 1 {
		t.Errorf("expected 1 active session, got %v", got)
	}
}
