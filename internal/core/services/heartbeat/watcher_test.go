package heartbeat

import (
	"sync"
	"testing"
	"time"

	"gitlab.com/ms-serving.net/internal/adapter/logging"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

func newTestWatcher(timeout time.Duration) (*Watcher, *fakeClock, *[]string) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	var evicted []string
	w := NewWatcher(timeout, func(address string) {
		evicted = append(evicted, address)
	}, logging.NewNopLogger(), WithClock(clock.Now))
	return w, clock, &evicted
}

func TestSweepEvictsSilentWorker(t *testing.T) {
	w, clock, evicted := newTestWatcher(5 * time.Second)
	w.StartWatch("10.0.0.1:7000")
	w.StartWatch("10.0.0.2:7000")

	clock.Advance(3 * time.Second)
	w.RecvPing("10.0.0.2:7000")

	now := clock.Advance(3 * time.Second)
	got := w.Sweep(now)
	if len(got) != 1 || got[0] != "10.0.0.1:7000" {
		t.Fatalf("evicted = %v", got)
	}
	if len(*evicted) != 1 || (*evicted)[0] != "10.0.0.1:7000" {
		t.Fatalf("eviction callback got %v", *evicted)
	}
	if _, ok := w.Get("10.0.0.1:7000"); ok {
		t.Fatalf("evicted record should be destroyed")
	}
	if watched := w.Watched(); len(watched) != 1 || watched[0] != "10.0.0.2:7000" {
		t.Fatalf("watched = %v", watched)
	}

	// an evicted worker is not evicted twice
	if again := w.Sweep(clock.Advance(10 * time.Second)); len(again) != 1 || again[0] != "10.0.0.2:7000" {
		t.Fatalf("second sweep = %v", again)
	}
}

func TestPongRefreshesLiveness(t *testing.T) {
	w, clock, _ := newTestWatcher(5 * time.Second)
	w.StartWatch("10.0.0.1:7000")

	clock.Advance(4 * time.Second)
	if !w.RecvPong("10.0.0.1:7000") {
		t.Fatalf("pong for watched address rejected")
	}
	if got := w.Sweep(clock.Advance(4 * time.Second)); len(got) != 0 {
		t.Fatalf("worker with recent pong evicted: %v", got)
	}
	r, _ := w.Get("10.0.0.1:7000")
	if !r.LastPong.After(r.LastPing) {
		t.Fatalf("pong not recorded: %+v", r)
	}
}

func TestStopWatchIsIdempotent(t *testing.T) {
	w, clock, evicted := newTestWatcher(time.Second)
	w.StartWatch("10.0.0.1:7000")
	w.StopWatch("10.0.0.1:7000")
	w.StopWatch("10.0.0.1:7000")
	w.StopWatch("never-watched")

	if w.RecvPing("10.0.0.1:7000") {
		t.Fatalf("ping for unwatched address accepted")
	}
	w.Sweep(clock.Advance(time.Minute))
	if len(*evicted) != 0 {
		t.Fatalf("unwatched worker evicted: %v", *evicted)
	}
}

func TestStartWatchResetsRecord(t *testing.T) {
	w, clock, _ := newTestWatcher(5 * time.Second)
	w.StartWatch("10.0.0.1:7000")
	clock.Advance(4 * time.Second)
	w.StartWatch("10.0.0.1:7000")

	if got := w.Sweep(clock.Advance(4 * time.Second)); len(got) != 0 {
		t.Fatalf("restarted watch evicted early: %v", got)
	}
}
