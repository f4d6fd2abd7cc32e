package heartbeat

import (
	"sort"
	"sync"
	"time"

	"gitlab.com/ms-serving.net/internal/core/ports/primary"
)

// EvictFunc is called, outside the watcher lock, for every worker whose
// heartbeat expired
type EvictFunc func(address string)

// Record is the liveness state of one watched worker
type Record struct {
	Address  string
	LastPing time.Time
	LastPong time.Time
}

// LastSeen is the most recent liveness signal in either direction
func (r Record) LastSeen() time.Time {
	if r.LastPong.After(r.LastPing) {
		return r.LastPong
	}
	return r.LastPing
}

// Watcher tracks worker heartbeats and evicts workers that go quiet.
// A worker address is either watched (it has a record) or not; eviction
// and StopWatch both destroy the record.
type Watcher struct {
	mu      sync.Mutex
	records map[string]*Record
	timeout time.Duration
	onEvict EvictFunc
	now     func() time.Time
	logger  primary.Logger
}

// WatcherOption configures a Watcher
type WatcherOption func(*Watcher)

// WithClock replaces time.Now
func WithClock(now func() time.Time) WatcherOption {
	return func(w *Watcher) {
		w.now = now
	}
}

// NewWatcher creates a watcher evicting workers silent for longer than timeout
func NewWatcher(timeout time.Duration, onEvict EvictFunc, logger primary.Logger, options ...WatcherOption) *Watcher {
	w := &Watcher{
		records: make(map[string]*Record),
		timeout: timeout,
		onEvict: onEvict,
		now:     time.Now,
		logger:  logger,
	}
	for _, option := range options {
		option(w)
	}
	return w
}

// StartWatch begins watching address, resetting its timestamps to now
func (w *Watcher) StartWatch(address string) {
	now := w.now()
	w.mu.Lock()
	w.records[address] = &Record{Address: address, LastPing: now, LastPong: now}
	w.mu.Unlock()
	w.logger.Debug("Start watching worker", "address", address)
}

// StopWatch forgets address. Unknown addresses are ignored.
func (w *Watcher) StopWatch(address string) {
	w.mu.Lock()
	_, existed := w.records[address]
	delete(w.records, address)
	w.mu.Unlock()
	if existed {
		w.logger.Debug("Stop watching worker", "address", address)
	}
}

// RecvPing records a ping from the worker. It returns false when the
// address is not watched.
func (w *Watcher) RecvPing(address string) bool {
	return w.touch(address, func(r *Record, now time.Time) { r.LastPing = now })
}

// RecvPong records a pong from the worker, answering a master ping
func (w *Watcher) RecvPong(address string) bool {
	return w.touch(address, func(r *Record, now time.Time) { r.LastPong = now })
}

func (w *Watcher) touch(address string, update func(*Record, time.Time)) bool {
	now := w.now()
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.records[address]
	if !ok {
		return false
	}
	update(r, now)
	return true
}

// Sweep evicts every worker whose last liveness signal is older than the
// timeout and returns their addresses
func (w *Watcher) Sweep(now time.Time) []string {
	w.mu.Lock()
	var expired []string
	for address, r := range w.records {
		if now.Sub(r.LastSeen()) > w.timeout {
			expired = append(expired, address)
			delete(w.records, address)
		}
	}
	w.mu.Unlock()

	sort.Strings(expired)
	for _, address := range expired {
		w.logger.Warn("Worker heartbeat timed out, evicting", "address", address, "timeout", w.timeout.String())
		if w.onEvict != nil {
			w.onEvict(address)
		}
	}
	return expired
}

// Watched returns the watched addresses in sorted order
func (w *Watcher) Watched() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.records))
	for address := range w.records {
		out = append(out, address)
	}
	sort.Strings(out)
	return out
}

// Get returns a copy of the record for address
func (w *Watcher) Get(address string) (Record, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.records[address]
	if !ok {
		return Record{}, false
	}
	return *r, true
}
