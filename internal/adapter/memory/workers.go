package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"gitlab.com/ms-serving.net/internal/core/ports/secondary"
	"gitlab.com/ms-serving.net/internal/domain"
)

var (
	_ secondary.WorkerRepository      = &WorkerRepository{}
	_ secondary.WorkerEventRepository = &EventRepository{}
)

// WorkerRepository keeps worker snapshots in process memory. It backs the
// admin API when persistence is disabled.
type WorkerRepository struct {
	mu      sync.RWMutex
	workers map[string]*domain.WorkerRecord
}

func NewWorkerRepository() *WorkerRepository {
	return &WorkerRepository{workers: make(map[string]*domain.WorkerRecord)}
}

func (r *WorkerRepository) SaveWorker(ctx context.Context, worker *domain.WorkerRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers[worker.Address] = cloneRecord(worker)
	return nil
}

func (r *WorkerRepository) GetWorker(ctx context.Context, address string) (*domain.WorkerRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[address]
	if !ok {
		return nil, nil
	}
	return cloneRecord(w), nil
}

func (r *WorkerRepository) UpdateWorkerHeartbeat(ctx context.Context, address string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.workers[address]; ok {
		w.LastHeartbeat = at
	}
	return nil
}

func (r *WorkerRepository) RemoveWorker(ctx context.Context, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.workers, address)
	return nil
}

func (r *WorkerRepository) GetWorkersByServable(ctx context.Context, servable string) ([]*domain.WorkerRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.WorkerRecord
	for _, w := range r.workers {
		for _, spec := range w.Servables {
			if spec.Name == servable {
				out = append(out, cloneRecord(w))
				break
			}
		}
	}
	sortRecords(out)
	return out, nil
}

func (r *WorkerRepository) GetAllWorkers(ctx context.Context) ([]*domain.WorkerRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.WorkerRecord, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, cloneRecord(w))
	}
	sortRecords(out)
	return out, nil
}

func (r *WorkerRepository) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers = make(map[string]*domain.WorkerRecord)
	return nil
}

// EventRepository is a bounded in-memory journal
type EventRepository struct {
	mu     sync.Mutex
	events []*domain.WorkerEvent
	nextID int64
	limit  int
}

// NewEventRepository keeps at most limit events, dropping the oldest
func NewEventRepository(limit int) *EventRepository {
	return &EventRepository{limit: limit}
}

func (r *EventRepository) SaveEvent(ctx context.Context, event *domain.WorkerEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	event.ID = r.nextID
	stored := *event
	r.events = append(r.events, &stored)
	if r.limit > 0 && len(r.events) > r.limit {
		r.events = r.events[len(r.events)-r.limit:]
	}
	return nil
}

func (r *EventRepository) ListEvents(ctx context.Context, address string, limit int) ([]*domain.WorkerEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.WorkerEvent
	for i := len(r.events) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if r.events[i].Address == address {
			e := *r.events[i]
			out = append(out, &e)
		}
	}
	return out, nil
}

func cloneRecord(w *domain.WorkerRecord) *domain.WorkerRecord {
	out := *w
	out.Servables = make([]domain.WorkerSpec, 0, len(w.Servables))
	for _, spec := range w.Servables {
		out.Servables = append(out.Servables, spec.Clone())
	}
	out.Agents = append([]domain.WorkerAgentSpec(nil), w.Agents...)
	return &out
}

func sortRecords(records []*domain.WorkerRecord) {
	sort.Slice(records, func(i, j int) bool { return records[i].Address < records[j].Address })
}
