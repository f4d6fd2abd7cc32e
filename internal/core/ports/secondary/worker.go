package secondary

import (
	"context"
	"time"

	"gitlab.com/ms-serving.net/internal/domain"
)

type WorkerRepository interface {
	// SaveWorker saves worker information
	SaveWorker(ctx context.Context, worker *domain.WorkerRecord) error

	// GetWorker retrieves worker information by address
	GetWorker(ctx context.Context, address string) (*domain.WorkerRecord, error)

	// UpdateWorkerHeartbeat refreshes a worker's last heartbeat
	UpdateWorkerHeartbeat(ctx context.Context, address string, time time.Time) error

	// RemoveWorker deletes a worker and its servable index entries
	RemoveWorker(ctx context.Context, address string) error

	GetWorkersByServable(ctx context.Context, servable string) ([]*domain.WorkerRecord, error)

	GetAllWorkers(ctx context.Context) ([]*domain.WorkerRecord, error)

	// Clear removes every worker record
	Clear(ctx context.Context) error
}

type WorkerEventRepository interface {
	// SaveEvent appends an event to the journal
	SaveEvent(ctx context.Context, event *domain.WorkerEvent) error

	// ListEvents returns the newest events of a worker first
	ListEvents(ctx context.Context, address string, limit int) ([]*domain.WorkerEvent, error)
}
