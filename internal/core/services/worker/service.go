package worker

import (
	"context"

	"gitlab.com/ms-serving.net/internal/domain"
)

// IWorkerInventoryService keeps the persisted view of registered workers
// and their lifecycle journal
type IWorkerInventoryService interface {
	// RegisterWorker stores the snapshot of a newly registered worker
	RegisterWorker(ctx context.Context, record *domain.WorkerRecord) error

	// AddServable appends one servable to the snapshot of its worker
	AddServable(ctx context.Context, spec domain.WorkerSpec) error

	// RemoveServable drops one servable from the snapshot of its worker
	RemoveServable(ctx context.Context, spec domain.WorkerSpec) error

	// Heartbeat refreshes the worker's last heartbeat
	Heartbeat(ctx context.Context, address string) error

	// RemoveWorker deletes the snapshot and journals why
	RemoveWorker(ctx context.Context, address string, reason domain.WorkerEventType) error

	// Clear deletes every snapshot
	Clear(ctx context.Context) error

	// GetAllWorkers gets all registered workers
	GetAllWorkers(ctx context.Context) ([]*domain.WorkerRecord, error)

	// GetWorkersByServable gets the workers hosting a servable
	GetWorkersByServable(ctx context.Context, servable string) ([]*domain.WorkerRecord, error)

	// ListEvents returns the newest journal entries of a worker first
	ListEvents(ctx context.Context, address string, limit int) ([]*domain.WorkerEvent, error)
}
