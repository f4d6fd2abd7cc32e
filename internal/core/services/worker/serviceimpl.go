package worker

import (
	"context"
	"fmt"
	"time"

	"gitlab.com/ms-serving.net/internal/core/ports/primary"
	"gitlab.com/ms-serving.net/internal/core/ports/secondary"
	"gitlab.com/ms-serving.net/internal/domain"
)

var _ IWorkerInventoryService = &WorkerInventoryService{}

// WorkerInventoryService implements IWorkerInventoryService on top of the
// worker snapshot store and the event journal
type WorkerInventoryService struct {
	workerRepo secondary.WorkerRepository
	eventRepo  secondary.WorkerEventRepository
	logger     primary.Logger
	now        func() time.Time
}

// NewWorkerInventoryService creates a new worker inventory service
func NewWorkerInventoryService(workerRepo secondary.WorkerRepository, eventRepo secondary.WorkerEventRepository, logger primary.Logger) *WorkerInventoryService {
	return &WorkerInventoryService{
		workerRepo: workerRepo,
		eventRepo:  eventRepo,
		logger:     logger,
		now:        time.Now,
	}
}

// RegisterWorker stores the snapshot of a newly registered worker
func (s *WorkerInventoryService) RegisterWorker(ctx context.Context, record *domain.WorkerRecord) error {
	s.logger.Debug("Registering worker", "address", record.Address, "kind", record.Kind)

	now := s.now()
	record.RegisteredAt = now
	record.LastHeartbeat = now

	if err := s.workerRepo.SaveWorker(ctx, record); err != nil {
		s.logger.Error("Failed to save worker", "address", record.Address, "error", err)
		return fmt.Errorf("failed to register worker: %w", err)
	}

	for _, spec := range record.Servables {
		s.journal(ctx, &domain.WorkerEvent{
			Address:  record.Address,
			Type:     domain.WorkerEventRegistered,
			Servable: spec.Name,
			Version:  spec.VersionNumber,
			Detail:   string(record.Kind),
		})
	}
	return nil
}

// AddServable appends one servable to the snapshot of its worker
func (s *WorkerInventoryService) AddServable(ctx context.Context, spec domain.WorkerSpec) error {
	record, err := s.workerRepo.GetWorker(ctx, spec.Address)
	if err != nil {
		s.logger.Error("Failed to get worker", "address", spec.Address, "error", err)
		return fmt.Errorf("failed to get worker: %w", err)
	}

	now := s.now()
	if record == nil {
		record = &domain.WorkerRecord{Address: spec.Address, Kind: domain.WorkerKindRemote, RegisteredAt: now}
	}
	record.Servables = append(record.Servables, spec)
	record.LastHeartbeat = now

	if err := s.workerRepo.SaveWorker(ctx, record); err != nil {
		s.logger.Error("Failed to save worker", "address", spec.Address, "error", err)
		return fmt.Errorf("failed to add servable: %w", err)
	}

	s.journal(ctx, &domain.WorkerEvent{
		Address:  spec.Address,
		Type:     domain.WorkerEventAdded,
		Servable: spec.Name,
		Version:  spec.VersionNumber,
	})
	return nil
}

// RemoveServable drops one servable from the snapshot of its worker; the
// snapshot goes away with its last servable
func (s *WorkerInventoryService) RemoveServable(ctx context.Context, spec domain.WorkerSpec) error {
	record, err := s.workerRepo.GetWorker(ctx, spec.Address)
	if err != nil {
		s.logger.Error("Failed to get worker", "address", spec.Address, "error", err)
		return fmt.Errorf("failed to get worker: %w", err)
	}

	s.journal(ctx, &domain.WorkerEvent{
		Address:  spec.Address,
		Type:     domain.WorkerEventRemoved,
		Servable: spec.Name,
		Version:  spec.VersionNumber,
	})

	if record == nil {
		return nil
	}

	remaining := record.Servables[:0]
	for _, hosted := range record.Servables {
		if hosted.Name == spec.Name && hosted.VersionNumber == spec.VersionNumber {
			continue
		}
		remaining = append(remaining, hosted)
	}
	record.Servables = remaining

	if len(remaining) == 0 {
		err = s.workerRepo.RemoveWorker(ctx, spec.Address)
	} else {
		err = s.workerRepo.SaveWorker(ctx, record)
	}
	if err != nil {
		s.logger.Error("Failed to update worker", "address", spec.Address, "error", err)
		return fmt.Errorf("failed to remove servable: %w", err)
	}
	return nil
}

// Heartbeat refreshes the worker's last heartbeat
func (s *WorkerInventoryService) Heartbeat(ctx context.Context, address string) error {
	if err := s.workerRepo.UpdateWorkerHeartbeat(ctx, address, s.now()); err != nil {
		s.logger.Debug("Failed to update worker heartbeat", "address", address, "error", err)
		return fmt.Errorf("failed to update worker heartbeat: %w", err)
	}
	return nil
}

// RemoveWorker deletes the snapshot and journals why
func (s *WorkerInventoryService) RemoveWorker(ctx context.Context, address string, reason domain.WorkerEventType) error {
	s.journal(ctx, &domain.WorkerEvent{Address: address, Type: reason})

	if err := s.workerRepo.RemoveWorker(ctx, address); err != nil {
		s.logger.Error("Failed to remove worker", "address", address, "error", err)
		return fmt.Errorf("failed to remove worker: %w", err)
	}
	return nil
}

// Clear deletes every snapshot
func (s *WorkerInventoryService) Clear(ctx context.Context) error {
	workers, err := s.workerRepo.GetAllWorkers(ctx)
	if err != nil {
		s.logger.Warn("Failed to list workers before clear", "error", err)
	}
	for _, w := range workers {
		s.journal(ctx, &domain.WorkerEvent{Address: w.Address, Type: domain.WorkerEventCleared})
	}

	if err := s.workerRepo.Clear(ctx); err != nil {
		s.logger.Error("Failed to clear workers", "error", err)
		return fmt.Errorf("failed to clear workers: %w", err)
	}
	return nil
}

func (s *WorkerInventoryService) GetAllWorkers(ctx context.Context) ([]*domain.WorkerRecord, error) {
	s.logger.Debug("Getting all workers")

	workers, err := s.workerRepo.GetAllWorkers(ctx)
	if err != nil {
		s.logger.Error("Failed to get all workers", "error", err)
		return nil, fmt.Errorf("failed to get all workers: %w", err)
	}
	return workers, nil
}

func (s *WorkerInventoryService) GetWorkersByServable(ctx context.Context, servable string) ([]*domain.WorkerRecord, error) {
	s.logger.Debug("Getting workers by servable", "servable", servable)

	workers, err := s.workerRepo.GetWorkersByServable(ctx, servable)
	if err != nil {
		s.logger.Error("Failed to get workers by servable", "servable", servable, "error", err)
		return nil, fmt.Errorf("failed to get workers by servable: %w", err)
	}
	return workers, nil
}

func (s *WorkerInventoryService) ListEvents(ctx context.Context, address string, limit int) ([]*domain.WorkerEvent, error) {
	events, err := s.eventRepo.ListEvents(ctx, address, limit)
	if err != nil {
		s.logger.Error("Failed to list worker events", "address", address, "error", err)
		return nil, fmt.Errorf("failed to list worker events: %w", err)
	}
	return events, nil
}

// journal is best effort: a lost journal row never fails the operation
func (s *WorkerInventoryService) journal(ctx context.Context, event *domain.WorkerEvent) {
	event.CreatedAt = s.now()
	if err := s.eventRepo.SaveEvent(ctx, event); err != nil {
		s.logger.Warn("Failed to journal worker event", "address", event.Address, "type", event.Type, "error", err)
	}
}
