package dispatch

import (
	"context"

	"gitlab.com/ms-serving.net/internal/core/ports/secondary"
	"gitlab.com/ms-serving.net/internal/domain"
)

// IDispatcher defines the servable registry used by the master
type IDispatcher interface {
	// Dispatch routes a request and blocks until the terminal status is known
	Dispatch(ctx context.Context, request *domain.PredictRequest, reply *domain.PredictReply) domain.Status

	// DispatchAsync routes a request; callback is invoked exactly once
	DispatchAsync(ctx context.Context, request *domain.PredictRequest, reply *domain.PredictReply, callback domain.DispatchCallback)

	// RegisterServable registers every servable hosted by the worker at address
	RegisterServable(address string, specs []domain.WorkerSpec, factory secondary.NotifierFactory) domain.Status

	// UnregisterServable removes every servable hosted at address
	UnregisterServable(address string) domain.Status

	// AddServable adds one worker to a servable pool
	AddServable(spec domain.WorkerSpec, factory secondary.NotifierFactory) domain.Status

	// RemoveServable removes one worker from a servable pool
	RemoveServable(spec domain.WorkerSpec) domain.Status

	// Clear exits and removes every worker
	Clear()

	// Servables returns a snapshot of servable name to registered workers
	Servables() map[string][]domain.WorkerSpec

	// HasWorker reports whether any servable is hosted at address
	HasWorker(address string) bool
}
