package master

import (
	"context"

	"gitlab.com/ms-serving.net/internal/adapter/notify"
	"gitlab.com/ms-serving.net/internal/domain"
)

// IMasterService translates worker and client messages into registry and
// heartbeat operations. Failures are returned as Status values for the
// caller to put in the reply; nothing here fails the transport.
type IMasterService interface {
	// Register registers every servable of a remote worker and starts watching it
	Register(ctx context.Context, address string, specs []domain.WorkerSpec) domain.Status

	// RegisterDistributed registers a logical worker backed by ranked agents
	RegisterDistributed(ctx context.Context, address string, specs []domain.WorkerSpec, agents []domain.WorkerAgentSpec) domain.Status

	// AddWorker adds one remote worker to a servable pool
	AddWorker(ctx context.Context, address string, spec domain.WorkerSpec) domain.Status

	// RemoveWorker stops watching the worker, then removes it from the pool
	RemoveWorker(ctx context.Context, address string, spec domain.WorkerSpec) domain.Status

	// Exit handles a graceful worker departure
	Exit(ctx context.Context, address string) domain.Status

	// Ping and Pong refresh the liveness of a watched worker
	Ping(ctx context.Context, address string) domain.Status
	Pong(ctx context.Context, address string) domain.Status

	// Predict dispatches a request and waits for the terminal status
	Predict(ctx context.Context, request *domain.PredictRequest, reply *domain.PredictReply) domain.Status

	// PredictAsync dispatches a request; callback runs exactly once
	PredictAsync(ctx context.Context, request *domain.PredictRequest, reply *domain.PredictReply, callback domain.DispatchCallback)

	// In-process workers, never heartbeat-watched
	RegisterLocalWorker(ctx context.Context, specs []domain.WorkerSpec, handler notify.PredictHandler) domain.Status
	AddLocalWorker(ctx context.Context, spec domain.WorkerSpec, handler notify.PredictHandler) domain.Status
	UnregisterLocalWorker(ctx context.Context, address string) domain.Status
	RemoveLocalWorker(ctx context.Context, spec domain.WorkerSpec) domain.Status

	// Clear removes every worker
	Clear(ctx context.Context)

	// Servables is the registry snapshot
	Servables() map[string][]domain.WorkerSpec

	// RemoteWorkers returns the watched addresses the master pings
	RemoteWorkers() []string
}
