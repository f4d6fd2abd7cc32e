package secondary

import (
	"context"

	"gitlab.com/ms-serving.net/internal/domain"
)

// Notifier reaches one worker, in process or over the network.
type Notifier interface {
	// DispatchAsync forwards the request and invokes callback exactly once with
	// the terminal status, either inline or from another goroutine. The reply is
	// filled in before callback runs.
	DispatchAsync(ctx context.Context, request *domain.PredictRequest, reply *domain.PredictReply, callback domain.DispatchCallback)

	// Exit tells the worker to stop. Best effort, bounded by a short deadline.
	Exit(ctx context.Context) domain.Status
}

// NotifierFactory builds the notifier for a newly registered worker
type NotifierFactory func(spec domain.WorkerSpec) Notifier

// AgentNotifier reaches one rank of a distributed worker
type AgentNotifier interface {
	Address() string
	Register(ctx context.Context, owner string, spec domain.WorkerAgentSpec, servables []domain.WorkerSpec) domain.Status
	Unregister(ctx context.Context) domain.Status
	Exit(ctx context.Context) domain.Status
	Predict(ctx context.Context, request *domain.PredictRequest, reply *domain.PredictReply) domain.Status
	// Close releases the connection without notifying the agent
	Close() error
}

// AgentNotifierFactory builds the notifier for one agent rank
type AgentNotifierFactory func(spec domain.WorkerAgentSpec) AgentNotifier
