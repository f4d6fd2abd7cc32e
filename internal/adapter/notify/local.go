package notify

import (
	"context"

	"gitlab.com/ms-serving.net/internal/core/ports/secondary"
	"gitlab.com/ms-serving.net/internal/domain"
)

// PredictHandler executes a request inside the current process
type PredictHandler interface {
	Predict(ctx context.Context, request *domain.PredictRequest, reply *domain.PredictReply) domain.Status
}

// PredictHandlerFunc adapts a function to PredictHandler
type PredictHandlerFunc func(ctx context.Context, request *domain.PredictRequest, reply *domain.PredictReply) domain.Status

func (f PredictHandlerFunc) Predict(ctx context.Context, request *domain.PredictRequest, reply *domain.PredictReply) domain.Status {
	return f(ctx, request, reply)
}

var _ secondary.Notifier = &LocalNotifier{}

// LocalNotifier reaches a worker living in the master process
type LocalNotifier struct {
	handler PredictHandler
}

func NewLocalNotifier(handler PredictHandler) *LocalNotifier {
	return &LocalNotifier{handler: handler}
}

// LocalFactory binds every registered spec to the same in-process handler
func LocalFactory(handler PredictHandler) secondary.NotifierFactory {
	return func(domain.WorkerSpec) secondary.Notifier {
		return NewLocalNotifier(handler)
	}
}

// DispatchAsync runs the handler and invokes callback before returning
func (n *LocalNotifier) DispatchAsync(ctx context.Context, request *domain.PredictRequest, reply *domain.PredictReply, callback domain.DispatchCallback) {
	if n.handler == nil {
		callback(domain.NewStatus(domain.StatusInternal, "local worker has no predict handler"))
		return
	}
	callback(n.handler.Predict(ctx, request, reply))
}

// Exit is a no-op, the worker shares the master's lifetime
func (n *LocalNotifier) Exit(ctx context.Context) domain.Status {
	return domain.Success()
}
