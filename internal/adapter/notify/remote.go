package notify

import (
	"context"
	"time"

	"gitlab.com/ms-serving.net/internal/core/ports/primary"
	"gitlab.com/ms-serving.net/internal/core/ports/secondary"
	"gitlab.com/ms-serving.net/internal/domain"
	"gitlab.com/ms-serving.net/internal/tcp/defs"
)

var _ secondary.Notifier = &RemoteNotifier{}

// RemoteNotifier reaches a worker process over TCP
type RemoteNotifier struct {
	address     string
	channel     *channel
	exitTimeout time.Duration
	logger      primary.Logger
}

// RemoteOption configures a RemoteNotifier
type RemoteOption func(*RemoteNotifier)

// WithExitTimeout bounds the Exit RPC
func WithExitTimeout(timeout time.Duration) RemoteOption {
	return func(n *RemoteNotifier) {
		n.exitTimeout = timeout
	}
}

// NewRemoteNotifier creates a notifier for the worker at address. The
// connection is opened by the first call.
func NewRemoteNotifier(address string, logger primary.Logger, options ...RemoteOption) *RemoteNotifier {
	n := &RemoteNotifier{
		address:     address,
		channel:     newChannel(address, logger),
		exitTimeout: defs.DefaultRPCDeadline,
		logger:      logger,
	}
	for _, option := range options {
		option(n)
	}
	return n
}

// RemoteFactory builds remote notifiers for the worker address of each spec
func RemoteFactory(logger primary.Logger, options ...RemoteOption) secondary.NotifierFactory {
	return func(spec domain.WorkerSpec) secondary.Notifier {
		return NewRemoteNotifier(spec.Address, logger, options...)
	}
}

func (n *RemoteNotifier) Address() string {
	return n.address
}

// DispatchAsync forwards the request and returns at once; callback runs on
// another goroutine when the worker answers or ctx expires
func (n *RemoteNotifier) DispatchAsync(ctx context.Context, request *domain.PredictRequest, reply *domain.PredictReply, callback domain.DispatchCallback) {
	go func() {
		delivered := false
		defer func() {
			if r := recover(); r != nil {
				n.logger.Error("Predict to worker panicked", "address", n.address, "panic", r)
				if !delivered {
					callback(domain.NewStatus(domain.StatusInternal, "predict to %s panicked: %v", n.address, r))
				}
			}
		}()

		var out domain.PredictReply
		if err := n.channel.call(ctx, defs.MsgPredict, request, &out); err != nil {
			status := domain.StatusFromError(err)
			n.logger.Warn("Predict to worker failed", "address", n.address, "status", status.String())
			delivered = true
			callback(status)
			return
		}

		reply.Payload = out.Payload
		reply.ErrorMsg = out.ErrorMsg
		delivered = true
		callback(out.Status())
	}()
}

// Exit asks the worker to stop. The worker may already be gone, so failures
// are logged and ignored.
func (n *RemoteNotifier) Exit(ctx context.Context) domain.Status {
	ctx, cancel := withDeadline(ctx, n.exitTimeout)
	defer cancel()

	var reply defs.ExitReply
	if err := n.channel.call(ctx, defs.MsgExit, defs.ExitRequest{Address: n.address}, &reply); err != nil {
		n.logger.Debug("Exit notification not delivered", "address", n.address, "error", err)
	}
	return domain.Success()
}

// Close drops the connection; the dispatcher calls it after Exit
func (n *RemoteNotifier) Close() error {
	return n.channel.close()
}

