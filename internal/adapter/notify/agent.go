package notify

import (
	"context"
	"sync"
	"time"

	"gitlab.com/ms-serving.net/internal/core/ports/primary"
	"gitlab.com/ms-serving.net/internal/core/ports/secondary"
	"gitlab.com/ms-serving.net/internal/domain"
	"gitlab.com/ms-serving.net/internal/tcp/defs"
)

var _ secondary.AgentNotifier = &AgentClient{}

// AgentClient reaches one rank of a distributed worker over TCP
type AgentClient struct {
	spec     domain.WorkerAgentSpec
	channel  *channel
	deadline time.Duration
	logger   primary.Logger

	mu    sync.Mutex
	owner string
}

// NewAgentClient creates a client for the agent described by spec. Admin
// calls are bounded by deadline.
func NewAgentClient(spec domain.WorkerAgentSpec, deadline time.Duration, logger primary.Logger) *AgentClient {
	return &AgentClient{
		spec:     spec,
		channel:  newChannel(spec.Address, logger),
		deadline: deadline,
		logger:   logger,
	}
}

// AgentFactory builds TCP agent clients
func AgentFactory(deadline time.Duration, logger primary.Logger) secondary.AgentNotifierFactory {
	return func(spec domain.WorkerAgentSpec) secondary.AgentNotifier {
		return NewAgentClient(spec, deadline, logger)
	}
}

func (a *AgentClient) Address() string {
	return a.spec.Address
}

// Register binds the agent to the logical worker at owner
func (a *AgentClient) Register(ctx context.Context, owner string, spec domain.WorkerAgentSpec, servables []domain.WorkerSpec) domain.Status {
	ctx, cancel := withDeadline(ctx, a.deadline)
	defer cancel()

	request := defs.AgentRegisterRequest{WorkerAddress: owner, AgentSpec: spec, Servables: servables}
	var reply defs.AgentRegisterReply
	if err := a.channel.call(ctx, defs.MsgAgentRegister, request, &reply); err != nil {
		return domain.StatusFromError(err)
	}
	status := defs.StatusFromErrorMsg(reply.ErrorMsg)
	if status.OK() {
		a.mu.Lock()
		a.owner = owner
		a.spec = spec
		a.mu.Unlock()
	}
	return status
}

// Unregister detaches the agent from its logical worker
func (a *AgentClient) Unregister(ctx context.Context) domain.Status {
	ctx, cancel := withDeadline(ctx, a.deadline)
	defer cancel()

	a.mu.Lock()
	request := defs.AgentUnregisterRequest{WorkerAddress: a.owner, Rank: a.spec.Rank}
	a.owner = ""
	a.mu.Unlock()

	var reply defs.AgentUnregisterReply
	if err := a.channel.call(ctx, defs.MsgAgentUnregister, request, &reply); err != nil {
		return domain.StatusFromError(err)
	}
	return defs.StatusFromErrorMsg(reply.ErrorMsg)
}

// Exit asks the agent process to stop, ignoring delivery failures, and
// drops the connection
func (a *AgentClient) Exit(ctx context.Context) domain.Status {
	ctx, cancel := withDeadline(ctx, a.deadline)
	defer cancel()

	var reply defs.DistributedExitReply
	if err := a.channel.call(ctx, defs.MsgDistributedExit, defs.DistributedExitRequest{Address: a.spec.Address}, &reply); err != nil {
		a.logger.Debug("Agent exit not delivered", "address", a.spec.Address, "error", err)
	}
	_ = a.channel.close()
	return domain.Success()
}

// Predict runs the request on this rank. No deadline is imposed here; the
// caller's ctx decides.
func (a *AgentClient) Predict(ctx context.Context, request *domain.PredictRequest, reply *domain.PredictReply) domain.Status {
	var out domain.PredictReply
	if err := a.channel.call(ctx, defs.MsgAgentPredict, request, &out); err != nil {
		return domain.StatusFromError(err)
	}
	reply.Payload = out.Payload
	reply.ErrorMsg = out.ErrorMsg
	return out.Status()
}

// Close drops the connection without telling the agent
func (a *AgentClient) Close() error {
	return a.channel.close()
}
