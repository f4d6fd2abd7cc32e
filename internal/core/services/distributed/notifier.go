package distributed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"gitlab.com/ms-serving.net/internal/core/ports/primary"
	"gitlab.com/ms-serving.net/internal/core/ports/secondary"
	"gitlab.com/ms-serving.net/internal/domain"
)

var _ secondary.Notifier = &Notifier{}

// Notifier presents the agents of one distributed worker as a single
// worker. Agents are ordered by rank.
type Notifier struct {
	address  string
	agents   []secondary.AgentNotifier
	deadline time.Duration
	logger   primary.Logger

	exitOnce sync.Once
	onExit   func(address string)
}

func (n *Notifier) Address() string {
	return n.address
}

// Agents returns the agent addresses ordered by rank
func (n *Notifier) Agents() []string {
	out := make([]string, 0, len(n.agents))
	for _, a := range n.agents {
		out = append(out, a.Address())
	}
	return out
}

// DispatchAsync runs the request on every rank in parallel. It succeeds only
// when all ranks succeed and the reply is rank 0's. The first failing rank
// cancels the others and its status is reported.
func (n *Notifier) DispatchAsync(ctx context.Context, request *domain.PredictRequest, reply *domain.PredictReply, callback domain.DispatchCallback) {
	go func() {
		delivered := false
		defer func() {
			if r := recover(); r != nil {
				n.logger.Error("Distributed predict panicked", "address", n.address, "panic", r)
				if !delivered {
					callback(domain.NewStatus(domain.StatusInternal, "distributed predict on %s panicked: %v", n.address, r))
				}
			}
		}()

		replies := make([]domain.PredictReply, len(n.agents))
		g, gctx := errgroup.WithContext(ctx)
		for i, agent := range n.agents {
			i, agent := i, agent
			g.Go(func() error {
				status := guard(agent.Address(), func() domain.Status {
					return agent.Predict(gctx, request, &replies[i])
				})
				if !status.OK() {
					return &rankError{rank: i, status: status}
				}
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			failure := asRankError(err)
			n.logger.Warn("Distributed predict failed", "address", n.address, "rank", failure.rank, "status", failure.status.String())
			delivered = true
			callback(failure.status)
			return
		}
		reply.Payload = replies[0].Payload
		reply.ErrorMsg = nil
		delivered = true
		callback(domain.Success())
	}()
}

// Exit unregisters and stops every agent. It runs at most once.
func (n *Notifier) Exit(ctx context.Context) domain.Status {
	n.exitOnce.Do(func() {
		ctx, cancel := context.WithTimeout(ctx, n.deadline)
		defer cancel()

		var g errgroup.Group
		for _, agent := range n.agents {
			agent := agent
			g.Go(func() error {
				status := agent.Unregister(ctx)
				agent.Exit(ctx)
				if !status.OK() {
					return fmt.Errorf("agent %s: %w", agent.Address(), status.Err())
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			n.logger.Debug("Agent unregister failed", "address", n.address, "error", err)
		}

		if n.onExit != nil {
			n.onExit(n.address)
		}
	})
	return domain.Success()
}
