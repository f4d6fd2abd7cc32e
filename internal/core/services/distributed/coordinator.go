package distributed

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"gitlab.com/ms-serving.net/internal/core/ports/primary"
	"gitlab.com/ms-serving.net/internal/core/ports/secondary"
	"gitlab.com/ms-serving.net/internal/domain"
	"gitlab.com/ms-serving.net/internal/static/errs"
)

const defaultDeadline = time.Second

// Coordinator composes the agents of a distributed worker into one logical
// worker and tears them down together
type Coordinator struct {
	factory  secondary.AgentNotifierFactory
	deadline time.Duration
	logger   primary.Logger

	mu     sync.Mutex
	groups map[string]*Notifier
}

// NewCoordinator creates a coordinator; admin fan-outs are bounded by deadline
func NewCoordinator(factory secondary.AgentNotifierFactory, deadline time.Duration, logger primary.Logger) *Coordinator {
	if deadline <= 0 {
		deadline = defaultDeadline
	}
	return &Coordinator{
		factory:  factory,
		deadline: deadline,
		logger:   logger,
		groups:   make(map[string]*Notifier),
	}
}

// Register registers every agent with the logical worker at address. Either
// all agents end up registered or none: the first failing rank is reported
// and the other ranks are unregistered and closed.
func (c *Coordinator) Register(ctx context.Context, address string, servables []domain.WorkerSpec, agents []domain.WorkerAgentSpec) (*Notifier, domain.Status) {
	if address == "" {
		return nil, domain.NewStatus(domain.StatusInvalidInput, "distributed worker address is empty")
	}
	ordered, status := orderAgents(agents)
	if !status.OK() {
		return nil, status
	}

	c.mu.Lock()
	if _, exists := c.groups[address]; exists {
		c.mu.Unlock()
		return nil, domain.NewStatus(domain.StatusAlreadyExists, "distributed worker %s is already registered", address)
	}
	// reserve the address while the fan-out runs
	c.groups[address] = nil
	c.mu.Unlock()

	notifiers := make([]secondary.AgentNotifier, len(ordered))
	for i, spec := range ordered {
		notifiers[i] = c.factory(spec)
	}

	regCtx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()

	// the first failing rank cancels the ranks still in flight
	g, gctx := errgroup.WithContext(regCtx)
	for i := range notifiers {
		i := i
		g.Go(func() error {
			status := guard(notifiers[i].Address(), func() domain.Status {
				return notifiers[i].Register(gctx, address, ordered[i], servables)
			})
			if !status.OK() {
				return &rankError{rank: i, status: status}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		failure := asRankError(err)
		c.rollback(address, notifiers, failure.rank)
		for _, agent := range notifiers {
			_ = agent.Close()
		}
		c.mu.Lock()
		delete(c.groups, address)
		c.mu.Unlock()

		c.logger.Error("Distributed worker registration failed", "address", address, "rank", failure.rank, "status", failure.status.String())
		return nil, failure.status
	}

	n := &Notifier{
		address:  address,
		agents:   notifiers,
		deadline: c.deadline,
		logger:   c.logger,
		onExit:   c.forget,
	}
	c.mu.Lock()
	c.groups[address] = n
	c.mu.Unlock()

	c.logger.Info("Distributed worker registered", "address", address, "agents", len(notifiers))
	return n, domain.Success()
}

// Unregister tears down every agent of the logical worker at address
func (c *Coordinator) Unregister(ctx context.Context, address string) domain.Status {
	c.mu.Lock()
	n := c.groups[address]
	c.mu.Unlock()

	if n == nil {
		return domain.NewStatus(domain.StatusNotFound, "distributed worker %s is not registered", address)
	}
	return n.Exit(ctx)
}

// Registered reports whether a logical worker is registered at address
func (c *Coordinator) Registered(address string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.groups[address] != nil
}

func (c *Coordinator) forget(address string) {
	c.mu.Lock()
	delete(c.groups, address)
	c.mu.Unlock()
}

// rollback unregisters every rank but the one that failed. Ranks cancelled
// mid-flight may have registered, so they are unregistered too.
func (c *Coordinator) rollback(address string, notifiers []secondary.AgentNotifier, failed int) {
	ctx, cancel := context.WithTimeout(context.Background(), c.deadline)
	defer cancel()

	var g errgroup.Group
	for i := range notifiers {
		if i == failed {
			continue
		}
		agent := notifiers[i]
		g.Go(func() error {
			if status := agent.Unregister(ctx); !status.OK() {
				return fmt.Errorf("agent %s: %w", agent.Address(), status.Err())
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.logger.Warn("Failed to roll back agent registration", "worker", address, "error", err)
	}
}

// orderAgents sorts agents by rank and checks ranks are 0..n-1
func orderAgents(agents []domain.WorkerAgentSpec) ([]domain.WorkerAgentSpec, domain.Status) {
	if len(agents) == 0 {
		return nil, domain.NewStatus(domain.StatusInvalidInput, "distributed worker has no agent")
	}
	ordered := append([]domain.WorkerAgentSpec(nil), agents...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Rank < ordered[j].Rank })
	for i, agent := range ordered {
		if agent.Rank != uint32(i) {
			return nil, domain.NewStatus(domain.StatusInvalidInput, "%s, got rank %d at position %d", errs.ErrAgentRankLayout, agent.Rank, i)
		}
		if agent.Address == "" {
			return nil, domain.NewStatus(domain.StatusInvalidInput, "agent rank %d has no address", agent.Rank)
		}
	}
	return ordered, domain.Success()
}

// rankError carries the status of the rank that stopped a fan-out
type rankError struct {
	rank   int
	status domain.Status
}

func (e *rankError) Error() string {
	return fmt.Sprintf("rank %d: %s", e.rank, e.status.String())
}

func asRankError(err error) *rankError {
	if failure, ok := err.(*rankError); ok {
		return failure
	}
	return &rankError{rank: -1, status: domain.StatusFromError(err)}
}

// guard turns a panic in fn into an internal status
func guard(address string, fn func() domain.Status) (status domain.Status) {
	defer func() {
		if r := recover(); r != nil {
			status = domain.NewStatus(domain.StatusInternal, "agent %s panicked: %v", address, r)
		}
	}()
	return fn()
}
