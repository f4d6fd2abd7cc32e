package schedulerengine

import (
	"context"
	"sync"
	"time"

	"gitlab.com/ms-serving.net/internal/config"
	"gitlab.com/ms-serving.net/internal/core/ports/primary"
	"gitlab.com/ms-serving.net/internal/domain"
)

const pingWorkers = 8

// Sweeper evicts workers whose heartbeats went stale
type Sweeper interface {
	Sweep(now time.Time) []string
}

// Master is the part of the master façade the engine drives
type Master interface {
	RemoteWorkers() []string
	Pong(ctx context.Context, address string) domain.Status
}

// Pinger reaches a worker over its own connection
type Pinger interface {
	Ping(ctx context.Context, address string) error
	Forget(address string)
}

type SchedulerEngine struct {
	cfg     *config.MasterConfig
	master  Master
	sweeper Sweeper
	pinger  Pinger
	logger  primary.Logger
	now     func() time.Time

	wg sync.WaitGroup

	mu     sync.Mutex
	pinged map[string]struct{}
}

func NewSchedulerEngine(
	cfg *config.MasterConfig,
	master Master,
	sweeper Sweeper,
	pinger Pinger,
	logger primary.Logger,
) *SchedulerEngine {
	return &SchedulerEngine{
		cfg:     cfg,
		master:  master,
		sweeper: sweeper,
		pinger:  pinger,
		logger:  logger,
		now:     time.Now,
	}
}

// StartHeartbeatEngine runs the sweep and ping loops until ctx is done
func (s *SchedulerEngine) StartHeartbeatEngine(ctx context.Context) {
	s.wg.Add(2)

	sweepTicker := time.NewTicker(s.cfg.HeartbeatInterval)
	go func() {
		defer s.wg.Done()
		defer sweepTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-sweepTicker.C:
				s.SweepWorkers()
			}
		}
	}()

	pingTicker := time.NewTicker(s.cfg.HeartbeatInterval)
	go func() {
		defer s.wg.Done()
		defer pingTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-pingTicker.C:
				s.PingWorkers(ctx)
			}
		}
	}()
}

// Wait blocks until the loops started by StartHeartbeatEngine returned
func (s *SchedulerEngine) Wait() {
	s.wg.Wait()
}

func (s *SchedulerEngine) SweepWorkers() {
	for _, address := range s.sweeper.Sweep(s.now()) {
		s.pinger.Forget(address)
	}
}

// PingWorkers pings every remote worker through a small worker pool. An
// answered ping counts as a pong. Connections to workers that left since the
// previous round are dropped.
func (s *SchedulerEngine) PingWorkers(ctx context.Context) {
	addresses := s.master.RemoteWorkers()
	s.forgetDeparted(addresses)
	if len(addresses) == 0 {
		return
	}

	addressCh := make(chan string, len(addresses))
	for _, address := range addresses {
		addressCh <- address
	}
	close(addressCh)

	size := pingWorkers
	if len(addresses) < size {
		size = len(addresses)
	}

	var wg sync.WaitGroup
	wg.Add(size)
	for i := 0; i < size; i++ {
		go func() {
			defer wg.Done()
			for address := range addressCh {
				s.ping(ctx, address)
			}
		}()
	}
	wg.Wait()
}

func (s *SchedulerEngine) ping(ctx context.Context, address string) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RPCDeadline)
	defer cancel()

	if err := s.pinger.Ping(ctx, address); err != nil {
		s.logger.Debug("Ping worker failed", "address", address, "error", err)
		return
	}
	if status := s.master.Pong(ctx, address); !status.OK() {
		// evicted between listing and answering
		s.pinger.Forget(address)
	}
}

func (s *SchedulerEngine) forgetDeparted(addresses []string) {
	current := make(map[string]struct{}, len(addresses))
	for _, address := range addresses {
		current[address] = struct{}{}
	}

	s.mu.Lock()
	previous := s.pinged
	s.pinged = current
	s.mu.Unlock()

	for address := range previous {
		if _, ok := current[address]; !ok {
			s.pinger.Forget(address)
		}
	}
}
