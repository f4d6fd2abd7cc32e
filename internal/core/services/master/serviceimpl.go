package master

import (
	"context"
	"sort"
	"sync"
	"time"

	"gitlab.com/ms-serving.net/internal/adapter/notify"
	"gitlab.com/ms-serving.net/internal/core/ports/primary"
	"gitlab.com/ms-serving.net/internal/core/ports/secondary"
	"gitlab.com/ms-serving.net/internal/core/services/dispatch"
	"gitlab.com/ms-serving.net/internal/core/services/distributed"
	"gitlab.com/ms-serving.net/internal/core/services/heartbeat"
	"gitlab.com/ms-serving.net/internal/core/services/worker"
	"gitlab.com/ms-serving.net/internal/domain"
)

var _ IMasterService = &Service{}

const (
	defaultHeartbeatTimeout = 5 * time.Second
	defaultStoreTimeout     = time.Second
)

// Service is the master façade
type Service struct {
	dispatcher  dispatch.IDispatcher
	watcher     *heartbeat.Watcher
	coordinator *distributed.Coordinator
	inventory   worker.IWorkerInventoryService
	notifiers   secondary.NotifierFactory
	logger      primary.Logger

	heartbeatTimeout time.Duration
	storeTimeout     time.Duration
	watcherOptions   []heartbeat.WatcherOption

	mu    sync.Mutex
	kinds map[string]domain.WorkerKind
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithHeartbeatTimeout sets how long a worker may stay silent before eviction
func WithHeartbeatTimeout(timeout time.Duration) ServiceOption {
	return func(s *Service) {
		s.heartbeatTimeout = timeout
	}
}

// WithStoreTimeout bounds every inventory call
func WithStoreTimeout(timeout time.Duration) ServiceOption {
	return func(s *Service) {
		s.storeTimeout = timeout
	}
}

// WithClock replaces the watcher clock
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.watcherOptions = append(s.watcherOptions, heartbeat.WithClock(now))
	}
}

// NewService wires the façade. notifiers builds the notifier of every
// remote worker; the heartbeat watcher is owned by the service.
func NewService(
	dispatcher dispatch.IDispatcher,
	coordinator *distributed.Coordinator,
	inventory worker.IWorkerInventoryService,
	notifiers secondary.NotifierFactory,
	logger primary.Logger,
	options ...ServiceOption,
) *Service {
	s := &Service{
		dispatcher:       dispatcher,
		coordinator:      coordinator,
		inventory:        inventory,
		notifiers:        notifiers,
		logger:           logger,
		heartbeatTimeout: defaultHeartbeatTimeout,
		storeTimeout:     defaultStoreTimeout,
		kinds:            make(map[string]domain.WorkerKind),
	}
	for _, option := range options {
		option(s)
	}
	s.watcher = heartbeat.NewWatcher(s.heartbeatTimeout, s.evict, logger, s.watcherOptions...)
	return s
}

// Watcher exposes the heartbeat watcher to the background sweep
func (s *Service) Watcher() *heartbeat.Watcher {
	return s.watcher
}

func (s *Service) Register(ctx context.Context, address string, specs []domain.WorkerSpec) domain.Status {
	if address == "" {
		return domain.NewStatus(domain.StatusInvalidInput, "register request has no worker address")
	}
	specs = withAddress(address, specs)
	s.logger.Info("Begin to register worker", "detail", domain.FormatWorkerSpecs(address, specs))

	status := s.dispatcher.RegisterServable(address, specs, s.notifiers)
	if !status.OK() {
		s.logger.Error("Register worker failed", "address", address, "status", status.String())
		return status
	}

	s.track(address, domain.WorkerKindRemote)
	s.watcher.StartWatch(address)
	s.store(func(ctx context.Context) error {
		return s.inventory.RegisterWorker(ctx, &domain.WorkerRecord{Address: address, Kind: domain.WorkerKindRemote, Servables: specs})
	})

	s.logger.Info("Register worker success", "address", address)
	return status
}

func (s *Service) RegisterDistributed(ctx context.Context, address string, specs []domain.WorkerSpec, agents []domain.WorkerAgentSpec) domain.Status {
	if address == "" {
		return domain.NewStatus(domain.StatusInvalidInput, "register request has no worker address")
	}
	specs = withAddress(address, specs)
	if s.dispatcher.HasWorker(address) {
		return domain.NewStatus(domain.StatusAlreadyExists, "worker %s is already registered, unregister it first", address)
	}
	s.logger.Info("Begin to register distributed worker", "detail", domain.FormatWorkerSpecs(address, specs), "agents", len(agents))

	group, status := s.coordinator.Register(ctx, address, specs, agents)
	if !status.OK() {
		return status
	}

	status = s.dispatcher.RegisterServable(address, specs, func(domain.WorkerSpec) secondary.Notifier { return group })
	if !status.OK() {
		s.logger.Error("Register distributed worker failed", "address", address, "status", status.String())
		s.coordinator.Unregister(ctx, address)
		return status
	}

	s.track(address, domain.WorkerKindDistributed)
	s.watcher.StartWatch(address)
	s.store(func(ctx context.Context) error {
		return s.inventory.RegisterWorker(ctx, &domain.WorkerRecord{
			Address:   address,
			Kind:      domain.WorkerKindDistributed,
			Servables: specs,
			Agents:    agents,
		})
	})
	return status
}

func (s *Service) AddWorker(ctx context.Context, address string, spec domain.WorkerSpec) domain.Status {
	spec, status := ownedSpec(address, spec)
	if !status.OK() {
		return status
	}

	status = s.dispatcher.AddServable(spec, s.notifiers)
	if !status.OK() {
		s.logger.Error("Add worker failed", "address", address, "servable", spec.String(), "status", status.String())
		return status
	}

	s.track(address, domain.WorkerKindRemote)
	s.watcher.StartWatch(address)
	s.store(func(ctx context.Context) error { return s.inventory.AddServable(ctx, spec) })

	s.logger.Info("Add worker success", "address", address, "servable", spec.String())
	return status
}

func (s *Service) RemoveWorker(ctx context.Context, address string, spec domain.WorkerSpec) domain.Status {
	spec, status := ownedSpec(address, spec)
	if !status.OK() {
		return status
	}

	// a failed removal must not leave a stale heartbeat record behind
	s.watcher.StopWatch(address)

	status = s.dispatcher.RemoveServable(spec)
	if s.dispatcher.HasWorker(address) {
		s.watcher.StartWatch(address)
	} else {
		s.untrack(address)
	}
	if !status.OK() {
		s.logger.Error("Remove worker failed", "address", address, "servable", spec.String(), "status", status.String())
		return status
	}

	s.store(func(ctx context.Context) error { return s.inventory.RemoveServable(ctx, spec) })
	s.logger.Info("Remove worker success", "address", address, "servable", spec.String())
	return status
}

func (s *Service) Exit(ctx context.Context, address string) domain.Status {
	if address == "" {
		return domain.NewStatus(domain.StatusInvalidInput, "exit request has no worker address")
	}
	s.logger.Info("Worker exit", "address", address)

	s.watcher.StopWatch(address)
	status := s.dispatcher.UnregisterServable(address)
	s.untrack(address)
	if !status.OK() {
		s.logger.Error("Unregister worker failed", "address", address, "status", status.String())
		return status
	}

	s.store(func(ctx context.Context) error {
		return s.inventory.RemoveWorker(ctx, address, domain.WorkerEventExited)
	})
	return status
}

func (s *Service) Ping(ctx context.Context, address string) domain.Status {
	return s.heartbeat(address, s.watcher.RecvPing)
}

func (s *Service) Pong(ctx context.Context, address string) domain.Status {
	return s.heartbeat(address, s.watcher.RecvPong)
}

func (s *Service) heartbeat(address string, recv func(string) bool) domain.Status {
	if !recv(address) {
		s.logger.Debug("Heartbeat from unwatched worker", "address", address)
		return domain.NewStatus(domain.StatusNotFound, "worker %s is not watched", address)
	}
	s.store(func(ctx context.Context) error { return s.inventory.Heartbeat(ctx, address) })
	return domain.Success()
}

// Predict is PredictAsync plus a wait
func (s *Service) Predict(ctx context.Context, request *domain.PredictRequest, reply *domain.PredictReply) domain.Status {
	done := make(chan domain.Status, 1)
	s.PredictAsync(ctx, request, reply, func(status domain.Status) {
		done <- status
	})
	return <-done
}

// PredictAsync is the fault boundary of the dispatch path: a panic raised
// while dispatching is turned into a FAILED status delivered through the
// same callback, and the callback never runs twice.
func (s *Service) PredictAsync(ctx context.Context, request *domain.PredictRequest, reply *domain.PredictReply, callback domain.DispatchCallback) {
	var once sync.Once
	deliver := func(status domain.Status) {
		once.Do(func() {
			if reply != nil {
				reply.SetStatus(status)
			}
			if !status.OK() {
				s.logger.Debug("Predict failed", "status", status.String())
			}
			if callback != nil {
				callback(status)
			}
		})
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Predict panicked", "panic", r)
			deliver(domain.NewStatus(domain.StatusFailed, "Predict failed: %v", r))
		}
	}()

	if request == nil || reply == nil {
		deliver(domain.NewStatus(domain.StatusInvalidInput, "predict request or reply is nil"))
		return
	}
	s.dispatcher.DispatchAsync(ctx, request, reply, deliver)
}

func (s *Service) RegisterLocalWorker(ctx context.Context, specs []domain.WorkerSpec, handler notify.PredictHandler) domain.Status {
	if len(specs) == 0 {
		return domain.NewStatus(domain.StatusInvalidInput, "no servable to register")
	}
	address := specs[0].Address
	specs = withAddress(address, specs)

	status := s.dispatcher.RegisterServable(address, specs, notify.LocalFactory(handler))
	if !status.OK() {
		s.logger.Error("Register local worker failed", "address", address, "status", status.String())
		return status
	}

	s.track(address, domain.WorkerKindLocal)
	s.store(func(ctx context.Context) error {
		return s.inventory.RegisterWorker(ctx, &domain.WorkerRecord{Address: address, Kind: domain.WorkerKindLocal, Servables: specs})
	})
	return status
}

func (s *Service) AddLocalWorker(ctx context.Context, spec domain.WorkerSpec, handler notify.PredictHandler) domain.Status {
	status := s.dispatcher.AddServable(spec, notify.LocalFactory(handler))
	if !status.OK() {
		s.logger.Error("Add local worker failed", "address", spec.Address, "status", status.String())
		return status
	}

	s.track(spec.Address, domain.WorkerKindLocal)
	s.store(func(ctx context.Context) error { return s.inventory.AddServable(ctx, spec) })
	return status
}

func (s *Service) UnregisterLocalWorker(ctx context.Context, address string) domain.Status {
	status := s.dispatcher.UnregisterServable(address)
	s.untrack(address)
	if status.OK() {
		s.store(func(ctx context.Context) error {
			return s.inventory.RemoveWorker(ctx, address, domain.WorkerEventRemoved)
		})
	}
	return status
}

func (s *Service) RemoveLocalWorker(ctx context.Context, spec domain.WorkerSpec) domain.Status {
	status := s.dispatcher.RemoveServable(spec)
	if !s.dispatcher.HasWorker(spec.Address) {
		s.untrack(spec.Address)
	}
	if status.OK() {
		s.store(func(ctx context.Context) error { return s.inventory.RemoveServable(ctx, spec) })
	}
	return status
}

// Clear removes every worker and stops watching all of them
func (s *Service) Clear(ctx context.Context) {
	s.dispatcher.Clear()
	for _, address := range s.watcher.Watched() {
		s.watcher.StopWatch(address)
	}

	s.mu.Lock()
	s.kinds = make(map[string]domain.WorkerKind)
	s.mu.Unlock()

	s.store(func(ctx context.Context) error { return s.inventory.Clear(ctx) })
}

func (s *Service) Servables() map[string][]domain.WorkerSpec {
	return s.dispatcher.Servables()
}

func (s *Service) RemoteWorkers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for address, kind := range s.kinds {
		if kind == domain.WorkerKindRemote {
			out = append(out, address)
		}
	}
	sort.Strings(out)
	return out
}

// evict runs when the watcher gives up on a worker
func (s *Service) evict(address string) {
	status := s.dispatcher.UnregisterServable(address)
	s.untrack(address)
	if !status.OK() {
		s.logger.Debug("Evicted worker was already gone", "address", address, "status", status.String())
		return
	}
	s.logger.Warn("Worker evicted", "address", address)
	s.store(func(ctx context.Context) error {
		return s.inventory.RemoveWorker(ctx, address, domain.WorkerEventEvicted)
	})
}

func (s *Service) track(address string, kind domain.WorkerKind) {
	s.mu.Lock()
	s.kinds[address] = kind
	s.mu.Unlock()
}

func (s *Service) untrack(address string) {
	s.mu.Lock()
	delete(s.kinds, address)
	s.mu.Unlock()
}

// store runs an inventory update; failures are logged by the inventory and
// never reach the caller
func (s *Service) store(update func(ctx context.Context) error) {
	if s.inventory == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.storeTimeout)
	defer cancel()
	_ = update(ctx)
}

func withAddress(address string, specs []domain.WorkerSpec) []domain.WorkerSpec {
	out := make([]domain.WorkerSpec, 0, len(specs))
	for _, spec := range specs {
		spec = spec.Clone()
		if spec.Address == "" {
			spec.Address = address
		}
		out = append(out, spec)
	}
	return out
}

func ownedSpec(address string, spec domain.WorkerSpec) (domain.WorkerSpec, domain.Status) {
	if address == "" {
		return spec, domain.NewStatus(domain.StatusInvalidInput, "request has no worker address")
	}
	spec = spec.Clone()
	if spec.Address == "" {
		spec.Address = address
	}
	if spec.Address != address {
		return spec, domain.NewStatus(domain.StatusInvalidInput,
			"servable %s address %s does not match worker address %s", spec.Name, spec.Address, address)
	}
	return spec, domain.Success()
}
