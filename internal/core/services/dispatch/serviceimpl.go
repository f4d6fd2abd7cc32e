package dispatch

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"gitlab.com/ms-serving.net/internal/core/ports/primary"
	"gitlab.com/ms-serving.net/internal/core/ports/secondary"
	"gitlab.com/ms-serving.net/internal/domain"
)

var _ IDispatcher = &Dispatcher{}

const (
	defaultExitTimeout = time.Second
	maxTombstones      = 1024
)

type workerContext struct {
	spec     domain.WorkerSpec
	notifier secondary.Notifier
}

// Dispatcher maps servable names to the workers hosting them.
//
// The RWMutex only guards map mutation and lookup. Notifier calls (dispatch,
// exit) always run after the lock is released so a slow worker never stalls
// registry operations for other servables.
type Dispatcher struct {
	mu        sync.RWMutex
	servables map[string][]*workerContext
	owners    map[string]secondary.Notifier
	cursors   map[string]*atomic.Uint64
	// addresses torn down by Clear; a late unregister for them is not an
	// error until the address registers again. Bounded by maxTombstones,
	// oldest first.
	cleared      map[string]struct{}
	clearedOrder []string

	clearing atomic.Bool

	exitTimeout time.Duration
	logger      primary.Logger
}

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithExitTimeout bounds the Exit call made to removed workers
func WithExitTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.exitTimeout = timeout
	}
}

// NewDispatcher creates an empty registry
func NewDispatcher(logger primary.Logger, options ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		servables:   make(map[string][]*workerContext),
		owners:      make(map[string]secondary.Notifier),
		cursors:     make(map[string]*atomic.Uint64),
		cleared:     make(map[string]struct{}),
		exitTimeout: defaultExitTimeout,
		logger:      logger,
	}
	for _, option := range options {
		option(d)
	}
	return d
}

// Dispatch is DispatchAsync plus a wait for the callback
func (d *Dispatcher) Dispatch(ctx context.Context, request *domain.PredictRequest, reply *domain.PredictReply) domain.Status {
	done := make(chan domain.Status, 1)
	d.DispatchAsync(ctx, request, reply, func(status domain.Status) {
		done <- status
	})
	return <-done
}

// DispatchAsync selects a worker for the request and forwards it
func (d *Dispatcher) DispatchAsync(ctx context.Context, request *domain.PredictRequest, reply *domain.PredictReply, callback domain.DispatchCallback) {
	callback = onceCallback(callback)
	if request == nil || reply == nil {
		callback(domain.NewStatus(domain.StatusInvalidInput, "predict request or reply is nil"))
		return
	}
	reply.ID = request.ID
	reply.Spec = request.Spec

	notifier, status := d.getWorkSession(request.Spec)
	if !status.OK() {
		d.logger.Debug("Dispatch rejected", "servable", request.Spec.String(), "status", status.String())
		callback(status)
		return
	}

	notifier.DispatchAsync(ctx, request, reply, callback)
}

// RegisterServable registers every servable hosted at address.
// The call is all-or-nothing: a duplicate address rejects the whole set.
func (d *Dispatcher) RegisterServable(address string, specs []domain.WorkerSpec, factory secondary.NotifierFactory) domain.Status {
	if address == "" {
		return domain.NewStatus(domain.StatusInvalidInput, "worker address is empty")
	}
	if len(specs) == 0 {
		return domain.NewStatus(domain.StatusInvalidInput, "no servable to register, worker address: %s", address)
	}
	normalized := make([]domain.WorkerSpec, 0, len(specs))
	for _, spec := range specs {
		spec = spec.Clone()
		if spec.Address == "" {
			spec.Address = address
		}
		if status := validateSpec(spec); !status.OK() {
			return status
		}
		if spec.Address != address {
			return domain.NewStatus(domain.StatusInvalidInput,
				"servable %s address %s does not match worker address %s", spec.Name, spec.Address, address)
		}
		normalized = append(normalized, spec)
	}

	return d.insert(address, normalized, factory)
}

// AddServable adds a single worker to the pool of its servable
func (d *Dispatcher) AddServable(spec domain.WorkerSpec, factory secondary.NotifierFactory) domain.Status {
	spec = spec.Clone()
	if status := validateSpec(spec); !status.OK() {
		return status
	}
	return d.insert(spec.Address, []domain.WorkerSpec{spec}, factory)
}

func (d *Dispatcher) insert(address string, specs []domain.WorkerSpec, factory secondary.NotifierFactory) domain.Status {
	if factory == nil {
		return domain.NewStatus(domain.StatusInvalidInput, "notifier factory is nil")
	}
	notifier := factory(specs[0])
	if notifier == nil {
		return domain.NewStatus(domain.StatusInternal, "failed to create notifier for worker %s", address)
	}

	d.mu.Lock()
	if _, exists := d.owners[address]; exists {
		d.mu.Unlock()
		closeNotifier(notifier)
		return domain.NewStatus(domain.StatusAlreadyExists,
			"worker %s is already registered, unregister it first", address)
	}
	d.owners[address] = notifier
	d.reviveLocked(address)
	for _, spec := range specs {
		d.servables[spec.Name] = append(d.servables[spec.Name], &workerContext{spec: spec, notifier: notifier})
		if _, ok := d.cursors[spec.Name]; !ok {
			d.cursors[spec.Name] = new(atomic.Uint64)
		}
	}
	d.mu.Unlock()

	return domain.Success()
}

// UnregisterServable removes every servable hosted at address and exits its notifier
func (d *Dispatcher) UnregisterServable(address string) domain.Status {
	d.mu.Lock()
	notifier, exists := d.owners[address]
	if !exists {
		_, wasCleared := d.cleared[address]
		d.mu.Unlock()
		if wasCleared || d.clearing.Load() {
			return domain.Success()
		}
		return domain.NewStatus(domain.StatusNotFound, "worker %s is not registered", address)
	}
	delete(d.owners, address)
	for name, contexts := range d.servables {
		d.setContexts(name, filterContexts(contexts, func(c *workerContext) bool {
			return c.spec.Address != address
		}))
	}
	d.mu.Unlock()

	d.exitNotifier(address, notifier)
	return domain.Success()
}

// RemoveServable removes one worker from its servable pool. The worker's
// notifier is exited once nothing else is hosted at its address.
func (d *Dispatcher) RemoveServable(spec domain.WorkerSpec) domain.Status {
	d.mu.Lock()
	contexts := d.servables[spec.Name]
	remaining := filterContexts(contexts, func(c *workerContext) bool {
		return !(c.spec.Address == spec.Address && c.spec.VersionNumber == spec.VersionNumber)
	})
	if len(remaining) == len(contexts) {
		_, wasCleared := d.cleared[spec.Address]
		d.mu.Unlock()
		if wasCleared || d.clearing.Load() {
			return domain.Success()
		}
		return domain.NewStatus(domain.StatusNotFound, "servable %s is not registered at worker %s", spec.String(), spec.Address)
	}
	d.setContexts(spec.Name, remaining)

	var orphan secondary.Notifier
	if !d.hostsAnyLocked(spec.Address) {
		orphan = d.owners[spec.Address]
		delete(d.owners, spec.Address)
	}
	d.mu.Unlock()

	if orphan != nil {
		d.exitNotifier(spec.Address, orphan)
	}
	return domain.Success()
}

// Clear exits and removes every worker. Unregister calls racing with it
// (heartbeat eviction) report success for the addresses it removed.
func (d *Dispatcher) Clear() {
	d.clearing.Store(true)
	defer d.clearing.Store(false)

	d.mu.Lock()
	owners := d.owners
	for address := range owners {
		d.tombstoneLocked(address)
	}
	d.owners = make(map[string]secondary.Notifier)
	d.servables = make(map[string][]*workerContext)
	d.cursors = make(map[string]*atomic.Uint64)
	d.mu.Unlock()

	for address, notifier := range owners {
		d.exitNotifier(address, notifier)
	}
	d.logger.Info("Servable registry cleared", "workers", len(owners))
}

// Servables returns a copy of the registry contents
func (d *Dispatcher) Servables() map[string][]domain.WorkerSpec {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string][]domain.WorkerSpec, len(d.servables))
	for name, contexts := range d.servables {
		specs := make([]domain.WorkerSpec, 0, len(contexts))
		for _, c := range contexts {
			specs = append(specs, c.spec.Clone())
		}
		out[name] = specs
	}
	return out
}

// HasWorker reports whether address owns a registration
func (d *Dispatcher) HasWorker(address string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.owners[address]
	return ok
}

func (d *Dispatcher) setContexts(name string, contexts []*workerContext) {
	if len(contexts) == 0 {
		delete(d.servables, name)
		delete(d.cursors, name)
		return
	}
	d.servables[name] = contexts
}

func (d *Dispatcher) hostsAnyLocked(address string) bool {
	for _, contexts := range d.servables {
		for _, c := range contexts {
			if c.spec.Address == address {
				return true
			}
		}
	}
	return false
}

func (d *Dispatcher) exitNotifier(address string, notifier secondary.Notifier) {
	ctx, cancel := context.WithTimeout(context.Background(), d.exitTimeout)
	defer cancel()

	if status := notifier.Exit(ctx); !status.OK() {
		d.logger.Warn("Failed to notify worker exit", "address", address, "status", status.String())
	}
	closeNotifier(notifier)
}

func validateSpec(spec domain.WorkerSpec) domain.Status {
	if spec.Address == "" {
		return domain.NewStatus(domain.StatusInvalidInput, "worker address is empty")
	}
	if spec.Name == "" {
		return domain.NewStatus(domain.StatusInvalidInput, "servable name is empty, worker address: %s", spec.Address)
	}
	return domain.Success()
}

func filterContexts(contexts []*workerContext, keep func(*workerContext) bool) []*workerContext {
	out := make([]*workerContext, 0, len(contexts))
	for _, c := range contexts {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

func closeNotifier(notifier secondary.Notifier) {
	if closer, ok := notifier.(io.Closer); ok {
		_ = closer.Close()
	}
}

func onceCallback(callback domain.DispatchCallback) domain.DispatchCallback {
	var once sync.Once
	return func(status domain.Status) {
		once.Do(func() {
			if callback != nil {
				callback(status)
			}
		})
	}
}

func (d *Dispatcher) tombstoneLocked(address string) {
	if _, ok := d.cleared[address]; ok {
		return
	}
	d.cleared[address] = struct{}{}
	d.clearedOrder = append(d.clearedOrder, address)
	for len(d.clearedOrder) > maxTombstones {
		delete(d.cleared, d.clearedOrder[0])
		d.clearedOrder = d.clearedOrder[1:]
	}
}

func (d *Dispatcher) reviveLocked(address string) {
	if _, ok := d.cleared[address]; !ok {
		return
	}
	delete(d.cleared, address)
	for i, a := range d.clearedOrder {
		if a == address {
			d.clearedOrder = append(d.clearedOrder[:i], d.clearedOrder[i+1:]...)
			break
		}
	}
}
