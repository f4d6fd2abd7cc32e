package master

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gitlab.com/ms-serving.net/internal/adapter/logging"
	"gitlab.com/ms-serving.net/internal/adapter/memory"
	"gitlab.com/ms-serving.net/internal/adapter/notify"
	"gitlab.com/ms-serving.net/internal/core/ports/secondary"
	"gitlab.com/ms-serving.net/internal/core/services/dispatch"
	"gitlab.com/ms-serving.net/internal/core/services/distributed"
	"gitlab.com/ms-serving.net/internal/core/services/worker"
	"gitlab.com/ms-serving.net/internal/domain"
)

const (
	addrA = "10.0.0.1:7000"
	addrB = "10.0.0.2:7000"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

type stubWorker struct {
	address string
	panics  bool
	exits   atomic.Int32
}

func (w *stubWorker) DispatchAsync(ctx context.Context, request *domain.PredictRequest, reply *domain.PredictReply, callback domain.DispatchCallback) {
	if w.panics {
		panic("out of memory")
	}
	reply.Payload = []byte(w.address)
	callback(domain.Success())
}

func (w *stubWorker) Exit(ctx context.Context) domain.Status {
	w.exits.Add(1)
	return domain.Success()
}

type fixture struct {
	svc     *Service
	clock   *clock
	events  *memory.EventRepository
	workers *memory.WorkerRepository

	mu    sync.Mutex
	stubs map[string]*stubWorker
	agent func(spec domain.WorkerAgentSpec) secondary.AgentNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logging.NewNopLogger()
	f := &fixture{
		clock:   &clock{now: time.Unix(1700000000, 0)},
		events:  memory.NewEventRepository(100),
		workers: memory.NewWorkerRepository(),
		stubs:   make(map[string]*stubWorker),
	}
	factory := func(spec domain.WorkerSpec) secondary.Notifier {
		f.mu.Lock()
		defer f.mu.Unlock()
		w := &stubWorker{address: spec.Address, panics: spec.Name == "faulty"}
		f.stubs[spec.Address] = w
		return w
	}
	agents := func(spec domain.WorkerAgentSpec) secondary.AgentNotifier {
		return f.agent(spec)
	}
	f.svc = NewService(
		dispatch.NewDispatcher(logger),
		distributed.NewCoordinator(agents, time.Second, logger),
		worker.NewWorkerInventoryService(f.workers, f.events, logger),
		factory,
		logger,
		WithHeartbeatTimeout(5*time.Second),
		WithClock(f.clock.Now),
	)
	return f
}

func resnet(address string) domain.WorkerSpec {
	return domain.WorkerSpec{Address: address, Name: "resnet", VersionNumber: 1, Methods: []string{"predict"}}
}

func (f *fixture) predict(t *testing.T) (string, domain.Status) {
	t.Helper()
	reply := &domain.PredictReply{}
	request := domain.NewPredictRequest(domain.RequestSpec{Name: "resnet", VersionNumber: 1, MethodName: "predict"}, nil)
	status := f.svc.Predict(context.Background(), request, reply)
	return string(reply.Payload), status
}

func (f *fixture) sequence(t *testing.T, n int) []string {
	t.Helper()
	var out []string
	for i := 0; i < n; i++ {
		selected, status := f.predict(t)
		if !status.OK() {
			t.Fatalf("predict %d: %s", i, status)
		}
		out = append(out, selected)
	}
	return out
}

func sameSequence(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRoundRobinThenRemoveWorker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if status := f.svc.Register(ctx, addrA, []domain.WorkerSpec{resnet("")}); !status.OK() {
		t.Fatalf("register A: %s", status)
	}
	if status := f.svc.Register(ctx, addrB, []domain.WorkerSpec{resnet("")}); !status.OK() {
		t.Fatalf("register B: %s", status)
	}
	if got := f.sequence(t, 4); !sameSequence(got, []string{addrA, addrB, addrA, addrB}) {
		t.Fatalf("selection = %v", got)
	}

	if status := f.svc.RemoveWorker(ctx, addrB, resnet(addrB)); !status.OK() {
		t.Fatalf("remove B: %s", status)
	}
	if got := f.sequence(t, 2); !sameSequence(got, []string{addrA, addrA}) {
		t.Fatalf("selection after remove = %v", got)
	}
	if _, watched := f.svc.Watcher().Get(addrB); watched {
		t.Fatal("removed worker is still watched")
	}
	if got := f.svc.RemoteWorkers(); !sameSequence(got, []string{addrA}) {
		t.Fatalf("remote workers = %v", got)
	}
}

func TestRemoveWorkerFailureStillStopsWatching(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.svc.Watcher().StartWatch(addrB)
	status := f.svc.RemoveWorker(ctx, addrB, resnet(addrB))
	if status.Code != domain.StatusNotFound {
		t.Fatalf("status = %s, want NOT_FOUND", status)
	}
	if _, watched := f.svc.Watcher().Get(addrB); watched {
		t.Fatal("failed removal left a heartbeat record")
	}
}

func TestHeartbeatEviction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.svc.Register(ctx, addrA, []domain.WorkerSpec{resnet("")})
	f.svc.Register(ctx, addrB, []domain.WorkerSpec{resnet("")})

	f.clock.Advance(3 * time.Second)
	if status := f.svc.Ping(ctx, addrA); !status.OK() {
		t.Fatalf("ping A: %s", status)
	}
	now := f.clock.Advance(3 * time.Second)

	evicted := f.svc.Watcher().Sweep(now)
	if !sameSequence(evicted, []string{addrB}) {
		t.Fatalf("evicted = %v, want [%s]", evicted, addrB)
	}
	if got := f.sequence(t, 2); !sameSequence(got, []string{addrA, addrA}) {
		t.Fatalf("selection after eviction = %v", got)
	}
	if f.stubs[addrB].exits.Load() != 1 {
		t.Fatal("evicted worker notifier not exited")
	}

	events, _ := f.events.ListEvents(ctx, addrB, 1)
	if len(events) != 1 || events[0].Type != domain.WorkerEventEvicted {
		t.Fatalf("journal = %+v", events)
	}
	if w, _ := f.workers.GetWorker(ctx, addrB); w != nil {
		t.Fatal("evicted worker snapshot not removed")
	}

	now = f.clock.Advance(10 * time.Second)
	f.svc.Watcher().Sweep(now)
	if _, status := f.predict(t); status.Code != domain.StatusServableNotFound {
		t.Fatalf("status = %s, want SERVABLE_NOT_FOUND", status)
	}
}

func TestPongRefreshesLiveness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.Register(ctx, addrA, []domain.WorkerSpec{resnet("")})

	f.clock.Advance(4 * time.Second)
	f.svc.Pong(ctx, addrA)
	if evicted := f.svc.Watcher().Sweep(f.clock.Advance(4 * time.Second)); len(evicted) != 0 {
		t.Fatalf("evicted = %v after pong", evicted)
	}
	if status := f.svc.Ping(ctx, addrB); status.Code != domain.StatusNotFound {
		t.Fatalf("ping from unknown worker = %s", status)
	}
}

func TestExit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.Register(ctx, addrA, []domain.WorkerSpec{resnet("")})

	if status := f.svc.Exit(ctx, addrA); !status.OK() {
		t.Fatalf("exit: %s", status)
	}
	if _, watched := f.svc.Watcher().Get(addrA); watched {
		t.Fatal("exited worker still watched")
	}
	if status := f.svc.Exit(ctx, addrA); status.Code != domain.StatusNotFound {
		t.Fatalf("second exit = %s, want NOT_FOUND", status)
	}
	if status := f.svc.Exit(ctx, ""); status.Code != domain.StatusInvalidInput {
		t.Fatalf("exit without address = %s", status)
	}
}

func TestPredictAsyncCallbackExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.Register(ctx, addrA, []domain.WorkerSpec{{Name: "faulty", VersionNumber: 1, Methods: []string{"predict"}}})

	var calls atomic.Int32
	var got domain.Status
	reply := &domain.PredictReply{}
	request := domain.NewPredictRequest(domain.RequestSpec{Name: "faulty", MethodName: "predict"}, nil)
	f.svc.PredictAsync(ctx, request, reply, func(status domain.Status) {
		calls.Add(1)
		got = status
	})

	if calls.Load() != 1 {
		t.Fatalf("callback invoked %d times", calls.Load())
	}
	if got.Code != domain.StatusFailed {
		t.Fatalf("status = %s, want FAILED", got)
	}
	if len(reply.ErrorMsg) != 1 {
		t.Fatalf("reply error_msg = %+v", reply.ErrorMsg)
	}

	calls.Store(0)
	f.svc.PredictAsync(ctx, nil, reply, func(status domain.Status) {
		calls.Add(1)
		got = status
	})
	if calls.Load() != 1 || got.Code != domain.StatusInvalidInput {
		t.Fatalf("nil request: calls=%d status=%s", calls.Load(), got)
	}
}

func TestPredictReplyCarriesErrorOnlyOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.Register(ctx, addrA, []domain.WorkerSpec{resnet("")})

	reply := &domain.PredictReply{}
	request := domain.NewPredictRequest(domain.RequestSpec{Name: "resnet", VersionNumber: 2, MethodName: "predict"}, nil)
	if status := f.svc.Predict(ctx, request, reply); status.Code != domain.StatusVersionMismatch {
		t.Fatalf("status = %s, want VERSION_MISMATCH", status)
	}
	if len(reply.ErrorMsg) != 1 || reply.ErrorMsg[0].Code != domain.StatusVersionMismatch {
		t.Fatalf("error_msg = %+v", reply.ErrorMsg)
	}

	reply = &domain.PredictReply{}
	request = domain.NewPredictRequest(domain.RequestSpec{Name: "resnet", MethodName: "predict"}, nil)
	if status := f.svc.Predict(ctx, request, reply); !status.OK() || len(reply.ErrorMsg) != 0 {
		t.Fatalf("status = %s error_msg = %+v", status, reply.ErrorMsg)
	}
	if reply.ID != request.ID {
		t.Fatal("reply must carry the request ID")
	}
}

type failingAgent struct {
	spec         domain.WorkerAgentSpec
	fail         bool
	registered   atomic.Bool
	unregistered atomic.Int32
}

func (a *failingAgent) Address() string { return a.spec.Address }

func (a *failingAgent) Register(ctx context.Context, owner string, spec domain.WorkerAgentSpec, servables []domain.WorkerSpec) domain.Status {
	if a.fail {
		return domain.NewStatus(domain.StatusUnreachable, "agent down")
	}
	a.registered.Store(true)
	return domain.Success()
}

func (a *failingAgent) Unregister(ctx context.Context) domain.Status {
	a.unregistered.Add(1)
	a.registered.Store(false)
	return domain.Success()
}

func (a *failingAgent) Exit(ctx context.Context) domain.Status { return domain.Success() }

func (a *failingAgent) Close() error { return nil }

func (a *failingAgent) Predict(ctx context.Context, request *domain.PredictRequest, reply *domain.PredictReply) domain.Status {
	reply.Payload = []byte(a.spec.Address)
	return domain.Success()
}

func TestRegisterDistributedIsAtomic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var mu sync.Mutex
	created := map[uint32]*failingAgent{}
	f.agent = func(spec domain.WorkerAgentSpec) secondary.AgentNotifier {
		mu.Lock()
		defer mu.Unlock()
		a := &failingAgent{spec: spec, fail: spec.Rank == 2}
		created[spec.Rank] = a
		return a
	}
	agents := []domain.WorkerAgentSpec{{Rank: 0, Address: "agent0"}, {Rank: 1, Address: "agent1"}, {Rank: 2, Address: "agent2"}}
	bert := []domain.WorkerSpec{{Name: "bert", VersionNumber: 1, Methods: []string{"predict"}}}

	if status := f.svc.RegisterDistributed(ctx, addrA, bert, agents); status.OK() {
		t.Fatal("registration with a failing agent must fail")
	}
	for rank, a := range created {
		if a.registered.Load() {
			t.Fatalf("agent %d still registered", rank)
		}
	}
	if len(f.svc.Servables()) != 0 {
		t.Fatalf("registry = %v, want empty", f.svc.Servables())
	}

	f.agent = func(spec domain.WorkerAgentSpec) secondary.AgentNotifier {
		return &failingAgent{spec: spec}
	}
	if status := f.svc.RegisterDistributed(ctx, addrA, bert, agents); !status.OK() {
		t.Fatalf("register: %s", status)
	}
	reply := &domain.PredictReply{}
	request := domain.NewPredictRequest(domain.RequestSpec{Name: "bert", MethodName: "predict"}, nil)
	if status := f.svc.Predict(ctx, request, reply); !status.OK() || string(reply.Payload) != "agent0" {
		t.Fatalf("predict = %s payload %q", status, reply.Payload)
	}
	if status := f.svc.Exit(ctx, addrA); !status.OK() {
		t.Fatalf("exit: %s", status)
	}
}

func TestClearRacesWithEviction(t *testing.T) {
	for round := 0; round < 20; round++ {
		f := newFixture(t)
		ctx := context.Background()
		f.svc.Register(ctx, addrA, []domain.WorkerSpec{resnet("")})
		f.svc.Register(ctx, addrB, []domain.WorkerSpec{resnet("")})
		now := f.clock.Advance(time.Minute)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			f.svc.Clear(ctx)
		}()
		go func() {
			defer wg.Done()
			f.svc.Watcher().Sweep(now)
		}()
		wg.Wait()

		if len(f.svc.Servables()) != 0 {
			t.Fatalf("round %d: registry not empty", round)
		}
		for address, w := range f.stubs {
			if n := w.exits.Load(); n != 1 {
				t.Fatalf("round %d: worker %s exited %d times", round, address, n)
			}
		}
		f.svc.Clear(ctx)
	}
}

func TestLocalWorkers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	handler := notify.PredictHandlerFunc(func(ctx context.Context, request *domain.PredictRequest, reply *domain.PredictReply) domain.Status {
		reply.Payload = []byte("local")
		return domain.Success()
	})

	if status := f.svc.RegisterLocalWorker(ctx, []domain.WorkerSpec{resnet("local:0")}, handler); !status.OK() {
		t.Fatalf("register local: %s", status)
	}
	if status := f.svc.AddLocalWorker(ctx, resnet("local:1"), handler); !status.OK() {
		t.Fatalf("add local: %s", status)
	}
	if got := f.svc.Watcher().Watched(); len(got) != 0 {
		t.Fatalf("local workers must not be watched, got %v", got)
	}
	if len(f.svc.RemoteWorkers()) != 0 {
		t.Fatal("local workers are not pinged")
	}
	if payload, status := f.predict(t); !status.OK() || payload != "local" {
		t.Fatalf("predict = %s payload %q", status, payload)
	}

	if status := f.svc.RemoveLocalWorker(ctx, resnet("local:1")); !status.OK() {
		t.Fatalf("remove local: %s", status)
	}
	if status := f.svc.UnregisterLocalWorker(ctx, "local:0"); !status.OK() {
		t.Fatalf("unregister local: %s", status)
	}
	if _, status := f.predict(t); status.Code != domain.StatusServableNotFound {
		t.Fatalf("status = %s, want SERVABLE_NOT_FOUND", status)
	}
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		status domain.Status
		want   domain.StatusCode
	}{
		{"no address", f.svc.Register(ctx, "", []domain.WorkerSpec{resnet("")}), domain.StatusInvalidInput},
		{"no servable", f.svc.Register(ctx, addrA, nil), domain.StatusInvalidInput},
		{"add mismatched address", f.svc.AddWorker(ctx, addrA, resnet(addrB)), domain.StatusInvalidInput},
	}
	for _, tt := range tests {
		if tt.status.Code != tt.want {
			t.Errorf("%s: status = %s, want %s", tt.name, tt.status, tt.want)
		}
	}

	f.svc.Register(ctx, addrA, []domain.WorkerSpec{resnet("")})
	if status := f.svc.Register(ctx, addrA, []domain.WorkerSpec{resnet("")}); status.Code != domain.StatusAlreadyExists {
		t.Fatalf("duplicate register = %s", status)
	}
	records, _ := f.workers.GetAllWorkers(ctx)
	if len(records) != 1 || records[0].Address != addrA || records[0].Servables[0].Address != addrA {
		t.Fatalf("inventory = %+v", records)
	}
}
