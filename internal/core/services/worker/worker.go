package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"gitlab.com/ms-serving.net/internal/adapter/notify"
	"gitlab.com/ms-serving.net/internal/core/ports/primary"
	"gitlab.com/ms-serving.net/internal/domain"
	"gitlab.com/ms-serving.net/internal/static/errs"
	"gitlab.com/ms-serving.net/internal/tcp"
	"gitlab.com/ms-serving.net/internal/tcp/defs"
)

// Worker is the worker side of the master protocol: it serves predict
// requests on its own listener and reports its servables to the master
type Worker struct {
	Address       string
	MasterAddress string
	Logger        primary.Logger

	handler  notify.PredictHandler
	server   *tcp.Server
	deadline time.Duration

	mu         sync.Mutex
	master     *tcp.Client
	registered bool

	exitCh   chan struct{}
	exitOnce sync.Once
}

// NewWorker creates a worker listening on address. Use port 0 to let the
// system pick one; Address is updated by Start.
func NewWorker(address, masterAddress string, handler notify.PredictHandler, logger primary.Logger) *Worker {
	w := &Worker{
		Address:       address,
		MasterAddress: masterAddress,
		Logger:        logger,
		handler:       handler,
		deadline:      defs.DefaultRPCDeadline,
		exitCh:        make(chan struct{}),
	}
	w.server = tcp.NewServer(logger, tcp.WithAddress(address))
	w.server.Handle(defs.MsgPredict, primary.MessageHandlerFunc(w.handlePredict))
	w.server.Handle(defs.MsgExit, primary.MessageHandlerFunc(w.handleExit))
	w.server.Handle(defs.MsgPing, primary.MessageHandlerFunc(w.handlePing))
	return w
}

// Start begins serving requests from the master
func (w *Worker) Start() error {
	if err := w.server.Start(); err != nil {
		return err
	}
	w.Address = w.server.Addr()
	return nil
}

// Stop stops serving and closes the master connection
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if w.master != nil {
		_ = w.master.Close()
		w.master = nil
	}
	w.mu.Unlock()
	return w.server.Stop(ctx)
}

// Done is closed once the master asked the worker to exit
func (w *Worker) Done() <-chan struct{} {
	return w.exitCh
}

// Register registers every servable hosted by the worker with the master
func (w *Worker) Register(ctx context.Context, specs []domain.WorkerSpec) domain.Status {
	w.Logger.Info("Registering worker", "address", w.Address, "servables", len(specs))

	request := defs.RegisterRequest{Address: w.Address, WorkerSpecs: make([]domain.WorkerSpec, 0, len(specs))}
	for _, spec := range specs {
		request.WorkerSpecs = append(request.WorkerSpecs, w.own(spec))
	}

	var reply defs.RegisterReply
	status := w.call(ctx, defs.MsgRegister, request, &reply, func() []domain.ErrorMsg { return reply.ErrorMsg })
	if status.OK() {
		w.mu.Lock()
		w.registered = true
		w.mu.Unlock()
		w.Logger.Info("Worker registered successfully", "address", w.Address)
	}
	return status
}

// AddWorker adds one more servable to the master's pool
func (w *Worker) AddWorker(ctx context.Context, spec domain.WorkerSpec) domain.Status {
	var reply defs.AddWorkerReply
	request := defs.AddWorkerRequest{Address: w.Address, WorkerSpec: w.own(spec)}
	status := w.call(ctx, defs.MsgAddWorker, request, &reply, func() []domain.ErrorMsg { return reply.ErrorMsg })
	if status.OK() {
		w.mu.Lock()
		w.registered = true
		w.mu.Unlock()
	}
	return status
}

// RemoveWorker withdraws one servable from the master's pool
func (w *Worker) RemoveWorker(ctx context.Context, spec domain.WorkerSpec) domain.Status {
	var reply defs.RemoveWorkerReply
	request := defs.RemoveWorkerRequest{Address: w.Address, WorkerSpec: w.own(spec)}
	return w.call(ctx, defs.MsgRemoveWorker, request, &reply, func() []domain.ErrorMsg { return reply.ErrorMsg })
}

// Exit tells the master the worker is leaving
func (w *Worker) Exit(ctx context.Context) domain.Status {
	var reply defs.ExitReply
	status := w.call(ctx, defs.MsgExit, defs.ExitRequest{Address: w.Address}, &reply, func() []domain.ErrorMsg { return reply.ErrorMsg })
	w.mu.Lock()
	w.registered = false
	w.mu.Unlock()
	return status
}

// SendHeartbeats pings the master every interval until ctx is done or the
// master asks the worker to exit
func (w *Worker) SendHeartbeats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.exitCh:
			return
		case <-ticker.C:
			if err := w.sendHeartbeat(ctx); err != nil {
				w.Logger.Warn("Failed to send heartbeat", "master", w.MasterAddress, "error", err)
			}
		}
	}
}

func (w *Worker) sendHeartbeat(ctx context.Context) error {
	w.mu.Lock()
	registered := w.registered
	w.mu.Unlock()
	if !registered {
		return errs.ErrNotRegistered
	}

	var reply defs.PingReply
	return w.rpc(ctx, defs.MsgPing, defs.PingRequest{Address: w.Address}, &reply)
}

func (w *Worker) handlePredict(ctx context.Context, conn net.Conn, payload []byte) (interface{}, error) {
	var request domain.PredictRequest
	if err := json.Unmarshal(payload, &request); err != nil {
		return nil, fmt.Errorf("invalid predict request: %w", err)
	}

	reply := domain.PredictReply{ID: request.ID, Spec: request.Spec}
	reply.SetStatus(w.handler.Predict(ctx, &request, &reply))
	return reply, nil
}

func (w *Worker) handleExit(ctx context.Context, conn net.Conn, payload []byte) (interface{}, error) {
	w.Logger.Info("Master asked worker to exit", "address", w.Address)
	w.exitOnce.Do(func() { close(w.exitCh) })
	return defs.ExitReply{}, nil
}

// handlePing answers a master ping and reports back with a pong
func (w *Worker) handlePing(ctx context.Context, conn net.Conn, payload []byte) (interface{}, error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), w.deadline)
		defer cancel()
		var reply defs.PongReply
		if err := w.rpc(ctx, defs.MsgPong, defs.PongRequest{Address: w.Address}, &reply); err != nil {
			w.Logger.Debug("Failed to send pong", "master", w.MasterAddress, "error", err)
		}
	}()
	return defs.PingReply{}, nil
}

func (w *Worker) own(spec domain.WorkerSpec) domain.WorkerSpec {
	spec = spec.Clone()
	if spec.Address == "" {
		spec.Address = w.Address
	}
	return spec
}

// call runs an admin RPC and folds the in-band reply into a status
func (w *Worker) call(ctx context.Context, msgType byte, request, reply interface{}, errorMsg func() []domain.ErrorMsg) domain.Status {
	ctx, cancel := context.WithTimeout(ctx, w.deadline)
	defer cancel()

	if err := w.rpc(ctx, msgType, request, reply); err != nil {
		status := domain.StatusFromError(err)
		w.Logger.Error("Master call failed", "type", defs.MessageName(msgType), "status", status.String())
		return status
	}
	return defs.StatusFromErrorMsg(errorMsg())
}

func (w *Worker) rpc(ctx context.Context, msgType byte, request, reply interface{}) error {
	client, err := w.masterClient(ctx)
	if err != nil {
		return err
	}
	return client.Call(ctx, msgType, request, reply)
}

func (w *Worker) masterClient(ctx context.Context) (*tcp.Client, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.master != nil && !w.master.Closed() {
		return w.master, nil
	}
	client, err := tcp.Dial(ctx, w.MasterAddress, w.Logger)
	if err != nil {
		return nil, err
	}
	w.master = client
	return client, nil
}
