package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"gitlab.com/ms-serving.net/internal/adapter/logging"
	"gitlab.com/ms-serving.net/internal/adapter/memory"
	"gitlab.com/ms-serving.net/internal/adapter/notify"
	"gitlab.com/ms-serving.net/internal/core/services/dispatch"
	"gitlab.com/ms-serving.net/internal/core/services/distributed"
	"gitlab.com/ms-serving.net/internal/core/services/master"
	"gitlab.com/ms-serving.net/internal/core/services/worker"
	"gitlab.com/ms-serving.net/internal/domain"
	"gitlab.com/ms-serving.net/internal/tcp"
	"gitlab.com/ms-serving.net/internal/tcp/defs"
)

type env struct {
	svc    *master.Service
	server *tcp.Server
	client *tcp.Client
}

func startMaster(t *testing.T) *env {
	t.Helper()
	logger := logging.NewNopLogger()
	svc := master.NewService(
		dispatch.NewDispatcher(logger),
		distributed.NewCoordinator(notify.AgentFactory(time.Second, logger), time.Second, logger),
		worker.NewWorkerInventoryService(memory.NewWorkerRepository(), memory.NewEventRepository(100), logger),
		notify.RemoteFactory(logger),
		logger,
	)

	server := tcp.NewServer(logger, tcp.WithAddress("127.0.0.1:0"))
	Setup(server, svc, logger)
	if err := server.Start(); err != nil {
		t.Fatalf("start master: %v", err)
	}

	client, err := tcp.Dial(context.Background(), server.Addr(), logger)
	if err != nil {
		t.Fatalf("dial master: %v", err)
	}

	t.Cleanup(func() {
		_ = client.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		svc.Clear(ctx)
		_ = server.Stop(ctx)
	})
	return &env{svc: svc, server: server, client: client}
}

func startWorker(t *testing.T, e *env) *worker.Worker {
	t.Helper()
	handler := notify.PredictHandlerFunc(func(ctx context.Context, request *domain.PredictRequest, reply *domain.PredictReply) domain.Status {
		reply.Payload = append([]byte("echo:"), request.Payload...)
		return domain.Success()
	})
	w := worker.NewWorker("127.0.0.1:0", e.server.Addr(), handler, logging.NewNopLogger())
	if err := w.Start(); err != nil {
		t.Fatalf("start worker: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = w.Stop(ctx)
	})
	return w
}

var echoSpec = domain.WorkerSpec{Name: "echo", VersionNumber: 1, Methods: []string{"predict"}}

func TestWorkerRoundTrip(t *testing.T) {
	e := startMaster(t)
	w := startWorker(t, e)
	ctx := context.Background()

	if status := w.Register(ctx, []domain.WorkerSpec{echoSpec}); !status.OK() {
		t.Fatalf("register: %s", status)
	}
	if _, watched := e.svc.Watcher().Get(w.Address); !watched {
		t.Fatal("registered worker is not watched")
	}

	var reply domain.PredictReply
	request := domain.NewPredictRequest(domain.RequestSpec{Name: "echo", MethodName: "predict"}, []byte("x"))
	if err := e.client.Call(ctx, defs.MsgPredict, request, &reply); err != nil {
		t.Fatalf("predict transport error: %v", err)
	}
	if string(reply.Payload) != "echo:x" || len(reply.ErrorMsg) != 0 {
		t.Fatalf("reply = %+v", reply)
	}
	if reply.ID != request.ID {
		t.Fatal("reply ID does not match request")
	}

	if status := w.Register(ctx, []domain.WorkerSpec{echoSpec}); status.Code != domain.StatusAlreadyExists {
		t.Fatalf("duplicate register = %s, want ALREADY_EXISTS in-band", status)
	}
}

func TestFailuresTravelInBand(t *testing.T) {
	e := startMaster(t)
	ctx := context.Background()

	var reply domain.PredictReply
	request := domain.NewPredictRequest(domain.RequestSpec{Name: "missing", MethodName: "predict"}, nil)
	if err := e.client.Call(ctx, defs.MsgPredict, request, &reply); err != nil {
		t.Fatalf("transport error: %v", err)
	}
	if len(reply.ErrorMsg) != 1 || reply.ErrorMsg[0].Code != domain.StatusServableNotFound {
		t.Fatalf("error_msg = %+v", reply.ErrorMsg)
	}

	var removeReply defs.RemoveWorkerReply
	err := e.client.Call(ctx, defs.MsgRemoveWorker, defs.RemoveWorkerRequest{Address: "10.0.0.1:7000", WorkerSpec: echoSpec}, &removeReply)
	if err != nil {
		t.Fatalf("transport error: %v", err)
	}
	if got := defs.StatusFromErrorMsg(removeReply.ErrorMsg); got.Code != domain.StatusNotFound {
		t.Fatalf("remove = %s, want NOT_FOUND", got)
	}
}

func TestNullRequestIsRejected(t *testing.T) {
	e := startMaster(t)

	err := e.client.Call(context.Background(), defs.MsgRegister, nil, &defs.RegisterReply{})
	var remote *tcp.RemoteError
	if !errors.As(err, &remote) || remote.Code != defs.ErrCodeInvalidRequest {
		t.Fatalf("err = %v, want invalid request", err)
	}
}

func TestWorkerExit(t *testing.T) {
	e := startMaster(t)
	w := startWorker(t, e)
	ctx := context.Background()

	if status := w.Register(ctx, []domain.WorkerSpec{echoSpec}); !status.OK() {
		t.Fatalf("register: %s", status)
	}
	if status := w.Exit(ctx); !status.OK() {
		t.Fatalf("exit: %s", status)
	}
	if len(e.svc.Servables()) != 0 {
		t.Fatalf("registry = %v after exit", e.svc.Servables())
	}
	if _, watched := e.svc.Watcher().Get(w.Address); watched {
		t.Fatal("exited worker still watched")
	}

	// the master notifies the removed worker
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker never received exit")
	}
}

func TestWorkerHeartbeats(t *testing.T) {
	e := startMaster(t)
	w := startWorker(t, e)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if status := w.Register(ctx, []domain.WorkerSpec{echoSpec}); !status.OK() {
		t.Fatalf("register: %s", status)
	}
	before, _ := e.svc.Watcher().Get(w.Address)
	go w.SendHeartbeats(ctx, 10*time.Millisecond)

	deadline := time.After(2 * time.Second)
	for {
		record, ok := e.svc.Watcher().Get(w.Address)
		if !ok {
			t.Fatal("worker no longer watched")
		}
		if record.LastPing.After(before.LastPing) {
			return
		}
		select {
		case <-deadline:
			t.Fatal("heartbeat never refreshed the record")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
