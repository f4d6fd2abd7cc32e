package workerport

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"

	"gitlab.com/ms-serving.net/internal/adapter/logging"
	"gitlab.com/ms-serving.net/internal/domain"
)

// Runs against a live server: REDIS_TEST_ADDR=localhost:6379 go test ./...
func newRepository(t *testing.T) *WorkerRepository {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	t.Cleanup(func() { _ = client.Close() })

	repo := NewWorkerRepository(client, time.Minute, logging.NewNopLogger())
	if err := repo.Clear(context.Background()); err != nil {
		t.Fatalf("clear: %v", err)
	}
	return repo
}

func TestSaveAndIndexWorker(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()

	record := &domain.WorkerRecord{
		Address: "10.0.0.1:6000",
		Kind:    domain.WorkerKindRemote,
		Servables: []domain.WorkerSpec{
			{Name: "resnet", VersionNumber: 1, Methods: []string{"predict"}},
		},
		RegisteredAt: time.Now(),
	}
	if err := repo.SaveWorker(ctx, record); err != nil {
		t.Fatalf("save: %v", err)
	}

	byServable, err := repo.GetWorkersByServable(ctx, "resnet")
	if err != nil || len(byServable) != 1 || byServable[0].Address != record.Address {
		t.Fatalf("by servable = %v, %v", byServable, err)
	}

	// moving the worker to another servable drops the stale index entry
	record.Servables = []domain.WorkerSpec{{Name: "bert", VersionNumber: 1, Methods: []string{"predict"}}}
	if err := repo.SaveWorker(ctx, record); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got, _ := repo.GetWorkersByServable(ctx, "resnet"); len(got) != 0 {
		t.Fatalf("stale index entry: %v", got)
	}

	beat := time.Now().Add(time.Second).UTC().Truncate(time.Millisecond)
	if err := repo.UpdateWorkerHeartbeat(ctx, record.Address, beat); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	got, err := repo.GetWorker(ctx, record.Address)
	if err != nil || got == nil || !got.LastHeartbeat.Equal(beat) {
		t.Fatalf("get = %+v, %v", got, err)
	}

	if err := repo.RemoveWorker(ctx, record.Address); err != nil {
		t.Fatalf("remove: %v", err)
	}
	all, err := repo.GetAllWorkers(ctx)
	if err != nil || len(all) != 0 {
		t.Fatalf("all = %v, %v", all, err)
	}
}
