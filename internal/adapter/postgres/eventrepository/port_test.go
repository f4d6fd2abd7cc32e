package eventrepository

import (
	"context"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"gitlab.com/ms-serving.net/internal/adapter/logging"
	"gitlab.com/ms-serving.net/internal/domain"
)

// Runs against a live database: POSTGRES_TEST_URL=postgres://... go test ./...
func newRepository(t *testing.T) *EventRepository {
	t.Helper()
	url := os.Getenv("POSTGRES_TEST_URL")
	if url == "" {
		t.Skip("POSTGRES_TEST_URL not set")
	}
	db, err := sqlx.Connect("postgres", url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := NewEventRepository(db, logging.NewNopLogger())
	if err := repo.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo
}

func TestJournalNewestFirst(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()
	address := "journal-test:" + t.Name()

	if _, err := repo.db.ExecContext(ctx, repo.db.Rebind("DELETE FROM worker_events WHERE address = ?"), address); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	types := []domain.WorkerEventType{domain.WorkerEventRegistered, domain.WorkerEventAdded, domain.WorkerEventEvicted}
	for _, typ := range types {
		event := &domain.WorkerEvent{Address: address, Type: typ, Servable: "resnet", Version: 2}
		if err := repo.SaveEvent(ctx, event); err != nil {
			t.Fatalf("save: %v", err)
		}
		if event.ID == 0 {
			t.Fatalf("event ID not assigned")
		}
	}

	events, err := repo.ListEvents(ctx, address, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 2 || events[0].Type != domain.WorkerEventEvicted || events[1].Type != domain.WorkerEventAdded {
		t.Fatalf("events = %+v", events)
	}
	if events[0].Version != 2 || events[0].Servable != "resnet" {
		t.Fatalf("event fields lost: %+v", events[0])
	}
}
