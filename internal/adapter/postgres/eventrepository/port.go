// Package eventrepository journals worker lifecycle events in PostgreSQL
package eventrepository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"gitlab.com/ms-serving.net/internal/core/ports/primary"
	"gitlab.com/ms-serving.net/internal/core/ports/secondary"
	"gitlab.com/ms-serving.net/internal/domain"
	querybuilder "gitlab.com/ms-serving.net/internal/utils"
)

// Schema creates the journal table when missing
const Schema = `
CREATE TABLE IF NOT EXISTS worker_events (
	id          BIGSERIAL PRIMARY KEY,
	address     TEXT        NOT NULL,
	event_type  TEXT        NOT NULL,
	servable    TEXT        NOT NULL DEFAULT '',
	version     BIGINT      NOT NULL DEFAULT 0,
	detail      TEXT        NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS worker_events_address_idx ON worker_events (address, id DESC);
`

var _ secondary.WorkerEventRepository = &EventRepository{}

// EventRepository implements the WorkerEventRepository interface with PostgreSQL
type EventRepository struct {
	db     *sqlx.DB
	schema string
	logger primary.Logger
}

// NewEventRepository creates a new PostgreSQL event repository
func NewEventRepository(db *sqlx.DB, logger primary.Logger) *EventRepository {
	return &EventRepository{
		db:     db,
		schema: "public",
		logger: logger,
	}
}

// Migrate applies Schema
func (r *EventRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to migrate worker_events: %w", err)
	}
	return nil
}

// SaveEvent appends event and fills in its ID
func (r *EventRepository) SaveEvent(ctx context.Context, event *domain.WorkerEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	tbl := domain.GetWorkerEventTable()
	query, args := querybuilder.NewQueryBuilder(r.schema).
		Insert(tbl.Address, tbl.Type, tbl.Servable, tbl.Version, tbl.Detail, tbl.CreatedAt).
		Into(tbl.Name()).
		Values(event.Address, string(event.Type), event.Servable, int64(event.Version), event.Detail, event.CreatedAt).
		Returning(tbl.ID).
		Build()

	if err := r.db.QueryRowxContext(ctx, r.db.Rebind(query), args...).Scan(&event.ID); err != nil {
		r.logger.Error("Failed to save worker event", "address", event.Address, "type", event.Type, "error", err)
		return fmt.Errorf("failed to save worker event: %w", err)
	}
	return nil
}

// ListEvents returns the newest events of address first
func (r *EventRepository) ListEvents(ctx context.Context, address string, limit int) ([]*domain.WorkerEvent, error) {
	tbl := domain.GetWorkerEventTable()
	query, args := querybuilder.NewQueryBuilder(r.schema).
		Select(tbl.ID, tbl.Address, tbl.Type, tbl.Servable, tbl.Version, tbl.Detail, tbl.CreatedAt).
		From(tbl.Name()).
		Where(tbl.Address+" = ?", address).
		OrderBy(tbl.ID, false).
		Limit(limit).
		Build()

	events := make([]*domain.WorkerEvent, 0)
	if err := r.db.SelectContext(ctx, &events, r.db.Rebind(query), args...); err != nil {
		r.logger.Error("Failed to list worker events", "address", address, "error", err)
		return nil, fmt.Errorf("failed to list worker events: %w", err)
	}
	return events, nil
}
