package domain

import "time"

// WorkerKind tells how the master reaches a worker
type WorkerKind string

const (
	WorkerKindLocal       WorkerKind = "local"
	WorkerKindRemote      WorkerKind = "remote"
	WorkerKindDistributed WorkerKind = "distributed"
)

// WorkerRecord is the externally visible snapshot of a registered worker
type WorkerRecord struct {
	Address       string            `json:"address" db:"address"`
	Kind          WorkerKind        `json:"kind" db:"kind"`
	Servables     []WorkerSpec      `json:"servables"`
	Agents        []WorkerAgentSpec `json:"agents,omitempty"`
	RegisteredAt  time.Time         `json:"registered_at" db:"registered_at"`
	LastHeartbeat time.Time         `json:"last_heartbeat" db:"last_heartbeat"`
}

// WorkerEventType enumerates worker lifecycle transitions
type WorkerEventType string

const (
	WorkerEventRegistered WorkerEventType = "REGISTERED"
	WorkerEventAdded      WorkerEventType = "ADDED"
	WorkerEventRemoved    WorkerEventType = "REMOVED"
	WorkerEventExited     WorkerEventType = "EXITED"
	WorkerEventEvicted    WorkerEventType = "EVICTED"
	WorkerEventCleared    WorkerEventType = "CLEARED"
)

// WorkerEvent is one row of the worker lifecycle journal
type WorkerEvent struct {
	ID        int64           `json:"id" db:"id"`
	Address   string          `json:"address" db:"address"`
	Type      WorkerEventType `json:"type" db:"event_type"`
	Servable  string          `json:"servable,omitempty" db:"servable"`
	Version   uint64          `json:"version,omitempty" db:"version"`
	Detail    string          `json:"detail,omitempty" db:"detail"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

type WorkerEventTable struct {
	ID        string
	Address   string
	Type      string
	Servable  string
	Version   string
	Detail    string
	CreatedAt string
}

func (t WorkerEventTable) Name() string {
	return "worker_events"
}

func GetWorkerEventTable() WorkerEventTable {
	return WorkerEventTable{
		ID:        "id",
		Address:   "address",
		Type:      "event_type",
		Servable:  "servable",
		Version:   "version",
		Detail:    "detail",
		CreatedAt: "created_at",
	}
}
