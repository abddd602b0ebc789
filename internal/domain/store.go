package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// RunStore persists finished backtests and their step sequences.
type RunStore interface {
	Save(ctx context.Context, run Run, snapshots []Snapshot) error
	Get(ctx context.Context, id string) (Run, error)
	List(ctx context.Context, opts ListOpts) ([]Run, error)
	Snapshots(ctx context.Context, id string) ([]Snapshot, error)
}

// AuditEntry is a single row in the append-only audit log.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
