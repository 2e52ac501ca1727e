// Package snapshot periodically persists live sessions to best-effort sinks.
// Snapshots are write-only; nothing reads them back at startup.
package snapshot

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mcdev12/partygames/go/internal/models"
)

// Snapshot is the full serialized state of one session.
type Snapshot struct {
	SessionID string          `json:"sessionId"`
	Variant   models.Variant  `json:"variant"`
	Payload   json.RawMessage `json:"state"`
	TakenAt   time.Time       `json:"takenAt"`
}

// Sink stores snapshots somewhere durable.
type Sink interface {
	Name() string
	Save(ctx context.Context, s Snapshot) error
}

// Source yields the snapshots due in one pass.
type Source interface {
	Snapshots(ctx context.Context) ([]Snapshot, error)
}

// Pinger is implemented by sinks backed by a remote service.
type Pinger interface {
	Ping(ctx context.Context) error
}
