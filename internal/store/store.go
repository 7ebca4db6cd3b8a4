// Package store defines the persistent-store contract for stream specs,
// per-stream VLM rules, and analysis events, plus a Postgres-backed
// implementation via pgx.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"camguard/internal/stream"
	"camguard/internal/vlm"
)

// Status is the lifecycle state of a persisted EventRecord.
type Status string

const (
	StatusUnresolved Status = "unresolved"
	StatusResolved   Status = "resolved"
	StatusDismissed  Status = "dismissed"
)

// EventRecord is one persisted analysis result.
type EventRecord struct {
	ID            uuid.UUID
	StreamID      uuid.UUID
	CapturedAt    time.Time
	CreatedAt     time.Time
	Description   string
	Events        []vlm.DetectedEvent
	RiskLevel     vlm.RiskLevel
	TriggeredRule *string
	Title         *string
	Frame         []byte
	Status        Status
}

// EventFilter narrows ListEvents.
type EventFilter struct {
	StreamID  *uuid.UUID
	RiskLevel *vlm.RiskLevel
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// BlueprintFilter narrows ListStreams to streams belonging to a blueprint.
// A nil filter lists every stream.
type BlueprintFilter struct {
	BlueprintID uuid.UUID
}

// Store is the external collaborator contract: the relational store behind
// streams, per-stream rules, and persisted analysis events. Implementations
// must be safe for concurrent use by the stream manager and every analysis
// worker.
type Store interface {
	ListStreams(ctx context.Context, blueprint *BlueprintFilter) ([]stream.Spec, error)
	SetStreamEnabled(ctx context.Context, id uuid.UUID, enabled bool) (stream.Spec, error)

	ListRules(ctx context.Context, streamID uuid.UUID) ([]vlm.Rule, error)

	InsertEvent(ctx context.Context, rec EventRecord) (EventRecord, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]EventRecord, error)
	UpdateEventStatus(ctx context.Context, id uuid.UUID, status Status) (EventRecord, error)

	// AlertToNumber returns the per-system default alert destination number,
	// if one has been configured; ok is false when none is set.
	AlertToNumber(ctx context.Context) (number string, ok bool, err error)
}
