// Package storage defines the persistence boundary for quest progress state.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested progress record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a write lost a race with a concurrent writer and
	// is safe to retry verbatim.
	ErrConflict = errors.New("record conflict")
)

// ProgressRecord stores one quest instance for one relationship in one period.
//
// Identity is (RelationshipID, TemplateID, PeriodStart); PeriodEnd travels
// with the row because windows are computed, never stored elsewhere.
// StartedAt, CompletedAt, CompletedByActorID, and ExpiredAt are set at most
// once; CompletedAt and ExpiredAt are mutually exclusive terminal markers.
type ProgressRecord struct {
	RelationshipID     string
	TemplateID         string
	PeriodStart        time.Time
	PeriodEnd          time.Time
	ProgressCount      int
	TargetCount        int
	StartedAt          *time.Time
	CompletedAt        *time.Time
	CompletedByActorID string
	ExpiredAt          *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Open reports whether the record has reached neither terminal state.
func (r ProgressRecord) Open() bool {
	return r.CompletedAt == nil && r.ExpiredAt == nil
}

// ProgressMutation describes one unit-of-progress write.
type ProgressMutation struct {
	RelationshipID string
	TemplateID     string
	PeriodStart    time.Time
	PeriodEnd      time.Time
	Increment      int
	TargetCount    int
	OccurredAt     time.Time
	ActorID        string
}

// Application is the before/after image pair of one conditional write.
// Before is nil when the write created the row.
type Application struct {
	Before *ProgressRecord
	After  ProgressRecord
}

// Started reports whether this write set StartedAt.
func (a Application) Started() bool {
	return a.After.StartedAt != nil && (a.Before == nil || a.Before.StartedAt == nil)
}

// Completed reports whether this write set CompletedAt.
func (a Application) Completed() bool {
	return a.After.CompletedAt != nil && (a.Before == nil || a.Before.CompletedAt == nil)
}

// Store persists quest progress state.
//
// Every mutating operation is a single conditional write keyed only by the
// row's own stored state, so concurrent callers interleave safely without
// external locking.
type Store interface {
	// ApplyUnitOfProgress creates or advances the record for the mutation's
	// identity key. Expired records are returned unchanged. The progress
	// count accumulates clamped to the target; StartedAt, CompletedAt, and
	// CompletedByActorID follow their set-once rules.
	ApplyUnitOfProgress(ctx context.Context, mutation ProgressMutation) (Application, error)

	// EnsurePlaceholder inserts a zero-progress, never-started row if absent.
	// An existing row, including one created concurrently, is left untouched.
	EnsurePlaceholder(ctx context.Context, relationshipID, templateID string, periodStart, periodEnd time.Time, targetCount int, now time.Time) error

	// GetRecord loads one record by identity key.
	GetRecord(ctx context.Context, relationshipID, templateID string, periodStart time.Time) (ProgressRecord, error)

	// ListOpenRecords lists a relationship's records with neither terminal
	// marker set, oldest period first.
	ListOpenRecords(ctx context.Context, relationshipID string) ([]ProgressRecord, error)

	// SweepExpired marks the relationship's overdue open records expired.
	// Sweeping an already-terminal record is a no-op.
	SweepExpired(ctx context.Context, relationshipID string, asOf time.Time) error

	// SweepDueRecords expires overdue open records across all relationships,
	// at most limit rows per call, and reports how many rows it touched.
	SweepDueRecords(ctx context.Context, asOf time.Time, limit int) (int, error)
}

// CooldownStore persists notification send reservations so completion pushes
// stay deduplicated across restarts and instances.
type CooldownStore interface {
	// ReserveNotificationSend atomically claims the right to send one
	// notification for (factKey, recipientID). It returns false when a send
	// inside the cooldown window already claimed it.
	ReserveNotificationSend(ctx context.Context, factKey, recipientID string, now time.Time, cooldown time.Duration) (bool, error)
}
