// Package storage defines the persistence contracts the engine runs
// against: an append-only reading store, an alert store that owns the
// at-most-one-unresolved invariant, and the outbox backing publish retry.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agrosolutions/alert-engine/internal/model"
	"github.com/agrosolutions/alert-engine/internal/model/messages"
)

var ErrNotFound = errors.New("storage: not found")

// ReadingStore persists sensor readings and answers the windowed counts the
// rule evaluator needs. Append is idempotent by reading id so redelivered
// events never duplicate rows.
type ReadingStore interface {
	// Append stores the reading. It returns false when a reading with the
	// same id already exists, in which case nothing is written.
	Append(ctx context.Context, r model.Reading) (bool, error)

	CountReadings(ctx context.Context, plotID uuid.UUID, since time.Time) (int, error)
	CountMoistureBelow(ctx context.Context, plotID uuid.UUID, since time.Time, threshold decimal.Decimal) (int, error)
	CountTemperatureAbove(ctx context.Context, plotID uuid.UUID, since time.Time, threshold decimal.Decimal) (int, error)

	// DeleteOlderThan removes readings observed before cutoff. The engine
	// never calls it; it exists for an external retention job.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// AlertStore persists alert lifecycle records.
//
// Create is the concurrency-critical operation: the store must guarantee
// that two concurrent creates for the same unresolved (plot, type) pair
// collapse to a single row, with the loser reported as created=false rather
// than an error. Existence checks alone are advisory under concurrency.
type AlertStore interface {
	// Create inserts the alert and, in the same transaction, enqueues its
	// AlertCreated event in the outbox. Returns false when an unresolved
	// alert of the same (plot, type) already exists.
	Create(ctx context.Context, a model.Alert) (bool, error)

	HasUnresolved(ctx context.Context, plotID uuid.UUID, t model.AlertType) (bool, error)

	// HasUnresolvedOrRecent additionally treats alerts created at or after
	// since as blocking, resolved or not. Used for the pest dedup window.
	HasUnresolvedOrRecent(ctx context.Context, plotID uuid.UUID, t model.AlertType, since time.Time) (bool, error)

	// ResolveAll marks every unresolved (plot, type) alert resolved in one
	// transaction and returns the alerts that were transitioned.
	ResolveAll(ctx context.Context, plotID uuid.UUID, t model.AlertType) ([]model.Alert, error)

	// UnresolvedByPlot lists open alerts for a plot, newest first.
	UnresolvedByPlot(ctx context.Context, plotID uuid.UUID) ([]model.Alert, error)
}

// PendingEvent is one outbox entry awaiting publication.
type PendingEvent struct {
	Seq   int64
	Event messages.AlertCreated
}

// OutboxStore drains alert-created events committed alongside their alerts.
type OutboxStore interface {
	NextPending(ctx context.Context, limit int) ([]PendingEvent, error)
	MarkPublished(ctx context.Context, seq int64) error
	PendingCount(ctx context.Context) (int, error)
}
