// Package replication mirrors primary-store writes into a secondary store
// consumed by the reporting surface. Mirror writes are best-effort: the
// secondary may legitimately lag or miss rows (a plot not created there
// yet), so failures surface as typed recoverable errors and must never
// affect the primary transaction's outcome.
package replication

import (
	"context"
	"fmt"

	"github.com/agrosolutions/alert-engine/internal/model"
)

// Sink receives mirror writes after the primary store has committed.
type Sink interface {
	MirrorReading(ctx context.Context, r model.Reading) error
	MirrorAlert(ctx context.Context, a model.Alert) error
	MirrorResolution(ctx context.Context, a model.Alert) error
}

// Error wraps a sink failure. Callers log it and move on; it is never a
// reason to fail the evaluation.
type Error struct {
	Op  string // reading | alert | resolution
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("replication %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Noop discards every mirror write. Default when no sink is configured.
type Noop struct{}

func (Noop) MirrorReading(context.Context, model.Reading) error  { return nil }
func (Noop) MirrorAlert(context.Context, model.Alert) error      { return nil }
func (Noop) MirrorResolution(context.Context, model.Alert) error { return nil }
