// Package alertengine evaluates incoming sensor readings against the alert
// rules and drives the alert lifecycle. It is invoked once per delivered
// reading by the ingestion boundary.
package alertengine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agrosolutions/alert-engine/internal/lifecycle"
	"github.com/agrosolutions/alert-engine/internal/metrics"
	"github.com/agrosolutions/alert-engine/internal/model/messages"
	"github.com/agrosolutions/alert-engine/internal/replication"
	"github.com/agrosolutions/alert-engine/internal/rules"
	"github.com/agrosolutions/alert-engine/internal/storage"
)

// Result reports what one evaluation changed.
type Result struct {
	Created  []uuid.UUID
	Resolved []uuid.UUID
}

// Engine is the core Evaluate operation. Every call re-reads store state;
// nothing about alerts or history is cached between calls because workers
// may run in multiple processes.
type Engine struct {
	readings  storage.ReadingStore
	evaluator *rules.Evaluator
	manager   *lifecycle.Manager
	sink      replication.Sink
	log       zerolog.Logger
}

func NewEngine(readings storage.ReadingStore, evaluator *rules.Evaluator, manager *lifecycle.Manager, sink replication.Sink, log zerolog.Logger) *Engine {
	if sink == nil {
		sink = replication.Noop{}
	}
	return &Engine{
		readings:  readings,
		evaluator: evaluator,
		manager:   manager,
		sink:      sink,
		log:       log,
	}
}

// Evaluate processes one delivered reading end to end: validate, append
// (idempotent by reading id), mirror, evaluate rules, apply verdicts.
//
// Safe under redelivery: a duplicate reading id appends nothing, and the
// lifecycle dedup check runs on every call, so re-evaluating cannot create
// a second alert of the same type.
func (e *Engine) Evaluate(ctx context.Context, msg messages.SensorDataReceived) (Result, error) {
	start := time.Now()
	defer func() { metrics.EvaluationDuration.Observe(time.Since(start).Seconds()) }()

	r := msg.Reading()
	if err := r.Validate(); err != nil {
		metrics.ReadingsProcessedTotal.WithLabelValues("rejected").Inc()
		return Result{}, fmt.Errorf("invalid reading %s: %w", r.ID, err)
	}

	e.log.Info().
		Str("plot_id", r.PlotID.String()).
		Str("moisture", r.SoilMoisture.StringFixed(1)).
		Str("temperature", r.Temperature.StringFixed(1)).
		Str("precipitation", r.Precipitation.StringFixed(1)).
		Msg("processing sensor data")

	inserted, err := e.readings.Append(ctx, r)
	if err != nil {
		metrics.ReadingsProcessedTotal.WithLabelValues("failed").Inc()
		return Result{}, fmt.Errorf("append reading %s: %w", r.ID, err)
	}
	if !inserted {
		metrics.ReadingsProcessedTotal.WithLabelValues("duplicate").Inc()
		e.log.Debug().Str("reading_id", r.ID.String()).Msg("duplicate reading, append skipped")
	} else if err := e.sink.MirrorReading(ctx, r); err != nil {
		metrics.ReplicationFailuresTotal.WithLabelValues("reading").Inc()
		e.log.Warn().Err(err).
			Str("plot_id", r.PlotID.String()).
			Msg("could not mirror reading, plot may not exist in secondary yet")
	}

	verdicts, err := e.evaluator.Evaluate(ctx, r)
	if err != nil {
		metrics.ReadingsProcessedTotal.WithLabelValues("failed").Inc()
		return Result{}, fmt.Errorf("evaluate rules for %s: %w", r.ID, err)
	}

	created, resolved, err := e.manager.Apply(ctx, r, verdicts)
	if err != nil {
		metrics.ReadingsProcessedTotal.WithLabelValues("failed").Inc()
		return Result{}, fmt.Errorf("apply verdicts for %s: %w", r.ID, err)
	}

	metrics.ReadingsProcessedTotal.WithLabelValues("accepted").Inc()
	return Result{Created: created, Resolved: resolved}, nil
}
