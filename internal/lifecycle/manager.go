// Package lifecycle turns rule verdicts into alert store mutations while
// holding the at-most-one-unresolved-alert-per-(plot,type) invariant.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agrosolutions/alert-engine/internal/metrics"
	"github.com/agrosolutions/alert-engine/internal/model"
	"github.com/agrosolutions/alert-engine/internal/replication"
	"github.com/agrosolutions/alert-engine/internal/rules"
	"github.com/agrosolutions/alert-engine/internal/storage"
)

// Manager applies evaluator verdicts to the alert store and mirrors the
// outcome to the replication sink. Primary-store failures abort the
// operation; sink failures are logged and swallowed.
type Manager struct {
	alerts     storage.AlertStore
	sink       replication.Sink
	log        zerolog.Logger
	now        func() time.Time
	pestWindow time.Duration
}

// NewManager builds a lifecycle manager. A nil sink disables mirroring and
// a nil clock falls back to wall time.
func NewManager(alerts storage.AlertStore, sink replication.Sink, pestWindow time.Duration, log zerolog.Logger, now func() time.Time) *Manager {
	if sink == nil {
		sink = replication.Noop{}
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{
		alerts:     alerts,
		sink:       sink,
		log:        log,
		now:        now,
		pestWindow: pestWindow,
	}
}

// Apply executes every verdict for one reading. Returned slices hold the ids
// of alerts created and resolved by this call.
func (m *Manager) Apply(ctx context.Context, r model.Reading, verdicts []rules.Verdict) (created, resolved []uuid.UUID, err error) {
	for _, v := range verdicts {
		switch v.Action {
		case rules.Fire:
			id, err := m.fire(ctx, r, v)
			if err != nil {
				return created, resolved, err
			}
			if id != uuid.Nil {
				created = append(created, id)
			}
		case rules.Clear:
			ids, err := m.clear(ctx, r.PlotID, v.Type)
			if err != nil {
				return created, resolved, err
			}
			resolved = append(resolved, ids...)
		}
	}
	return created, resolved, nil
}

// fire creates a new alert unless one is already blocking. The pre-check is
// an optimization and a dedup-window gate; the store's conflict-as-no-op
// create is what actually holds the invariant under concurrent workers.
func (m *Manager) fire(ctx context.Context, r model.Reading, v rules.Verdict) (uuid.UUID, error) {
	blocked, err := m.blocking(ctx, r.PlotID, v.Type)
	if err != nil {
		return uuid.Nil, fmt.Errorf("fire %s: %w", v.Type, err)
	}
	if blocked {
		metrics.AlertsSuppressedTotal.WithLabelValues(string(v.Type)).Inc()
		return uuid.Nil, nil
	}

	alert := model.Alert{
		ID:        uuid.New(),
		PlotID:    r.PlotID,
		Type:      v.Type,
		Message:   v.Message,
		Severity:  v.Severity,
		CreatedAt: m.now().UTC(),
	}
	inserted, err := m.alerts.Create(ctx, alert)
	if err != nil {
		return uuid.Nil, fmt.Errorf("fire %s: %w", v.Type, err)
	}
	if !inserted {
		// lost the race to a concurrent worker
		metrics.AlertsSuppressedTotal.WithLabelValues(string(v.Type)).Inc()
		return uuid.Nil, nil
	}

	metrics.AlertsCreatedTotal.WithLabelValues(string(v.Type)).Inc()
	m.log.Warn().
		Str("plot_id", r.PlotID.String()).
		Str("alert_type", string(v.Type)).
		Str("severity", string(v.Severity)).
		Str("alert_id", alert.ID.String()).
		Msg(v.Message)

	if err := m.sink.MirrorAlert(ctx, alert); err != nil {
		metrics.ReplicationFailuresTotal.WithLabelValues("alert").Inc()
		m.log.Warn().Err(err).
			Str("plot_id", r.PlotID.String()).
			Msg("could not mirror alert, plot may not exist in secondary yet")
	}
	return alert.ID, nil
}

// clear resolves every unresolved alert of the pair. Normally zero or one
// row, but the sweep tolerates more for robustness.
func (m *Manager) clear(ctx context.Context, plotID uuid.UUID, t model.AlertType) ([]uuid.UUID, error) {
	alerts, err := m.alerts.ResolveAll(ctx, plotID, t)
	if err != nil {
		return nil, fmt.Errorf("clear %s: %w", t, err)
	}
	if len(alerts) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(alerts))
	for _, a := range alerts {
		ids = append(ids, a.ID)
		metrics.AlertsResolvedTotal.WithLabelValues(string(t)).Inc()
		if err := m.sink.MirrorResolution(ctx, a); err != nil {
			metrics.ReplicationFailuresTotal.WithLabelValues("resolution").Inc()
			m.log.Warn().Err(err).Msg("could not mirror alert resolution")
		}
	}
	m.log.Info().
		Str("plot_id", plotID.String()).
		Str("alert_type", string(t)).
		Int("count", len(ids)).
		Msg("alerts resolved")
	return ids, nil
}

// blocking reports whether an existing alert suppresses a new fire.
// PestRisk also counts recently created (resolved) alerts inside the dedup
// window; the other rules only block on an unresolved instance.
func (m *Manager) blocking(ctx context.Context, plotID uuid.UUID, t model.AlertType) (bool, error) {
	if t == model.AlertPestRisk {
		since := m.now().UTC().Add(-m.pestWindow)
		return m.alerts.HasUnresolvedOrRecent(ctx, plotID, t, since)
	}
	return m.alerts.HasUnresolved(ctx, plotID, t)
}
