package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/agrosolutions/alert-engine/internal/model"
	"github.com/agrosolutions/alert-engine/internal/rules"
	"github.com/agrosolutions/alert-engine/internal/storage"
)

// recordingSink counts mirror calls and optionally fails them all.
type recordingSink struct {
	readings    int
	alerts      int
	resolutions int
	fail        bool
}

func (s *recordingSink) MirrorReading(context.Context, model.Reading) error {
	s.readings++
	return s.err()
}
func (s *recordingSink) MirrorAlert(context.Context, model.Alert) error {
	s.alerts++
	return s.err()
}
func (s *recordingSink) MirrorResolution(context.Context, model.Alert) error {
	s.resolutions++
	return s.err()
}
func (s *recordingSink) err() error {
	if s.fail {
		return errors.New("secondary unavailable")
	}
	return nil
}

func testManager(store storage.AlertStore, sink *recordingSink, now func() time.Time) *Manager {
	return NewManager(store, sink, 48*time.Hour, zerolog.Nop(), now)
}

func fireVerdict(t model.AlertType) rules.Verdict {
	return rules.Verdict{
		Type:     t,
		Action:   rules.Fire,
		Severity: model.SeverityWarning,
		Message:  "test fire",
	}
}

func clearVerdict(t model.AlertType) rules.Verdict {
	return rules.Verdict{Type: t, Action: rules.Clear}
}

func plotReading(plotID uuid.UUID) model.Reading {
	return model.Reading{
		ID:           uuid.New(),
		PlotID:       plotID,
		Timestamp:    time.Now().UTC(),
		SoilMoisture: decimal.NewFromInt(20),
		Temperature:  decimal.NewFromInt(25),
	}
}

func TestFireCreatesAndMirrors(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	sink := &recordingSink{}
	m := testManager(store, sink, nil)
	plot := uuid.New()

	created, resolved, err := m.Apply(ctx, plotReading(plot), []rules.Verdict{fireVerdict(model.AlertDrought)})
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != 1 || len(resolved) != 0 {
		t.Fatalf("created=%d resolved=%d, want 1/0", len(created), len(resolved))
	}
	if sink.alerts != 1 {
		t.Fatalf("mirrored alerts = %d, want 1", sink.alerts)
	}

	unresolved, err := store.UnresolvedByPlot(ctx, plot)
	if err != nil {
		t.Fatal(err)
	}
	if len(unresolved) != 1 || unresolved[0].Type != model.AlertDrought {
		t.Fatalf("unresolved = %+v, want one drought alert", unresolved)
	}
}

func TestFireSuppressedWhileUnresolved(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	sink := &recordingSink{}
	m := testManager(store, sink, nil)
	plot := uuid.New()
	r := plotReading(plot)
	verdicts := []rules.Verdict{fireVerdict(model.AlertDrought)}

	if _, _, err := m.Apply(ctx, r, verdicts); err != nil {
		t.Fatal(err)
	}
	created, _, err := m.Apply(ctx, r, verdicts)
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != 0 {
		t.Fatal("second fire must be suppressed")
	}
	if sink.alerts != 1 {
		t.Fatalf("mirrored alerts = %d, want 1", sink.alerts)
	}
}

func TestClearResolvesAndReopens(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	sink := &recordingSink{}
	m := testManager(store, sink, nil)
	plot := uuid.New()
	r := plotReading(plot)

	if _, _, err := m.Apply(ctx, r, []rules.Verdict{fireVerdict(model.AlertExcessiveHeat)}); err != nil {
		t.Fatal(err)
	}
	_, resolved, err := m.Apply(ctx, r, []rules.Verdict{clearVerdict(model.AlertExcessiveHeat)})
	if err != nil {
		t.Fatal(err)
	}
	if len(resolved) != 1 {
		t.Fatalf("resolved = %d, want 1", len(resolved))
	}
	if sink.resolutions != 1 {
		t.Fatalf("mirrored resolutions = %d, want 1", sink.resolutions)
	}

	// heat has no dedup window: a fresh episode fires immediately
	created, _, err := m.Apply(ctx, r, []rules.Verdict{fireVerdict(model.AlertExcessiveHeat)})
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != 1 {
		t.Fatal("fire after clear must create a new alert")
	}
}

func TestClearWithoutActiveAlertIsNoOp(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	sink := &recordingSink{}
	m := testManager(store, sink, nil)

	_, resolved, err := m.Apply(ctx, plotReading(uuid.New()), []rules.Verdict{clearVerdict(model.AlertDrought)})
	if err != nil {
		t.Fatal(err)
	}
	if len(resolved) != 0 || sink.resolutions != 0 {
		t.Fatalf("resolved=%d mirrored=%d, want 0/0", len(resolved), sink.resolutions)
	}
}

func TestPestRiskDedupWindow(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	sink := &recordingSink{}

	clock := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }
	m := testManager(store, sink, now)
	plot := uuid.New()
	r := plotReading(plot)
	verdicts := []rules.Verdict{fireVerdict(model.AlertPestRisk)}

	created, _, err := m.Apply(ctx, r, verdicts)
	if err != nil || len(created) != 1 {
		t.Fatalf("first pest fire: created=%d err=%v", len(created), err)
	}

	// resolve out of band; the dedup window still blocks
	if _, err := store.ResolveAll(ctx, plot, model.AlertPestRisk); err != nil {
		t.Fatal(err)
	}
	clock = clock.Add(24 * time.Hour)
	created, _, err = m.Apply(ctx, r, verdicts)
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != 0 {
		t.Fatal("pest fire inside the 48h window must be suppressed")
	}

	clock = clock.Add(25 * time.Hour)
	created, _, err = m.Apply(ctx, r, verdicts)
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != 1 {
		t.Fatal("pest fire past the window must create a new alert")
	}
}

func TestSinkFailureDoesNotAbort(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	sink := &recordingSink{fail: true}
	m := testManager(store, sink, nil)
	plot := uuid.New()
	r := plotReading(plot)

	created, _, err := m.Apply(ctx, r, []rules.Verdict{fireVerdict(model.AlertDrought)})
	if err != nil {
		t.Fatalf("sink failure must not fail the fire: %v", err)
	}
	if len(created) != 1 {
		t.Fatal("alert must be created despite sink failure")
	}

	_, resolved, err := m.Apply(ctx, r, []rules.Verdict{clearVerdict(model.AlertDrought)})
	if err != nil {
		t.Fatalf("sink failure must not fail the clear: %v", err)
	}
	if len(resolved) != 1 {
		t.Fatal("alert must be resolved despite sink failure")
	}
}
