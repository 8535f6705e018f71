package alertengine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/agrosolutions/alert-engine/internal/lifecycle"
	"github.com/agrosolutions/alert-engine/internal/model"
	"github.com/agrosolutions/alert-engine/internal/model/messages"
	"github.com/agrosolutions/alert-engine/internal/rules"
	"github.com/agrosolutions/alert-engine/internal/storage"
)

type harness struct {
	store  *storage.Memory
	engine *Engine
	clock  time.Time
}

func newHarness() *harness {
	h := &harness{
		store: storage.NewMemory(),
		clock: time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC),
	}
	now := func() time.Time { return h.clock }
	cfg := rules.DefaultSettings()
	evaluator := rules.NewEvaluator(h.store, cfg, now)
	manager := lifecycle.NewManager(h.store, nil, cfg.PestDedupWindow, zerolog.Nop(), now)
	h.engine = NewEngine(h.store, evaluator, manager, nil, zerolog.Nop())
	return h
}

func (h *harness) message(plot uuid.UUID, age time.Duration, moisture, temp string) messages.SensorDataReceived {
	m, _ := decimal.NewFromString(moisture)
	tp, _ := decimal.NewFromString(temp)
	return messages.SensorDataReceived{
		ID:           uuid.New(),
		PlotID:       plot,
		Timestamp:    h.clock.Add(-age),
		SoilMoisture: m,
		Temperature:  tp,
	}
}

func TestDroughtFiresAfterSustainedWindow(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	plot := uuid.New()

	// 8 dry readings plus one wet one, spread over the 24h window: not
	// enough samples yet, nothing fires
	for i := 9; i >= 1; i-- {
		msg := h.message(plot, time.Duration(i)*2*time.Hour, "25", "22")
		if i == 5 {
			msg.SoilMoisture = decimal.NewFromInt(40)
		}
		res, err := h.engine.Evaluate(ctx, msg)
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Created) != 0 {
			t.Fatalf("alert created after %d samples", 10-i)
		}
	}

	// tenth reading: 9 of 10 below threshold, fraction 0.9 >= 0.8
	res, err := h.engine.Evaluate(ctx, h.message(plot, 0, "25", "22"))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Created) != 1 {
		t.Fatalf("created = %d, want 1", len(res.Created))
	}

	alerts := h.store.Alerts()
	if len(alerts) != 1 || alerts[0].Type != model.AlertDrought || alerts[0].Severity != model.SeverityCritical {
		t.Fatalf("alerts = %+v, want one Critical drought alert", alerts)
	}

	// the created event is sitting in the outbox
	n, err := h.store.PendingCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("outbox pending = %d, want 1", n)
	}
}

func TestRedeliveredMessageChangesNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	plot := uuid.New()

	// emergency reading fires immediately
	msg := h.message(plot, 0, "10", "22")
	res, err := h.engine.Evaluate(ctx, msg)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Created) != 1 {
		t.Fatalf("created = %d, want 1", len(res.Created))
	}

	// the broker redelivers the exact same message
	res, err = h.engine.Evaluate(ctx, msg)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Created) != 0 || len(res.Resolved) != 0 {
		t.Fatalf("redelivery changed state: %+v", res)
	}
	if h.store.ReadingCount() != 1 {
		t.Fatalf("reading count = %d, want 1", h.store.ReadingCount())
	}
	if len(h.store.Alerts()) != 1 {
		t.Fatal("redelivery must not create a second alert")
	}
}

func TestRecoveryReadingResolvesAlert(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	plot := uuid.New()

	if _, err := h.engine.Evaluate(ctx, h.message(plot, 0, "10", "22")); err != nil {
		t.Fatal(err)
	}

	// a reading inside the hysteresis band keeps the alert open
	h.clock = h.clock.Add(time.Hour)
	res, err := h.engine.Evaluate(ctx, h.message(plot, 0, "32", "22"))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Resolved) != 0 {
		t.Fatal("reading in the hysteresis band must not resolve")
	}

	// a reading at the clear threshold resolves it
	h.clock = h.clock.Add(time.Hour)
	res, err = h.engine.Evaluate(ctx, h.message(plot, 0, "35", "22"))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Resolved) != 1 {
		t.Fatalf("resolved = %d, want 1", len(res.Resolved))
	}

	unresolved, err := h.store.UnresolvedByPlot(ctx, plot)
	if err != nil {
		t.Fatal(err)
	}
	if len(unresolved) != 0 {
		t.Fatalf("unresolved = %+v, want none", unresolved)
	}
}

func TestIndependentRulesOnOneReading(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	plot := uuid.New()

	// hot and very wet at once: heat emergency and pest risk both fire
	res, err := h.engine.Evaluate(ctx, h.message(plot, 0, "85", "26"))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Created) != 1 {
		t.Fatalf("created = %d, want pest alert only", len(res.Created))
	}

	h.clock = h.clock.Add(time.Hour)
	res, err = h.engine.Evaluate(ctx, h.message(plot, 0, "85", "43"))
	if err != nil {
		t.Fatal(err)
	}
	// heat fires on the emergency bypass; pest is inside its dedup window
	if len(res.Created) != 1 {
		t.Fatalf("created = %d, want heat alert only", len(res.Created))
	}

	unresolved, err := h.store.UnresolvedByPlot(ctx, plot)
	if err != nil {
		t.Fatal(err)
	}
	if len(unresolved) != 2 {
		t.Fatalf("unresolved = %d, want pest and heat", len(unresolved))
	}
}

func TestInvalidReadingIsRejected(t *testing.T) {
	ctx := context.Background()
	h := newHarness()

	msg := h.message(uuid.New(), 0, "150", "22")
	if _, err := h.engine.Evaluate(ctx, msg); err == nil {
		t.Fatal("out-of-range moisture must be rejected")
	}
	if h.store.ReadingCount() != 0 {
		t.Fatal("rejected reading must not be stored")
	}

	msg = h.message(uuid.New(), 0, "50", "22")
	msg.ID = uuid.Nil
	if _, err := h.engine.Evaluate(ctx, msg); err == nil {
		t.Fatal("missing reading id must be rejected")
	}
}

func TestPlotsAreIsolated(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	dry := uuid.New()
	wet := uuid.New()

	if _, err := h.engine.Evaluate(ctx, h.message(dry, 0, "10", "22")); err != nil {
		t.Fatal(err)
	}
	res, err := h.engine.Evaluate(ctx, h.message(wet, 0, "60", "22"))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Created) != 0 {
		t.Fatal("healthy plot must not inherit its neighbour's alert state")
	}

	unresolved, err := h.store.UnresolvedByPlot(ctx, wet)
	if err != nil {
		t.Fatal(err)
	}
	if len(unresolved) != 0 {
		t.Fatalf("unresolved on wet plot = %+v", unresolved)
	}
}
