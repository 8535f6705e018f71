package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agrosolutions/alert-engine/internal/model"
	"github.com/agrosolutions/alert-engine/internal/model/messages"
)

// Memory is an in-process store implementing ReadingStore, AlertStore and
// OutboxStore with the same conflict semantics as the MySQL store. Used by
// tests and local single-process runs; it is safe for concurrent use.
type Memory struct {
	mu       sync.Mutex
	readings map[uuid.UUID]model.Reading
	byPlot   map[uuid.UUID][]uuid.UUID
	alerts   []model.Alert
	outbox   []PendingEvent
	nextSeq  int64
}

func NewMemory() *Memory {
	return &Memory{
		readings: make(map[uuid.UUID]model.Reading),
		byPlot:   make(map[uuid.UUID][]uuid.UUID),
		nextSeq:  1,
	}
}

// Ping always succeeds; the store lives in-process.
func (m *Memory) Ping(context.Context) error { return nil }

// ---- ReadingStore ----

func (m *Memory) Append(_ context.Context, r model.Reading) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.readings[r.ID]; dup {
		return false, nil
	}
	m.readings[r.ID] = r
	m.byPlot[r.PlotID] = append(m.byPlot[r.PlotID], r.ID)
	return true, nil
}

func (m *Memory) CountReadings(_ context.Context, plotID uuid.UUID, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countLocked(plotID, since, func(model.Reading) bool { return true }), nil
}

func (m *Memory) CountMoistureBelow(_ context.Context, plotID uuid.UUID, since time.Time, threshold decimal.Decimal) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countLocked(plotID, since, func(r model.Reading) bool {
		return r.SoilMoisture.LessThan(threshold)
	}), nil
}

func (m *Memory) CountTemperatureAbove(_ context.Context, plotID uuid.UUID, since time.Time, threshold decimal.Decimal) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countLocked(plotID, since, func(r model.Reading) bool {
		return r.Temperature.GreaterThan(threshold)
	}), nil
}

func (m *Memory) countLocked(plotID uuid.UUID, since time.Time, match func(model.Reading) bool) int {
	n := 0
	for _, id := range m.byPlot[plotID] {
		r := m.readings[id]
		if !r.Timestamp.Before(since) && match(r) {
			n++
		}
	}
	return n
}

func (m *Memory) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for id, r := range m.readings {
		if r.Timestamp.Before(cutoff) {
			delete(m.readings, id)
			removed++
		}
	}
	for plot, ids := range m.byPlot {
		kept := ids[:0]
		for _, id := range ids {
			if _, ok := m.readings[id]; ok {
				kept = append(kept, id)
			}
		}
		m.byPlot[plot] = kept
	}
	return removed, nil
}

// ---- AlertStore ----

func (m *Memory) Create(_ context.Context, a model.Alert) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// conflict-as-no-op: mirrors the unique (plot_id, alert_type, active)
	// key of the MySQL store
	for _, existing := range m.alerts {
		if existing.PlotID == a.PlotID && existing.Type == a.Type && !existing.Resolved {
			return false, nil
		}
	}
	m.alerts = append(m.alerts, a)
	m.outbox = append(m.outbox, PendingEvent{
		Seq:   m.nextSeq,
		Event: messages.NewAlertCreated(a),
	})
	m.nextSeq++
	return true, nil
}

func (m *Memory) HasUnresolved(_ context.Context, plotID uuid.UUID, t model.AlertType) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if a.PlotID == plotID && a.Type == t && !a.Resolved {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) HasUnresolvedOrRecent(_ context.Context, plotID uuid.UUID, t model.AlertType, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if a.PlotID != plotID || a.Type != t {
			continue
		}
		if !a.Resolved || !a.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) ResolveAll(_ context.Context, plotID uuid.UUID, t model.AlertType) ([]model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var resolved []model.Alert
	for i := range m.alerts {
		a := &m.alerts[i]
		if a.PlotID == plotID && a.Type == t && !a.Resolved {
			a.Resolved = true
			resolved = append(resolved, *a)
		}
	}
	return resolved, nil
}

func (m *Memory) UnresolvedByPlot(_ context.Context, plotID uuid.UUID) ([]model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Alert
	for _, a := range m.alerts {
		if a.PlotID == plotID && !a.Resolved {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ---- OutboxStore ----

func (m *Memory) NextPending(_ context.Context, limit int) ([]PendingEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.outbox) {
		limit = len(m.outbox)
	}
	out := make([]PendingEvent, limit)
	copy(out, m.outbox[:limit])
	return out, nil
}

func (m *Memory) MarkPublished(_ context.Context, seq int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.outbox {
		if p.Seq == seq {
			m.outbox = append(m.outbox[:i], m.outbox[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) PendingCount(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.outbox), nil
}

// Alerts returns a snapshot of every alert row. Test helper.
func (m *Memory) Alerts() []model.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Alert, len(m.alerts))
	copy(out, m.alerts)
	return out
}

// ReadingCount returns the number of stored readings. Test helper.
func (m *Memory) ReadingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.readings)
}
