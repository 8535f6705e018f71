package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agrosolutions/alert-engine/internal/model"
)

// Action is the outcome of one rule for one reading.
type Action int

const (
	NoChange Action = iota
	Fire
	Clear
)

func (a Action) String() string {
	switch a {
	case Fire:
		return "fire"
	case Clear:
		return "clear"
	default:
		return "no_change"
	}
}

// Verdict is the evaluator's decision for one rule. Message and Severity are
// only meaningful when Action is Fire.
type Verdict struct {
	Type     model.AlertType
	Action   Action
	Severity model.Severity
	Message  string
}

// WindowQuery is the read-only view of reading history the evaluator needs.
// Counts are always taken against the durable store at call time; nothing is
// cached between evaluations.
type WindowQuery interface {
	CountReadings(ctx context.Context, plotID uuid.UUID, since time.Time) (int, error)
	CountMoistureBelow(ctx context.Context, plotID uuid.UUID, since time.Time, threshold decimal.Decimal) (int, error)
	CountTemperatureAbove(ctx context.Context, plotID uuid.UUID, since time.Time, threshold decimal.Decimal) (int, error)
}

// Evaluator computes rule verdicts for incoming readings. It never mutates
// state: firing and clearing are applied by the lifecycle manager.
type Evaluator struct {
	history WindowQuery
	cfg     Settings
	now     func() time.Time
}

// NewEvaluator builds an evaluator over the given history view. The clock is
// injectable so window boundaries are deterministic in tests; pass nil for
// wall-clock time.
func NewEvaluator(history WindowQuery, cfg Settings, now func() time.Time) *Evaluator {
	if now == nil {
		now = time.Now
	}
	return &Evaluator{history: history, cfg: cfg, now: now}
}

// Evaluate runs all rules against one reading and returns one verdict per
// rule, in a stable order (drought, heat, pest).
func (e *Evaluator) Evaluate(ctx context.Context, r model.Reading) ([]Verdict, error) {
	drought, err := e.evalDrought(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("drought rule: %w", err)
	}
	heat, err := e.evalHeat(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("heat rule: %w", err)
	}
	return []Verdict{drought, heat, e.evalPest(r)}, nil
}

// evalDrought: moisture < threshold sustained over the window, with an
// immediate bypass below the emergency threshold. Clearing requires moisture
// to rise past a separate, higher threshold (hysteresis), so readings in the
// band between trigger and clear leave existing alerts untouched.
func (e *Evaluator) evalDrought(ctx context.Context, r model.Reading) (Verdict, error) {
	v := Verdict{Type: model.AlertDrought, Action: NoChange}

	switch {
	case r.SoilMoisture.LessThan(e.cfg.DroughtThreshold):
		fire := r.SoilMoisture.LessThan(e.cfg.DroughtEmergencyThreshold)
		if !fire {
			since := e.now().Add(-e.cfg.DroughtWindow)
			total, err := e.history.CountReadings(ctx, r.PlotID, since)
			if err != nil {
				return v, err
			}
			low, err := e.history.CountMoistureBelow(ctx, r.PlotID, since, e.cfg.DroughtThreshold)
			if err != nil {
				return v, err
			}
			fire = sustained(low, total, e.cfg.DroughtMinSamples, e.cfg.DroughtTriggerFraction)
		}
		if fire {
			v.Action = Fire
			v.Severity = model.SeverityCritical
			v.Message = fmt.Sprintf(
				"Drought alert: soil moisture below %s%% over the last %d hours. Current value: %s%%",
				e.cfg.DroughtThreshold.String(),
				int(e.cfg.DroughtWindow.Hours()),
				r.SoilMoisture.StringFixed(1))
		}
	case r.SoilMoisture.GreaterThanOrEqual(e.cfg.DroughtClearThreshold):
		v.Action = Clear
	}
	return v, nil
}

// evalHeat mirrors the drought rule with its own window and thresholds.
func (e *Evaluator) evalHeat(ctx context.Context, r model.Reading) (Verdict, error) {
	v := Verdict{Type: model.AlertExcessiveHeat, Action: NoChange}

	switch {
	case r.Temperature.GreaterThan(e.cfg.HeatThreshold):
		fire := r.Temperature.GreaterThan(e.cfg.HeatEmergencyThreshold)
		if !fire {
			since := e.now().Add(-e.cfg.HeatWindow)
			total, err := e.history.CountReadings(ctx, r.PlotID, since)
			if err != nil {
				return v, err
			}
			high, err := e.history.CountTemperatureAbove(ctx, r.PlotID, since, e.cfg.HeatThreshold)
			if err != nil {
				return v, err
			}
			fire = sustained(high, total, e.cfg.HeatMinSamples, e.cfg.HeatTriggerFraction)
		}
		if fire {
			v.Action = Fire
			v.Severity = model.SeverityWarning
			v.Message = fmt.Sprintf(
				"Heat alert: temperature above %s°C for more than %d hours. Current value: %s°C",
				e.cfg.HeatThreshold.String(),
				int(e.cfg.HeatWindow.Hours()),
				r.Temperature.StringFixed(1))
		}
	case r.Temperature.LessThanOrEqual(e.cfg.HeatClearThreshold):
		v.Action = Clear
	}
	return v, nil
}

// evalPest fires on the single qualifying reading, no window evidence
// needed. Rate limiting against re-alerting lives in the lifecycle manager
// (dedup window), and there is no automatic clear.
func (e *Evaluator) evalPest(r model.Reading) Verdict {
	v := Verdict{Type: model.AlertPestRisk, Action: NoChange}

	if r.SoilMoisture.GreaterThan(e.cfg.PestMoistureThreshold) &&
		r.Temperature.GreaterThanOrEqual(e.cfg.PestTempMin) &&
		r.Temperature.LessThanOrEqual(e.cfg.PestTempMax) {
		v.Action = Fire
		v.Severity = model.SeverityWarning
		v.Message = fmt.Sprintf(
			"Conditions favorable to pests: moisture %s%% and temperature %s°C",
			r.SoilMoisture.StringFixed(1),
			r.Temperature.StringFixed(1))
	}
	return v
}

// sustained reports whether qualifying/total meets the fraction with the
// sample floor satisfied. The comparison is qualifying >= fraction*total in
// decimal space, so 8/10 against 0.8 is an exact hit, not a float near-miss.
func sustained(qualifying, total, minSamples int, fraction decimal.Decimal) bool {
	if total < minSamples {
		return false
	}
	q := decimal.NewFromInt(int64(qualifying))
	need := fraction.Mul(decimal.NewFromInt(int64(total)))
	return q.GreaterThanOrEqual(need)
}
