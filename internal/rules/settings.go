package rules

import (
	"time"

	"github.com/shopspring/decimal"
)

// Settings holds every externally-tunable rule knob. Zero values are never
// used directly; construct with DefaultSettings and override from config.
type Settings struct {
	// Drought: sustained low soil moisture.
	DroughtThreshold          decimal.Decimal // trigger: moisture < threshold (%)
	DroughtWindow             time.Duration   // lookback for sustained check
	DroughtMinSamples         int             // window sample floor
	DroughtTriggerFraction    decimal.Decimal // qualifying fraction, compared with >=
	DroughtClearThreshold     decimal.Decimal // clear: moisture >= threshold (%)
	DroughtEmergencyThreshold decimal.Decimal // bypass: moisture < threshold (%)

	// ExcessiveHeat: sustained high temperature.
	HeatThreshold          decimal.Decimal // trigger: temperature > threshold (°C)
	HeatWindow             time.Duration
	HeatMinSamples         int
	HeatTriggerFraction    decimal.Decimal
	HeatClearThreshold     decimal.Decimal // clear: temperature <= threshold (°C)
	HeatEmergencyThreshold decimal.Decimal // bypass: temperature > threshold (°C)

	// PestRisk: single-reading predicate, rate-limited by a dedup window.
	PestMoistureThreshold decimal.Decimal // moisture > threshold (%)
	PestTempMin           decimal.Decimal // inclusive
	PestTempMax           decimal.Decimal // inclusive
	PestDedupWindow       time.Duration   // suppress re-alerting within
}

// DefaultSettings returns the production thresholds.
func DefaultSettings() Settings {
	return Settings{
		DroughtThreshold:          decimal.NewFromInt(30),
		DroughtWindow:             24 * time.Hour,
		DroughtMinSamples:         10,
		DroughtTriggerFraction:    decimal.NewFromFloat(0.8),
		DroughtClearThreshold:     decimal.NewFromInt(35),
		DroughtEmergencyThreshold: decimal.NewFromInt(15),

		HeatThreshold:          decimal.NewFromInt(35),
		HeatWindow:             12 * time.Hour,
		HeatMinSamples:         5,
		HeatTriggerFraction:    decimal.NewFromFloat(0.8),
		HeatClearThreshold:     decimal.NewFromInt(32),
		HeatEmergencyThreshold: decimal.NewFromInt(42),

		PestMoistureThreshold: decimal.NewFromInt(80),
		PestTempMin:           decimal.NewFromInt(20),
		PestTempMax:           decimal.NewFromInt(30),
		PestDedupWindow:       48 * time.Hour,
	}
}
