package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Reading is one timestamped sensor observation for a plot. Readings are
// immutable facts: created once by ingestion, never updated.
// Domain values are decimals because the rule thresholds work at 0.1-unit
// precision and float drift at the boundary is not acceptable.
type Reading struct {
	ID            uuid.UUID       `json:"id"`
	PlotID        uuid.UUID       `json:"plot_id"`
	Timestamp     time.Time       `json:"timestamp"`
	SoilMoisture  decimal.Decimal `json:"soil_moisture"` // percent, 0-100
	Temperature   decimal.Decimal `json:"temperature"`   // °C
	Precipitation decimal.Decimal `json:"precipitation"` // mm
}

// Validation errors for incoming readings.
var (
	ErrEmptyReadingID        = errors.New("reading id cannot be empty")
	ErrEmptyPlotID           = errors.New("plot id cannot be empty")
	ErrZeroTimestamp         = errors.New("reading timestamp cannot be zero")
	ErrMoistureOutOfRange    = errors.New("soil moisture must be between 0 and 100%")
	ErrTemperatureOutOfRange = errors.New("temperature must be between -50 and 70°C")
	ErrNegativePrecipitation = errors.New("precipitation cannot be negative")
	ErrPrecipitationSuspect  = errors.New("precipitation above 300mm, sensor likely faulty")
)

var (
	moistureMin = decimal.Zero
	moistureMax = decimal.NewFromInt(100)
	tempMin     = decimal.NewFromInt(-50)
	tempMax     = decimal.NewFromInt(70)
	precipMax   = decimal.NewFromInt(300)
)

// Validate rejects impossible values before they reach rule evaluation.
// Bounds mirror what the ingestion boundary enforces, re-checked here
// because the engine cannot assume every producer went through it.
func (r Reading) Validate() error {
	if r.ID == uuid.Nil {
		return ErrEmptyReadingID
	}
	if r.PlotID == uuid.Nil {
		return ErrEmptyPlotID
	}
	if r.Timestamp.IsZero() {
		return ErrZeroTimestamp
	}
	if r.SoilMoisture.LessThan(moistureMin) || r.SoilMoisture.GreaterThan(moistureMax) {
		return ErrMoistureOutOfRange
	}
	if r.Temperature.LessThan(tempMin) || r.Temperature.GreaterThan(tempMax) {
		return ErrTemperatureOutOfRange
	}
	if r.Precipitation.IsNegative() {
		return ErrNegativePrecipitation
	}
	if r.Precipitation.GreaterThan(precipMax) {
		return ErrPrecipitationSuspect
	}
	return nil
}
