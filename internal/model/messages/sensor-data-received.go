package messages

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agrosolutions/alert-engine/internal/model"
)

// SensorDataReceived is the event delivered by the ingestion boundary,
// once per observation. Delivery is at-least-once with no ordering
// guarantee, so consumers must treat Id as the idempotency key.
type SensorDataReceived struct {
	ID            uuid.UUID       `json:"id"`
	PlotID        uuid.UUID       `json:"plot_id"`
	Timestamp     time.Time       `json:"timestamp"`
	SoilMoisture  decimal.Decimal `json:"soil_moisture"`
	Temperature   decimal.Decimal `json:"temperature"`
	Precipitation decimal.Decimal `json:"precipitation"`
}

// Reading converts the wire event into the domain fact, normalizing the
// timestamp to UTC.
func (m SensorDataReceived) Reading() model.Reading {
	return model.Reading{
		ID:            m.ID,
		PlotID:        m.PlotID,
		Timestamp:     m.Timestamp.UTC(),
		SoilMoisture:  m.SoilMoisture,
		Temperature:   m.Temperature,
		Precipitation: m.Precipitation,
	}
}
