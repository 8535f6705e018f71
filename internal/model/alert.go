package model

import (
	"time"

	"github.com/google/uuid"
)

// AlertType identifies which rule produced an alert.
type AlertType string

const (
	AlertDrought       AlertType = "Drought"
	AlertExcessiveHeat AlertType = "ExcessiveHeat"
	AlertPestRisk      AlertType = "PestRisk"
)

// Severity of an alert as exposed to downstream consumers.
type Severity string

const (
	SeverityInfo     Severity = "Info"
	SeverityWarning  Severity = "Warning"
	SeverityCritical Severity = "Critical"
)

// Alert is the lifecycle record for one fired rule on one plot.
// Invariant: at most one unresolved Alert per (PlotID, Type) at any time,
// enforced by the alert store, not by this struct.
type Alert struct {
	ID        uuid.UUID `json:"id"`
	PlotID    uuid.UUID `json:"plot_id"`
	Type      AlertType `json:"alert_type"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	CreatedAt time.Time `json:"created_at"`
	Resolved  bool      `json:"resolved"`
}
