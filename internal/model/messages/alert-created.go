package messages

import (
	"time"

	"github.com/google/uuid"

	"github.com/agrosolutions/alert-engine/internal/model"
)

// AlertCreated is published on the event bus each time a new alert row is
// created in the primary store. Resolution does not publish.
type AlertCreated struct {
	ID        uuid.UUID `json:"id"`
	PlotID    uuid.UUID `json:"plot_id"`
	AlertType string    `json:"alert_type"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	CreatedAt time.Time `json:"created_at"`
}

// NewAlertCreated builds the event for a freshly persisted alert.
func NewAlertCreated(a model.Alert) AlertCreated {
	return AlertCreated{
		ID:        a.ID,
		PlotID:    a.PlotID,
		AlertType: string(a.Type),
		Message:   a.Message,
		Severity:  string(a.Severity),
		CreatedAt: a.CreatedAt,
	}
}
