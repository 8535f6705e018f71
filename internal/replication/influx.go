package replication

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/agrosolutions/alert-engine/internal/model"
)

// InfluxSink mirrors readings and alert transitions into InfluxDB for the
// reporting dashboard. Writes go through a circuit breaker so a down
// secondary degrades to fast no-ops instead of adding a timeout to every
// evaluation.
type InfluxSink struct {
	write api.WriteAPIBlocking
	cb    *gobreaker.CircuitBreaker
	log   zerolog.Logger
}

// NewInfluxSink wires a blocking write API behind a breaker. The breaker
// opens after 5 consecutive failures and probes again after 30s.
func NewInfluxSink(write api.WriteAPIBlocking, log zerolog.Logger) *InfluxSink {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "influx-sink",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("replication breaker state change")
		},
	})
	return &InfluxSink{write: write, cb: cb, log: log}
}

func (s *InfluxSink) MirrorReading(ctx context.Context, r model.Reading) error {
	// Decimals become floats here: the mirror feeds charts, not rules.
	p := influxdb2.NewPoint("sensor_reading",
		map[string]string{
			"plot_id": r.PlotID.String(),
		},
		map[string]interface{}{
			"reading_id":    r.ID.String(),
			"soil_moisture": r.SoilMoisture.InexactFloat64(),
			"temperature":   r.Temperature.InexactFloat64(),
			"precipitation": r.Precipitation.InexactFloat64(),
		},
		r.Timestamp)
	return s.writePoint(ctx, "reading", p)
}

func (s *InfluxSink) MirrorAlert(ctx context.Context, a model.Alert) error {
	p := influxdb2.NewPoint("alert",
		map[string]string{
			"plot_id":    a.PlotID.String(),
			"alert_type": string(a.Type),
			"severity":   string(a.Severity),
		},
		map[string]interface{}{
			"alert_id": a.ID.String(),
			"message":  a.Message,
		},
		a.CreatedAt)
	return s.writePoint(ctx, "alert", p)
}

func (s *InfluxSink) MirrorResolution(ctx context.Context, a model.Alert) error {
	p := influxdb2.NewPoint("alert_resolution",
		map[string]string{
			"plot_id":    a.PlotID.String(),
			"alert_type": string(a.Type),
		},
		map[string]interface{}{
			"alert_id": a.ID.String(),
		},
		time.Now().UTC())
	return s.writePoint(ctx, "resolution", p)
}

func (s *InfluxSink) writePoint(ctx context.Context, op string, p *write.Point) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.write.WritePoint(ctx, p)
	})
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	return nil
}
