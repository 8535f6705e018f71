// Package outbox drains alert-created events that were committed to the
// primary store together with their alert rows. Publishing after commit,
// with retry, means a broker outage delays notifications but never loses
// them and never rolls back an alert.
package outbox

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/agrosolutions/alert-engine/internal/metrics"
	"github.com/agrosolutions/alert-engine/internal/storage"
)

// Publisher is the broker-facing half of the dispatcher, satisfied by
// pkg/rabbitmq.Publisher.
type Publisher interface {
	PublishToQos(topic string, qos byte, retained bool, payload []byte) error
}

// Dispatcher periodically publishes pending outbox events in order.
// An event is marked published only after the broker acknowledged it, so
// delivery is at-least-once; consumers dedup on the alert id.
type Dispatcher struct {
	store     storage.OutboxStore
	publisher Publisher
	topicTmpl string // e.g. "event/alertCreated/{plot}"
	interval  time.Duration
	batchSize int
	log       zerolog.Logger
}

func NewDispatcher(store storage.OutboxStore, publisher Publisher, topicTmpl string, interval time.Duration, log zerolog.Logger) *Dispatcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Dispatcher{
		store:     store,
		publisher: publisher,
		topicTmpl: topicTmpl,
		interval:  interval,
		batchSize: 32,
		log:       log,
	}
}

// Run blocks until ctx is cancelled, draining the outbox every interval.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Drain(ctx)
		}
	}
}

// Drain publishes one batch of pending events. A failed event stays in the
// outbox and blocks later events for its plot only until the next drain;
// ordering across plots is not guaranteed (the bus does not guarantee it
// either).
func (d *Dispatcher) Drain(ctx context.Context) {
	pending, err := d.store.NextPending(ctx, d.batchSize)
	if err != nil {
		d.log.Error().Err(err).Msg("outbox query failed")
		return
	}
	metrics.OutboxPending.Set(float64(len(pending)))

	for _, p := range pending {
		if ctx.Err() != nil {
			return
		}
		if err := d.publishOne(ctx, p); err != nil {
			metrics.OutboxPublishRetriesTotal.Inc()
			d.log.Warn().Err(err).
				Int64("seq", p.Seq).
				Str("alert_id", p.Event.ID.String()).
				Msg("publish failed, will retry on next drain")
			continue
		}
		if err := d.store.MarkPublished(ctx, p.Seq); err != nil {
			// already marked by a competing dispatcher; publishing twice is
			// covered by the at-least-once contract
			d.log.Warn().Err(err).Int64("seq", p.Seq).Msg("mark published failed")
			continue
		}
		metrics.OutboxPublishedTotal.Inc()
	}
}

func (d *Dispatcher) publishOne(ctx context.Context, p storage.PendingEvent) error {
	payload, err := json.Marshal(p.Event)
	if err != nil {
		return err
	}
	topic := strings.NewReplacer("{plot}", p.Event.PlotID.String()).Replace(d.topicTmpl)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 5 * time.Second
	return backoff.Retry(func() error {
		return d.publisher.PublishToQos(topic, 1, false, payload)
	}, backoff.WithContext(bo, ctx))
}
