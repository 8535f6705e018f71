package alertengine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/agrosolutions/alert-engine/internal/model/messages"
	"github.com/agrosolutions/alert-engine/pkg/dedup"
	"github.com/agrosolutions/alert-engine/pkg/rabbitmq"
)

// Service binds the engine to the message bus: it consumes
// SensorDataReceived events, drops QoS1 redeliveries by payload hash, and
// bounds every evaluation with a timeout matching the redelivery window.
type Service struct {
	consumer rabbitmq.IConsumer
	engine   *Engine
	deduper  *dedup.Deduper
	timeout  time.Duration
	log      zerolog.Logger
}

func NewService(consumer rabbitmq.IConsumer, engine *Engine, timeout time.Duration, log zerolog.Logger) *Service {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s := &Service{
		consumer: consumer,
		engine:   engine,
		deduper:  dedup.New(10*time.Minute, 20000),
		timeout:  timeout,
		log:      log,
	}
	consumer.SetHandler(s.handleMessage)
	return s
}

// Start blocks consuming until ctx is cancelled. A non-nil error means the
// subscription could not be established and no messages will arrive.
func (s *Service) Start(ctx context.Context) error {
	return s.consumer.ConsumeMessage(ctx)
}

func (s *Service) handleMessage(topic string, msg mqtt.Message) error {
	// dedup before unmarshal: identical QoS1 redeliveries share a payload
	h := sha256.Sum256(msg.Payload())
	key := hex.EncodeToString(h[:])
	if !s.deduper.ShouldProcess(key) {
		return nil
	}

	var m messages.SensorDataReceived
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		// malformed payloads are dropped, not retried
		s.log.Error().Err(err).Str("topic", topic).Msg("bad sensor payload")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	res, err := s.engine.Evaluate(ctx, m)
	if err != nil {
		// forget the hash so the broker's redelivery of this payload is
		// processed instead of suppressed; recovery depends on the retry
		s.deduper.Forget(key)
		return err
	}
	if len(res.Created) > 0 || len(res.Resolved) > 0 {
		s.log.Info().
			Str("plot_id", m.PlotID.String()).
			Int("created", len(res.Created)).
			Int("resolved", len(res.Resolved)).
			Msg("alert state changed")
	}
	return nil
}
