package rabbitmq

import (
	"context"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// IConsumer is the subscription side: one topic filter, one handler.
type IConsumer interface {
	ConsumeMessage(ctx context.Context) error
	SetHandler(handler func(topic string, message mqtt.Message) error)
}

// Consumer subscribes to a topic filter and feeds messages to its handler.
type Consumer struct {
	client  mqtt.Client
	topic   string
	qos     byte
	handler func(topic string, message mqtt.Message) error
	log     zerolog.Logger
}

func NewConsumer(client mqtt.Client, topic string, qos byte, log zerolog.Logger) *Consumer {
	return &Consumer{client: client, topic: topic, qos: qos, log: log}
}

func (c *Consumer) SetHandler(handler func(topic string, message mqtt.Message) error) {
	c.handler = handler
}

// ConsumeMessage subscribes and blocks until ctx is cancelled, then
// unsubscribes. A subscribe failure is returned so the caller can shut the
// service down instead of idling with no subscription. Handler errors are
// logged, not propagated: with QoS1 the message was already acked by the
// paho client, so redelivery comes from the publisher side, not from a nack.
func (c *Consumer) ConsumeMessage(ctx context.Context) error {
	token := c.client.Subscribe(c.topic, c.qos, func(_ mqtt.Client, message mqtt.Message) {
		if c.handler == nil {
			c.log.Warn().Str("topic", c.topic).Msg("no handler set for topic")
			return
		}
		if err := c.handler(message.Topic(), message); err != nil {
			c.log.Error().Err(err).Str("topic", message.Topic()).Msg("message handler error")
		}
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe to %s: %w", c.topic, token.Error())
	}
	c.log.Info().Str("topic", c.topic).Uint8("qos", c.qos).Msg("subscribed")

	<-ctx.Done()

	unsub := c.client.Unsubscribe(c.topic)
	unsub.Wait()
	return nil
}
