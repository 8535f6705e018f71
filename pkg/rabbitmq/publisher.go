package rabbitmq

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// IPublisher is the publishing side used by the engine and the outbox
// dispatcher.
type IPublisher interface {
	PublishJSON(topic string, qos byte, v any) error
	PublishToQos(topic string, qos byte, retained bool, payload []byte) error
	Close()
}

// Publisher publishes messages on the shared MQTT client.
type Publisher struct {
	client mqtt.Client
}

func NewPublisher(client mqtt.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishJSON marshals v and publishes it at the given QoS.
func (p *Publisher) PublishJSON(topic string, qos byte, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return p.PublishToQos(topic, qos, false, payload)
}

// PublishToQos publishes a raw payload and waits for the broker ack.
func (p *Publisher) PublishToQos(topic string, qos byte, retained bool, payload []byte) error {
	token := p.client.Publish(topic, qos, retained, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("publish to %s: %w", topic, token.Error())
	}
	return nil
}

// Close disconnects the underlying MQTT client.
func (p *Publisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
