// Package mqttbus publishes committed domain events to an MQTT broker under
// "<topic prefix>/<event name>".
package mqttbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"pharmanet/internal/core"
)

var _ core.EventPublisher = (*Publisher)(nil)

// DefaultTopic is the topic prefix used when none is configured.
const DefaultTopic = "pharmanet/events"

const publishTimeout = 5 * time.Second

// Config holds broker connection settings.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
}

// Publisher sends each event as a QoS 1 message.
type Publisher struct {
	client mqtt.Client
	topic  string
}

// Dial connects to the broker described by cfg.
func Dial(cfg Config) (*Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect mqtt broker %s: %w", cfg.Broker, token.Error())
	}
	return New(client, cfg.Topic), nil
}

// New wraps a connected client.
func New(client mqtt.Client, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{client: client, topic: strings.TrimSuffix(topic, "/")}
}

// Publish implements core.EventPublisher.
func (p *Publisher) Publish(ctx context.Context, event core.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.Name, err)
	}
	topic := p.topic + "/" + event.Name
	token := p.client.Publish(topic, 1, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return fmt.Errorf("publish to %s: timed out after %s", topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
