// Package notify publishes logged attendance events to an MQTT broker.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"faceclock/internal/attendance"
	"faceclock/internal/events"
)

// Client is the subset of a broker connection the publisher needs.
type Client interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Disconnect()
}

// Message is the JSON body sent for each logged event.
type Message struct {
	EventID    string               `json:"event_id"`
	PersonID   string               `json:"person_id"`
	EventType  attendance.EventType `json:"event_type"`
	Activity   string               `json:"activity"`
	Timestamp  time.Time            `json:"timestamp"`
	Confidence float64              `json:"confidence_score"`
	SourceID   string               `json:"source_id"`
}

// MQTTPublisher forwards logged attendance decisions from the bus.
type MQTTPublisher struct {
	client Client
	topic  string
	log    *slog.Logger
}

func NewMQTTPublisher(client Client, topic string, log *slog.Logger) *MQTTPublisher {
	if log == nil {
		log = slog.Default()
	}
	return &MQTTPublisher{client: client, topic: topic, log: log.With("component", "mqtt")}
}

// Run subscribes to attendance events and publishes until ctx is done.
func (p *MQTTPublisher) Run(ctx context.Context, bus *events.Bus) error {
	ch, cancel := bus.Subscribe(events.DefaultBuffer, events.TypeAttendance)
	defer cancel()
	defer p.client.Disconnect()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			d, ok := ev.Payload.(attendance.Decision)
			if !ok || !d.Outcome.Logged() || d.Outcome.Event == nil {
				continue
			}
			if err := p.Publish(ctx, *d.Outcome.Event); err != nil {
				p.log.Warn("publish failed", "event_id", d.Outcome.Event.ID, "err", err)
			}
		}
	}
}

// Publish sends one event.
func (p *MQTTPublisher) Publish(ctx context.Context, ev attendance.Event) error {
	body, err := json.Marshal(Message{
		EventID:    ev.ID,
		PersonID:   ev.PersonID,
		EventType:  ev.Type,
		Activity:   ev.Activity,
		Timestamp:  ev.Timestamp.UTC(),
		Confidence: ev.Score,
		SourceID:   ev.Source,
	})
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.topic, body)
}

const (
	connectTimeout = 30 * time.Second
	publishTimeout = 10 * time.Second
)

// PahoClient wraps a paho connection.
type PahoClient struct {
	mu     sync.Mutex
	client mqtt.Client
	log    *slog.Logger
}

// Connect dials broker (tcp://host:port) with auto-reconnect enabled.
func Connect(broker, clientID string, log *slog.Logger) (*PahoClient, error) {
	if broker == "" {
		return nil, errors.New("mqtt broker not configured")
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "mqtt", "broker", broker)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetOnConnectHandler(func(mqtt.Client) { log.Info("connected") })
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) { log.Warn("connection lost", "err", err) })

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connection error: %w", err)
	}
	return &PahoClient{client: c, log: log}, nil
}

// Publish sends payload at QoS 1.
func (c *PahoClient) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.client.IsConnected() {
		return fmt.Errorf("not connected to MQTT broker")
	}
	token := c.client.Publish(topic, 1, false, payload)
	timeout := publishTimeout
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < timeout {
		timeout = time.Until(dl)
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("publish timeout")
	}
	return token.Error()
}

// Disconnect waits briefly for in-flight messages.
func (c *PahoClient) Disconnect() {
	if c.client.IsConnected() {
		c.client.Disconnect(250)
	}
}
