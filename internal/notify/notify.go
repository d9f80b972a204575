// Package notify announces entry changes to other processes over MQTT.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/eventual/internal/models"
)

const (
	EventCreated = "created"
	EventDeleted = "deleted"
)

// Event is the payload published for an entry change.
type Event struct {
	Type    string        `json:"type"`
	EntryID string        `json:"entryId"`
	Entry   *models.Entry `json:"entry,omitempty"`
	At      time.Time     `json:"at"`
}

// Publisher delivers events. Publishing is best effort: callers log failures
// and carry on.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close()
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, ev Event) error { return nil }
func (NoopPublisher) Close()                                      {}

// mqttClient is the part of mqtt.Client the publisher needs.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// AckTimeout bounds how long Publish waits for the broker to acknowledge.
const AckTimeout = 2 * time.Second

// MQTTPublisher publishes events to <prefix>/entries/<type> with QoS 1.
type MQTTPublisher struct {
	client     mqttClient
	prefix     string
	ackTimeout time.Duration
}

// NewMQTTPublisher connects to broker (e.g. tcp://localhost:1883).
func NewMQTTPublisher(broker, clientID, prefix string) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			log.WithError(err).Warn("MQTT connection lost")
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return newMQTTPublisher(client, prefix), nil
}

func newMQTTPublisher(client mqttClient, prefix string) *MQTTPublisher {
	return &MQTTPublisher{client: client, prefix: prefix, ackTimeout: AckTimeout}
}

// Topic returns the topic an event type is published on.
func (p *MQTTPublisher) Topic(eventType string) string {
	return p.prefix + "/entries/" + eventType
}

// Publish implements Publisher. While the client is reconnecting QoS 1
// messages stay queued, so the wait for the acknowledgement is capped at
// the publisher's ack timeout.
func (p *MQTTPublisher) Publish(ctx context.Context, ev Event) error {
	if ev.Type == "" {
		return errors.New("event type is required")
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.ackTimeout)
	defer cancel()

	token := p.client.Publish(p.Topic(ev.Type), 1, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
