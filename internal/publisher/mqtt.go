// Package publisher streams vehicle snapshots to an MQTT broker.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jinzhu/copier"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/ambulance-sim/internal/metrics"
	"github.com/ukydev/ambulance-sim/internal/models"
	"github.com/ukydev/ambulance-sim/internal/timeutil"
)

// Source supplies the snapshots to publish.
type Source interface {
	Statuses() []models.Vehicle
}

// Client is the part of mqtt.Client the publisher needs.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Config controls topics and cadence.
type Config struct {
	TopicPrefix    string
	Interval       time.Duration
	PublishTimeout time.Duration
}

// Publisher periodically sends one message per vehicle to
// {prefix}/{vehicleID} at QoS 0.
type Publisher struct {
	client  Client
	source  Source
	cfg     Config
	clock   timeutil.Clock
	metrics *metrics.Metrics
}

// New creates a publisher.
func New(client Client, source Source, cfg Config, clock timeutil.Clock, m *metrics.Metrics) *Publisher {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "fleet/vehicles"
	}
	cfg.TopicPrefix = strings.TrimRight(cfg.TopicPrefix, "/")
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Publisher{client: client, source: source, cfg: cfg, clock: clock, metrics: m}
}

// Connect dials the broker with automatic reconnects enabled.
func Connect(ctx context.Context, brokerURL, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.WithError(err).Warn("MQTT connection lost")
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	log.WithField("broker", brokerURL).Info("Connected to MQTT broker")
	return client, nil
}

// Topic returns the topic for a vehicle.
func (p *Publisher) Topic(vehicleID string) string {
	return p.cfg.TopicPrefix + "/" + vehicleID
}

// Run publishes on every interval until ctx is done.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := p.clock.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			p.PublishOnce()
		}
	}
}

// PublishOnce sends the current fleet and returns how many messages were
// delivered. Failures are logged and skipped.
func (p *Publisher) PublishOnce() int {
	sent := 0
	for _, v := range p.source.Statuses() {
		err := p.publish(v)
		p.metrics.ObservePublish(err)
		if err != nil {
			log.WithFields(log.Fields{
				"vehicle_id": v.ID,
				"error":      err,
			}).Warn("Failed to publish vehicle status")
			continue
		}
		sent++
	}
	return sent
}

func (p *Publisher) publish(v models.Vehicle) error {
	var status models.VehicleStatus
	if err := copier.Copy(&status, &v); err != nil {
		return fmt.Errorf("failed to build status: %w", err)
	}
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	token := p.client.Publish(p.Topic(v.ID), 0, false, payload)
	if !token.WaitTimeout(p.cfg.PublishTimeout) {
		return errors.New("publish timed out")
	}
	return token.Error()
}
