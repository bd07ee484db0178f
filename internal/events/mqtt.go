package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/openclaw/smartroute/internal/config"
)

// MQTTClient is the subset of the paho client the publisher needs. An
// interface so tests can substitute a fake.
type MQTTClient interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
}

// MQTTPublisher forwards bus events to an MQTT broker under
// <prefix>/decisions, <prefix>/outcomes, <prefix>/patterns.
type MQTTPublisher struct {
	client MQTTClient
	prefix string
	logger *slog.Logger
}

// NewMQTTPublisher builds a publisher from config using a real paho client.
func NewMQTTPublisher(cfg config.MQTTConfig, logger *slog.Logger) *MQTTPublisher {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(fmt.Sprintf("smartroute-%d", time.Now().UnixNano())).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	return NewMQTTPublisherWithClient(mqtt.NewClient(opts), cfg.TopicPrefix, logger)
}

// NewMQTTPublisherWithClient wires an explicit client (used by tests).
func NewMQTTPublisherWithClient(client MQTTClient, prefix string, logger *slog.Logger) *MQTTPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = "smartroute"
	}
	return &MQTTPublisher{
		client: client,
		prefix: prefix,
		logger: logger.With("component", "mqtt-publisher"),
	}
}

// Connect establishes the broker connection.
func (p *MQTTPublisher) Connect() error {
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.logger.Info("connected to mqtt broker")
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}

// Run consumes events from the channel until it closes. Publish failures are
// logged and dropped; routing never waits on the broker.
func (p *MQTTPublisher) Run(ch <-chan Event) {
	for ev := range ch {
		p.publish(ev)
	}
}

func (p *MQTTPublisher) publish(ev Event) {
	if !p.client.IsConnected() {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn("marshal event failed", "error", err)
		return
	}
	topic := p.topicFor(ev.Kind)
	token := p.client.Publish(topic, 0, false, payload)
	// Bounded wait; a stuck broker must not back up the bus.
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		p.logger.Warn("mqtt publish failed", "topic", topic, "error", token.Error())
	}
}

func (p *MQTTPublisher) topicFor(k Kind) string {
	switch k {
	case KindDecision:
		return p.prefix + "/decisions"
	case KindOutcome:
		return p.prefix + "/outcomes"
	case KindPattern:
		return p.prefix + "/patterns"
	default:
		return p.prefix + "/events"
	}
}
