package broker

import (
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTBroker carries pipeline messages over an external MQTT broker at
// QoS 0 (at-most-once), the delivery contract the pipeline is designed for.
type MQTTBroker struct {
	client mqtt.Client
	log    *slog.Logger
}

// MQTTConfig configures the connection to the external broker.
type MQTTConfig struct {
	// URL is the broker address, e.g. "tcp://mosquitto:1883".
	URL string `yaml:"url"`
	// ClientID identifies this node to the broker.
	ClientID string `yaml:"client_id"`
	// ConnectTimeout bounds the initial connect.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// NewMQTT connects to the configured broker, retrying in the background on
// connection loss.
func NewMQTT(cfg MQTTConfig, log *slog.Logger) (*MQTTBroker, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.URL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn("mqtt connection lost", "err", err)
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("connecting to mqtt broker %s: timeout", cfg.URL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to mqtt broker %s: %w", cfg.URL, err)
	}

	return &MQTTBroker{client: client, log: log}, nil
}

// Publish sends payload at QoS 0. The token is not waited on beyond the
// handoff; undelivered windows are re-derived at the next tick.
func (b *MQTTBroker) Publish(topic string, payload []byte) error {
	token := b.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish to %s: timeout", topic)
	}
	return token.Error()
}

// Subscribe registers handler for topic (wildcards allowed).
func (b *MQTTBroker) Subscribe(topic string, handler Handler) error {
	token := b.client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("subscribe to %s: timeout", topic)
	}
	return token.Error()
}

// Close disconnects from the broker.
func (b *MQTTBroker) Close() error {
	b.client.Disconnect(250)
	return nil
}
