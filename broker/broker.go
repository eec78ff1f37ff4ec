// Package broker abstracts the publish/subscribe transport carrying
// Diagnostics between pipeline stages. Delivery is best-effort and
// at-most-once; ordering is only guaranteed within a single key.
package broker

// Handler receives one published payload.
type Handler func(topic string, payload []byte)

// Broker is a topic-based publish/subscribe transport.
type Broker interface {
	// Publish sends payload to every subscriber of topic. Best-effort:
	// an error means the message was certainly not delivered, nil means
	// it was handed to the transport.
	Publish(topic string, payload []byte) error

	// Subscribe registers handler for topic. The filter may use MQTT-style
	// wildcards ("sentinel/#").
	Subscribe(topic string, handler Handler) error

	// Close releases the transport.
	Close() error
}

// Default topic layout of the sentinel mesh.
const (
	TopicDiag   = "sentinel/diag"
	TopicHealth = "sentinel/health"
	TopicAlerts = "sentinel/alert"
	TopicAll    = "sentinel/#"
)
