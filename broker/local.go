package broker

import (
	"strings"
	"sync"
)

// LocalBroker is an in-process Broker for tests and single-binary runs.
// Handlers run synchronously on the publisher's goroutine.
type LocalBroker struct {
	mu   sync.RWMutex
	subs []localSub
}

type localSub struct {
	filter  string
	handler Handler
}

// NewLocal creates an empty in-process broker.
func NewLocal() *LocalBroker {
	return &LocalBroker{}
}

// Publish delivers payload to every matching subscriber.
func (b *LocalBroker) Publish(topic string, payload []byte) error {
	b.mu.RLock()
	subs := append([]localSub(nil), b.subs...)
	b.mu.RUnlock()

	for _, s := range subs {
		if topicMatches(s.filter, topic) {
			s.handler(topic, payload)
		}
	}
	return nil
}

// Subscribe registers handler for an MQTT-style topic filter.
func (b *LocalBroker) Subscribe(topic string, handler Handler) error {
	b.mu.Lock()
	b.subs = append(b.subs, localSub{filter: topic, handler: handler})
	b.mu.Unlock()
	return nil
}

// Close is a no-op for the in-process broker.
func (b *LocalBroker) Close() error { return nil }

// topicMatches implements MQTT filter matching with "+" and "#" wildcards.
func topicMatches(filter, topic string) bool {
	if filter == topic {
		return true
	}
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")
	for i, f := range fp {
		if f == "#" {
			return true
		}
		if i >= len(tp) {
			return false
		}
		if f != "+" && f != tp[i] {
			return false
		}
	}
	return len(fp) == len(tp)
}
