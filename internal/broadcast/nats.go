package broadcast

import (
	"sync"

	"github.com/fernwake/go-grove/internal/events"
	"github.com/fernwake/go-grove/internal/messaging"
)

// Publisher is the subject-level transport the channel fans out
// through, satisfied by messaging.NatsServer.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NatsChannel fans events out over per-connection NATS subjects. The
// listener attaches each connection as it subscribes and detaches it on
// teardown, so to-all sends iterate only live connections.
type NatsChannel struct {
	mu    sync.RWMutex
	conns map[string]struct{}
	pub   Publisher
}

func NewNatsChannel(pub Publisher) *NatsChannel {
	return &NatsChannel{
		conns: make(map[string]struct{}),
		pub:   pub,
	}
}

// Attach registers a live connection for to-all delivery.
func (c *NatsChannel) Attach(connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns[connID] = struct{}{}
}

// Detach removes a connection. Idempotent.
func (c *NatsChannel) Detach(connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.conns, connID)
}

func (c *NatsChannel) ToConn(connID, event string, payload any) error {
	data, err := events.Encode(event, payload)
	if err != nil {
		return err
	}
	return c.pub.Publish(messaging.ConnSubject(connID), data)
}

func (c *NatsChannel) ToAll(event string, payload any) error {
	return c.fanOut("", event, payload)
}

func (c *NatsChannel) ToAllExcept(connID, event string, payload any) error {
	return c.fanOut(connID, event, payload)
}

func (c *NatsChannel) fanOut(exclude, event string, payload any) error {
	data, err := events.Encode(event, payload)
	if err != nil {
		return err
	}

	c.mu.RLock()
	targets := make([]string, 0, len(c.conns))
	for id := range c.conns {
		if id == exclude {
			continue
		}
		targets = append(targets, id)
	}
	c.mu.RUnlock()

	var firstErr error
	for _, id := range targets {
		if err := c.pub.Publish(messaging.ConnSubject(id), data); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
