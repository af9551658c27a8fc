package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saaga0h/shelf-bridge/pkg/mqtt"
)

// Publisher is the outbound half of the transport
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Correlator turns a published command into a blocking call that returns the
// matching acknowledgement or a timeout marker.
type Correlator struct {
	publisher Publisher
	logger    *slog.Logger
	newID     func() string

	// pending maps correlation id to a single-slot response channel.
	// mu guards only map access, never a wait.
	mu      sync.Mutex
	pending map[string]chan map[string]any
}

// NewCorrelator creates a correlator publishing through publisher
func NewCorrelator(publisher Publisher, logger *slog.Logger) *Correlator {
	return &Correlator{
		publisher: publisher,
		logger:    logger,
		newID:     uuid.NewString,
		pending:   make(map[string]chan map[string]any),
	}
}

// Request publishes cmd on topic at QoS 1 and waits up to timeout for its ack.
// The pending entry is removed on every return path. A publish failure returns
// ErrPublishFailed; a missed deadline returns a timeout Ack and no error.
func (c *Correlator) Request(ctx context.Context, topic string, cmd *DisplayCommand, timeout time.Duration) (*Ack, error) {
	id := c.newID()
	cmd.CorrelationID = id

	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal command: %w", err)
	}

	ch := c.register(id)
	defer c.remove(id)

	c.logger.Info("Publishing display command",
		"topic", topic,
		"correlation_id", id,
		"shelf", cmd.Shelf,
		"name", cmd.Name)

	if err := c.publisher.Publish(topic, mqtt.QoSAtLeastOnce, false, payload); err != nil {
		c.logger.Error("Display command publish failed", "topic", topic, "correlation_id", id, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case body := <-ch:
		c.logger.Info("Display command acknowledged", "correlation_id", id, "shelf", cmd.Shelf)
		return &Ack{CorrelationID: id, Status: StatusAcked, Body: body}, nil
	case <-timer.C:
		c.logger.Warn("Display command timed out", "correlation_id", id, "shelf", cmd.Shelf, "timeout", timeout)
		return timeoutAck(id), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for ack %s: %w", id, ctx.Err())
	}
}

// Deliver hands body to the waiter registered under id. The entry is removed in
// the same critical section, so only the first ack for an id is delivered.
// Returns false when nobody is waiting.
func (c *Correlator) Deliver(id string, body map[string]any) bool {
	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}

	// The channel has one slot and exactly one sender, so this never blocks
	select {
	case ch <- body:
	default:
	}
	return true
}

// Pending returns the number of in-flight commands
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Correlator) register(id string) chan map[string]any {
	ch := make(chan map[string]any, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	return ch
}

func (c *Correlator) remove(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}
