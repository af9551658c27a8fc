package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/saaga0h/shelf-bridge/internal/telemetry"
	"github.com/saaga0h/shelf-bridge/pkg/mqtt"
)

// TelemetrySink receives telemetry bodies
type TelemetrySink interface {
	Apply(ctx context.Context, topic string, body map[string]any) ([]telemetry.Reading, error)
}

// Dispatcher drains inbound messages one at a time, in arrival order, routing
// acknowledgements to the correlator and telemetry to the sink.
type Dispatcher struct {
	inbound    chan mqtt.Message
	done       chan struct{}
	correlator *Correlator
	sink       TelemetrySink
	logger     *slog.Logger
}

// NewDispatcher creates a dispatcher with an inbound queue of queueSize messages
func NewDispatcher(correlator *Correlator, sink TelemetrySink, queueSize int, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		inbound:    make(chan mqtt.Message, queueSize),
		done:       make(chan struct{}),
		correlator: correlator,
		sink:       sink,
		logger:     logger,
	}
}

// Enqueue is the transport's message handler. A full queue pushes back on the
// transport; once Run has returned, messages are dropped.
func (d *Dispatcher) Enqueue(msg mqtt.Message) {
	select {
	case d.inbound <- msg:
	case <-d.done:
		d.logger.Debug("Dispatcher stopped, dropping message", "topic", msg.Topic())
	}
}

// Run processes messages until ctx is cancelled
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)

	d.logger.Info("Message dispatcher running")
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Message dispatcher stopping")
			return
		case msg := <-d.inbound:
			d.dispatch(ctx, msg)
		}
	}
}

// dispatch contains every failure, including panics, to the one message
func (d *Dispatcher) dispatch(ctx context.Context, msg mqtt.Message) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Message handler panic recovered", "topic", msg.Topic(), "panic", r)
		}
	}()

	_ = d.Handle(ctx, msg.Topic(), msg.Payload())
}

// Handle classifies and routes one message. Errors are logged here and returned
// for callers that want the classification; they are never fatal.
func (d *Dispatcher) Handle(ctx context.Context, topic string, payload []byte) error {
	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil || body == nil {
		d.logger.Warn("Dropping malformed message", "topic", topic, "error", err, "size", len(payload))
		return fmt.Errorf("%w: topic %s", ErrMalformedMessage, topic)
	}

	// Acks carry the join key; telemetry does not
	if id := correlationID(body); id != "" {
		if d.correlator.Deliver(id, body) {
			d.logger.Debug("Delivered acknowledgement", "topic", topic, "correlation_id", id)
		} else {
			d.logger.Debug("No waiter for acknowledgement", "topic", topic, "correlation_id", id)
		}
	}

	if !mqtt.IsTelemetryTopic(topic) {
		return nil
	}

	d.logger.Debug("Telemetry received",
		"topic", topic,
		"device", deviceOf(body),
		"ts", body[telemetry.KeyTimestamp],
		"d1_mm", body[telemetry.KeyPrimaryDistance],
		"d2_mm", body[telemetry.KeySecondaryDistance],
		"weight_g", body[telemetry.KeyWeightGrams])

	readings, err := d.sink.Apply(ctx, topic, body)
	switch {
	case err == nil:
		for _, r := range readings {
			d.logger.Info("Shelf state updated", "shelf", r.Shelf, "field", r.Field, "value", r.Value)
		}
	case errors.Is(err, telemetry.ErrNoParsableValue):
		d.logger.Debug("Telemetry carried no value for its shelf, skipped", "topic", topic, "reason", err)
	default:
		d.logger.Error("Failed to store telemetry", "topic", topic, "written", len(readings), "error", err)
	}
	return err
}

func deviceOf(body map[string]any) any {
	if dev, ok := body[telemetry.KeyDevice]; ok {
		return dev
	}
	return "?"
}
