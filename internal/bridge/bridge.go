package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saaga0h/shelf-bridge/internal/shelfstate"
	"github.com/saaga0h/shelf-bridge/pkg/config"
	"github.com/saaga0h/shelf-bridge/pkg/mqtt"
)

// ConnectionState tracks the bus session.
//
//	NotStarted -> Starting -> Connected <-> Reconnecting
type ConnectionState int32

const (
	StateNotStarted ConnectionState = iota
	StateStarting
	StateConnected
	StateReconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateStarting:
		return "starting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	}
	return "unknown"
}

// Bridge owns the single bus session of the process. It is constructed once by
// the host's startup sequence and shared with anything that issues commands.
type Bridge struct {
	client     mqtt.Client
	cfg        *config.Config
	logger     *slog.Logger
	correlator *Correlator
	dispatcher *Dispatcher

	state atomic.Int32

	// ready is closed while connected and replaced on connection loss
	readyMu sync.Mutex
	ready   chan struct{}

	stopOnce sync.Once
	cancel   context.CancelFunc
}

// New wires a bridge around client. Telemetry goes to sink.
func New(client mqtt.Client, sink TelemetrySink, cfg *config.Config, logger *slog.Logger) *Bridge {
	correlator := NewCorrelator(client, logger)

	return &Bridge{
		client:     client,
		cfg:        cfg,
		logger:     logger,
		correlator: correlator,
		dispatcher: NewDispatcher(correlator, sink, cfg.InboundQueueSize, logger),
		ready:      make(chan struct{}),
		cancel:     func() {},
	}
}

// Start begins connecting in the background and returns without waiting.
// Only the first call has any effect. Setup failures are logged, never returned:
// the host keeps running without a bus until the transport connects.
func (b *Bridge) Start(ctx context.Context) {
	if !b.state.CompareAndSwap(int32(StateNotStarted), int32(StateStarting)) {
		b.logger.Debug("Bridge already started", "state", b.State())
		return
	}

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Bridge start failed, continuing without message bus", "panic", r)
		}
	}()

	b.logger.Info("Starting shelf bridge",
		"broker", b.cfg.MQTTAddress(),
		"topic_base", b.cfg.TopicBase,
		"reconnect_min", b.cfg.ReconnectMinDelay,
		"reconnect_max", b.cfg.ReconnectMaxDelay)

	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	go b.dispatcher.Run(runCtx)

	b.client.SetConnectionHandlers(b.handleConnect, b.handleConnectionLost)
	b.client.ConnectAsync()
}

// handleConnect runs on every successful (re)connect. The session is clean, so
// all subscriptions are issued again before commands are released.
func (b *Bridge) handleConnect() {
	for _, sub := range mqtt.BridgeSubscriptions(b.cfg.TopicBase) {
		if err := b.client.Subscribe(sub.Topic, sub.QoS, b.dispatcher.Enqueue); err != nil {
			b.logger.Error("Failed to subscribe to topic", "topic", sub.Topic, "error", err)
			// Continue subscribing to other topics even if one fails
			continue
		}
	}

	b.state.Store(int32(StateConnected))

	b.readyMu.Lock()
	select {
	case <-b.ready:
	default:
		close(b.ready)
	}
	b.readyMu.Unlock()

	b.logger.Info("Shelf bridge connected and subscribed")
}

func (b *Bridge) handleConnectionLost(err error) {
	b.state.Store(int32(StateReconnecting))

	b.readyMu.Lock()
	select {
	case <-b.ready:
		b.ready = make(chan struct{})
	default:
	}
	b.readyMu.Unlock()

	b.logger.Warn("Shelf bridge lost connection, transport will reconnect", "error", err)
}

// State returns the current connection state
func (b *Bridge) State() ConnectionState {
	return ConnectionState(b.state.Load())
}

// StateName returns the connection state as reported by health checks
func (b *Bridge) StateName() string {
	return b.State().String()
}

// IsConnected reports whether commands can currently be delivered
func (b *Bridge) IsConnected() bool {
	return b.State() == StateConnected
}

// WaitConnected blocks up to timeout for the session to be established
func (b *Bridge) WaitConnected(timeout time.Duration) bool {
	b.readyMu.Lock()
	ready := b.ready
	b.readyMu.Unlock()

	if timeout <= 0 {
		select {
		case <-ready:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ready:
		return true
	case <-timer.C:
		return false
	}
}

// SendCommand publishes cmd to a shelf display and waits for the acknowledgement.
// timeout <= 0 uses the configured default. The caller always gets a definite
// outcome within roughly ConnectWait + timeout: an Ack (possibly a timeout marker)
// or an error wrapping ErrPublishFailed, ErrNotStarted or ErrInvalidTarget.
func (b *Bridge) SendCommand(ctx context.Context, shelf int, cmd DisplayCommand, timeout time.Duration) (*Ack, error) {
	if !shelfstate.ValidShelf(shelf) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTarget, shelf)
	}
	if b.State() == StateNotStarted {
		return nil, ErrNotStarted
	}
	if timeout <= 0 {
		timeout = b.cfg.AckTimeout
	}

	// Publishing while disconnected is allowed to fail downstream
	if !b.WaitConnected(b.cfg.ConnectWait) {
		b.logger.Warn("Message bus not connected, publishing anyway", "shelf", shelf, "state", b.State())
	}

	cmd.Shelf = shelf
	if cmd.Timestamp == "" {
		cmd.Timestamp = formatCommandTime(time.Now())
	}

	return b.correlator.Request(ctx, mqtt.ShelfCommandTopic(b.cfg.TopicBase, shelf), &cmd, timeout)
}

// PendingCommands returns the number of commands awaiting acknowledgement
func (b *Bridge) PendingCommands() int {
	return b.correlator.Pending()
}

// Stop ends the dispatcher and closes the bus session
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		if b.State() == StateNotStarted {
			return
		}
		b.logger.Info("Stopping shelf bridge")
		b.cancel()
		b.client.Disconnect()
	})
}
