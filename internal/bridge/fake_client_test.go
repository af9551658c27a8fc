package bridge

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/saaga0h/shelf-bridge/pkg/config"
	"github.com/saaga0h/shelf-bridge/pkg/mqtt"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.ConnectWait = 0
	return cfg
}

type published struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// command decodes a published display command
func (p published) command(t *testing.T) DisplayCommand {
	t.Helper()
	var cmd DisplayCommand
	if err := json.Unmarshal(p.Payload, &cmd); err != nil {
		t.Fatalf("published payload is not a command: %v", err)
	}
	return cmd
}

// fakeClient is an in-memory mqtt.Client. Connection events and inbound
// messages are driven by the test.
type fakeClient struct {
	mu            sync.Mutex
	connectCalls  int
	subscriptions []mqtt.Subscription
	handler       mqtt.MessageHandler
	published     []published
	connected     bool
	publishErr    error
	onPublish     func(published)

	onConnect        func()
	onConnectionLost func(error)
}

func (f *fakeClient) Connect(ctx context.Context) error {
	f.ConnectAsync()
	return nil
}

func (f *fakeClient) ConnectAsync() {
	f.mu.Lock()
	f.connectCalls++
	f.mu.Unlock()
}

func (f *fakeClient) Disconnect() {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
}

func (f *fakeClient) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscriptions = append(f.subscriptions, mqtt.Subscription{Topic: topic, QoS: qos})
	f.handler = handler
	return nil
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	f.mu.Lock()
	if f.publishErr != nil {
		err := f.publishErr
		f.mu.Unlock()
		return err
	}
	p := published{Topic: topic, QoS: qos, Retained: retained, Payload: payload}
	f.published = append(f.published, p)
	hook := f.onPublish
	f.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	return nil
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) SetConnectionHandlers(onConnect func(), onConnectionLost func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onConnect = onConnect
	f.onConnectionLost = onConnectionLost
}

// simulateConnect plays a successful (re)connect
func (f *fakeClient) simulateConnect() {
	f.mu.Lock()
	f.connected = true
	cb := f.onConnect
	f.mu.Unlock()
	cb()
}

// simulateLoss plays a transport-level disconnect
func (f *fakeClient) simulateLoss(err error) {
	f.mu.Lock()
	f.connected = false
	cb := f.onConnectionLost
	f.mu.Unlock()
	cb(err)
}

// inject delivers an inbound message through the subscribed handler
func (f *fakeClient) inject(topic string, payload []byte) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h(&fakeMessage{topic: topic, payload: payload})
}

func (f *fakeClient) publishedMessages() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.published...)
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Topic() string   { return m.topic }
func (m *fakeMessage) Payload() []byte { return m.payload }
func (m *fakeMessage) Ack()            {}
