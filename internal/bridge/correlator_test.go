package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestAcknowledged(t *testing.T) {
	client := &fakeClient{}
	c := NewCorrelator(client, testLogger())
	c.newID = func() string { return "cid-1" }

	client.onPublish = func(p published) {
		cmd := p.command(t)
		assert.True(t, c.Deliver(cmd.CorrelationID, map[string]any{"correlation_id": cmd.CorrelationID, "ok": true}))
	}

	cmd := &DisplayCommand{Shelf: 2, Name: "Apple", Price: 3.5, Currency: "PLN"}
	ack, err := c.Request(context.Background(), "store/shelf/2/display/cmd", cmd, time.Second)
	require.NoError(t, err)

	assert.Equal(t, "cid-1", ack.CorrelationID)
	assert.Equal(t, StatusAcked, ack.Status)
	assert.False(t, ack.TimedOut())
	assert.Equal(t, true, ack.Body["ok"])
	assert.Equal(t, 0, c.Pending())

	msgs := client.publishedMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, byte(1), msgs[0].QoS)
	assert.False(t, msgs[0].Retained)
	assert.Equal(t, "cid-1", msgs[0].command(t).CorrelationID)
}

func TestRequestTimeout(t *testing.T) {
	client := &fakeClient{}
	c := NewCorrelator(client, testLogger())

	var id string
	client.onPublish = func(p published) {
		id = p.command(t).CorrelationID
		assert.Equal(t, 1, c.Pending(), "entry is registered before publish")
	}

	timeout := 50 * time.Millisecond
	start := time.Now()
	ack, err := c.Request(context.Background(), "store/shelf/1/display/cmd", &DisplayCommand{Shelf: 1}, timeout)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.True(t, ack.TimedOut())
	assert.Equal(t, map[string]any{"status": "timeout", "correlation_id": id}, ack.Body)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, time.Second)
	assert.Equal(t, 0, c.Pending())

	// A late ack finds no waiter and is dropped
	assert.False(t, c.Deliver(id, map[string]any{"correlation_id": id}))
}

func TestRequestPublishFailure(t *testing.T) {
	client := &fakeClient{publishErr: errors.New("not connected")}
	c := NewCorrelator(client, testLogger())

	ack, err := c.Request(context.Background(), "store/shelf/1/display/cmd", &DisplayCommand{Shelf: 1}, time.Second)
	assert.Nil(t, ack)
	assert.ErrorIs(t, err, ErrPublishFailed)
	assert.Contains(t, err.Error(), "not connected")
	assert.Equal(t, 0, c.Pending())
}

func TestRequestContextCancelled(t *testing.T) {
	client := &fakeClient{}
	c := NewCorrelator(client, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	client.onPublish = func(published) { cancel() }

	_, err := c.Request(ctx, "store/shelf/1/display/cmd", &DisplayCommand{Shelf: 1}, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, c.Pending())
}

func TestConcurrentRequestsGetOwnAck(t *testing.T) {
	client := &fakeClient{}
	c := NewCorrelator(client, testLogger())

	var (
		mu  sync.Mutex
		ids []string
	)
	client.onPublish = func(p published) {
		mu.Lock()
		ids = append(ids, p.command(t).CorrelationID)
		if len(ids) < 2 {
			mu.Unlock()
			return
		}
		both := append([]string(nil), ids...)
		mu.Unlock()

		// Acks arrive in reverse publish order
		go func() {
			for i := len(both) - 1; i >= 0; i-- {
				c.Deliver(both[i], map[string]any{"correlation_id": both[i], "echo": both[i]})
			}
		}()
	}

	type result struct {
		ack *Ack
		err error
	}
	results := make([]result, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ack, err := c.Request(context.Background(), "store/shelf/1/display/cmd", &DisplayCommand{Shelf: i + 1}, 2*time.Second)
			results[i] = result{ack, err}
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		require.NoError(t, r.err)
		require.Equal(t, StatusAcked, r.ack.Status)
		assert.Equal(t, r.ack.CorrelationID, r.ack.Body["echo"])
	}
	assert.NotEqual(t, results[0].ack.CorrelationID, results[1].ack.CorrelationID)
	assert.Equal(t, 0, c.Pending())
}

func TestDeliverFirstAckWins(t *testing.T) {
	c := NewCorrelator(&fakeClient{}, testLogger())
	ch := c.register("dup")

	assert.True(t, c.Deliver("dup", map[string]any{"n": 1.0}))
	assert.False(t, c.Deliver("dup", map[string]any{"n": 2.0}))

	body := <-ch
	assert.Equal(t, 1.0, body["n"])
}
