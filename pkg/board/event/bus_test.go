package event_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alex-tsiresy/lorebridge/pkg/board/event"
)

func publish(t *testing.T, bus *event.Bus, evt event.Event) {
	t.Helper()
	if err := bus.Publish(context.Background(), evt); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func TestBusTypeFiltering(t *testing.T) {
	bus := event.NewBus(event.BusConfig{BufferSize: 10})
	defer bus.Close()

	var received atomic.Int32
	sub := bus.Subscribe([]string{"document-content-update"}, "", func(ctx context.Context, evt event.Event) {
		received.Add(1)
	})
	defer sub.Unsubscribe()

	publish(t, bus, event.New("document-content-update", "n1", nil))
	publish(t, bus, event.New("table-content-update", "n1", nil))

	assert.Eventually(t, func() bool { return received.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), received.Load())
}

func TestBusNodeFiltering(t *testing.T) {
	bus := event.NewBus(event.BusConfig{BufferSize: 10})
	defer bus.Close()

	var mine, all atomic.Int32
	subMine := bus.Subscribe([]string{"remove-node"}, "node-1", func(ctx context.Context, evt event.Event) {
		mine.Add(1)
	})
	defer subMine.Unsubscribe()
	subAll := bus.Subscribe([]string{"remove-node"}, "", func(ctx context.Context, evt event.Event) {
		all.Add(1)
	})
	defer subAll.Unsubscribe()

	publish(t, bus, event.New("remove-node", "node-1", nil))
	publish(t, bus, event.New("remove-node", "node-2", nil))

	assert.Eventually(t, func() bool {
		return mine.Load() == 1 && all.Load() == 2
	}, time.Second, 5*time.Millisecond)
}

func TestBusWildcard(t *testing.T) {
	bus := event.NewBus(event.BusConfig{BufferSize: 10})
	defer bus.Close()

	var received atomic.Int32
	sub := bus.SubscribeAll(func(ctx context.Context, evt event.Event) {
		received.Add(1)
	})
	defer sub.Unsubscribe()

	publish(t, bus, event.New("a", "n1", nil))
	publish(t, bus, event.New("b", "n2", nil))
	publish(t, bus, event.New("c", "n3", nil))

	assert.Eventually(t, func() bool { return received.Load() == 3 }, time.Second, 5*time.Millisecond)
}

func TestBusPauseResume(t *testing.T) {
	bus := event.NewBus(event.BusConfig{BufferSize: 10})
	defer bus.Close()

	var received atomic.Int32
	sub := bus.Subscribe([]string{"tick"}, "", func(ctx context.Context, evt event.Event) {
		received.Add(1)
	})
	defer sub.Unsubscribe()

	sub.Pause()
	assert.True(t, sub.IsPaused())
	publish(t, bus, event.New("tick", "n1", nil))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), received.Load())

	sub.Resume()
	publish(t, bus, event.New("tick", "n1", nil))
	assert.Eventually(t, func() bool { return received.Load() >= 1 }, time.Second, 5*time.Millisecond)
}

func TestBusUnsubscribe(t *testing.T) {
	bus := event.NewBus(event.BusConfig{BufferSize: 10})
	defer bus.Close()

	var received atomic.Int32
	sub := bus.Subscribe([]string{"tick"}, "", func(ctx context.Context, evt event.Event) {
		received.Add(1)
	})

	publish(t, bus, event.New("tick", "n1", nil))
	assert.Eventually(t, func() bool { return received.Load() == 1 }, time.Second, 5*time.Millisecond)

	sub.Unsubscribe()
	publish(t, bus, event.New("tick", "n1", nil))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), received.Load())
}

func TestBusClosedPublishFails(t *testing.T) {
	bus := event.NewBus(event.DefaultBusConfig)
	bus.Close()
	err := bus.Publish(context.Background(), event.New("tick", "n1", nil))
	assert.Error(t, err)
}

func TestTopicHelpers(t *testing.T) {
	assert.Equal(t, "update-document-node", event.UpdateNode("document"))
	assert.Equal(t, "table-node-chat-session-update", event.ChatSessionUpdate("table"))
	assert.Equal(t, "graph-content-update", event.ContentUpdate("graph"))
}

func TestBusNonBlockingDrop(t *testing.T) {
	var dropped atomic.Int32
	bus := event.NewBus(event.BusConfig{
		BufferSize:  1,
		NonBlocking: true,
		OnDrop: func(evt event.Event, subscriberID string) {
			dropped.Add(1)
		},
	})
	defer bus.Close()

	block := make(chan struct{})
	sub := bus.Subscribe([]string{"tick"}, "", func(ctx context.Context, evt event.Event) {
		<-block
	})
	defer sub.Unsubscribe()
	defer close(block)

	// Flood well past the buffer; some must drop rather than stall the
	// publisher.
	for i := 0; i < 10; i++ {
		publish(t, bus, event.New("tick", "n1", nil))
	}
	assert.Eventually(t, func() bool { return dropped.Load() > 0 }, time.Second, 5*time.Millisecond)
}
