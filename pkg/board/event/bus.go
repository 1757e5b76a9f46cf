package event

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Handler processes a delivered event.
type Handler func(ctx context.Context, evt Event)

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe removes the subscription.
	Unsubscribe()

	// Pause temporarily stops delivery.
	Pause()

	// Resume continues delivery after pause.
	Resume()

	// IsPaused returns true if the subscription is paused.
	IsPaused() bool
}

// BusConfig configures bus behavior.
type BusConfig struct {
	// BufferSize is the channel buffer size per subscription.
	// Default: 256
	BufferSize int

	// NonBlocking makes Publish non-blocking (drops events if buffer full).
	// Default: false (blocking)
	NonBlocking bool

	// OnDrop is called when an event is dropped (non-blocking mode).
	OnDrop func(evt Event, subscriberID string)
}

// DefaultBusConfig provides reasonable defaults.
var DefaultBusConfig = BusConfig{
	BufferSize: 256,
}

// Bus is an in-memory pub/sub bus with per-type and per-node filtering.
//
// Delivery is asynchronous: each subscription has a buffered channel drained
// by its own goroutine, so a slow overlay cannot stall the deriver that is
// publishing token updates.
type Bus struct {
	config BusConfig

	mu            sync.RWMutex
	subscriptions map[string]*subscription
	byType        map[string]map[string]*subscription // event type -> subscription ID -> subscription
	wildcards     map[string]*subscription            // subscriptions for all events

	nextID  atomic.Int64
	closed  atomic.Bool
	closeCh chan struct{}
}

// NewBus creates a new event bus.
func NewBus(config BusConfig) *Bus {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBusConfig.BufferSize
	}

	return &Bus{
		config:        config,
		subscriptions: make(map[string]*subscription),
		byType:        make(map[string]map[string]*subscription),
		wildcards:     make(map[string]*subscription),
		closeCh:       make(chan struct{}),
	}
}

// subscription is an internal subscription implementation.
type subscription struct {
	id      string
	types   []string // empty = all types
	nodeID  string   // empty = all nodes
	handler Handler
	events  chan Event
	paused  atomic.Bool
	done    chan struct{}
	closeMu sync.Mutex
	closed  bool
	bus     *Bus
}

// Publish sends an event to all matching subscribers.
func (b *Bus) Publish(ctx context.Context, evt Event) error {
	if b.closed.Load() {
		return fmt.Errorf("publish %s: bus is closed", evt.Type)
	}

	b.mu.RLock()
	subs := b.matching(evt)
	b.mu.RUnlock()

	for _, sub := range subs {
		if sub.paused.Load() {
			continue
		}

		if b.config.NonBlocking {
			select {
			case sub.events <- evt:
			default:
				// Buffer full - drop event
				if b.config.OnDrop != nil {
					b.config.OnDrop(evt, sub.id)
				}
			}
		} else {
			select {
			case sub.events <- evt:
			case <-ctx.Done():
				return ctx.Err()
			case <-b.closeCh:
				return fmt.Errorf("publish %s: bus closed during publish", evt.Type)
			}
		}
	}

	return nil
}

// Subscribe creates a subscription for specific event types. A non-empty
// nodeID additionally restricts delivery to events for that node; consumers
// must not re-filter in handlers.
func (b *Bus) Subscribe(types []string, nodeID string, handler Handler) Subscription {
	return b.subscribe(types, nodeID, handler)
}

// SubscribeAll subscribes to all events on the bus.
func (b *Bus) SubscribeAll(handler Handler) Subscription {
	return b.subscribe(nil, "", handler)
}

func (b *Bus) subscribe(types []string, nodeID string, handler Handler) *subscription {
	if b.closed.Load() {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := fmt.Sprintf("sub-%d", b.nextID.Add(1))
	sub := &subscription{
		id:      id,
		types:   types,
		nodeID:  nodeID,
		handler: handler,
		events:  make(chan Event, b.config.BufferSize),
		done:    make(chan struct{}),
		bus:     b,
	}

	b.subscriptions[sub.id] = sub

	if len(types) == 0 {
		b.wildcards[sub.id] = sub
	} else {
		for _, t := range types {
			if b.byType[t] == nil {
				b.byType[t] = make(map[string]*subscription)
			}
			b.byType[t][sub.id] = sub
		}
	}

	go sub.process()

	return sub
}

// matching returns all subscriptions matching an event's type and node.
func (b *Bus) matching(evt Event) []*subscription {
	subs := make([]*subscription, 0)

	if typeSubs, ok := b.byType[evt.Type]; ok {
		for _, sub := range typeSubs {
			if sub.nodeID == "" || sub.nodeID == evt.NodeID {
				subs = append(subs, sub)
			}
		}
	}

	for _, sub := range b.wildcards {
		if sub.nodeID == "" || sub.nodeID == evt.NodeID {
			subs = append(subs, sub)
		}
	}

	return subs
}

// Close shuts down the bus and all subscriptions.
func (b *Bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil // Already closed
	}

	close(b.closeCh)

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subscriptions {
		sub.close()
	}

	return nil
}

// process handles events for a subscription.
func (s *subscription) process() {
	for {
		select {
		case evt := <-s.events:
			if s.paused.Load() {
				continue
			}
			s.handler(context.Background(), evt)

		case <-s.done:
			return
		}
	}
}

// close signals the processing goroutine to stop. Safe to call twice.
func (s *subscription) close() {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}

// Unsubscribe removes the subscription.
func (s *subscription) Unsubscribe() {
	s.bus.mu.Lock()
	delete(s.bus.subscriptions, s.id)
	delete(s.bus.wildcards, s.id)

	for _, t := range s.types {
		if typeSubs, ok := s.bus.byType[t]; ok {
			delete(typeSubs, s.id)
		}
	}
	s.bus.mu.Unlock()

	s.close()
}

// Pause temporarily stops delivery.
func (s *subscription) Pause() {
	s.paused.Store(true)
}

// Resume continues delivery after pause.
func (s *subscription) Resume() {
	s.paused.Store(false)
}

// IsPaused returns true if the subscription is paused.
func (s *subscription) IsPaused() bool {
	return s.paused.Load()
}
