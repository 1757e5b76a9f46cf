package board

import (
	"context"
	"sync"

	"github.com/alex-tsiresy/lorebridge/pkg/board/event"
)

// FullScreen is the single-slot controller for the expanded node overlay.
// At most one node may be full-screen per board session; setting a new id
// replaces any previous one. The overlay itself is a pure view: it subscribes
// to the expanded node's content broadcasts and never fetches or mutates.
type FullScreen struct {
	bus *event.Bus

	mu     sync.Mutex
	nodeID string
}

// NewFullScreen creates a controller publishing transitions on bus.
// bus may be nil, in which case transitions are tracked but not broadcast.
func NewFullScreen(bus *event.Bus) *FullScreen {
	return &FullScreen{bus: bus}
}

// Set expands the given node, replacing any previously expanded one.
func (f *FullScreen) Set(ctx context.Context, nodeID string) {
	f.mu.Lock()
	previous := f.nodeID
	f.nodeID = nodeID
	f.mu.Unlock()

	if previous == nodeID {
		return
	}
	if previous != "" {
		f.publish(ctx, previous, false)
	}
	if nodeID != "" {
		f.publish(ctx, nodeID, true)
	}
}

// Close collapses the overlay only if nodeID matches the active node.
// A stale close request (escape pressed for a node that was already
// replaced) is a no-op.
func (f *FullScreen) Close(ctx context.Context, nodeID string) {
	f.mu.Lock()
	if f.nodeID != nodeID || nodeID == "" {
		f.mu.Unlock()
		return
	}
	f.nodeID = ""
	f.mu.Unlock()

	f.publish(ctx, nodeID, false)
}

// Active returns the expanded node id, or "" when no overlay is open.
func (f *FullScreen) Active() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nodeID
}

func (f *FullScreen) publish(ctx context.Context, nodeID string, active bool) {
	if f.bus == nil {
		return
	}
	evt := event.New(event.TypeFullscreenTransition, nodeID, event.FullscreenTransition{
		NodeID: nodeID,
		Active: active,
	})
	_ = f.bus.Publish(ctx, evt)
}
