package board

import "sync"

// ConnectionTracker holds the transient edge-drawing state: whether a drag
// from a source handle is in progress, the live cursor position, and which
// handle (if any) the pointer is hovering. It exists to answer one question,
// HandleVisible, without the canvas re-deriving it per render.
type ConnectionTracker struct {
	mu sync.RWMutex

	active       bool
	sourceNodeID string
	sourceHandle Handle
	cursor       Position
	hoverNodeID  string
	hoverHandle  Handle
	hovering     bool
}

// NewConnectionTracker returns an idle tracker.
func NewConnectionTracker() *ConnectionTracker {
	return &ConnectionTracker{}
}

// Begin records a pointer-down on a source handle.
func (t *ConnectionTracker) Begin(nodeID string, handle Handle, cursor Position) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = true
	t.sourceNodeID = nodeID
	t.sourceHandle = handle
	t.cursor = cursor
}

// Move updates the live cursor position during a drag. No-op when idle.
func (t *ConnectionTracker) Move(cursor Position) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return
	}
	t.cursor = cursor
}

// End clears the drag state on pointer-up and returns the drag's source, so
// the caller can complete a connection against the drop target.
func (t *ConnectionTracker) End() (nodeID string, handle Handle, wasActive bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	nodeID, handle, wasActive = t.sourceNodeID, t.sourceHandle, t.active
	t.active = false
	t.sourceNodeID = ""
	t.sourceHandle = Handle{}
	return nodeID, handle, wasActive
}

// Hover records the handle currently under the pointer.
func (t *ConnectionTracker) Hover(nodeID string, handle Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hovering = true
	t.hoverNodeID = nodeID
	t.hoverHandle = handle
}

// Unhover clears the hovered handle.
func (t *ConnectionTracker) Unhover() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hovering = false
	t.hoverNodeID = ""
	t.hoverHandle = Handle{}
}

// Active reports whether a connection drag is in progress.
func (t *ConnectionTracker) Active() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.active
}

// Cursor returns the last recorded drag position.
func (t *ConnectionTracker) Cursor() Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cursor
}

// HandleVisible decides whether a handle renders visibly. A handle is
// visible if its node is selected, a connection drag is in progress anywhere
// on the board, or the pointer is hovering that specific handle.
//
// During a drag, every handle on every node is visible: the historical
// near-cursor gating was never distance-based in practice, and showing all
// handles maximizes drop targets. Visibility must be toggled with opacity
// only (no layout shift) by the rendering layer.
func (t *ConnectionTracker) HandleVisible(nodeID string, handle Handle, nodeSelected bool) bool {
	if nodeSelected {
		return true
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.active {
		return true
	}
	return t.hovering && t.hoverNodeID == nodeID && t.hoverHandle == handle
}
