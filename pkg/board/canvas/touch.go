package canvas

import (
	"context"
	"math"
	"sync"

	"github.com/alex-tsiresy/lorebridge/pkg/board"
)

// touchDragThreshold is how far (in screen pixels) a touch must travel
// before it counts as a drag rather than a tap.
const touchDragThreshold = 10

// TouchDrop is the synthetic drop produced by a completed touch drag,
// standing in for the HTML5 drop event touch devices never fire.
type TouchDrop struct {
	Kind     board.NodeKind
	Position board.Position // screen coordinates
}

// TouchTracker emulates palette drag-and-drop for touch input: a touch-down
// on a palette entry arms it, movement past the threshold turns it into a
// drag, and touch-up over the canvas produces a TouchDrop.
type TouchTracker struct {
	mu       sync.Mutex
	armed    bool
	dragging bool
	kind     board.NodeKind
	start    board.Position
	current  board.Position
}

// NewTouchTracker returns an idle tracker.
func NewTouchTracker() *TouchTracker {
	return &TouchTracker{}
}

// Start arms the tracker from a touch-down on a palette entry.
func (t *TouchTracker) Start(kind board.NodeKind, pos board.Position) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.armed = true
	t.dragging = false
	t.kind = kind
	t.start = pos
	t.current = pos
}

// Move updates the touch position. The drag begins once movement exceeds the
// threshold; before that a touch-up is treated as a tap, not a drop.
func (t *TouchTracker) Move(pos board.Position) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.armed {
		return
	}
	t.current = pos
	if !t.dragging {
		dx := pos.X - t.start.X
		dy := pos.Y - t.start.Y
		if math.Hypot(dx, dy) >= touchDragThreshold {
			t.dragging = true
		}
	}
}

// Dragging reports whether a drag is in progress (for ghost rendering).
func (t *TouchTracker) Dragging() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dragging
}

// End finishes the interaction. It returns a TouchDrop only if the touch had
// become a drag; taps return nil.
func (t *TouchTracker) End(pos board.Position) *TouchDrop {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.armed {
		return nil
	}
	wasDragging := t.dragging
	kind := t.kind
	t.armed = false
	t.dragging = false

	if !wasDragging {
		return nil
	}
	return &TouchDrop{Kind: kind, Position: pos}
}

// Cancel aborts the interaction (touchcancel, palette scroll).
func (t *TouchTracker) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.armed = false
	t.dragging = false
}

// HandleTouchDrop applies a synthetic drop to the canvas, creating the node
// at the projected position.
func (c *Canvas) HandleTouchDrop(ctx context.Context, drop *TouchDrop) (board.Node, bool) {
	if drop == nil {
		return board.Node{}, false
	}
	return c.Drop(ctx, drop.Kind, drop.Position), true
}
