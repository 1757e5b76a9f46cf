package board_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alex-tsiresy/lorebridge/pkg/board"
)

func TestHandleVisibility(t *testing.T) {
	tr := board.NewConnectionTracker()
	h := board.Handle{Side: board.SideLeft, Role: board.RoleTarget}

	// Idle, unselected, not hovered: hidden.
	assert.False(t, tr.HandleVisible("node-x", h, false))

	// Selected node always shows its handles.
	assert.True(t, tr.HandleVisible("node-x", h, true))

	// During a drag every handle on every node is visible, even on an
	// unrelated, unselected node.
	tr.Begin("node-src", board.Handle{Side: board.SideRight, Role: board.RoleSource}, board.Position{X: 1, Y: 1})
	assert.True(t, tr.HandleVisible("node-x", h, false))
	assert.True(t, tr.HandleVisible("node-unrelated", board.Handle{Side: board.SideTop, Role: board.RoleTarget}, false))

	tr.End()
	assert.False(t, tr.HandleVisible("node-x", h, false))
}

func TestHandleVisibilityHover(t *testing.T) {
	tr := board.NewConnectionTracker()
	h := board.Handle{Side: board.SideTop, Role: board.RoleSource}

	tr.Hover("node-x", h)
	assert.True(t, tr.HandleVisible("node-x", h, false))
	// Only the hovered handle, not siblings.
	assert.False(t, tr.HandleVisible("node-x", board.Handle{Side: board.SideTop, Role: board.RoleTarget}, false))
	assert.False(t, tr.HandleVisible("node-y", h, false))

	tr.Unhover()
	assert.False(t, tr.HandleVisible("node-x", h, false))
}

func TestConnectionDragLifecycle(t *testing.T) {
	tr := board.NewConnectionTracker()
	assert.False(t, tr.Active())

	// Move before Begin is ignored.
	tr.Move(board.Position{X: 50, Y: 50})
	assert.Equal(t, board.Position{}, tr.Cursor())

	src := board.Handle{Side: board.SideRight, Role: board.RoleSource}
	tr.Begin("node-a", src, board.Position{X: 10, Y: 10})
	assert.True(t, tr.Active())

	tr.Move(board.Position{X: 20, Y: 30})
	assert.Equal(t, board.Position{X: 20, Y: 30}, tr.Cursor())

	nodeID, handle, wasActive := tr.End()
	assert.True(t, wasActive)
	assert.Equal(t, "node-a", nodeID)
	assert.Equal(t, src, handle)
	assert.False(t, tr.Active())

	_, _, wasActive = tr.End()
	assert.False(t, wasActive)
}
