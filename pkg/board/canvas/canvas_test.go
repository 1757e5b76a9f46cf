package canvas_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alex-tsiresy/lorebridge/pkg/board"
	"github.com/alex-tsiresy/lorebridge/pkg/board/canvas"
)

func TestViewportProjectUnprojectInverse(t *testing.T) {
	v := canvas.Viewport{X: 120, Y: -40, Zoom: 1.5}

	screen := board.Position{X: 300, Y: 200}
	flow := v.Project(screen)
	back := v.Unproject(flow)

	assert.InDelta(t, screen.X, back.X, 1e-9)
	assert.InDelta(t, screen.Y, back.Y, 1e-9)
}

func TestViewportZeroZoomTreatedAsIdentity(t *testing.T) {
	v := canvas.Viewport{}
	p := v.Project(board.Position{X: 10, Y: 20})
	assert.Equal(t, board.Position{X: 10, Y: 20}, p)
}

func TestNodeBounds(t *testing.T) {
	_, ok := canvas.NodeBounds(nil)
	assert.False(t, ok)

	nodes := []board.Node{
		{ID: "a", Position: board.Position{X: 0, Y: 0}, Size: board.Size{Width: 100, Height: 50}},
		{ID: "b", Position: board.Position{X: 200, Y: -30}, Size: board.Size{Width: 80, Height: 60}},
	}
	b, ok := canvas.NodeBounds(nodes)
	require.True(t, ok)
	assert.Equal(t, 0.0, b.MinX)
	assert.Equal(t, -30.0, b.MinY)
	assert.Equal(t, 280.0, b.MaxX)
	assert.Equal(t, 50.0, b.MaxY)
}

func TestFitViewportCentersContent(t *testing.T) {
	nodes := []board.Node{
		{ID: "a", Position: board.Position{X: 0, Y: 0}, Size: board.Size{Width: 100, Height: 100}},
	}
	v, ok := canvas.FitViewport(nodes, 1000, 800)
	require.True(t, ok)

	// The content center must land on the screen center.
	center := v.Unproject(board.Position{X: 50, Y: 50})
	assert.InDelta(t, 500, center.X, 1e-6)
	assert.InDelta(t, 400, center.Y, 1e-6)

	// Zoom is clamped to at most 2 even for tiny content.
	assert.LessOrEqual(t, v.Zoom, 2.0)
}

func TestFitViewportZoomClamps(t *testing.T) {
	huge := []board.Node{
		{ID: "a", Position: board.Position{X: 0, Y: 0}, Size: board.Size{Width: 100000, Height: 100000}},
	}
	v, ok := canvas.FitViewport(huge, 1000, 800)
	require.True(t, ok)
	assert.InDelta(t, 0.1, v.Zoom, 1e-9)

	_, ok = canvas.FitViewport(nil, 1000, 800)
	assert.False(t, ok)
}

func TestMiniMapPreservesAspectRatio(t *testing.T) {
	nodes := []board.Node{
		{ID: "a", Position: board.Position{X: 0, Y: 0}, Size: board.Size{Width: 400, Height: 100}},
		{ID: "b", Position: board.Position{X: 400, Y: 100}, Size: board.Size{Width: 400, Height: 100}},
	}
	rects := canvas.MiniMap(nodes, 200, 200)
	require.Len(t, rects, 2)

	// Content is 800x200, map is 200x200, so scale is 0.25.
	assert.InDelta(t, 100.0, rects[0].Width, 1e-9)
	assert.InDelta(t, 25.0, rects[0].Height, 1e-9)
	assert.InDelta(t, 100.0, rects[1].X, 1e-9)
	assert.InDelta(t, 25.0, rects[1].Y, 1e-9)
}

func TestFitViewOnceLatch(t *testing.T) {
	flow := board.NewFlowManager("g1")
	flow.AddChatNode(context.Background(), board.Position{X: 100, Y: 100})

	c := canvas.NewCanvas(flow)
	require.True(t, c.FitViewOnce(1000, 800))
	first := c.Viewport()

	// Adding a node and fitting again must not move the viewport.
	flow.AddDocumentNode(context.Background(), board.Position{X: 2000, Y: 2000})
	assert.False(t, c.FitViewOnce(1000, 800))
	assert.Equal(t, first, c.Viewport())
}

func TestFitViewOnceEmptyBoardDoesNotLatch(t *testing.T) {
	flow := board.NewFlowManager("g1")
	c := canvas.NewCanvas(flow)

	// Nothing to fit yet; the latch stays open.
	assert.False(t, c.FitViewOnce(1000, 800))

	flow.AddChatNode(context.Background(), board.Position{X: 0, Y: 0})
	assert.True(t, c.FitViewOnce(1000, 800))
}

func TestDropProjectsScreenPosition(t *testing.T) {
	flow := board.NewFlowManager("g1")
	c := canvas.NewCanvas(flow)
	c.SetViewport(canvas.Viewport{X: 100, Y: 100, Zoom: 2})

	n := c.Drop(context.Background(), board.KindChat, board.Position{X: 300, Y: 500})
	assert.Equal(t, board.KindChat, n.Kind)
	assert.InDelta(t, 100.0, n.Position.X, 1e-9)
	assert.InDelta(t, 200.0, n.Position.Y, 1e-9)
}

func TestTouchTapDoesNotDrop(t *testing.T) {
	tr := canvas.NewTouchTracker()
	tr.Start(board.KindDocument, board.Position{X: 10, Y: 10})

	// Movement below the threshold keeps it a tap.
	tr.Move(board.Position{X: 14, Y: 12})
	assert.False(t, tr.Dragging())
	assert.Nil(t, tr.End(board.Position{X: 14, Y: 12}))
}

func TestTouchDragProducesDrop(t *testing.T) {
	tr := canvas.NewTouchTracker()
	tr.Start(board.KindTable, board.Position{X: 10, Y: 10})
	tr.Move(board.Position{X: 40, Y: 10})
	assert.True(t, tr.Dragging())

	drop := tr.End(board.Position{X: 200, Y: 300})
	require.NotNil(t, drop)
	assert.Equal(t, board.KindTable, drop.Kind)
	assert.Equal(t, board.Position{X: 200, Y: 300}, drop.Position)

	// The tracker is idle again.
	assert.Nil(t, tr.End(board.Position{X: 0, Y: 0}))
}

func TestTouchThresholdIsEuclidean(t *testing.T) {
	tr := canvas.NewTouchTracker()
	tr.Start(board.KindGraph, board.Position{X: 0, Y: 0})

	// 7px on each axis is ~9.9px of travel, still a tap.
	tr.Move(board.Position{X: 7, Y: 7})
	assert.False(t, tr.Dragging())
	require.Less(t, math.Hypot(7, 7), 10.0)

	tr.Move(board.Position{X: 8, Y: 8})
	assert.True(t, tr.Dragging())
}

func TestTouchCancelAborts(t *testing.T) {
	tr := canvas.NewTouchTracker()
	tr.Start(board.KindWebsite, board.Position{X: 0, Y: 0})
	tr.Move(board.Position{X: 50, Y: 0})
	require.True(t, tr.Dragging())

	tr.Cancel()
	assert.False(t, tr.Dragging())
	assert.Nil(t, tr.End(board.Position{X: 50, Y: 0}))
}

func TestHandleTouchDropCreatesNode(t *testing.T) {
	flow := board.NewFlowManager("g1")
	c := canvas.NewCanvas(flow)

	_, ok := c.HandleTouchDrop(context.Background(), nil)
	assert.False(t, ok)

	n, ok := c.HandleTouchDrop(context.Background(), &canvas.TouchDrop{
		Kind:     board.KindYouTube,
		Position: board.Position{X: 10, Y: 20},
	})
	require.True(t, ok)
	assert.Equal(t, board.KindYouTube, n.Kind)
	assert.Len(t, flow.Nodes(), 1)
}
