// Package canvas handles the interaction shell around the flow manager:
// palette drops (native and touch-emulated), viewport math, the
// fit-view-once latch, and the minimap projection.
package canvas

import (
	"context"
	"math"
	"sync"

	"github.com/alex-tsiresy/lorebridge/pkg/board"
)

// Viewport maps screen coordinates to flow coordinates.
type Viewport struct {
	// X, Y is the flow-coordinate translation of the screen origin.
	X, Y float64

	// Zoom is the scale factor; 1.0 renders flow units as screen pixels.
	Zoom float64
}

// Project converts a screen position to flow coordinates.
func (v Viewport) Project(screen board.Position) board.Position {
	zoom := v.Zoom
	if zoom == 0 {
		zoom = 1
	}
	return board.Position{
		X: (screen.X - v.X) / zoom,
		Y: (screen.Y - v.Y) / zoom,
	}
}

// Unproject converts a flow position to screen coordinates.
func (v Viewport) Unproject(flow board.Position) board.Position {
	zoom := v.Zoom
	if zoom == 0 {
		zoom = 1
	}
	return board.Position{
		X: flow.X*zoom + v.X,
		Y: flow.Y*zoom + v.Y,
	}
}

// Bounds is an axis-aligned rectangle in flow coordinates.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

// Width returns the horizontal extent.
func (b Bounds) Width() float64 { return b.MaxX - b.MinX }

// Height returns the vertical extent.
func (b Bounds) Height() float64 { return b.MaxY - b.MinY }

// NodeBounds computes the bounding box of all nodes. ok is false for an
// empty board.
func NodeBounds(nodes []board.Node) (Bounds, bool) {
	if len(nodes) == 0 {
		return Bounds{}, false
	}
	b := Bounds{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
	for _, n := range nodes {
		b.MinX = math.Min(b.MinX, n.Position.X)
		b.MinY = math.Min(b.MinY, n.Position.Y)
		b.MaxX = math.Max(b.MaxX, n.Position.X+n.Size.Width)
		b.MaxY = math.Max(b.MaxY, n.Position.Y+n.Size.Height)
	}
	return b, true
}

// fitPadding keeps fitted content off the viewport edges.
const fitPadding = 0.9

// FitViewport computes the viewport that centers the node bounds inside a
// screen of the given size.
func FitViewport(nodes []board.Node, screenWidth, screenHeight float64) (Viewport, bool) {
	b, ok := NodeBounds(nodes)
	if !ok || b.Width() <= 0 || b.Height() <= 0 {
		return Viewport{Zoom: 1}, false
	}

	zoom := math.Min(screenWidth/b.Width(), screenHeight/b.Height()) * fitPadding
	zoom = math.Min(zoom, 2)
	zoom = math.Max(zoom, 0.1)

	centerX := b.MinX + b.Width()/2
	centerY := b.MinY + b.Height()/2

	return Viewport{
		X:    screenWidth/2 - centerX*zoom,
		Y:    screenHeight/2 - centerY*zoom,
		Zoom: zoom,
	}, true
}

// MiniMapRect is a node's rectangle scaled into minimap space.
type MiniMapRect struct {
	NodeID string
	X, Y   float64
	Width  float64
	Height float64
}

// MiniMap projects every node into a minimap of the given dimensions,
// preserving aspect ratio.
func MiniMap(nodes []board.Node, mapWidth, mapHeight float64) []MiniMapRect {
	b, ok := NodeBounds(nodes)
	if !ok || b.Width() <= 0 || b.Height() <= 0 {
		return nil
	}

	scale := math.Min(mapWidth/b.Width(), mapHeight/b.Height())
	rects := make([]MiniMapRect, 0, len(nodes))
	for _, n := range nodes {
		rects = append(rects, MiniMapRect{
			NodeID: n.ID,
			X:      (n.Position.X - b.MinX) * scale,
			Y:      (n.Position.Y - b.MinY) * scale,
			Width:  n.Size.Width * scale,
			Height: n.Size.Height * scale,
		})
	}
	return rects
}

// Canvas ties the interaction shell to a flow manager.
type Canvas struct {
	flow *board.FlowManager

	mu       sync.Mutex
	viewport Viewport
	fitted   bool // fit-view runs exactly once per board load
}

// NewCanvas creates the shell for a flow manager.
func NewCanvas(flow *board.FlowManager) *Canvas {
	return &Canvas{
		flow:     flow,
		viewport: Viewport{Zoom: 1},
	}
}

// Viewport returns the current viewport.
func (c *Canvas) Viewport() Viewport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewport
}

// SetViewport applies a pan/zoom change.
func (c *Canvas) SetViewport(v Viewport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewport = v
}

// FitViewOnce centers the board in the viewport the first time it is called
// after load. Later calls are no-ops, so adding a node never recenters the
// view under the user. Returns whether the fit was applied.
func (c *Canvas) FitViewOnce(screenWidth, screenHeight float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fitted {
		return false
	}
	v, ok := FitViewport(c.flow.Nodes(), screenWidth, screenHeight)
	if !ok {
		return false
	}
	c.viewport = v
	c.fitted = true
	return true
}

// Drop creates a node of the palette kind at a screen position, projected
// into flow coordinates.
func (c *Canvas) Drop(ctx context.Context, kind board.NodeKind, screen board.Position) board.Node {
	pos := c.Viewport().Project(screen)
	return c.flow.AddNode(ctx, kind, pos)
}
