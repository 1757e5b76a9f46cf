package board

// ChangeType classifies a structural delta from the canvas layer.
type ChangeType string

// Change types.
const (
	ChangeMove   ChangeType = "move"
	ChangeResize ChangeType = "resize"
	ChangeSelect ChangeType = "select"
	ChangeRemove ChangeType = "remove"
)

// NodeChange is one delta against a node, in the shape flow libraries emit:
// only the field matching Type is set.
type NodeChange struct {
	NodeID   string
	Type     ChangeType
	Position *Position // ChangeMove
	Size     *Size     // ChangeResize
	Selected *bool     // ChangeSelect
}

// EdgeChange is one delta against an edge.
type EdgeChange struct {
	EdgeID   string
	Type     ChangeType
	Selected *bool // ChangeSelect
}

// MoveChange builds a position delta.
func MoveChange(nodeID string, pos Position) NodeChange {
	return NodeChange{NodeID: nodeID, Type: ChangeMove, Position: &pos}
}

// ResizeChange builds a size delta.
func ResizeChange(nodeID string, size Size) NodeChange {
	return NodeChange{NodeID: nodeID, Type: ChangeResize, Size: &size}
}

// SelectChange builds a node selection delta.
func SelectChange(nodeID string, selected bool) NodeChange {
	return NodeChange{NodeID: nodeID, Type: ChangeSelect, Selected: &selected}
}

// RemoveChange builds a node removal delta.
func RemoveChange(nodeID string) NodeChange {
	return NodeChange{NodeID: nodeID, Type: ChangeRemove}
}

// SelectEdgeChange builds an edge selection delta.
func SelectEdgeChange(edgeID string, selected bool) EdgeChange {
	return EdgeChange{EdgeID: edgeID, Type: ChangeSelect, Selected: &selected}
}

// RemoveEdgeChange builds an edge removal delta.
func RemoveEdgeChange(edgeID string) EdgeChange {
	return EdgeChange{EdgeID: edgeID, Type: ChangeRemove}
}

// applyNodeChange mutates a node in place. Returns false for ChangeRemove,
// meaning the node should be dropped from the array.
func applyNodeChange(n *Node, c NodeChange) bool {
	switch c.Type {
	case ChangeMove:
		if c.Position != nil {
			n.Position = *c.Position
		}
	case ChangeResize:
		if c.Size != nil {
			n.Size = *c.Size
		}
	case ChangeSelect:
		if c.Selected != nil {
			n.Selected = *c.Selected
		}
	case ChangeRemove:
		return false
	}
	return true
}

// applyEdgeChange mutates an edge in place. Returns false for ChangeRemove.
func applyEdgeChange(e *Edge, c EdgeChange) bool {
	switch c.Type {
	case ChangeSelect:
		if c.Selected != nil {
			e.Selected = *c.Selected
		}
	case ChangeRemove:
		return false
	}
	return true
}
