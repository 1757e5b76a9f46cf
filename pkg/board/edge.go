package board

import (
	"strings"

	"github.com/google/uuid"
)

// HandleSide is one of the four directional connection points on a node.
type HandleSide string

// Handle sides.
const (
	SideTop    HandleSide = "top"
	SideLeft   HandleSide = "left"
	SideRight  HandleSide = "right"
	SideBottom HandleSide = "bottom"
)

// HandleRole distinguishes the source and target sub-handles that share each
// side.
type HandleRole string

// Handle roles.
const (
	RoleSource HandleRole = "source"
	RoleTarget HandleRole = "target"
)

// Handle identifies one sub-handle on a node.
type Handle struct {
	Side HandleSide
	Role HandleRole
}

// ID returns the wire form of the handle, e.g. "top-source".
func (h Handle) ID() string {
	if h.Side == "" {
		return ""
	}
	return string(h.Side) + "-" + string(h.Role)
}

// ParseHandle parses a wire handle id. ok is false for malformed ids; an
// empty id parses to the zero Handle (edges may omit handles).
func ParseHandle(id string) (Handle, bool) {
	if id == "" {
		return Handle{}, true
	}
	side, role, found := strings.Cut(id, "-")
	if !found {
		return Handle{}, false
	}
	switch HandleSide(side) {
	case SideTop, SideLeft, SideRight, SideBottom:
	default:
		return Handle{}, false
	}
	switch HandleRole(role) {
	case RoleSource, RoleTarget:
	default:
		return Handle{}, false
	}
	return Handle{Side: HandleSide(side), Role: HandleRole(role)}, true
}

// AllHandles enumerates every sub-handle a node exposes.
func AllHandles() []Handle {
	sides := []HandleSide{SideTop, SideLeft, SideRight, SideBottom}
	handles := make([]Handle, 0, len(sides)*2)
	for _, s := range sides {
		handles = append(handles, Handle{Side: s, Role: RoleSource}, Handle{Side: s, Role: RoleTarget})
	}
	return handles
}

// Edge is a directed link between two node handles. Besides visual wiring,
// a chat-to-artefact edge is the trigger for content derivation.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"source_handle,omitempty"`
	TargetHandle string `json:"target_handle,omitempty"`

	// Kind is the visual edge type (e.g. "default", "smoothstep").
	Kind     string `json:"type,omitempty"`
	Animated bool   `json:"animated,omitempty"`
	Selected bool   `json:"selected,omitempty"`
}

// Connection is a proposed edge, as produced by completing a handle drag.
type Connection struct {
	Source       string
	Target       string
	SourceHandle string
	TargetHandle string
}

// NewEdge materializes a validated connection with a fresh id.
func NewEdge(c Connection) Edge {
	return Edge{
		ID:           uuid.New().String(),
		Source:       c.Source,
		Target:       c.Target,
		SourceHandle: c.SourceHandle,
		TargetHandle: c.TargetHandle,
		Kind:         "default",
	}
}
