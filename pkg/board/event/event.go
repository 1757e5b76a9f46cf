// Package event provides the in-process pub/sub bus that board components
// use to communicate without direct coupling.
//
// The flow manager, derivation state machines, and the full-screen overlay
// are siblings: an edge connected on the canvas must reach the target node's
// deriver, and a deriver's content updates must reach an overlay mirroring
// that node. Rather than a global event target, topics are explicit strings
// and every event carries the node it concerns; subscribers filter by node
// id at the bus, not in handlers.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Topic names for board-wide events.
const (
	// TypeRemoveNode is published when a node is deleted from the flow.
	TypeRemoveNode = "remove-node"

	// TypeFullscreenTransition is published when the full-screen selection
	// changes. The payload is a FullscreenTransition.
	TypeFullscreenTransition = "fullscreen-transition"
)

// UpdateNode returns the topic signalling that a chat edge now feeds the
// given artefact node kind (e.g. "update-document-node"). The payload is a
// ChatLink.
func UpdateNode(kind string) string {
	return "update-" + kind + "-node"
}

// ChatSessionUpdate returns the topic for a persisted chat-session binding
// change on an artefact node kind.
func ChatSessionUpdate(kind string) string {
	return kind + "-node-chat-session-update"
}

// ContentUpdate returns the topic carrying streamed content state for a
// node kind (e.g. "document-content-update"). The payload is a ContentState.
func ContentUpdate(kind string) string {
	return kind + "-content-update"
}

// Event is a single message on the bus. Events are immutable once published.
type Event struct {
	// ID is the unique event identifier.
	ID string

	// Type is the topic name.
	Type string

	// NodeID is the node this event concerns. Empty for board-wide events.
	NodeID string

	// Timestamp records when the event was created.
	Timestamp time.Time

	// Payload is the topic-specific data.
	Payload any
}

// New creates an event for a node-scoped topic.
func New(eventType, nodeID string, payload any) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		NodeID:    nodeID,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// ChatLink is the payload for UpdateNode topics: a chat node was wired into
// an artefact node's generation input.
type ChatLink struct {
	NodeID        string `json:"node_id"`
	ChatSessionID string `json:"chat_session_id"`
}

// ContentState is the payload for ContentUpdate topics. It mirrors the
// owning node's artefact content so an overlay can render without its own
// fetch logic.
type ContentState struct {
	NodeID             string `json:"node_id"`
	Content            string `json:"content"`
	IsLoading          bool   `json:"is_loading"`
	Error              string `json:"error,omitempty"`
	CharactersReceived int    `json:"characters_received"`
}

// FullscreenTransition is the payload for TypeFullscreenTransition.
type FullscreenTransition struct {
	NodeID string `json:"node_id"`
	Active bool   `json:"active"`
}
