package board

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// NodeKind identifies a node type. Every kind maps to exactly one registered
// renderer; unknown or legacy artefact subtypes fall back to KindArtefactFallback.
type NodeKind string

// Known node kinds.
const (
	KindChat      NodeKind = "chat"
	KindPDF       NodeKind = "pdf"
	KindWebsite   NodeKind = "website"
	KindYouTube   NodeKind = "youtube"
	KindInstagram NodeKind = "instagram"
	KindDocument  NodeKind = "document"
	KindTable     NodeKind = "table"
	KindGraph     NodeKind = "graph"

	// KindArtefactFallback is the placeholder renderer for persisted artefact
	// subtypes this client no longer recognizes.
	KindArtefactFallback NodeKind = "artefact-fallback"
)

// allKinds is the registry of renderable kinds.
var allKinds = map[NodeKind]bool{
	KindChat:             true,
	KindPDF:              true,
	KindWebsite:          true,
	KindYouTube:          true,
	KindInstagram:        true,
	KindDocument:         true,
	KindTable:            true,
	KindGraph:            true,
	KindArtefactFallback: true,
}

// Known reports whether the kind has a registered renderer.
func (k NodeKind) Known() bool {
	return allKinds[k]
}

// IsArtefact reports whether nodes of this kind derive their content from a
// linked chat session (document, table, graph).
func (k NodeKind) IsArtefact() bool {
	switch k {
	case KindDocument, KindTable, KindGraph, KindArtefactFallback:
		return true
	}
	return false
}

// Normalize maps unknown artefact subtypes to the fallback kind so hydration
// from older persisted boards never produces an unrenderable node.
func (k NodeKind) Normalize() NodeKind {
	if k.Known() {
		return k
	}
	return KindArtefactFallback
}

// Position is a node's placement on the canvas, in flow coordinates.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a node's rendered dimensions.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// defaultSizes gives each kind its palette-drop dimensions.
var defaultSizes = map[NodeKind]Size{
	KindChat:             {Width: 420, Height: 520},
	KindPDF:              {Width: 380, Height: 480},
	KindWebsite:          {Width: 380, Height: 300},
	KindYouTube:          {Width: 420, Height: 280},
	KindInstagram:        {Width: 340, Height: 440},
	KindDocument:         {Width: 440, Height: 560},
	KindTable:            {Width: 480, Height: 360},
	KindGraph:            {Width: 480, Height: 400},
	KindArtefactFallback: {Width: 320, Height: 200},
}

// DefaultSize returns the palette-drop size for a kind.
func DefaultSize(kind NodeKind) Size {
	if s, ok := defaultSizes[kind.Normalize()]; ok {
		return s
	}
	return defaultSizes[KindArtefactFallback]
}

// NodeData is the kind-specific payload of a node. Implementations are plain
// structs so structural equality and JSON round-trips work without reflection
// tricks.
type NodeData interface {
	// DataKind returns the node kind this payload belongs to.
	DataKind() NodeKind
}

// ChatData is the payload of a chat node.
type ChatData struct {
	ChatSessionID string `json:"chat_session_id,omitempty"`
}

// DataKind implements NodeData.
func (ChatData) DataKind() NodeKind { return KindChat }

// PDFData is the payload of a pdf node.
type PDFData struct {
	AssetID  string `json:"asset_id,omitempty"`
	FileName string `json:"file_name,omitempty"`
}

// DataKind implements NodeData.
func (PDFData) DataKind() NodeKind { return KindPDF }

// WebsiteData is the payload of a website node.
type WebsiteData struct {
	AssetID string `json:"asset_id,omitempty"`
	URL     string `json:"url,omitempty"`
}

// DataKind implements NodeData.
func (WebsiteData) DataKind() NodeKind { return KindWebsite }

// YouTubeData is the payload of a youtube node.
type YouTubeData struct {
	AssetID string `json:"asset_id,omitempty"`
	URL     string `json:"url,omitempty"`
}

// DataKind implements NodeData.
func (YouTubeData) DataKind() NodeKind { return KindYouTube }

// InstagramData is the payload of an instagram node.
type InstagramData struct {
	AssetID string `json:"asset_id,omitempty"`
	URL     string `json:"url,omitempty"`
}

// DataKind implements NodeData.
func (InstagramData) DataKind() NodeKind { return KindInstagram }

// ArtefactRef links an artefact node to its persisted content and the chat
// session it derives from. ChatSessionID is a one-shot binding slot: it is
// set by the first chat edge and never rebound (there is no UI to rebind).
type ArtefactRef struct {
	ArtefactID     string `json:"artefact_id,omitempty"`
	ChatSessionID  string `json:"chat_session_id,omitempty"`
	SelectedOption string `json:"selected_option,omitempty"`
}

// DocumentData is the payload of a document node.
type DocumentData struct {
	ArtefactRef
}

// DataKind implements NodeData.
func (DocumentData) DataKind() NodeKind { return KindDocument }

// TableData is the payload of a table node.
type TableData struct {
	ArtefactRef
}

// DataKind implements NodeData.
func (TableData) DataKind() NodeKind { return KindTable }

// GraphData is the payload of a graph (diagram) node.
type GraphData struct {
	ArtefactRef
}

// DataKind implements NodeData.
func (GraphData) DataKind() NodeKind { return KindGraph }

// FallbackData carries the raw payload of an unrecognized artefact subtype so
// nothing is lost across a save/load cycle.
type FallbackData struct {
	OriginalKind string          `json:"original_kind,omitempty"`
	Raw          json.RawMessage `json:"raw,omitempty"`
}

// DataKind implements NodeData.
func (FallbackData) DataKind() NodeKind { return KindArtefactFallback }

// defaultData returns the zero payload for a kind.
func defaultData(kind NodeKind) NodeData {
	switch kind.Normalize() {
	case KindChat:
		return ChatData{}
	case KindPDF:
		return PDFData{}
	case KindWebsite:
		return WebsiteData{}
	case KindYouTube:
		return YouTubeData{}
	case KindInstagram:
		return InstagramData{}
	case KindDocument:
		return DocumentData{}
	case KindTable:
		return TableData{}
	case KindGraph:
		return GraphData{}
	default:
		return FallbackData{OriginalKind: string(kind)}
	}
}

// DecodeNodeData decodes a raw payload into the typed form for a kind.
// Unknown kinds keep the raw bytes in a FallbackData.
func DecodeNodeData(kind NodeKind, raw json.RawMessage) (NodeData, error) {
	if len(raw) == 0 {
		return defaultData(kind), nil
	}

	switch kind.Normalize() {
	case KindChat:
		var d ChatData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode chat data: %w", err)
		}
		return d, nil
	case KindPDF:
		var d PDFData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode pdf data: %w", err)
		}
		return d, nil
	case KindWebsite:
		var d WebsiteData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode website data: %w", err)
		}
		return d, nil
	case KindYouTube:
		var d YouTubeData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode youtube data: %w", err)
		}
		return d, nil
	case KindInstagram:
		var d InstagramData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode instagram data: %w", err)
		}
		return d, nil
	case KindDocument:
		var d DocumentData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode document data: %w", err)
		}
		return d, nil
	case KindTable:
		var d TableData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode table data: %w", err)
		}
		return d, nil
	case KindGraph:
		var d GraphData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode graph data: %w", err)
		}
		return d, nil
	default:
		return FallbackData{OriginalKind: string(kind), Raw: raw}, nil
	}
}

// Node is a positioned, typed, resizable unit on the board.
//
// A node is created either on palette drop (ephemeral until the persistence
// queue reaches the backend) or hydrated from a backend listing. Position
// changes come from drag deltas, size from resize deltas, and Data from the
// node's own derivation machine.
type Node struct {
	ID       string
	Kind     NodeKind
	Position Position
	Size     Size
	Title    string
	Selected bool
	Data     NodeData
}

// NewNode creates a node of the given kind at a position, with a fresh id,
// the kind's default size, and zero-valued data. A chat node owns its session
// id from birth; the backend learns it when the node create syncs.
func NewNode(kind NodeKind, pos Position) Node {
	kind = kind.Normalize()
	data := defaultData(kind)
	if kind == KindChat {
		data = ChatData{ChatSessionID: uuid.New().String()}
	}
	return Node{
		ID:       uuid.New().String(),
		Kind:     kind,
		Position: pos,
		Size:     DefaultSize(kind),
		Title:    defaultTitle(kind),
		Data:     data,
	}
}

// defaultTitle is the palette label for a freshly dropped node.
func defaultTitle(kind NodeKind) string {
	switch kind {
	case KindChat:
		return "Chat"
	case KindPDF:
		return "PDF"
	case KindWebsite:
		return "Website"
	case KindYouTube:
		return "YouTube"
	case KindInstagram:
		return "Instagram"
	case KindDocument:
		return "Document"
	case KindTable:
		return "Table"
	case KindGraph:
		return "Graph"
	default:
		return "Artefact"
	}
}

// nodeJSON is the wire/export form of a node; Data is re-typed on decode.
type nodeJSON struct {
	ID       string          `json:"id"`
	Kind     NodeKind        `json:"type"`
	Position Position        `json:"position"`
	Size     Size            `json:"size"`
	Title    string          `json:"title,omitempty"`
	Selected bool            `json:"selected,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// MarshalJSON implements json.Marshaler, flattening the tagged union.
func (n Node) MarshalJSON() ([]byte, error) {
	var data json.RawMessage
	if n.Data != nil {
		b, err := json.Marshal(n.Data)
		if err != nil {
			return nil, fmt.Errorf("encode %s node data: %w", n.Kind, err)
		}
		data = b
	}
	return json.Marshal(nodeJSON{
		ID:       n.ID,
		Kind:     n.Kind,
		Position: n.Position,
		Size:     n.Size,
		Title:    n.Title,
		Selected: n.Selected,
		Data:     data,
	})
}

// UnmarshalJSON implements json.Unmarshaler, restoring the typed payload.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw nodeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	typed, err := DecodeNodeData(raw.Kind, raw.Data)
	if err != nil {
		return err
	}
	n.ID = raw.ID
	n.Kind = raw.Kind.Normalize()
	n.Position = raw.Position
	n.Size = raw.Size
	n.Title = raw.Title
	n.Selected = raw.Selected
	n.Data = typed
	return nil
}
