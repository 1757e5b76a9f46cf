package api

import (
	json "github.com/goccy/go-json"
)

// Graph is a persisted board.
type Graph struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Favorite   bool   `json:"favorite"`
	AccessedAt string `json:"accessed_at,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

// NodeRecord is a persisted node as stored by the backend. Data is the
// kind-specific payload; decoding into typed form happens client-side.
type NodeRecord struct {
	ID      string          `json:"id"`
	GraphID string          `json:"graph_id"`
	Kind    string          `json:"type"`
	X       float64         `json:"x"`
	Y       float64         `json:"y"`
	Width   float64         `json:"width"`
	Height  float64         `json:"height"`
	Title   string          `json:"title"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// EdgeRecord is a persisted edge.
type EdgeRecord struct {
	ID           string `json:"id"`
	GraphID      string `json:"graph_id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"source_handle,omitempty"`
	TargetHandle string `json:"target_handle,omitempty"`
	Kind         string `json:"type,omitempty"`
}

// Asset is backend-stored media (PDF, website snapshot, video).
type Asset struct {
	ID         string `json:"id"`
	Kind       string `json:"type"`
	URL        string `json:"url,omitempty"`
	Status     string `json:"status,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// Artefact is persisted generated content associated with a node.
type Artefact struct {
	ID             string `json:"id"`
	Kind           string `json:"type"`
	ChatSessionID  string `json:"chat_session_id,omitempty"`
	Content        string `json:"content"`
	SelectedOption string `json:"selected_option,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`
}

// ProcessingOption is a backend-suggested generation variant, presented to
// the user before generation begins.
type ProcessingOption struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	Default     bool   `json:"default,omitempty"`
}

// ArtefactRequest describes one generation attempt against a derivation
// endpoint. PreviousInvalidContent and PreviousError are only honored by
// the graph endpoint, which uses the failed output to inform regeneration.
type ArtefactRequest struct {
	Kind                   string `json:"type"`
	ChatSessionID          string `json:"chat_session_id"`
	ArtefactID             string `json:"artefact_id,omitempty"`
	SelectedOption         string `json:"selected_option,omitempty"`
	PreviousInvalidContent string `json:"previous_invalid_content,omitempty"`
	PreviousError          string `json:"previous_error,omitempty"`
}
