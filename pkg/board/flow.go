package board

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/alex-tsiresy/lorebridge/pkg/board/api"
	"github.com/alex-tsiresy/lorebridge/pkg/board/event"
	"github.com/alex-tsiresy/lorebridge/pkg/board/observability"
	"github.com/alex-tsiresy/lorebridge/pkg/board/store"
)

// Persister is the backend surface the flow manager syncs structural changes
// to. *api.Client satisfies it; tests substitute fakes.
type Persister interface {
	CreateNode(ctx context.Context, rec *api.NodeRecord) error
	UpdateNode(ctx context.Context, rec *api.NodeRecord) error
	DeleteNode(ctx context.Context, graphID, nodeID string) error
	CreateEdge(ctx context.Context, rec *api.EdgeRecord) error
	DeleteEdge(ctx context.Context, graphID, edgeID string) error
	ListNodes(ctx context.Context, graphID string) ([]api.NodeRecord, error)
	ListEdges(ctx context.Context, graphID string) ([]api.EdgeRecord, error)
}

// FlowManager is the single source of truth for a board's node and edge
// arrays. All structural mutation goes through its operations; other
// components read copies and never mutate.
//
// Persistence is optimistic and eventually consistent: every mutation applies
// locally first (and to the local snapshot store when configured), then a
// backend op is enqueued on the sync queue. A backend failure never rolls
// back local state; the canvas stays interactive offline.
type FlowManager struct {
	graphID string
	bus     *event.Bus
	backend Persister
	queue   *store.Queue
	local   store.Store
	logger  *slog.Logger
	metrics observability.MetricsRecorder

	resizeDebounce time.Duration

	mu           sync.Mutex
	nodes        []Node
	edges        []Edge
	resizeTimers map[string]*time.Timer
}

// FlowOption configures a FlowManager.
type FlowOption func(*FlowManager)

// WithBus sets the event bus used for derivation triggers and removals.
func WithBus(bus *event.Bus) FlowOption {
	return func(f *FlowManager) { f.bus = bus }
}

// WithBackend sets the backend persister. Without one the board is
// local-only.
func WithBackend(p Persister) FlowOption {
	return func(f *FlowManager) { f.backend = p }
}

// WithQueue sets the sync queue backend ops are enqueued on. Without one,
// backend ops run inline, best-effort.
func WithQueue(q *store.Queue) FlowOption {
	return func(f *FlowManager) { f.queue = q }
}

// WithSnapshots sets the local snapshot store written through on every
// structural change.
func WithSnapshots(s store.Store) FlowOption {
	return func(f *FlowManager) { f.local = s }
}

// WithFlowLogger sets the logger.
func WithFlowLogger(l *slog.Logger) FlowOption {
	return func(f *FlowManager) { f.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observability.MetricsRecorder) FlowOption {
	return func(f *FlowManager) { f.metrics = m }
}

// WithResizeDebounce sets the delay before a resize delta is persisted.
func WithResizeDebounce(d time.Duration) FlowOption {
	return func(f *FlowManager) { f.resizeDebounce = d }
}

// NewFlowManager creates a flow manager for one board.
func NewFlowManager(graphID string, opts ...FlowOption) *FlowManager {
	f := &FlowManager{
		graphID:        graphID,
		logger:         slog.Default(),
		metrics:        observability.NoopMetrics{},
		resizeDebounce: 400 * time.Millisecond,
		resizeTimers:   make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// GraphID returns the board id this manager owns.
func (f *FlowManager) GraphID() string { return f.graphID }

// Nodes returns a copy of the node array.
func (f *FlowManager) Nodes() []Node {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Node, len(f.nodes))
	copy(out, f.nodes)
	return out
}

// Edges returns a copy of the edge array.
func (f *FlowManager) Edges() []Edge {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Edge, len(f.edges))
	copy(out, f.edges)
	return out
}

// Node returns the node with the given id.
func (f *FlowManager) Node(id string) (Node, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// SetNodesAndEdges bulk-replaces both arrays. Used only on initial hydration
// and import; a structural-equality guard skips the replace (and the snapshot
// write) when nothing actually changed, so re-hydration is idempotent.
// Returns true if the arrays were replaced.
func (f *FlowManager) SetNodesAndEdges(ctx context.Context, nodes []Node, edges []Edge) bool {
	// Nil and empty arrays mean the same board; without EquateEmpty a
	// re-hydration of an empty board would count as a change.
	eq := cmpopts.EquateEmpty()

	f.mu.Lock()
	if cmp.Equal(f.nodes, nodes, eq) && cmp.Equal(f.edges, edges, eq) {
		f.mu.Unlock()
		return false
	}
	f.nodes = append([]Node(nil), nodes...)
	f.edges = append([]Edge(nil), edges...)
	f.mu.Unlock()

	f.saveSnapshot()
	return true
}

// Hydrate loads the persisted board from the backend and replaces local
// state. Unknown persisted node kinds normalize to the fallback renderer.
func (f *FlowManager) Hydrate(ctx context.Context) error {
	if f.backend == nil {
		return fmt.Errorf("hydrate: no backend configured")
	}

	records, err := f.backend.ListNodes(ctx, f.graphID)
	if err != nil {
		return fmt.Errorf("hydrate nodes: %w", err)
	}
	edgeRecords, err := f.backend.ListEdges(ctx, f.graphID)
	if err != nil {
		return fmt.Errorf("hydrate edges: %w", err)
	}

	nodes := make([]Node, 0, len(records))
	for _, rec := range records {
		n, err := nodeFromRecord(rec)
		if err != nil {
			f.logger.Warn("skipping undecodable node",
				slog.String("node_id", rec.ID),
				slog.String("error", err.Error()))
			continue
		}
		nodes = append(nodes, n)
	}

	edges := make([]Edge, 0, len(edgeRecords))
	for _, rec := range edgeRecords {
		edges = append(edges, edgeFromRecord(rec))
	}

	f.SetNodesAndEdges(ctx, nodes, edges)
	return nil
}

// AddNode inserts a node of the given kind at a position and schedules its
// backend create. The node is usable immediately, before persistence lands.
func (f *FlowManager) AddNode(ctx context.Context, kind NodeKind, pos Position) Node {
	n := NewNode(kind, pos)

	f.mu.Lock()
	f.nodes = append(f.nodes, n)
	f.mu.Unlock()

	f.metrics.RecordMutation(ctx, "add-node")
	observability.LogNodeMutation(f.logger, "add-node", n.ID)

	rec := nodeToRecord(f.graphID, n)
	f.persist("create-node", n.ID, func(ctx context.Context) error {
		return f.backend.CreateNode(ctx, rec)
	})
	f.saveSnapshot()
	return n
}

// Per-kind add operations, matching the palette entries.

// AddChatNode inserts a chat node.
func (f *FlowManager) AddChatNode(ctx context.Context, pos Position) Node {
	return f.AddNode(ctx, KindChat, pos)
}

// AddPDFNode inserts a pdf node.
func (f *FlowManager) AddPDFNode(ctx context.Context, pos Position) Node {
	return f.AddNode(ctx, KindPDF, pos)
}

// AddWebsiteNode inserts a website node.
func (f *FlowManager) AddWebsiteNode(ctx context.Context, pos Position) Node {
	return f.AddNode(ctx, KindWebsite, pos)
}

// AddYouTubeNode inserts a youtube node.
func (f *FlowManager) AddYouTubeNode(ctx context.Context, pos Position) Node {
	return f.AddNode(ctx, KindYouTube, pos)
}

// AddInstagramNode inserts an instagram node.
func (f *FlowManager) AddInstagramNode(ctx context.Context, pos Position) Node {
	return f.AddNode(ctx, KindInstagram, pos)
}

// AddDocumentNode inserts a document node.
func (f *FlowManager) AddDocumentNode(ctx context.Context, pos Position) Node {
	return f.AddNode(ctx, KindDocument, pos)
}

// AddTableNode inserts a table node.
func (f *FlowManager) AddTableNode(ctx context.Context, pos Position) Node {
	return f.AddNode(ctx, KindTable, pos)
}

// AddGraphNode inserts a graph (diagram) node.
func (f *FlowManager) AddGraphNode(ctx context.Context, pos Position) Node {
	return f.AddNode(ctx, KindGraph, pos)
}

// UpdateNodeData replaces a node's typed payload and persists it. Derivers
// call this to record chat-session bindings and artefact ids.
func (f *FlowManager) UpdateNodeData(ctx context.Context, nodeID string, data NodeData) error {
	f.mu.Lock()
	var updated *Node
	for i := range f.nodes {
		if f.nodes[i].ID == nodeID {
			if data.DataKind() != f.nodes[i].Kind {
				f.mu.Unlock()
				return fmt.Errorf("update node %s: payload kind %s does not match node kind %s",
					nodeID, data.DataKind(), f.nodes[i].Kind)
			}
			f.nodes[i].Data = data
			n := f.nodes[i]
			updated = &n
			break
		}
	}
	f.mu.Unlock()

	if updated == nil {
		return fmt.Errorf("update node %s: not found", nodeID)
	}

	rec := nodeToRecord(f.graphID, *updated)
	f.persist("update-node", nodeID, func(ctx context.Context) error {
		return f.backend.UpdateNode(ctx, rec)
	})
	f.saveSnapshot()
	return nil
}

// ApplyNodeChanges applies canvas-level node deltas: move, select, resize,
// remove. Moves persist immediately (emitted once on drag end); resizes are
// debounced so a live resize drag doesn't flood the backend. Removals cascade
// to incident edges and publish remove-node.
func (f *FlowManager) ApplyNodeChanges(ctx context.Context, changes []NodeChange) {
	var removed []string
	var persistNodes []Node
	var resized []string

	f.mu.Lock()
	for _, c := range changes {
		idx := -1
		for i := range f.nodes {
			if f.nodes[i].ID == c.NodeID {
				idx = i
				break
			}
		}
		if idx < 0 {
			continue
		}

		if !applyNodeChange(&f.nodes[idx], c) {
			removed = append(removed, c.NodeID)
			f.nodes = append(f.nodes[:idx], f.nodes[idx+1:]...)
			continue
		}

		switch c.Type {
		case ChangeMove:
			persistNodes = append(persistNodes, f.nodes[idx])
		case ChangeResize:
			resized = append(resized, c.NodeID)
		}
	}

	var removedEdges []Edge
	if len(removed) > 0 {
		removedEdges = f.removeIncidentEdgesLocked(removed)
	}
	f.mu.Unlock()

	for _, n := range persistNodes {
		rec := nodeToRecord(f.graphID, n)
		f.persist("move-node", n.ID, func(ctx context.Context) error {
			return f.backend.UpdateNode(ctx, rec)
		})
	}
	for _, id := range resized {
		f.scheduleResizePersist(id)
	}
	for _, id := range removed {
		f.finishNodeRemoval(ctx, id)
	}
	for _, e := range removedEdges {
		f.persistEdgeDelete(e.ID)
	}

	if len(changes) > 0 {
		f.metrics.RecordMutation(ctx, "apply-node-changes")
		f.saveSnapshot()
	}
}

// ApplyEdgeChanges applies canvas-level edge deltas.
func (f *FlowManager) ApplyEdgeChanges(ctx context.Context, changes []EdgeChange) {
	var removed []string

	f.mu.Lock()
	for _, c := range changes {
		idx := -1
		for i := range f.edges {
			if f.edges[i].ID == c.EdgeID {
				idx = i
				break
			}
		}
		if idx < 0 {
			continue
		}
		if !applyEdgeChange(&f.edges[idx], c) {
			removed = append(removed, c.EdgeID)
			f.edges = append(f.edges[:idx], f.edges[idx+1:]...)
		}
	}
	f.mu.Unlock()

	for _, id := range removed {
		f.persistEdgeDelete(id)
	}

	if len(changes) > 0 {
		f.metrics.RecordMutation(ctx, "apply-edge-changes")
		f.saveSnapshot()
	}
}

// IsValidConnection reports whether a proposed connection may become an edge.
// Rejected: self-loops, exact duplicates of an existing edge, references to
// unknown nodes, and non-chat sources wired into an artefact node's
// generation input.
func (f *FlowManager) IsValidConnection(c Connection) error {
	if c.Source == c.Target {
		return fmt.Errorf("connection rejected: self-loop on node %s", c.Source)
	}
	if _, ok := ParseHandle(c.SourceHandle); !ok {
		return fmt.Errorf("connection rejected: malformed source handle %q", c.SourceHandle)
	}
	if _, ok := ParseHandle(c.TargetHandle); !ok {
		return fmt.Errorf("connection rejected: malformed target handle %q", c.TargetHandle)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	source, ok := f.nodeLocked(c.Source)
	if !ok {
		return fmt.Errorf("connection rejected: unknown source node %s", c.Source)
	}
	target, ok := f.nodeLocked(c.Target)
	if !ok {
		return fmt.Errorf("connection rejected: unknown target node %s", c.Target)
	}

	for _, e := range f.edges {
		if e.Source == c.Source && e.Target == c.Target &&
			e.SourceHandle == c.SourceHandle && e.TargetHandle == c.TargetHandle {
			return fmt.Errorf("connection rejected: duplicate edge %s -> %s", c.Source, c.Target)
		}
	}

	if target.Kind.IsArtefact() && source.Kind != KindChat {
		return fmt.Errorf("connection rejected: %s node cannot feed %s generation input",
			source.Kind, target.Kind)
	}

	return nil
}

// Connect validates and appends an edge. A chat-to-artefact edge additionally
// publishes the target kind's update topic carrying the chat session id, so
// the target node's deriver can react without the flow manager holding
// per-kind knowledge. Whether that event starts a generation is the deriver's
// call (first-edge-wins lives there).
func (f *FlowManager) Connect(ctx context.Context, c Connection) (Edge, error) {
	if err := f.IsValidConnection(c); err != nil {
		return Edge{}, err
	}

	e := NewEdge(c)

	f.mu.Lock()
	f.edges = append(f.edges, e)
	source, _ := f.nodeLocked(c.Source)
	target, _ := f.nodeLocked(c.Target)
	f.mu.Unlock()

	f.metrics.RecordMutation(ctx, "connect")
	observability.LogNodeMutation(f.logger, "connect", e.ID)

	rec := edgeToRecord(f.graphID, e)
	f.persist("create-edge", e.ID, func(ctx context.Context) error {
		return f.backend.CreateEdge(ctx, rec)
	})
	f.saveSnapshot()

	if f.bus != nil && source.Kind == KindChat && target.Kind.IsArtefact() {
		chat, _ := source.Data.(ChatData)
		evt := event.New(event.UpdateNode(string(target.Kind)), target.ID, event.ChatLink{
			NodeID:        target.ID,
			ChatSessionID: chat.ChatSessionID,
		})
		if err := f.bus.Publish(ctx, evt); err != nil {
			f.logger.Warn("derivation trigger not delivered",
				slog.String("edge_id", e.ID),
				slog.String("error", err.Error()))
		}
	}

	return e, nil
}

// DeleteSelected removes all selected nodes and edges, cascading node
// removal to incident edges. Backend deletes are enqueued; a failure there
// is reported by the sync queue but local removal stands.
func (f *FlowManager) DeleteSelected(ctx context.Context) (removedNodes, removedEdges int) {
	f.mu.Lock()

	var keepNodes []Node
	var removedNodeIDs []string
	for _, n := range f.nodes {
		if n.Selected {
			removedNodeIDs = append(removedNodeIDs, n.ID)
			continue
		}
		keepNodes = append(keepNodes, n)
	}
	f.nodes = keepNodes

	var keepEdges []Edge
	var removedEdgeList []Edge
	gone := make(map[string]bool, len(removedNodeIDs))
	for _, id := range removedNodeIDs {
		gone[id] = true
	}
	for _, e := range f.edges {
		if e.Selected || gone[e.Source] || gone[e.Target] {
			removedEdgeList = append(removedEdgeList, e)
			continue
		}
		keepEdges = append(keepEdges, e)
	}
	f.edges = keepEdges
	f.mu.Unlock()

	for _, id := range removedNodeIDs {
		f.finishNodeRemoval(ctx, id)
	}
	for _, e := range removedEdgeList {
		f.persistEdgeDelete(e.ID)
	}

	if len(removedNodeIDs)+len(removedEdgeList) > 0 {
		f.metrics.RecordMutation(ctx, "delete-selected")
		f.saveSnapshot()
	}
	return len(removedNodeIDs), len(removedEdgeList)
}

// flowDocument is the portable export format.
type flowDocument struct {
	Version int    `json:"version"`
	GraphID string `json:"graph_id"`
	Nodes   []Node `json:"nodes"`
	Edges   []Edge `json:"edges"`
}

// ExportFlow serializes the current board to a portable JSON document.
// Pure: no backend call, no state change.
func (f *FlowManager) ExportFlow() ([]byte, error) {
	doc := flowDocument{
		Version: 1,
		GraphID: f.graphID,
		Nodes:   f.Nodes(),
		Edges:   f.Edges(),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export flow: %w", err)
	}
	return data, nil
}

// ImportFlow replaces the board from an exported document.
func (f *FlowManager) ImportFlow(ctx context.Context, data []byte) error {
	var doc flowDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("import flow: %w", err)
	}
	f.SetNodesAndEdges(ctx, doc.Nodes, doc.Edges)
	return nil
}

// LoadSnapshot restores the board from the local snapshot store, if one
// exists. Used on startup before (or instead of) backend hydration.
func (f *FlowManager) LoadSnapshot(ctx context.Context) error {
	if f.local == nil {
		return store.ErrNotFound
	}
	data, err := f.local.Load(f.graphID)
	if err != nil {
		return err
	}
	return f.ImportFlow(ctx, data)
}

// internals

func (f *FlowManager) nodeLocked(id string) (Node, bool) {
	for _, n := range f.nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// removeIncidentEdgesLocked drops edges touching any removed node and
// returns them for backend cascade. Caller holds f.mu.
func (f *FlowManager) removeIncidentEdgesLocked(removedNodes []string) []Edge {
	gone := make(map[string]bool, len(removedNodes))
	for _, id := range removedNodes {
		gone[id] = true
	}
	var keep []Edge
	var removed []Edge
	for _, e := range f.edges {
		if gone[e.Source] || gone[e.Target] {
			removed = append(removed, e)
			continue
		}
		keep = append(keep, e)
	}
	f.edges = keep
	return removed
}

// finishNodeRemoval handles the side effects of a node leaving the board:
// cancel any pending resize persist, announce the removal, and enqueue the
// backend delete.
func (f *FlowManager) finishNodeRemoval(ctx context.Context, nodeID string) {
	f.mu.Lock()
	if t, ok := f.resizeTimers[nodeID]; ok {
		t.Stop()
		delete(f.resizeTimers, nodeID)
	}
	f.mu.Unlock()

	observability.LogNodeMutation(f.logger, "remove-node", nodeID)

	if f.bus != nil {
		evt := event.New(event.TypeRemoveNode, nodeID, nil)
		_ = f.bus.Publish(ctx, evt)
	}

	id := nodeID
	f.persist("delete-node", id, func(ctx context.Context) error {
		return f.backend.DeleteNode(ctx, f.graphID, id)
	})
}

func (f *FlowManager) persistEdgeDelete(edgeID string) {
	id := edgeID
	f.persist("delete-edge", id, func(ctx context.Context) error {
		return f.backend.DeleteEdge(ctx, f.graphID, id)
	})
}

// scheduleResizePersist (re)arms the debounce timer for a node's resize.
// Only the final size of a resize drag reaches the backend.
func (f *FlowManager) scheduleResizePersist(nodeID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if t, ok := f.resizeTimers[nodeID]; ok {
		t.Stop()
	}
	id := nodeID
	f.resizeTimers[id] = time.AfterFunc(f.resizeDebounce, func() {
		f.mu.Lock()
		delete(f.resizeTimers, id)
		n, ok := f.nodeLocked(id)
		f.mu.Unlock()
		if !ok {
			return
		}
		rec := nodeToRecord(f.graphID, n)
		f.persist("resize-node", id, func(ctx context.Context) error {
			return f.backend.UpdateNode(ctx, rec)
		})
	})
}

// persist schedules one backend mutation. With a queue the op is retried in
// the background; without one it runs inline and a failure is only logged.
// Either way the local mutation already happened and is never rolled back.
func (f *FlowManager) persist(kind, entityID string, do func(ctx context.Context) error) {
	if f.backend == nil {
		return
	}
	if f.queue != nil {
		f.queue.Enqueue(store.Op{Kind: kind, EntityID: entityID, Do: do})
		return
	}
	if err := do(context.Background()); err != nil {
		f.logger.Error("backend sync failed",
			slog.String("op", kind),
			slog.String("entity_id", entityID),
			slog.String("error", err.Error()))
	}
}

// saveSnapshot writes the current board through to the local store.
func (f *FlowManager) saveSnapshot() {
	if f.local == nil {
		return
	}
	data, err := f.ExportFlow()
	if err != nil {
		observability.LogSnapshotError(f.logger, f.graphID, "encode", err)
		return
	}
	if err := f.local.Save(f.graphID, data); err != nil {
		observability.LogSnapshotError(f.logger, f.graphID, "save", err)
		return
	}
	observability.LogSnapshot(f.logger, f.graphID, len(data))
}

// record conversion

func nodeToRecord(graphID string, n Node) *api.NodeRecord {
	var data json.RawMessage
	if n.Data != nil {
		data, _ = json.Marshal(n.Data)
	}
	return &api.NodeRecord{
		ID:      n.ID,
		GraphID: graphID,
		Kind:    string(n.Kind),
		X:       n.Position.X,
		Y:       n.Position.Y,
		Width:   n.Size.Width,
		Height:  n.Size.Height,
		Title:   n.Title,
		Data:    data,
	}
}

func nodeFromRecord(rec api.NodeRecord) (Node, error) {
	kind := NodeKind(rec.Kind)
	data, err := DecodeNodeData(kind, rec.Data)
	if err != nil {
		return Node{}, err
	}
	return Node{
		ID:       rec.ID,
		Kind:     kind.Normalize(),
		Position: Position{X: rec.X, Y: rec.Y},
		Size:     Size{Width: rec.Width, Height: rec.Height},
		Title:    rec.Title,
		Data:     data,
	}, nil
}

func edgeToRecord(graphID string, e Edge) *api.EdgeRecord {
	return &api.EdgeRecord{
		ID:           e.ID,
		GraphID:      graphID,
		Source:       e.Source,
		Target:       e.Target,
		SourceHandle: e.SourceHandle,
		TargetHandle: e.TargetHandle,
		Kind:         e.Kind,
	}
}

func edgeFromRecord(rec api.EdgeRecord) Edge {
	return Edge{
		ID:           rec.ID,
		Source:       rec.Source,
		Target:       rec.Target,
		SourceHandle: rec.SourceHandle,
		TargetHandle: rec.TargetHandle,
		Kind:         rec.Kind,
	}
}
