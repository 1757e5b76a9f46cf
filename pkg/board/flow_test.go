package board_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/alex-tsiresy/lorebridge/pkg/board"
	"github.com/alex-tsiresy/lorebridge/pkg/board/api"
	"github.com/alex-tsiresy/lorebridge/pkg/board/event"
)

// fakePersister records backend calls and optionally fails them.
type fakePersister struct {
	mu          sync.Mutex
	nodeCreates int
	nodeUpdates int
	nodeDeletes int
	edgeCreates int
	edgeDeletes int
	fail        bool

	nodes []api.NodeRecord
	edges []api.EdgeRecord
}

func (p *fakePersister) err() error {
	if p.fail {
		return errors.New("backend unreachable")
	}
	return nil
}

func (p *fakePersister) CreateNode(ctx context.Context, rec *api.NodeRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nodeCreates++
	return p.err()
}

func (p *fakePersister) UpdateNode(ctx context.Context, rec *api.NodeRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nodeUpdates++
	return p.err()
}

func (p *fakePersister) DeleteNode(ctx context.Context, graphID, nodeID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nodeDeletes++
	return p.err()
}

func (p *fakePersister) CreateEdge(ctx context.Context, rec *api.EdgeRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.edgeCreates++
	return p.err()
}

func (p *fakePersister) DeleteEdge(ctx context.Context, graphID, edgeID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.edgeDeletes++
	return p.err()
}

func (p *fakePersister) ListNodes(ctx context.Context, graphID string) ([]api.NodeRecord, error) {
	return p.nodes, p.err()
}

func (p *fakePersister) ListEdges(ctx context.Context, graphID string) ([]api.EdgeRecord, error) {
	return p.edges, p.err()
}

func (p *fakePersister) counts() (int, int, int, int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nodeCreates, p.nodeUpdates, p.nodeDeletes, p.edgeCreates, p.edgeDeletes
}

func selectNode(t *testing.T, f *board.FlowManager, nodeID string) {
	t.Helper()
	f.ApplyNodeChanges(context.Background(), []board.NodeChange{
		board.SelectChange(nodeID, true),
	})
}

func TestAddThenDeleteIsInverse(t *testing.T) {
	ctx := context.Background()
	kinds := []board.NodeKind{
		board.KindChat, board.KindPDF, board.KindWebsite, board.KindYouTube,
		board.KindInstagram, board.KindDocument, board.KindTable, board.KindGraph,
	}
	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			f := board.NewFlowManager("g1")
			before := f.Nodes()
			beforeEdges := f.Edges()

			n := f.AddNode(ctx, kind, board.Position{X: 5, Y: 5})
			selectNode(t, f, n.ID)
			f.DeleteSelected(ctx)

			assert.Equal(t, before, f.Nodes())
			assert.Equal(t, beforeEdges, f.Edges())
		})
	}
}

func TestAddDeleteInverseProperty(t *testing.T) {
	kinds := []board.NodeKind{
		board.KindChat, board.KindPDF, board.KindWebsite, board.KindYouTube,
		board.KindInstagram, board.KindDocument, board.KindTable, board.KindGraph,
	}
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		f := board.NewFlowManager("g1")

		// A stable population of unselected nodes.
		base := rapid.IntRange(0, 8).Draw(t, "base")
		for i := 0; i < base; i++ {
			kind := rapid.SampledFrom(kinds).Draw(t, "baseKind")
			f.AddNode(ctx, kind, board.Position{
				X: rapid.Float64Range(-1000, 1000).Draw(t, "x"),
				Y: rapid.Float64Range(-1000, 1000).Draw(t, "y"),
			})
		}
		beforeNodes := f.Nodes()
		beforeEdges := f.Edges()

		// Add then delete a batch; arrays must be restored exactly.
		extra := rapid.IntRange(1, 5).Draw(t, "extra")
		var added []string
		for i := 0; i < extra; i++ {
			kind := rapid.SampledFrom(kinds).Draw(t, "kind")
			n := f.AddNode(ctx, kind, board.Position{})
			added = append(added, n.ID)
		}
		var changes []board.NodeChange
		for _, id := range added {
			changes = append(changes, board.SelectChange(id, true))
		}
		f.ApplyNodeChanges(ctx, changes)
		f.DeleteSelected(ctx)

		if !assert.ObjectsAreEqual(beforeNodes, f.Nodes()) {
			t.Fatalf("nodes not restored: want %d, got %d", len(beforeNodes), len(f.Nodes()))
		}
		if !assert.ObjectsAreEqual(beforeEdges, f.Edges()) {
			t.Fatalf("edges not restored")
		}
	})
}

func TestSetNodesAndEdgesGuard(t *testing.T) {
	ctx := context.Background()
	f := board.NewFlowManager("g1")

	nodes := []board.Node{board.NewNode(board.KindChat, board.Position{X: 1, Y: 1})}
	edges := []board.Edge{}

	assert.True(t, f.SetNodesAndEdges(ctx, nodes, edges))
	// Structurally equal input is a no-op.
	assert.False(t, f.SetNodesAndEdges(ctx, f.Nodes(), f.Edges()))

	nodes[0].Position.X = 99
	assert.True(t, f.SetNodesAndEdges(ctx, nodes, edges))
}

func TestIsValidConnection(t *testing.T) {
	ctx := context.Background()
	f := board.NewFlowManager("g1")
	chat := f.AddChatNode(ctx, board.Position{})
	pdf := f.AddPDFNode(ctx, board.Position{X: 100})
	doc := f.AddDocumentNode(ctx, board.Position{X: 200})

	// Self-loop.
	assert.Error(t, f.IsValidConnection(board.Connection{Source: chat.ID, Target: chat.ID}))

	// Unknown node.
	assert.Error(t, f.IsValidConnection(board.Connection{Source: "ghost", Target: doc.ID}))

	// Malformed handle.
	assert.Error(t, f.IsValidConnection(board.Connection{
		Source: chat.ID, Target: doc.ID, SourceHandle: "diagonal-source",
	}))

	// Non-chat source into an artefact generation input.
	assert.Error(t, f.IsValidConnection(board.Connection{Source: pdf.ID, Target: doc.ID}))

	// Valid chat -> document.
	conn := board.Connection{
		Source: chat.ID, Target: doc.ID,
		SourceHandle: "right-source", TargetHandle: "left-target",
	}
	require.NoError(t, f.IsValidConnection(conn))

	_, err := f.Connect(ctx, conn)
	require.NoError(t, err)

	// Exact duplicate.
	assert.Error(t, f.IsValidConnection(conn))

	// Same pair on different handles is allowed.
	assert.NoError(t, f.IsValidConnection(board.Connection{
		Source: chat.ID, Target: doc.ID,
		SourceHandle: "bottom-source", TargetHandle: "top-target",
	}))
}

func TestConnectPublishesDerivationTrigger(t *testing.T) {
	ctx := context.Background()
	bus := event.NewBus(event.DefaultBusConfig)
	defer bus.Close()

	f := board.NewFlowManager("g1", board.WithBus(bus))
	chat := f.AddChatNode(ctx, board.Position{})
	doc := f.AddDocumentNode(ctx, board.Position{X: 300})

	got := make(chan event.ChatLink, 1)
	sub := bus.Subscribe([]string{event.UpdateNode("document")}, doc.ID,
		func(ctx context.Context, evt event.Event) {
			if link, ok := evt.Payload.(event.ChatLink); ok {
				got <- link
			}
		})
	defer sub.Unsubscribe()

	_, err := f.Connect(ctx, board.Connection{Source: chat.ID, Target: doc.ID})
	require.NoError(t, err)

	select {
	case link := <-got:
		assert.Equal(t, doc.ID, link.NodeID)
		assert.Equal(t, chat.Data.(board.ChatData).ChatSessionID, link.ChatSessionID)
		assert.NotEmpty(t, link.ChatSessionID)
	case <-time.After(time.Second):
		t.Fatal("derivation trigger never published")
	}
}

func TestDeleteSelectedCascadesEdges(t *testing.T) {
	ctx := context.Background()
	p := &fakePersister{}
	f := board.NewFlowManager("g1", board.WithBackend(p))

	chat := f.AddChatNode(ctx, board.Position{})
	doc := f.AddDocumentNode(ctx, board.Position{X: 300})
	_, err := f.Connect(ctx, board.Connection{Source: chat.ID, Target: doc.ID})
	require.NoError(t, err)

	selectNode(t, f, chat.ID)
	removedNodes, removedEdges := f.DeleteSelected(ctx)

	assert.Equal(t, 1, removedNodes)
	assert.Equal(t, 1, removedEdges)
	assert.Len(t, f.Nodes(), 1)
	assert.Empty(t, f.Edges())

	_, _, nodeDeletes, _, edgeDeletes := p.counts()
	assert.Equal(t, 1, nodeDeletes)
	assert.Equal(t, 1, edgeDeletes)
}

func TestOptimisticDeleteSurvivesBackendFailure(t *testing.T) {
	ctx := context.Background()
	p := &fakePersister{fail: true}
	f := board.NewFlowManager("g1", board.WithBackend(p))

	n := f.AddChatNode(ctx, board.Position{})
	selectNode(t, f, n.ID)
	f.DeleteSelected(ctx)

	// Local removal stands even though every backend call failed.
	assert.Empty(t, f.Nodes())
}

func TestResizeDebounce(t *testing.T) {
	ctx := context.Background()
	p := &fakePersister{}
	f := board.NewFlowManager("g1",
		board.WithBackend(p),
		board.WithResizeDebounce(30*time.Millisecond),
	)
	n := f.AddChatNode(ctx, board.Position{})

	// A burst of resize deltas during a drag.
	for i := 1; i <= 10; i++ {
		f.ApplyNodeChanges(ctx, []board.NodeChange{
			board.ResizeChange(n.ID, board.Size{Width: float64(400 + i), Height: 500}),
		})
	}

	// Only the final size reaches the backend, once.
	require.Eventually(t, func() bool {
		_, updates, _, _, _ := p.counts()
		return updates == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	_, updates, _, _, _ := p.counts()
	assert.Equal(t, 1, updates)

	got, ok := f.Node(n.ID)
	require.True(t, ok)
	assert.Equal(t, float64(410), got.Size.Width)
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := board.NewFlowManager("g1")
	chat := f.AddChatNode(ctx, board.Position{X: 1, Y: 2})
	doc := f.AddDocumentNode(ctx, board.Position{X: 300, Y: 4})
	_, err := f.Connect(ctx, board.Connection{Source: chat.ID, Target: doc.ID})
	require.NoError(t, err)

	data, err := f.ExportFlow()
	require.NoError(t, err)

	g := board.NewFlowManager("g1")
	require.NoError(t, g.ImportFlow(ctx, data))

	assert.Equal(t, f.Nodes(), g.Nodes())
	assert.Equal(t, f.Edges(), g.Edges())
}

func TestHydrateNormalizesUnknownKinds(t *testing.T) {
	ctx := context.Background()
	p := &fakePersister{
		nodes: []api.NodeRecord{
			{ID: "n1", GraphID: "g1", Kind: "chat", X: 1, Y: 2, Width: 400, Height: 500},
			{ID: "n2", GraphID: "g1", Kind: "hologram", X: 3, Y: 4, Width: 300, Height: 200},
		},
		edges: []api.EdgeRecord{
			{ID: "e1", GraphID: "g1", Source: "n1", Target: "n2"},
		},
	}
	f := board.NewFlowManager("g1", board.WithBackend(p))
	require.NoError(t, f.Hydrate(ctx))

	nodes := f.Nodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, board.KindChat, nodes[0].Kind)
	assert.Equal(t, board.KindArtefactFallback, nodes[1].Kind)
	assert.Len(t, f.Edges(), 1)
}

func TestUpdateNodeDataKindMismatch(t *testing.T) {
	ctx := context.Background()
	f := board.NewFlowManager("g1")
	n := f.AddDocumentNode(ctx, board.Position{})

	require.NoError(t, f.UpdateNodeData(ctx, n.ID, board.DocumentData{
		ArtefactRef: board.ArtefactRef{ChatSessionID: "chat-1"},
	}))
	assert.Error(t, f.UpdateNodeData(ctx, n.ID, board.ChatData{}))
	assert.Error(t, f.UpdateNodeData(ctx, "ghost", board.DocumentData{}))

	got, _ := f.Node(n.ID)
	assert.Equal(t, "chat-1", got.Data.(board.DocumentData).ChatSessionID)
}
