package benchmarks

import (
	"context"
	"fmt"
	"testing"

	"github.com/alex-tsiresy/lorebridge/pkg/board"
)

// buildBoard creates a board with n nodes laid out on a grid, every even node
// connected to the next artefact node.
func buildBoard(n int) *board.FlowManager {
	flow := board.NewFlowManager("bench")
	ctx := context.Background()

	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		pos := board.Position{X: float64(i%10) * 700, Y: float64(i/10) * 700}
		var node board.Node
		if i%2 == 0 {
			node = flow.AddChatNode(ctx, pos)
		} else {
			node = flow.AddDocumentNode(ctx, pos)
		}
		ids = append(ids, node.ID)
	}
	for i := 0; i+1 < n; i += 2 {
		_, _ = flow.Connect(ctx, board.Connection{
			Source:       ids[i],
			Target:       ids[i+1],
			SourceHandle: "right-source",
			TargetHandle: "left-target",
		})
	}
	return flow
}

// BenchmarkApplyNodeChanges_Move measures the hot path of a drag: one move
// delta applied per frame.
func BenchmarkApplyNodeChanges_Move(b *testing.B) {
	for _, n := range []int{10, 50, 200} {
		b.Run(fmt.Sprintf("nodes_%d", n), func(b *testing.B) {
			flow := buildBoard(n)
			target := flow.Nodes()[0].ID
			ctx := context.Background()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				flow.ApplyNodeChanges(ctx, []board.NodeChange{
					board.MoveChange(target, board.Position{X: float64(i), Y: float64(i)}),
				})
			}
		})
	}
}

// BenchmarkIsValidConnection measures connection validation against boards of
// increasing size.
func BenchmarkIsValidConnection(b *testing.B) {
	for _, n := range []int{10, 50, 200} {
		b.Run(fmt.Sprintf("nodes_%d", n), func(b *testing.B) {
			flow := buildBoard(n)
			nodes := flow.Nodes()
			conn := board.Connection{
				Source:       nodes[0].ID,
				Target:       nodes[len(nodes)-1].ID,
				SourceHandle: "bottom-source",
				TargetHandle: "top-target",
			}
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = flow.IsValidConnection(conn)
			}
		})
	}
}

// BenchmarkSetNodesAndEdges_NoChange measures the hydration guard: comparing
// an unchanged snapshot must be cheap since it runs on every reload.
func BenchmarkSetNodesAndEdges_NoChange(b *testing.B) {
	for _, n := range []int{10, 50, 200} {
		b.Run(fmt.Sprintf("nodes_%d", n), func(b *testing.B) {
			flow := buildBoard(n)
			nodes := flow.Nodes()
			edges := flow.Edges()
			ctx := context.Background()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = flow.SetNodesAndEdges(ctx, nodes, edges)
			}
		})
	}
}

// BenchmarkExportFlow measures board JSON serialization.
func BenchmarkExportFlow(b *testing.B) {
	for _, n := range []int{10, 50, 200} {
		b.Run(fmt.Sprintf("nodes_%d", n), func(b *testing.B) {
			flow := buildBoard(n)
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_, _ = flow.ExportFlow()
			}
		})
	}
}
