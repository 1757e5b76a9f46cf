package board_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alex-tsiresy/lorebridge/pkg/board"
	"github.com/alex-tsiresy/lorebridge/pkg/board/config"
)

func TestFromOptionsDefaults(t *testing.T) {
	flow, err := board.FromOptions("g1", config.DefaultOptions())
	require.NoError(t, err)

	n := flow.AddChatNode(context.Background(), board.Position{X: 10, Y: 20})
	got, ok := flow.Node(n.ID)
	require.True(t, ok)
	assert.Equal(t, board.KindChat, got.Kind)
}

func TestFromOptionsSQLiteSnapshots(t *testing.T) {
	opts := config.DefaultOptions()
	opts.SnapshotPath = filepath.Join(t.TempDir(), "boards.db")

	ctx := context.Background()
	flow, err := board.FromOptions("g1", opts)
	require.NoError(t, err)
	flow.AddDocumentNode(ctx, board.Position{X: 0, Y: 0})

	// A second manager assembled from the same options restores the board
	// from the configured snapshot database.
	reopened, err := board.FromOptions("g1", opts)
	require.NoError(t, err)
	require.NoError(t, reopened.LoadSnapshot(ctx))
	assert.Len(t, reopened.Nodes(), 1)
}

func TestFromOptionsRejectsInvalid(t *testing.T) {
	opts := config.DefaultOptions()
	opts.GenerationTimeout = 0

	_, err := board.FromOptions("g1", opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generation_timeout")
}
