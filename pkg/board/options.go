package board

import (
	"fmt"

	"github.com/alex-tsiresy/lorebridge/pkg/board/api"
	"github.com/alex-tsiresy/lorebridge/pkg/board/config"
	"github.com/alex-tsiresy/lorebridge/pkg/board/store"
)

// FromOptions assembles a flow manager from loaded configuration: a backend
// client when an API origin is set, a SQLite snapshot store when a path is
// set (in-memory otherwise), and the configured resize debounce. Extra
// options are applied last, so they can override any assembled piece.
//
// The caller owns the lifecycle of anything it passes via extra options; the
// snapshot store assembled here is closed by the flow manager's owner.
func FromOptions(graphID string, opts config.Options, extra ...FlowOption) (*FlowManager, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("board options: %w", err)
	}

	assembled := []FlowOption{
		WithResizeDebounce(opts.ResizeDebounce),
	}

	if opts.APIOrigin != "" {
		client := api.NewClient(opts.APIOrigin, opts.BearerToken,
			api.WithTimeout(opts.RequestTimeout))
		assembled = append(assembled, WithBackend(client))
	}

	if opts.SnapshotPath != "" {
		snapshots, err := store.NewSQLiteStore(opts.SnapshotPath)
		if err != nil {
			return nil, fmt.Errorf("open snapshot store: %w", err)
		}
		assembled = append(assembled, WithSnapshots(snapshots))
	} else {
		assembled = append(assembled, WithSnapshots(store.NewMemoryStore()))
	}

	assembled = append(assembled, extra...)
	return NewFlowManager(graphID, assembled...), nil
}
