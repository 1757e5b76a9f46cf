// Package board is the core of the knowledge-board engine: the typed
// node/edge data model, the flow manager that owns the canonical arrays and
// mediates persistence, the connection-drag tracker, and the full-screen
// overlay controller.
//
// The flow manager is the single writer of structural state. Everything else
// observes: derivers (package derive) react to chat-edge triggers published
// on the event bus, the canvas shell (package canvas) translates pointer
// input into flow operations, and overlays mirror node content through
// broadcasts.
//
// Basic usage:
//
//	bus := event.NewBus(event.DefaultBusConfig)
//	flow := board.NewFlowManager(graphID,
//		board.WithBus(bus),
//		board.WithBackend(client),
//	)
//	chat := flow.AddChatNode(ctx, board.Position{X: 100, Y: 100})
//	doc := flow.AddDocumentNode(ctx, board.Position{X: 600, Y: 100})
//	_, err := flow.Connect(ctx, board.Connection{
//		Source: chat.ID,
//		Target: doc.ID,
//	})
package board
