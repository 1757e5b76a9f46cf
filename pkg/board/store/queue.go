package store

import (
	"context"
	"log/slog"
	"sync"

	berrors "github.com/alex-tsiresy/lorebridge/pkg/board/errors"
)

// Op is one pending backend mutation. Ops are executed in enqueue order by a
// single worker, so per-entity mutations never race each other.
type Op struct {
	// Kind names the mutation for logging ("create-node", "delete-edge", ...).
	Kind string

	// EntityID is the node or edge the mutation concerns.
	EntityID string

	// Do performs the backend call.
	Do func(ctx context.Context) error
}

// Queue is the best-effort backend sync queue. Local state is authoritative;
// a mutation that exhausts its retries is logged and dropped, never rolled
// back, so the canvas stays interactive even when the backend is unreachable.
type Queue struct {
	logger *slog.Logger
	retry  berrors.RetryConfig

	mu     sync.Mutex
	ops    []Op
	wake   chan struct{}
	done   chan struct{}
	closed bool

	wg sync.WaitGroup
}

// NewQueue creates a queue. Call Start to begin draining.
func NewQueue(logger *slog.Logger, retry berrors.RetryConfig) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if retry.MaxAttempts <= 0 {
		retry = berrors.SyncRetry
	}
	return &Queue{
		logger: logger,
		retry:  retry,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Enqueue appends a mutation. Safe to call before Start; ops are buffered.
// Enqueue after Close drops the op.
func (q *Queue) Enqueue(op Op) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.ops = append(q.ops, op)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of pending ops.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Start launches the drain worker. The worker exits when ctx is cancelled or
// the queue is closed. Start must be called at most once.
func (q *Queue) Start(ctx context.Context) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			op, ok := q.pop()
			if !ok {
				select {
				case <-q.wake:
					continue
				case <-q.done:
					return
				case <-ctx.Done():
					return
				}
			}

			result := berrors.WithRetryContext(ctx, q.retry, func(ctx context.Context) (struct{}, error) {
				return struct{}{}, op.Do(ctx)
			})
			if result.Err != nil {
				if ctx.Err() != nil {
					return
				}
				q.logger.Error("backend sync dropped after retries",
					slog.String("op", op.Kind),
					slog.String("entity_id", op.EntityID),
					slog.Int("attempts", result.Attempts),
					slog.String("error", result.Err.Error()))
				continue
			}

			q.logger.Debug("backend sync applied",
				slog.String("op", op.Kind),
				slog.String("entity_id", op.EntityID),
				slog.Int("attempts", result.Attempts))
		}
	}()
}

// pop removes and returns the oldest op.
func (q *Queue) pop() (Op, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ops) == 0 {
		return Op{}, false
	}
	op := q.ops[0]
	q.ops = q.ops[1:]
	return op, true
}

// Close stops accepting ops, discards pending ops, signals the worker to
// exit, and waits for it to finish the op it is executing.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.ops = nil
	q.mu.Unlock()

	close(q.done)
	q.wg.Wait()
}

// Wait blocks until the drain worker has exited. Useful in tests after
// cancelling the Start context.
func (q *Queue) Wait() {
	q.wg.Wait()
}
