// Package derive implements the per-node derivation protocol: the state
// machine that turns a chat-session link into streamed artefact content for
// document, table, and graph nodes.
//
// One Deriver owns one node's content state. It reacts to the chat-edge
// trigger published by the flow manager, fetches processing options, opens
// the token stream, validates the accumulated content, and broadcasts every
// content change so a full-screen overlay can mirror it.
package derive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alex-tsiresy/lorebridge/pkg/board"
	"github.com/alex-tsiresy/lorebridge/pkg/board/api"
	"github.com/alex-tsiresy/lorebridge/pkg/board/config"
	berrors "github.com/alex-tsiresy/lorebridge/pkg/board/errors"
	"github.com/alex-tsiresy/lorebridge/pkg/board/event"
	"github.com/alex-tsiresy/lorebridge/pkg/board/observability"
	"github.com/alex-tsiresy/lorebridge/pkg/board/render"
	"github.com/alex-tsiresy/lorebridge/pkg/board/stream"
)

// State is a deriver's position in the protocol.
type State int

// Protocol states. Settled and Failed are terminal for an attempt; Failed is
// re-enterable into Generating via retry.
const (
	// Idle: no chat link, no content.
	Idle State = iota

	// OptionsPending: chat link exists, fetching generation options.
	OptionsPending

	// OptionsPresented: the user must pick a processing option.
	OptionsPresented

	// Generating: streaming tokens.
	Generating

	// Settled: content present, not loading, no error.
	Settled

	// Failed: error set, not loading.
	Failed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case OptionsPending:
		return "options_pending"
	case OptionsPresented:
		return "options_presented"
	case Generating:
		return "generating"
	case Settled:
		return "settled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Sentinel errors.
var (
	// ErrGenerationInFlight means the node already has a running attempt.
	ErrGenerationInFlight = errors.New("generation already in flight")

	// ErrRetryExhausted means the manual retry budget is spent.
	ErrRetryExhausted = errors.New("manual retry limit reached")

	// ErrNotRetryable means the deriver is not in a retryable state.
	ErrNotRetryable = errors.New("node is not in a failed state")

	// ErrNoOptionPending means SelectOption was called outside
	// OptionsPresented.
	ErrNoOptionPending = errors.New("no processing options awaiting selection")
)

// Backend is the derivation surface of the API client.
type Backend interface {
	GetArtefact(ctx context.Context, artefactID string) (*api.Artefact, error)
	GetProcessingOptions(ctx context.Context, chatSessionID, outputKind, artefactID string) ([]api.ProcessingOption, error)
	StreamArtefact(ctx context.Context, req api.ArtefactRequest) (<-chan stream.Chunk, error)
}

// Ref is the persisted identity of a derivation: which chat session feeds the
// node, which artefact holds its content, and the selected option.
type Ref struct {
	ArtefactID     string
	ChatSessionID  string
	SelectedOption string
}

// Snapshot is a point-in-time copy of a deriver's observable state.
type Snapshot struct {
	State              State
	Content            string
	Error              string
	IsLoading          bool
	CharactersReceived int
	ChatSessionID      string
	ArtefactID         string
	Options            []api.ProcessingOption
	SelectedOption     string
	ManualRetriesUsed  int

	// Table is the last successful mid-stream parse (table nodes only).
	Table *render.Table
}

// Deriver runs the derivation protocol for a single artefact node.
type Deriver struct {
	nodeID  string
	kind    board.NodeKind
	backend Backend
	bus     *event.Bus
	clock   Clock
	timeout time.Duration
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager

	retryLimit int
	persistRef func(ctx context.Context, ref Ref) error

	mu            sync.Mutex
	state         State
	attempt       int64 // generation version; stale attempts compare unequal
	inFlight      bool
	chatSessionID string // one-shot binding slot, set by the first chat edge
	artefactID    string
	options       []api.ProcessingOption
	selected      string
	content       string
	errMsg        string
	chars         int
	manualRetries int
	autoRetried   bool // graph-only automatic retry, fired at most once
	attemptStart  time.Time
	prevContent   string
	prevError     string
	lastTable     *render.Table // table nodes: last successful mid-stream parse

	sub event.Subscription
}

// Option configures a Deriver.
type Option func(*Deriver)

// WithBus wires the deriver to the board bus: it subscribes to its node's
// update topic and broadcasts content changes.
func WithBus(bus *event.Bus) Option {
	return func(d *Deriver) { d.bus = bus }
}

// WithClock substitutes the watchdog clock.
func WithClock(c Clock) Option {
	return func(d *Deriver) { d.clock = c }
}

// WithTimeout sets the per-attempt watchdog deadline.
func WithTimeout(t time.Duration) Option {
	return func(d *Deriver) { d.timeout = t }
}

// WithRetryLimit caps manual retries of a failed generation.
func WithRetryLimit(n int) Option {
	return func(d *Deriver) { d.retryLimit = n }
}

// WithOptions applies the loaded board configuration: the watchdog deadline
// and the manual retry cap.
func WithOptions(opts config.Options) Option {
	return func(d *Deriver) {
		d.timeout = opts.GenerationTimeout
		d.retryLimit = opts.ManualRetryLimit
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Deriver) { d.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(d *Deriver) { d.metrics = m }
}

// WithSpans sets the trace span manager.
func WithSpans(s observability.SpanManager) Option {
	return func(d *Deriver) { d.spans = s }
}

// WithPersistRef sets the callback invoked when the binding or artefact
// identity changes, typically FlowManager.UpdateNodeData behind an adapter.
func WithPersistRef(fn func(ctx context.Context, ref Ref) error) Option {
	return func(d *Deriver) { d.persistRef = fn }
}

// NewDeriver creates the protocol machine for one artefact node. kind must
// be document, table, or graph.
func NewDeriver(nodeID string, kind board.NodeKind, backend Backend, opts ...Option) (*Deriver, error) {
	switch kind {
	case board.KindDocument, board.KindTable, board.KindGraph:
	default:
		return nil, fmt.Errorf("deriver: %s is not a derivable node kind", kind)
	}

	d := &Deriver{
		nodeID:     nodeID,
		kind:       kind,
		backend:    backend,
		clock:      SystemClock(),
		timeout:    60 * time.Second,
		retryLimit: 3,
		logger:     slog.Default(),
		metrics:    observability.NoopMetrics{},
		spans:      observability.NoopSpanManager{},
		state:      Idle,
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.bus != nil {
		topic := event.UpdateNode(string(kind))
		d.sub = d.bus.Subscribe([]string{topic}, nodeID, func(ctx context.Context, evt event.Event) {
			link, ok := evt.Payload.(event.ChatLink)
			if !ok {
				return
			}
			if err := d.HandleChatLink(ctx, link.ChatSessionID); err != nil {
				d.logger.Warn("chat link not handled",
					slog.String("node_id", d.nodeID),
					slog.String("error", err.Error()))
			}
		})
	}

	return d, nil
}

// Close detaches the deriver from the bus. In-flight attempts finish but
// their results are discarded by the version check after Reset.
func (d *Deriver) Close() {
	if d.sub != nil {
		d.sub.Unsubscribe()
	}
}

// NodeID returns the owning node.
func (d *Deriver) NodeID() string { return d.nodeID }

// Kind returns the artefact kind.
func (d *Deriver) Kind() board.NodeKind { return d.kind }

// Snapshot returns the current observable state.
func (d *Deriver) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	opts := make([]api.ProcessingOption, len(d.options))
	copy(opts, d.options)
	return Snapshot{
		State:              d.state,
		Content:            d.content,
		Error:              d.errMsg,
		IsLoading:          d.inFlight,
		CharactersReceived: d.chars,
		ChatSessionID:      d.chatSessionID,
		ArtefactID:         d.artefactID,
		Options:            opts,
		SelectedOption:     d.selected,
		ManualRetriesUsed:  d.manualRetries,
		Table:              d.lastTable,
	}
}

// HandleChatLink reacts to a new chat-to-artefact edge. The first edge binds
// the chat session and starts the derivation chain; later edges to an
// already-bound node are no-ops (first-edge-wins, there is no rebinding UI).
func (d *Deriver) HandleChatLink(ctx context.Context, chatSessionID string) error {
	d.mu.Lock()
	if d.chatSessionID != "" {
		d.mu.Unlock()
		d.logger.Debug("chat link ignored, node already bound",
			slog.String("node_id", d.nodeID))
		return nil
	}
	d.chatSessionID = chatSessionID
	artefactID := d.artefactID
	d.state = OptionsPending
	d.mu.Unlock()

	d.publishChatSession(ctx, chatSessionID)
	d.saveRef(ctx)

	// Persisted content short-circuits the whole chain.
	if artefactID != "" {
		if err := d.LoadExisting(ctx, artefactID); err == nil {
			return nil
		}
	}

	return d.fetchOptions(ctx)
}

// Restore seeds the deriver from persisted node data on board load. Existing
// artefact content settles the node directly; otherwise a persisted chat
// binding resumes the derivation chain, and a persisted option selection
// skips the choice UI (modal-free resume across reloads).
func (d *Deriver) Restore(ctx context.Context, ref Ref) error {
	d.mu.Lock()
	d.artefactID = ref.ArtefactID
	if d.chatSessionID == "" {
		d.chatSessionID = ref.ChatSessionID
	}
	if ref.SelectedOption != "" {
		d.selected = ref.SelectedOption
	}
	chatSessionID := d.chatSessionID
	d.mu.Unlock()

	if ref.ArtefactID != "" {
		if err := d.LoadExisting(ctx, ref.ArtefactID); err == nil {
			return nil
		}
	}
	if chatSessionID == "" {
		return nil // stays Idle until an edge arrives
	}

	d.mu.Lock()
	d.state = OptionsPending
	d.mu.Unlock()
	return d.fetchOptions(ctx)
}

// LoadExisting hydrates the node from a previously created artefact. When
// persisted content exists the node settles directly, without regenerating.
func (d *Deriver) LoadExisting(ctx context.Context, artefactID string) error {
	artefact, err := d.backend.GetArtefact(ctx, artefactID)
	if err != nil {
		return fmt.Errorf("load artefact %s: %w", artefactID, err)
	}
	if artefact.Content == "" {
		return fmt.Errorf("load artefact %s: no persisted content", artefactID)
	}

	d.mu.Lock()
	d.artefactID = artefact.ID
	if d.chatSessionID == "" {
		d.chatSessionID = artefact.ChatSessionID
	}
	if artefact.SelectedOption != "" {
		d.selected = artefact.SelectedOption
	}
	d.content = artefact.Content
	d.chars = len(artefact.Content)
	d.errMsg = ""
	d.state = Settled
	d.mu.Unlock()

	d.broadcast(ctx)
	d.logger.Info("artefact loaded from persistence",
		slog.String("node_id", d.nodeID),
		slog.String("artefact_id", artefact.ID))
	return nil
}

// fetchOptions retrieves processing options. A fetch failure degrades
// gracefully into generation with default parameters. A persisted selection
// resumes generation without re-presenting the choice.
func (d *Deriver) fetchOptions(ctx context.Context) error {
	d.mu.Lock()
	chatSessionID, artefactID, selected := d.chatSessionID, d.artefactID, d.selected
	d.mu.Unlock()

	options, err := d.backend.GetProcessingOptions(ctx, chatSessionID, string(d.kind), artefactID)
	if err != nil {
		d.logger.Warn("processing options unavailable, generating with defaults",
			slog.String("node_id", d.nodeID),
			slog.String("error", err.Error()))
		return d.generate(ctx)
	}

	d.mu.Lock()
	d.options = options
	d.mu.Unlock()

	if len(options) == 0 {
		return d.generate(ctx)
	}

	if selected != "" {
		for _, opt := range options {
			if opt.ID == selected {
				return d.generate(ctx)
			}
		}
	}

	d.mu.Lock()
	d.state = OptionsPresented
	d.mu.Unlock()
	d.broadcast(ctx)
	return nil
}

// SelectOption records the user's choice and starts generation.
func (d *Deriver) SelectOption(ctx context.Context, optionID string) error {
	d.mu.Lock()
	if d.state != OptionsPresented {
		d.mu.Unlock()
		return ErrNoOptionPending
	}
	found := false
	for _, opt := range d.options {
		if opt.ID == optionID {
			found = true
			break
		}
	}
	if !found {
		d.mu.Unlock()
		return fmt.Errorf("unknown processing option %q", optionID)
	}
	d.selected = optionID
	d.mu.Unlock()

	d.saveRef(ctx)
	return d.generate(ctx)
}

// Retry re-enters Generating from Failed, capped by the manual retry limit.
func (d *Deriver) Retry(ctx context.Context) error {
	d.mu.Lock()
	if d.state != Failed {
		d.mu.Unlock()
		return ErrNotRetryable
	}
	if d.manualRetries >= d.retryLimit {
		d.mu.Unlock()
		return ErrRetryExhausted
	}
	d.manualRetries++
	d.mu.Unlock()
	return d.generate(ctx)
}

// RetriesRemaining reports how many manual retries are left.
func (d *Deriver) RetriesRemaining() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	remaining := d.retryLimit - d.manualRetries
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reset returns the deriver to Idle, discarding content and unbinding the
// chat session. Any in-flight attempt becomes stale. Used on node deletion.
func (d *Deriver) Reset(ctx context.Context) {
	d.mu.Lock()
	d.attempt++
	d.inFlight = false
	d.state = Idle
	d.chatSessionID = ""
	d.artefactID = ""
	d.options = nil
	d.selected = ""
	d.content = ""
	d.errMsg = ""
	d.chars = 0
	d.manualRetries = 0
	d.autoRetried = false
	d.prevContent = ""
	d.prevError = ""
	d.lastTable = nil
	d.mu.Unlock()

	d.broadcast(ctx)
}

// generate begins one attempt. The in-flight guard serializes attempts per
// node; the attempt counter makes superseded results inert.
func (d *Deriver) generate(ctx context.Context) error {
	d.mu.Lock()
	if d.inFlight {
		d.mu.Unlock()
		return ErrGenerationInFlight
	}
	d.inFlight = true
	d.state = Generating
	d.errMsg = "" // a new attempt clears any prior error
	d.content = ""
	d.chars = 0
	d.lastTable = nil
	d.attempt++
	d.attemptStart = d.clock.Now()
	v := d.attempt

	req := api.ArtefactRequest{
		Kind:           string(d.kind),
		ChatSessionID:  d.chatSessionID,
		ArtefactID:     d.artefactID,
		SelectedOption: d.selected,
	}
	if d.kind == board.KindGraph {
		// The graph endpoint accepts the previous failure to steer
		// regeneration away from it.
		req.PreviousInvalidContent = d.prevContent
		req.PreviousError = d.prevError
	}
	d.prevContent = ""
	d.prevError = ""
	d.mu.Unlock()

	observability.LogGenerationStart(d.logger, d.nodeID, v)
	d.broadcast(ctx)

	go d.run(ctx, v, req)
	return nil
}

// run drives one streaming attempt to settlement, failure, or timeout.
func (d *Deriver) run(ctx context.Context, v int64, req api.ArtefactRequest) {
	elapsed := observability.TimedOperation()
	spanCtx, span := d.spans.StartGenerationSpan(ctx, d.nodeID, string(d.kind), v)

	// The watchdog owns the deadline; cancelling runCtx aborts the
	// underlying connection instead of orphaning the reader.
	runCtx, cancel := context.WithCancel(spanCtx)
	defer cancel()

	finish := func(err error) {
		d.metrics.RecordGeneration(ctx, string(d.kind), time.Duration(elapsed())*time.Millisecond, err)
		d.spans.EndSpanWithError(span, err)
	}
	timeoutErr := func() error {
		return &berrors.TimeoutError{
			Operation: fmt.Sprintf("%s generation for node %s", d.kind, d.nodeID),
			Limit:     d.timeout,
		}
	}

	// The watchdog is armed before the stream opens and covers the whole
	// attempt: the streaming request bypasses the HTTP client timeout, so a
	// server that accepts the request but never sends headers would otherwise
	// pin the node in Generating with no retry path.
	watchdog := d.clock.After(d.timeout)

	type opened struct {
		ch  <-chan stream.Chunk
		err error
	}
	openCh := make(chan opened, 1)
	go func() {
		ch, err := d.backend.StreamArtefact(runCtx, req)
		openCh <- opened{ch: ch, err: err}
	}()

	var ch <-chan stream.Chunk
	select {
	case res := <-openCh:
		if res.err != nil {
			finish(res.err)
			d.fail(ctx, v, res.err)
			return
		}
		ch = res.ch

	case <-watchdog:
		cancel() // aborts the hung open
		err := timeoutErr()
		finish(err)
		d.failTimeout(ctx, v, err)
		return

	case <-ctx.Done():
		finish(ctx.Err())
		d.fail(ctx, v, ctx.Err())
		return
	}

	for {
		select {
		case chunk, ok := <-ch:
			if !ok || chunk.Done {
				err := d.settle(ctx, v)
				finish(err)
				return
			}
			if chunk.Err != nil {
				finish(chunk.Err)
				d.fail(ctx, v, chunk.Err)
				return
			}
			d.appendToken(ctx, v, chunk.Token)

		case <-watchdog:
			err := timeoutErr()
			finish(err)
			d.failTimeout(ctx, v, err)
			return

		case <-ctx.Done():
			finish(ctx.Err())
			d.fail(ctx, v, ctx.Err())
			return
		}
	}
}

// appendToken accumulates a streamed token. Stale attempts are discarded by
// the version check. For table nodes the accumulated text is probed as JSON
// after every chunk; failure is expected mid-stream and ignored.
func (d *Deriver) appendToken(ctx context.Context, v int64, token string) {
	d.mu.Lock()
	if d.attempt != v {
		d.mu.Unlock()
		return
	}
	d.content += token
	d.chars += len(token)
	d.mu.Unlock()

	if d.kind == board.KindTable {
		d.mu.Lock()
		current := d.content
		d.mu.Unlock()
		// Probe after every chunk; failure just means the JSON isn't
		// complete yet. The last good parse is what the renderer shows.
		if t, ok := render.TryParseTable(current); ok {
			d.mu.Lock()
			if d.attempt == v {
				d.lastTable = t
			}
			d.mu.Unlock()
		}
	}

	d.metrics.RecordTokens(ctx, string(d.kind), len(token))
	d.broadcast(ctx)
}

// settle finishes an attempt whose stream completed, validating the
// accumulated content per kind.
func (d *Deriver) settle(ctx context.Context, v int64) error {
	d.mu.Lock()
	if d.attempt != v {
		d.mu.Unlock()
		return nil
	}
	content := d.content
	d.mu.Unlock()

	if err := d.validate(content); err != nil {
		d.fail(ctx, v, err)
		return err
	}

	d.mu.Lock()
	if d.attempt != v {
		d.mu.Unlock()
		return nil
	}
	d.state = Settled
	d.inFlight = false
	d.errMsg = ""
	chars := d.chars
	durMs := float64(d.clock.Now().Sub(d.attemptStart).Milliseconds())
	d.mu.Unlock()

	observability.LogGenerationSettled(d.logger, d.nodeID, durMs, chars)
	d.broadcast(ctx)
	return nil
}

// validate applies the kind-specific content checks.
func (d *Deriver) validate(content string) error {
	switch d.kind {
	case board.KindTable:
		_, err := render.ParseTable(content)
		return err
	case board.KindGraph:
		if err := render.ValidateDiagram(content); err != nil {
			return err
		}
		// Some failure modes render as plausible markup carrying an error
		// message, so the output is scanned too.
		return render.CheckRenderOutput(content)
	default:
		return nil
	}
}

// fail moves the attempt to Failed, keeping the raw accumulated content
// visible for debugging. Graph nodes get one automatic regeneration when the
// failure names the diagram renderer.
func (d *Deriver) fail(ctx context.Context, v int64, err error) {
	d.mu.Lock()
	if d.attempt != v {
		d.mu.Unlock()
		return
	}
	d.applyFailureLocked(err)
	autoRetry := d.shouldAutoRetryLocked(err)
	durMs := float64(d.clock.Now().Sub(d.attemptStart).Milliseconds())
	d.mu.Unlock()

	observability.LogGenerationError(d.logger, d.nodeID, err, durMs)
	d.broadcast(ctx)

	if autoRetry {
		if genErr := d.generate(ctx); genErr != nil {
			d.logger.Warn("automatic diagram retry not started",
				slog.String("node_id", d.nodeID),
				slog.String("error", genErr.Error()))
		}
	}
}

// failTimeout is fail plus attempt supersession: the version bump makes any
// late-arriving chunk from the timed-out stream inert.
func (d *Deriver) failTimeout(ctx context.Context, v int64, err error) {
	d.mu.Lock()
	if d.attempt != v {
		d.mu.Unlock()
		return
	}
	d.attempt++
	d.applyFailureLocked(err)
	durMs := float64(d.clock.Now().Sub(d.attemptStart).Milliseconds())
	d.mu.Unlock()

	observability.LogGenerationError(d.logger, d.nodeID, err, durMs)
	d.broadcast(ctx)
}

// applyFailureLocked records the failure. Caller holds d.mu.
func (d *Deriver) applyFailureLocked(err error) {
	d.state = Failed
	d.inFlight = false
	d.errMsg = err.Error()
}

// shouldAutoRetryLocked decides the graph-only one-shot automatic retry and
// stashes the failed output so the next attempt (automatic or manual) can
// send it to the regeneration endpoint. Caller holds d.mu.
func (d *Deriver) shouldAutoRetryLocked(err error) bool {
	if d.kind != board.KindGraph {
		return false
	}
	var renderErr *berrors.RenderError
	if !errors.As(err, &renderErr) {
		return false
	}
	d.prevContent = d.content
	d.prevError = d.errMsg
	if d.autoRetried {
		return false
	}
	d.autoRetried = true
	return true
}

// broadcast publishes the node's content state on its kind-scoped topic so
// an open full-screen overlay mirrors it without its own fetch logic.
func (d *Deriver) broadcast(ctx context.Context) {
	if d.bus == nil {
		return
	}
	snap := d.Snapshot()
	evt := event.New(event.ContentUpdate(string(d.kind)), d.nodeID, event.ContentState{
		NodeID:             d.nodeID,
		Content:            snap.Content,
		IsLoading:          snap.IsLoading,
		Error:              snap.Error,
		CharactersReceived: snap.CharactersReceived,
	})
	_ = d.bus.Publish(ctx, evt)
}

// publishChatSession announces the persisted binding change.
func (d *Deriver) publishChatSession(ctx context.Context, chatSessionID string) {
	if d.bus == nil {
		return
	}
	evt := event.New(event.ChatSessionUpdate(string(d.kind)), d.nodeID, event.ChatLink{
		NodeID:        d.nodeID,
		ChatSessionID: chatSessionID,
	})
	_ = d.bus.Publish(ctx, evt)
}

// saveRef persists the binding identity through the configured callback.
func (d *Deriver) saveRef(ctx context.Context) {
	if d.persistRef == nil {
		return
	}
	d.mu.Lock()
	ref := Ref{
		ArtefactID:     d.artefactID,
		ChatSessionID:  d.chatSessionID,
		SelectedOption: d.selected,
	}
	d.mu.Unlock()

	if err := d.persistRef(ctx, ref); err != nil {
		d.logger.Warn("derivation ref not persisted",
			slog.String("node_id", d.nodeID),
			slog.String("error", err.Error()))
	}
}
