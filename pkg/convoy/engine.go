package convoy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/meridianlabs-io/convoy/pkg/convoy/approval"
	"github.com/meridianlabs-io/convoy/pkg/convoy/checkpoint"
	"github.com/meridianlabs-io/convoy/pkg/convoy/config"
	"github.com/meridianlabs-io/convoy/pkg/convoy/effect"
	"github.com/meridianlabs-io/convoy/pkg/convoy/observability"
	"github.com/meridianlabs-io/convoy/pkg/convoy/resilience"
)

// TurnStatus is the outcome of processing one turn.
type TurnStatus string

const (
	// StatusCompleted means the turn reached a terminal node and the
	// reply is ready.
	StatusCompleted TurnStatus = "completed"

	// StatusPending means the turn suspended at a gated node and is
	// waiting for a human decision.
	StatusPending TurnStatus = "pending"

	// StatusEscalated means the turn ended on the escalation path. The
	// customer got a degraded but polite reply; the failure detail
	// went to the operator channel.
	StatusEscalated TurnStatus = "escalated"
)

// TurnRequest is one inbound user message.
type TurnRequest struct {
	ThreadID    string
	Text        string
	Attachments []Attachment
	Channel     string
}

// TurnResult is the outcome of ProcessTurn or Resume.
type TurnResult struct {
	ThreadID string
	Status   TurnStatus

	// Replies are the outbound messages produced this turn, in order.
	Replies []string

	// Phase is the conversation phase after the turn.
	Phase Phase

	// ApprovalID is set when Status is StatusPending; pass it to an
	// operator console so the decision can be collected.
	ApprovalID string

	// NodeCount is how many nodes executed this turn.
	NodeCount int

	// State is a snapshot of the post-turn conversation state.
	State State
}

// Engine orchestrates conversation turns: it classifies intent, walks
// the transition table, executes nodes under the resilience layer,
// persists a checkpoint after every turn and dispatches side effects.
//
// Engine is safe for concurrent use. Turns on the same thread are
// serialized in arrival order; turns on different threads run in
// parallel.
type Engine struct {
	registry   *Registry
	store      checkpoint.Store
	approvals  approval.Store
	dispatcher effect.Dispatcher
	cfg        config.EngineConfig
	detector   *Detector
	breakers   *resilience.BreakerSet
	locks      *threadLocks
	metrics    observability.MetricsRecorder
	spans      observability.SpanManager
	logger     *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithApprovalStore sets the store backing the human-in-the-loop gate.
// Defaults to an in-memory store.
func WithApprovalStore(s approval.Store) EngineOption {
	return func(e *Engine) { e.approvals = s }
}

// WithDispatcher sets the side-effect dispatcher. Defaults to a
// discarding dispatcher that logs dropped effects.
func WithDispatcher(d effect.Dispatcher) EngineOption {
	return func(e *Engine) { e.dispatcher = d }
}

// WithEngineConfig sets the engine configuration. Defaults to
// config.DefaultEngine().
func WithEngineConfig(cfg config.EngineConfig) EngineOption {
	return func(e *Engine) { e.cfg = cfg }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observability.MetricsRecorder) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithSpanManager sets the tracing span manager.
func WithSpanManager(s observability.SpanManager) EngineOption {
	return func(e *Engine) { e.spans = s }
}

// WithEngineLogger sets the engine's own logger, used outside turn
// context. Per-turn logging uses the Context logger.
func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine builds an engine over a handler registry and a checkpoint
// store. It validates at construction time that the transition table is
// total and that every routable node has a registered handler, so
// routing defects surface at startup rather than mid-conversation.
func NewEngine(registry *Registry, store checkpoint.Store, opts ...EngineOption) (*Engine, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if store == nil {
		return nil, ErrNilStore
	}

	e := &Engine{
		registry: registry,
		store:    store,
		cfg:      config.DefaultEngine(),
		locks:    newThreadLocks(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	if err := routerTableComplete(); err != nil {
		return nil, err
	}
	if err := registry.validateCoverage(); err != nil {
		return nil, err
	}

	if e.approvals == nil {
		e.approvals = approval.NewMemoryStore()
	}
	if e.dispatcher == nil {
		e.dispatcher = effect.NewRegistry(effect.RegistryConfig{Logger: e.logger})
	}
	if e.metrics == nil {
		e.metrics = observability.NewMetricsRecorder()
	}
	if e.spans == nil {
		e.spans = observability.NewSpanManager()
	}
	e.detector = NewDetector(e.cfg)
	e.breakers = resilience.NewBreakerSet(resilience.BreakerConfig{
		FailureThreshold: e.cfg.BreakerFailureThreshold,
		CoolDown:         e.cfg.BreakerCoolDown,
		Logger:           e.logger,
		OnTransition: func(class, state string) {
			e.metrics.RecordBreakerTransition(context.Background(), class, state)
		},
	})

	return e, nil
}

// Breakers exposes the current circuit breaker states per node class,
// for health endpoints.
func (e *Engine) Breakers() map[string]resilience.BreakerState {
	return e.breakers.States()
}

// PendingApprovals lists gated-node requests awaiting a decision.
func (e *Engine) PendingApprovals(ctx context.Context) ([]*approval.Approval, error) {
	return e.approvals.ListPending(ctx)
}

// ProcessTurn handles one inbound message end to end. It returns once
// the turn completed, suspended at a gated node, or escalated; in every
// case the post-turn state has been durably checkpointed before return.
//
// A checkpoint write failure is the only fatal outcome: the turn fails
// with a CheckpointError and nothing is considered delivered.
func (e *Engine) ProcessTurn(ctx Context, req TurnRequest) (TurnResult, error) {
	if req.ThreadID == "" {
		return TurnResult{}, ErrThreadIDRequired
	}

	release, err := e.locks.acquire(ctx, req.ThreadID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("acquire thread %s: %w", req.ThreadID, err)
	}
	defer release()

	done := observability.TimedOperation()
	spanCtx, span := e.spans.StartTurnSpan(ctx, req.ThreadID)
	defer span.End()
	budget, cancel := context.WithTimeout(spanCtx, e.cfg.TurnBudget)
	defer cancel()

	prev, state, err := e.loadState(ctx, req.ThreadID)
	if err != nil {
		e.spans.EndSpanWithError(span, err)
		return TurnResult{}, err
	}

	// A thread suspended at a gated node does not process new turns;
	// the pending decision must arrive first via Resume.
	if prev != nil && prev.Status == checkpoint.StatusAwaitingApproval {
		return TurnResult{
			ThreadID:   req.ThreadID,
			Status:     StatusPending,
			Replies:    []string{"Your order is awaiting confirmation. We'll be right with you."},
			Phase:      state.Phase,
			ApprovalID: prev.ApprovalID,
			State:      state.Clone(),
		}, nil
	}

	msg := Message{Role: RoleUser, Content: req.Text, Attachments: req.Attachments}
	state.AppendMessage(msg)
	if msg.HasImage() {
		state.SetFlag(FlagPendingImage, "1")
	}
	if req.Channel != "" {
		state.SetFlag(FlagChannel, req.Channel)
	}

	intent := e.detector.Detect(&state)
	state.SetFlag(FlagLastIntent, string(intent))
	observability.LogTurnStart(ctx.Logger(), req.ThreadID, string(intent))

	if e.registry.Has(NodeSafety) {
		intent = e.safetyPrepass(ctx, budget, &state, intent)
	}

	loop := &turnLoop{engine: e, ctx: ctx, budget: budget, state: state, intent: intent, started: time.Now()}
	result, err := e.finishTurn(ctx, loop, prev, req.ThreadID)
	if err != nil {
		e.spans.EndSpanWithError(span, err)
		observability.LogTurnError(ctx.Logger(), req.ThreadID, err, done(), loop.lastNode)
		return result, err
	}

	observability.LogTurnComplete(ctx.Logger(), req.ThreadID, done(), result.NodeCount, string(result.Phase))
	return result, nil
}

// safetyPrepass runs the moderation node before routing. An escalate
// signal rewrites the intent to complaint; any prepass failure fails
// open and keeps the original intent.
func (e *Engine) safetyPrepass(ctx Context, budget context.Context, state *State, intent Intent) Intent {
	handler, _ := e.registry.Get(NodeSafety)
	res, err := e.invokeNode(ctx, budget, handler, *state)
	if err != nil {
		observability.LogNodeError(ctx.Logger(), NodeSafety, err, resilience.Categorize(err).String(), 1)
		return intent
	}
	*state = res.State
	if res.Signal == SignalEscalate {
		return IntentComplaint
	}
	return intent
}

// turnLoop carries the mutable state of one turn through the routing
// loop. startNode, when set, is executed directly before any routing;
// Resume sets it to the pending gated node after consuming an approval
// (the suspension checkpoint already carries the applied transition, so
// re-routing would land elsewhere).
type turnLoop struct {
	engine    *Engine
	ctx       Context
	budget    context.Context
	state     State
	intent    Intent
	effects   []effect.Effect
	nodeCount int
	lastNode  string
	startNode string
	started   time.Time

	suspended  bool
	approvalID string
}

// finishTurn runs the routing loop to an outcome, persists the final
// state and dispatches collected effects. Shared by ProcessTurn and
// Resume.
func (e *Engine) finishTurn(ctx Context, loop *turnLoop, prev *checkpoint.Checkpoint, threadID string) (TurnResult, error) {
	if err := e.runLoop(loop, threadID); err != nil {
		// The loop already rewrote the state onto the escalation path;
		// a non-nil error here means even that failed.
		return TurnResult{}, err
	}

	status := StatusCompleted
	switch {
	case loop.suspended:
		status = StatusPending
	case loop.state.Phase == PhaseComplaint:
		status = StatusEscalated
	}

	cp, err := e.persist(ctx, threadID, loop.state, prev, loop.pendingCheckpoint())
	if err != nil {
		return TurnResult{}, err
	}

	e.metrics.RecordTurn(ctx, string(status), time.Since(loop.started))
	e.metrics.RecordCheckpoint(ctx, threadID, int64(len(cp.State)))

	// Effects go out only after state is durable, so a crash between
	// persist and dispatch loses notifications, never conversation state.
	if len(loop.effects) > 0 {
		e.dispatcher.Dispatch(ctx, loop.effects)
	}

	replies := loop.state.PendingReply
	result := TurnResult{
		ThreadID:   threadID,
		Status:     status,
		Replies:    replies,
		Phase:      loop.state.Phase,
		ApprovalID: loop.approvalID,
		NodeCount:  loop.nodeCount,
		State:      loop.state.Clone(),
	}
	return result, nil
}

// pendingCheckpoint returns the suspension marker for persist, or nil
// for a normal active checkpoint.
func (l *turnLoop) pendingCheckpoint() *pendingMark {
	if !l.suspended {
		return nil
	}
	return &pendingMark{node: l.lastNode, approvalID: l.approvalID}
}

type pendingMark struct {
	node       string
	approvalID string
}

// runLoop walks the transition table until a node completes the turn,
// the turn suspends at a gated node, or a failure diverts to the
// escalation path. It never returns an error for node failures - those
// become escalations; the error return is reserved for defects in the
// escalation path itself.
func (e *Engine) runLoop(loop *turnLoop, threadID string) error {
	ctx := loop.ctx
	validationRetries := 0

	for iter := 0; iter < e.cfg.MaxIterations; iter++ {
		if loop.budget.Err() != nil {
			e.escalate(loop, "turn_budget_exceeded")
			return nil
		}

		var nodeID string
		if iter == 0 && loop.startNode != "" {
			nodeID = loop.startNode
		} else {
			tr, routeErr := Route(loop.state.Phase, loop.state.SubPhase, loop.intent, loop.state.Flags)
			if routeErr != nil {
				// Unreachable with a complete table; logged as a defect
				// and the fallback transition (escalation) is followed.
				observability.LogRoutingDefect(ctx.Logger(), string(loop.state.Phase), string(loop.intent))
			}
			observability.LogRoute(ctx.Logger(), string(loop.state.Phase), string(loop.intent), tr.Node, string(tr.Phase))

			loop.state.Phase = tr.Phase
			loop.state.SubPhase = tr.SubPhase
			if tr.ClearPendingImage {
				loop.state.ClearFlag(FlagPendingImage)
			}
			nodeID = tr.Node
		}

		handler, ok := e.registry.Get(nodeID)
		if !ok {
			observability.LogNodeError(ctx.Logger(), nodeID, ErrNodeNotRegistered, "permanent", 0)
			e.escalate(loop, "node_not_registered")
			return nil
		}
		loop.lastNode = nodeID

		// Gated nodes suspend unless this loop was started on them by
		// an already-consumed approval. The exemption is single-use.
		if handler.Spec().Gated && nodeID != loop.startNode {
			return e.suspend(loop, threadID, nodeID)
		}
		if nodeID == loop.startNode {
			loop.startNode = ""
		}

		res, err := e.invokeNode(ctx, loop.budget, handler, loop.state)
		loop.nodeCount++
		if err != nil {
			// Validation failures get a bounded number of feedback
			// re-runs of the same node; each consumes an iteration.
			if resilience.Categorize(err) == resilience.CategoryValidation &&
				validationRetries < e.cfg.ValidationRetries {
				validationRetries++
				loop.state.SetFlag(FlagRetryCount, strconv.Itoa(validationRetries))
				loop.state.AppendMessage(Message{
					Role:    RoleSystem,
					Content: "The previous response was invalid: " + err.Error() + ". Please correct it.",
				})
				continue
			}
			e.escalate(loop, resilience.Categorize(err).String())
			return nil
		}

		validationRetries = 0
		loop.state = res.State
		loop.state.ClearFlag(FlagRetryCount)
		loop.effects = append(loop.effects, res.Effects...)

		switch res.Signal {
		case SignalComplete:
			return nil
		case SignalEscalate:
			loop.intent = IntentComplaint
		case SignalContinue:
			// The end phase is terminal: a farewell node that signals
			// continue must not be routed onward.
			if loop.state.Phase == PhaseEnd {
				return nil
			}
			loop.intent = res.Intent
			if loop.intent == "" {
				loop.intent = IntentContinue
			}
		default:
			observability.LogNodeError(ctx.Logger(), nodeID,
				fmt.Errorf("unknown signal %q", res.Signal), "permanent", 1)
			e.escalate(loop, "unknown_signal")
			return nil
		}
	}

	// Loop bound hit: something is ping-ponging between nodes.
	observability.LogTurnError(ctx.Logger(), threadID,
		&BudgetError{ThreadID: threadID, Iterations: e.cfg.MaxIterations, LastNodeID: loop.lastNode, Cause: ErrMaxIterations},
		0, loop.lastNode)
	e.escalate(loop, "max_iterations")
	return nil
}

// suspend creates the approval record and marks the loop suspended.
// The caller persists the awaiting checkpoint.
func (e *Engine) suspend(loop *turnLoop, threadID, node string) error {
	a := approval.New(threadID, node)
	if err := e.approvals.Create(loop.ctx, a); err != nil {
		return fmt.Errorf("create approval for %s: %w", node, err)
	}
	loop.suspended = true
	loop.approvalID = a.ID
	loop.state.Reply("One moment - we're confirming your order details before placing it.")
	observability.LogTurnSuspended(loop.ctx.Logger(), threadID, node, a.ID)
	return nil
}

// escalate diverts the turn onto the escalation path after a failure.
// The customer-visible reply stays generic; the failure class travels
// in flags and in the handoff effect. Best effort: if the escalation
// node itself fails, a canned reply and a handoff effect are produced
// inline.
func (e *Engine) escalate(loop *turnLoop, reason string) {
	loop.state.SetFlag(FlagLastError, reason)
	loop.state.Phase = PhaseComplaint
	loop.state.SubPhase = SubPhaseNone
	observability.LogTurnEscalated(loop.ctx.Logger(), loop.ctx.ThreadID(), reason, reason)

	if handler, ok := e.registry.Get(NodeEscalate); ok {
		// Escalation must not depend on the exhausted budget.
		res, err := e.invokeNode(loop.ctx, context.WithoutCancel(loop.budget), handler, loop.state)
		if err == nil {
			loop.nodeCount++
			loop.state = res.State
			loop.effects = append(loop.effects, res.Effects...)
			return
		}
		observability.LogNodeError(loop.ctx.Logger(), NodeEscalate, err, resilience.Categorize(err).String(), 1)
	}

	loop.state.Reply("Something went wrong on our side. A team member will follow up with you shortly.")
	loop.effects = append(loop.effects, effect.Handoff(loop.ctx.ThreadID(), reason))
}

// invokeNode executes one node through the full resilience stack:
// circuit breaker per node class, retry with exponential backoff for
// idempotent nodes, a hard per-invocation timeout, and panic recovery.
// Non-idempotent nodes get exactly one attempt.
func (e *Engine) invokeNode(ctx Context, budget context.Context, handler Handler, state State) (NodeResult, error) {
	spec := handler.Spec()
	breaker := e.breakers.For(string(spec.Class))
	if !breaker.Allow() {
		return NodeResult{}, resilience.Transient(
			fmt.Errorf("%w: class %s", resilience.ErrBreakerOpen, spec.Class), spec.ID)
	}

	retryCfg := resilience.RetryConfig{
		MaxAttempts:    e.cfg.RetryMaxAttempts,
		InitialBackoff: e.cfg.RetryInitialBackoff,
		MaxBackoff:     e.cfg.RetryMaxBackoff,
		BackoffFactor:  e.cfg.RetryBackoffFactor,
		Jitter:         e.cfg.RetryJitter,
		Logger:         ctx.Logger(),
		Operation:      spec.ID,
	}
	if !spec.Idempotent {
		retryCfg = resilience.NoRetry
		retryCfg.Logger = ctx.Logger()
		retryCfg.Operation = spec.ID
	}

	result := resilience.WithRetry(budget, retryCfg,
		func(attemptCtx context.Context, attempt int) (NodeResult, error) {
			return e.attemptNode(ctx, attemptCtx, handler, state, attempt)
		})

	if result.Err != nil {
		breaker.Failure()
		return NodeResult{}, &NodeError{NodeID: spec.ID, Op: "execute", Err: result.Err}
	}
	breaker.Success()
	return result.Value, nil
}

// attemptNode runs a single node attempt under the per-node timeout
// with panic recovery.
func (e *Engine) attemptNode(ctx Context, budget context.Context, handler Handler, state State, attempt int) (result NodeResult, err error) {
	spec := handler.Spec()
	attemptCtx, cancel := context.WithTimeout(budget, e.cfg.NodeTimeout)
	defer cancel()

	nodeCtx := deriveNodeContext(ctx, attemptCtx, spec.ID, attempt)
	_, span := e.spans.StartNodeSpan(attemptCtx, spec.ID)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = resilience.Permanent(
				&PanicError{NodeID: spec.ID, Value: r, Stack: string(debug.Stack())}, spec.ID)
		}
		e.spans.EndSpanWithError(span, err)
		e.metrics.RecordNodeExecution(ctx, spec.ID, time.Since(start), err)
		if err != nil {
			observability.LogNodeError(nodeCtx.Logger(), spec.ID, err, resilience.Categorize(err).String(), attempt)
		} else {
			observability.LogNodeComplete(nodeCtx.Logger(), spec.ID, float64(time.Since(start).Milliseconds()), string(result.Signal))
		}
	}()

	observability.LogNodeStart(nodeCtx.Logger(), spec.ID)
	return handler.Execute(nodeCtx, state)
}

// loadState loads the latest checkpoint for a thread and deserializes
// its state. A missing checkpoint yields a fresh state; a version
// mismatch or corrupt state is an error, never silently reset.
func (e *Engine) loadState(ctx context.Context, threadID string) (*checkpoint.Checkpoint, State, error) {
	cp, err := e.store.Latest(ctx, threadID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return nil, NewState(), nil
	}
	if err != nil {
		return nil, State{}, &CheckpointError{ThreadID: threadID, Op: "load", Err: err}
	}
	if cp.Version != checkpoint.Version {
		return nil, State{}, &CheckpointError{
			ThreadID: threadID, Op: "load",
			Err: fmt.Errorf("%w: got %d want %d", ErrCheckpointVersionMismatch, cp.Version, checkpoint.Version),
		}
	}

	var state State
	if err := json.Unmarshal(cp.State, &state); err != nil {
		return nil, State{}, &CheckpointError{
			ThreadID: threadID, Op: "load",
			Err: fmt.Errorf("%w: %v", ErrDeserializeState, err),
		}
	}
	return cp, state, nil
}

// persist compacts, serializes and durably stores the post-turn state.
// Compaction runs on every write so checkpoint size stays bounded
// regardless of conversation length. Pending replies are drained by
// the caller and never persisted.
func (e *Engine) persist(ctx Context, threadID string, state State, prev *checkpoint.Checkpoint, pending *pendingMark) (*checkpoint.Checkpoint, error) {
	toStore := Compact(state, e.cfg)
	toStore.PendingReply = nil

	data, err := json.Marshal(toStore)
	if err != nil {
		return nil, &CheckpointError{
			ThreadID: threadID, Op: "save",
			Err: fmt.Errorf("%w: %v", ErrSerializeState, err),
		}
	}

	seq := 1
	cp := checkpoint.New(threadID, seq, data)
	if prev != nil {
		cp.Sequence = prev.Sequence + 1
		cp.WithParent(prev.ID)
	}
	if pending != nil {
		cp.WithPending(pending.node, pending.approvalID)
	}

	if err := e.store.Put(ctx, cp); err != nil {
		observability.LogCheckpointError(ctx.Logger(), threadID, "save", err)
		return nil, &CheckpointError{ThreadID: threadID, Op: "save", Err: err}
	}

	observability.LogCheckpoint(ctx.Logger(), threadID, cp.Sequence, len(cp.State))
	return cp, nil
}
