package convoy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meridianlabs-io/convoy/pkg/convoy/approval"
	"github.com/meridianlabs-io/convoy/pkg/convoy/checkpoint"
	"github.com/meridianlabs-io/convoy/pkg/convoy/observability"
)

// Resume delivers a human decision to a thread suspended at a gated
// node and continues the turn.
//
// Resume is idempotent per approval: the first call decides, every
// later call returns ErrAlreadyResolved without executing anything.
// On approval the record is consumed and the consumption is persisted
// BEFORE the gated node runs, so a crash mid-execution can never lead
// to the node running twice.
func (e *Engine) Resume(ctx Context, threadID string, decision approval.Decision, note string) (TurnResult, error) {
	if threadID == "" {
		return TurnResult{}, ErrThreadIDRequired
	}
	if decision != approval.DecisionApprove && decision != approval.DecisionReject {
		return TurnResult{}, fmt.Errorf("unknown decision %q", decision)
	}

	release, err := e.locks.acquire(ctx, threadID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("acquire thread %s: %w", threadID, err)
	}
	defer release()

	done := observability.TimedOperation()
	spanCtx, span := e.spans.StartTurnSpan(ctx, threadID)
	defer span.End()
	budget, cancel := context.WithTimeout(spanCtx, e.cfg.TurnBudget)
	defer cancel()

	prev, state, err := e.loadState(ctx, threadID)
	if err != nil {
		e.spans.EndSpanWithError(span, err)
		return TurnResult{}, err
	}
	if prev == nil || prev.Status != checkpoint.StatusAwaitingApproval {
		return TurnResult{}, fmt.Errorf("thread %s: %w", threadID, ErrNoPendingApproval)
	}

	resolved, err := e.approvals.Resolve(ctx, prev.ApprovalID, decision, note)
	if err != nil {
		if errors.Is(err, approval.ErrAlreadyResolved) {
			return TurnResult{}, fmt.Errorf("approval %s: %w", prev.ApprovalID, ErrAlreadyResolved)
		}
		e.spans.EndSpanWithError(span, err)
		return TurnResult{}, fmt.Errorf("resolve approval %s: %w", prev.ApprovalID, err)
	}

	loop := &turnLoop{engine: e, ctx: ctx, budget: budget, state: state, started: time.Now()}

	if decision == approval.DecisionReject {
		// A rejected order goes to a human: the customer is told the
		// order did not go through and the thread is handed off.
		loop.state.SetFlag(FlagLastError, "approval_rejected")
		loop.state.Reply("We couldn't complete your order as submitted. A team member will reach out to sort it out.")
		e.escalate(loop, "approval_rejected")

		result, err := e.finishTurn(ctx, loop, prev, threadID)
		if err != nil {
			e.spans.EndSpanWithError(span, err)
			return result, err
		}
		observability.LogTurnComplete(ctx.Logger(), threadID, done(), result.NodeCount, string(result.Phase))
		return result, nil
	}

	// Approved: consume the approval and make the consumption durable
	// before the gated node runs.
	if _, err := e.approvals.Consume(ctx, resolved.ID); err != nil {
		e.spans.EndSpanWithError(span, err)
		return TurnResult{}, fmt.Errorf("consume approval %s: %w", resolved.ID, err)
	}
	loop.state.SetFlag(FlagApprovalUsed, resolved.ID)

	marker, err := e.persist(ctx, threadID, loop.state, prev, nil)
	if err != nil {
		e.spans.EndSpanWithError(span, err)
		return TurnResult{}, err
	}

	loop.startNode = prev.PendingNode
	loop.intent = IntentContinue

	result, err := e.finishTurn(ctx, loop, marker, threadID)
	if err != nil {
		e.spans.EndSpanWithError(span, err)
		observability.LogTurnError(ctx.Logger(), threadID, err, done(), loop.lastNode)
		return result, err
	}

	observability.LogTurnComplete(ctx.Logger(), threadID, done(), result.NodeCount, string(result.Phase))
	return result, nil
}
