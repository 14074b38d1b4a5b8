// Package approval tracks human-in-the-loop approval records for gated
// nodes. An approval is created when execution suspends before a gated
// node, resolved by an external operator signal, and consumed exactly
// once when the gated node finally executes.
//
// Approvals are durable records, not in-memory continuations: the
// operator's decision may arrive long after the original request
// process has exited.
package approval

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Decision is the operator's verdict.
type Decision string

// Operator decisions.
const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Status is the lifecycle state of an approval record.
type Status string

// Approval lifecycle: pending → approved|rejected, approved → consumed.
const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusConsumed Status = "consumed"
)

// Approval is one pending gated-node invocation awaiting a decision.
type Approval struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
	Node     string `json:"node"`
	Status   Status `json:"status"`

	Decision Decision `json:"decision,omitempty"`
	Note     string   `json:"note,omitempty"`

	RequestedAt time.Time  `json:"requested_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	ConsumedAt  *time.Time `json:"consumed_at,omitempty"`
}

// New creates a pending approval for a gated node on a thread.
func New(threadID, node string) *Approval {
	return &Approval{
		ID:          "apr-" + uuid.New().String()[:8],
		ThreadID:    threadID,
		Node:        node,
		Status:      StatusPending,
		RequestedAt: time.Now().UTC(),
	}
}

// Clone returns a copy of the approval.
func (a *Approval) Clone() *Approval {
	out := *a
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		out.ResolvedAt = &t
	}
	if a.ConsumedAt != nil {
		t := *a.ConsumedAt
		out.ConsumedAt = &t
	}
	return &out
}

// Sentinel errors for approval operations.
var (
	// ErrNotFound indicates the approval doesn't exist.
	ErrNotFound = errors.New("approval not found")

	// ErrAlreadyResolved indicates the approval was already decided.
	// Resuming twice with the same approval reports this; it is not a
	// failure of the conversation.
	ErrAlreadyResolved = errors.New("approval already resolved")

	// ErrNotApproved indicates a consume attempt on an approval that
	// isn't in the approved state.
	ErrNotApproved = errors.New("approval not in approved state")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("approval store closed")
)

// Store persists approval records. Implementations must make Resolve
// and Consume atomic so a gated node never executes twice for one
// approval even under concurrent resume calls.
type Store interface {
	// Create stores a new pending approval.
	Create(ctx context.Context, a *Approval) error

	// Get retrieves an approval by id.
	Get(ctx context.Context, id string) (*Approval, error)

	// Resolve records the operator decision on a pending approval.
	// Returns ErrAlreadyResolved if it was decided before.
	Resolve(ctx context.Context, id string, decision Decision, note string) (*Approval, error)

	// Consume marks an approved approval as used by the gated node.
	// Returns ErrNotApproved unless the approval is currently approved.
	Consume(ctx context.Context, id string) (*Approval, error)

	// ListPending returns all pending approvals, oldest first.
	ListPending(ctx context.Context) ([]*Approval, error)

	// Close releases any resources.
	Close() error
}
