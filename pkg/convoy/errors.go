package convoy

import (
	"errors"
	"fmt"
)

// Sentinel errors for engine construction.
var (
	// ErrNodeNotRegistered indicates the transition table names a node
	// with no registered handler.
	ErrNodeNotRegistered = errors.New("node not registered")

	// ErrNilStore indicates NewEngine was called without a checkpoint store.
	ErrNilStore = errors.New("checkpoint store cannot be nil")
)

// Sentinel errors for turn processing.
var (
	// ErrUndefinedTransition indicates the router was asked to resolve
	// a (phase, intent) pair missing from the transition table. The
	// table is total, so this is a programmer error; when it fires the
	// router still routes to escalation rather than continuing silently.
	ErrUndefinedTransition = errors.New("undefined transition")

	// ErrThreadIDRequired indicates a turn request without a thread id.
	ErrThreadIDRequired = errors.New("thread ID required")

	// ErrServiceUnavailable indicates a node asked for an external
	// client that was never configured.
	ErrServiceUnavailable = errors.New("service not configured")

	// ErrTurnBudgetExceeded indicates the turn's wall-clock budget ran
	// out before the loop reached a terminal node.
	ErrTurnBudgetExceeded = errors.New("turn budget exceeded")

	// ErrMaxIterations indicates the execution loop exceeded the
	// configured per-turn bound.
	ErrMaxIterations = errors.New("exceeded maximum iterations")

	// ErrSerializeState indicates state serialization failed.
	ErrSerializeState = errors.New("failed to serialize state")

	// ErrDeserializeState indicates state deserialization failed.
	ErrDeserializeState = errors.New("failed to deserialize state")

	// ErrCheckpointVersionMismatch indicates an incompatible stored
	// checkpoint version.
	ErrCheckpointVersionMismatch = errors.New("checkpoint version mismatch")
)

// Sentinel errors for the approval gate.
var (
	// ErrNoPendingApproval indicates Resume was called on a thread
	// that is not suspended at a gated node.
	ErrNoPendingApproval = errors.New("no pending approval for thread")

	// ErrAlreadyResolved indicates Resume was called again after the
	// approval was already decided. The gated node is not re-executed.
	ErrAlreadyResolved = errors.New("approval already resolved")
)

// NodeError wraps an error with node context.
type NodeError struct {
	// NodeID is the identifier of the node that failed.
	NodeID string
	// Op is the operation that failed (e.g., "execute").
	Op string
	// Err is the underlying error from the node.
	Err error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %s: %v", e.NodeID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *NodeError) Unwrap() error {
	return e.Err
}

// PanicError captures panic information from node execution.
type PanicError struct {
	// NodeID is the identifier of the node that panicked.
	NodeID string
	// Value is the value passed to panic().
	Value any
	// Stack is the full stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.NodeID, e.Value)
}

// CheckpointError wraps errors from checkpoint operations. Persistence
// failure is fatal for the turn: no partial state is treated as
// committed, and the caller is told the turn could not complete.
type CheckpointError struct {
	// ThreadID is the thread whose turn failed to persist.
	ThreadID string
	// Op is the operation that failed ("serialize", "put", "latest").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %s for thread %s: %v", e.Op, e.ThreadID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CheckpointError) Unwrap() error {
	return e.Err
}

// BudgetError reports a turn that hit its iteration or wall-clock
// bound. The state at termination is preserved for inspection.
type BudgetError struct {
	// ThreadID is the thread whose turn was bounded.
	ThreadID string
	// Iterations is the number of node executions performed.
	Iterations int
	// LastNodeID is the node that would have executed next.
	LastNodeID string
	// Cause is ErrMaxIterations or ErrTurnBudgetExceeded.
	Cause error
}

// Error implements the error interface.
func (e *BudgetError) Error() string {
	return fmt.Sprintf("thread %s: %v after %d nodes at %s", e.ThreadID, e.Cause, e.Iterations, e.LastNodeID)
}

// Unwrap returns the underlying cause for errors.Is support.
func (e *BudgetError) Unwrap() error {
	return e.Cause
}
