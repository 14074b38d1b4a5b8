package checkpoint

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Version is the current checkpoint format version.
// Increment when making breaking changes to checkpoint structure.
const Version = 1

// Status marks what a checkpoint represents.
type Status string

const (
	// StatusActive is a normal snapshot taken after a completed turn step.
	StatusActive Status = "active"

	// StatusAwaitingApproval is a suspended turn: a gated node was
	// reached without approval and execution stopped before it.
	StatusAwaitingApproval Status = "awaiting_approval"
)

// Checkpoint is an immutable snapshot of one conversation's state.
// It is never mutated once written; the next checkpoint for the same
// thread supersedes it (the old one is kept for history and rollback).
type Checkpoint struct {
	// Metadata
	Version   int       `json:"version"`
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Sequence  int       `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	ParentID  string    `json:"parent_id,omitempty"`

	// Suspension context, set when Status is StatusAwaitingApproval.
	Status      Status `json:"status"`
	PendingNode string `json:"pending_node,omitempty"`
	ApprovalID  string `json:"approval_id,omitempty"`

	// State is the serialized conversation state, already compacted.
	State json.RawMessage `json:"state"`
}

// New creates a checkpoint for a thread. State must already be
// JSON-serialized and compacted.
func New(threadID string, sequence int, state []byte) *Checkpoint {
	return &Checkpoint{
		Version:   Version,
		ID:        "cp-" + uuid.New().String(),
		ThreadID:  threadID,
		Sequence:  sequence,
		Timestamp: time.Now().UTC(),
		Status:    StatusActive,
		State:     state,
	}
}

// WithParent links the checkpoint to the snapshot it supersedes.
func (c *Checkpoint) WithParent(parentID string) *Checkpoint {
	c.ParentID = parentID
	return c
}

// WithPending marks the checkpoint as suspended before a gated node.
func (c *Checkpoint) WithPending(node, approvalID string) *Checkpoint {
	c.Status = StatusAwaitingApproval
	c.PendingNode = node
	c.ApprovalID = approvalID
	return c
}

// Marshal serializes a checkpoint to JSON.
func (c *Checkpoint) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// Unmarshal deserializes a checkpoint from JSON.
func Unmarshal(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
