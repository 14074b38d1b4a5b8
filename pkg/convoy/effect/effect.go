// Package effect carries side-effect descriptors out of node handlers
// and dispatches them to out-of-band consumers (operator notification,
// CRM order submission) after conversation state has been persisted.
//
// Dispatch failures never roll back persisted state: the conversation
// is the source of truth, effects are best-effort deliveries.
package effect

import (
	"time"

	"github.com/google/uuid"
)

// Kind names a class of side effect.
type Kind string

// Built-in effect kinds.
const (
	KindNotifyOperator Kind = "notify_operator"
	KindSubmitOrder    Kind = "submit_order"
	KindHandoff        Kind = "handoff"
)

// Effect is one side-effect descriptor produced by a node. Effects are
// immutable once created.
type Effect struct {
	ID       string         `json:"id"`
	Kind     Kind           `json:"kind"`
	ThreadID string         `json:"thread_id"`
	Payload  map[string]any `json:"payload,omitempty"`
	At       time.Time      `json:"at"`
}

// New creates an effect descriptor for a thread.
func New(kind Kind, threadID string, payload map[string]any) Effect {
	return Effect{
		ID:       "fx-" + uuid.New().String()[:8],
		Kind:     kind,
		ThreadID: threadID,
		Payload:  payload,
		At:       time.Now().UTC(),
	}
}

// NotifyOperator builds an operator-notification effect.
func NotifyOperator(threadID, reason string) Effect {
	return New(KindNotifyOperator, threadID, map[string]any{"reason": reason})
}

// SubmitOrder builds a CRM order-submission effect.
func SubmitOrder(threadID string, payload map[string]any) Effect {
	return New(KindSubmitOrder, threadID, payload)
}

// Handoff builds a human-handoff effect carrying the failure class that
// triggered it. The failure detail travels here, never in the
// conversational reply.
func Handoff(threadID, errorClass string) Effect {
	return New(KindHandoff, threadID, map[string]any{"error_class": errorClass})
}
