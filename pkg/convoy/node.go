package convoy

import (
	"github.com/meridianlabs-io/convoy/pkg/convoy/effect"
)

// Built-in node identifiers. Handlers are registered once at startup
// under these names; there is no dynamic dispatch by arbitrary strings.
const (
	NodeSafety         = "safety"
	NodeDiscovery      = "discovery"
	NodeIdentify       = "identify"
	NodeSize           = "size"
	NodeOffer          = "offer"
	NodePayment        = "payment"
	NodePaymentConfirm = "payment_confirm"
	NodeUpsell         = "upsell"
	NodeEscalate       = "escalate"
	NodeOutOfDomain    = "out_of_domain"
	NodeGoodbye        = "goodbye"
)

// Class groups nodes that call the same external dependency. Circuit
// breaker failure counters are shared per class, not per node.
type Class string

// Node classes.
const (
	ClassLLM      Class = "llm"
	ClassCRM      Class = "crm"
	ClassInternal Class = "internal"
)

// Signal is the routing signal a node emits after executing.
type Signal string

const (
	// SignalComplete ends the turn: the reply is ready to send.
	SignalComplete Signal = "complete"

	// SignalContinue asks the router for another node in the same turn.
	// The NodeResult's Intent drives the next routing decision.
	SignalContinue Signal = "continue"

	// SignalEscalate forces the escalation path regardless of phase.
	SignalEscalate Signal = "escalate"
)

// Spec describes a node's identity and invocation contract.
type Spec struct {
	// ID is the node name used by the transition table.
	ID string

	// Class is the protected-operation class for circuit breaking.
	Class Class

	// Gated marks nodes requiring human approval before execution.
	Gated bool

	// Idempotent marks nodes safe to retry. Nodes that perform
	// non-repeatable side effects (payment confirmation, order
	// creation) set this false and are NEVER retried: a failure there
	// surfaces immediately rather than risking a duplicate side effect.
	Idempotent bool
}

// NodeResult is the output of one node invocation: the updated state, a
// routing signal, and zero or more side-effect descriptors executed by
// collaborators after the node returns.
type NodeResult struct {
	State   State
	Signal  Signal
	Intent  Intent
	Effects []effect.Effect
}

// Handler is one stage-processing unit in the orchestration graph.
//
// Handlers receive state by value and return the updated state inside
// NodeResult; they never persist state themselves and never change the
// phase - transitions belong to the router alone.
type Handler interface {
	// Spec returns the node's invocation contract. Must be constant
	// for the lifetime of the handler.
	Spec() Spec

	// Execute runs the node. Blocking work must honor ctx; the engine
	// owns the timeout, not the node.
	Execute(ctx Context, s State) (NodeResult, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc struct {
	spec Spec
	fn   func(ctx Context, s State) (NodeResult, error)
}

// NewHandler wraps fn as a Handler with the given spec.
// Panics if the spec has no ID or fn is nil, mirroring registry
// validation: a nameless node cannot be routed to.
func NewHandler(spec Spec, fn func(ctx Context, s State) (NodeResult, error)) HandlerFunc {
	if spec.ID == "" {
		panic("convoy: node spec requires an ID")
	}
	if fn == nil {
		panic("convoy: node function cannot be nil")
	}
	return HandlerFunc{spec: spec, fn: fn}
}

// Spec implements Handler.
func (h HandlerFunc) Spec() Spec {
	return h.spec
}

// Execute implements Handler.
func (h HandlerFunc) Execute(ctx Context, s State) (NodeResult, error) {
	return h.fn(ctx, s)
}
