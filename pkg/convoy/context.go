package convoy

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/meridianlabs-io/convoy/pkg/convoy/observability"
)

// Context provides execution context to node handlers.
// It extends context.Context with convoy-specific services and metadata.
//
// Context is immutable after creation. The engine creates derived
// contexts per node with updated NodeID and enriched logger.
type Context interface {
	context.Context

	// Logger returns the configured logger, enriched with thread and
	// node context. Never returns nil - defaults to slog.Default() if
	// not configured.
	Logger() *slog.Logger

	// Services returns the external service clients bag.
	// Never nil; individual clients may be absent.
	Services() *Services

	// ThreadID returns the conversation thread being processed.
	ThreadID() string

	// NodeID returns the current node being executed.
	// Empty string before execution starts.
	NodeID() string

	// Attempt returns the retry attempt number (1 = first attempt).
	Attempt() int
}

// executionContext is the internal implementation of Context.
type executionContext struct {
	context.Context

	logger   *slog.Logger
	services *Services
	threadID string
	nodeID   string
	attempt  int
}

// NewContext creates a Context for a turn. Pass the returned Context to
// Engine.ProcessTurn; nodes receive derived contexts from it.
func NewContext(parent context.Context, opts ...ContextOption) Context {
	if parent == nil {
		parent = context.Background()
	}
	ec := &executionContext{
		Context: parent,
		logger:  slog.Default(),
		attempt: 1,
	}
	for _, opt := range opts {
		opt(ec)
	}
	if ec.services == nil {
		ec.services = NewServices(ec.logger)
	}
	if ec.threadID == "" {
		ec.threadID = "thread-" + uuid.New().String()[:8]
	}
	return ec
}

// ContextOption configures a Context.
type ContextOption func(*executionContext)

// WithLogger sets the logger for the turn.
func WithLogger(logger *slog.Logger) ContextOption {
	return func(ec *executionContext) {
		if logger != nil {
			ec.logger = logger
		}
	}
}

// WithServices sets the external services bag.
func WithServices(s *Services) ContextOption {
	return func(ec *executionContext) {
		ec.services = s
	}
}

// WithThreadID sets the conversation thread id.
func WithThreadID(threadID string) ContextOption {
	return func(ec *executionContext) {
		ec.threadID = threadID
	}
}

// Logger returns the configured logger.
func (c *executionContext) Logger() *slog.Logger {
	return c.logger
}

// Services returns the external services bag.
func (c *executionContext) Services() *Services {
	return c.services
}

// ThreadID returns the conversation thread id.
func (c *executionContext) ThreadID() string {
	return c.threadID
}

// NodeID returns the current node identifier.
func (c *executionContext) NodeID() string {
	return c.nodeID
}

// Attempt returns the retry attempt number.
func (c *executionContext) Attempt() int {
	return c.attempt
}

// withNode derives a context for one node attempt, with the inner
// context.Context replaced (the engine owns timeouts, not the node) and
// the logger enriched.
func (c *executionContext) withNode(inner context.Context, nodeID string, attempt int) *executionContext {
	derived := *c
	derived.Context = inner
	derived.nodeID = nodeID
	derived.attempt = attempt
	derived.logger = observability.EnrichLogger(c.logger, c.threadID, nodeID, attempt)
	return &derived
}

// deriveNodeContext builds the per-attempt Context handed to a node
// handler. It works for any Context implementation, not just the one
// produced by NewContext.
func deriveNodeContext(parent Context, inner context.Context, nodeID string, attempt int) Context {
	if ec, ok := parent.(*executionContext); ok {
		return ec.withNode(inner, nodeID, attempt)
	}
	return &executionContext{
		Context:  inner,
		logger:   observability.EnrichLogger(parent.Logger(), parent.ThreadID(), nodeID, attempt),
		services: parent.Services(),
		threadID: parent.ThreadID(),
		nodeID:   nodeID,
		attempt:  attempt,
	}
}
