package effect

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Handler consumes one effect. Handlers run after the conversation state
// is durably persisted; returning an error marks the delivery failed but
// never propagates into the conversation.
type Handler func(ctx context.Context, fx Effect) error

// Dispatcher delivers effects to registered handlers.
type Dispatcher interface {
	// Dispatch delivers each effect to every handler registered for its
	// kind. Always returns nil errors to callers; failures go to the
	// OnError hook and the log.
	Dispatch(ctx context.Context, effects []Effect)
}

// RegistryConfig configures a Registry dispatcher.
type RegistryConfig struct {
	// Logger receives delivery failures. Nil disables logging.
	Logger *slog.Logger

	// OnError is called for each failed delivery.
	OnError func(fx Effect, err error)
}

// Registry is an in-process Dispatcher that fans each effect out to the
// handlers registered for its kind. Unhandled kinds are logged and
// dropped; effects are best-effort by contract.
type Registry struct {
	config RegistryConfig

	mu       sync.RWMutex
	handlers map[Kind][]Handler
}

// NewRegistry creates an empty dispatcher registry.
func NewRegistry(config RegistryConfig) *Registry {
	return &Registry{
		config:   config,
		handlers: make(map[Kind][]Handler),
	}
}

// Register adds a handler for an effect kind.
func (r *Registry) Register(kind Kind, h Handler) error {
	if kind == "" {
		return fmt.Errorf("effect kind is required")
	}
	if h == nil {
		return fmt.Errorf("handler is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = append(r.handlers[kind], h)
	return nil
}

// MustRegister registers a handler, panicking on error.
func (r *Registry) MustRegister(kind Kind, h Handler) {
	if err := r.Register(kind, h); err != nil {
		panic(err)
	}
}

// Kinds returns the registered effect kinds.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]Kind, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	return kinds
}

// Dispatch implements Dispatcher.
func (r *Registry) Dispatch(ctx context.Context, effects []Effect) {
	for _, fx := range effects {
		r.mu.RLock()
		handlers := r.handlers[fx.Kind]
		r.mu.RUnlock()

		if len(handlers) == 0 {
			if r.config.Logger != nil {
				r.config.Logger.Warn("effect dropped, no handler",
					slog.String("effect_id", fx.ID),
					slog.String("kind", string(fx.Kind)),
					slog.String("thread_id", fx.ThreadID),
				)
			}
			continue
		}

		for _, h := range handlers {
			if err := h(ctx, fx); err != nil {
				if r.config.Logger != nil {
					r.config.Logger.Error("effect delivery failed",
						slog.String("effect_id", fx.ID),
						slog.String("kind", string(fx.Kind)),
						slog.String("thread_id", fx.ThreadID),
						slog.String("error", err.Error()),
					)
				}
				if r.config.OnError != nil {
					r.config.OnError(fx, err)
				}
			}
		}
	}
}

// Discard is a Dispatcher that drops every effect. Useful in tests and
// as a default when no consumers are wired.
type Discard struct{}

// Dispatch implements Dispatcher.
func (Discard) Dispatch(context.Context, []Effect) {}
