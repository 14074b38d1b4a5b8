package convoy

import (
	"context"
	"log/slog"
	"sync"

	"github.com/meridianlabs-io/convoy/pkg/convoy/observability"
)

// LLMClient generates assistant replies and analyzes product images.
// Implementations wrap a concrete model provider; nodes depend only on
// this interface so tests can substitute canned clients.
type LLMClient interface {
	// Complete generates a reply for the given prompt.
	Complete(ctx context.Context, prompt string) (string, error)

	// AnalyzeImage identifies the product shown in an image and returns
	// a short textual description (e.g. a product name or SKU hint).
	AnalyzeImage(ctx context.Context, imageURL string) (string, error)
}

// Order is the payload submitted to the CRM when a purchase is
// confirmed.
type Order struct {
	ThreadID   string    `json:"thread_id"`
	Products   []Product `json:"products"`
	Contact    Contact   `json:"contact"`
	TotalCents int64     `json:"total_cents"`
}

// CRMClient talks to the backing CRM / order system.
type CRMClient interface {
	// SubmitOrder registers a confirmed order and returns its id.
	// This call is not idempotent on the remote side.
	SubmitOrder(ctx context.Context, order Order) (string, error)

	// NotifyOperator alerts a human operator about a thread that needs
	// attention.
	NotifyOperator(ctx context.Context, threadID, reason string) error
}

// LLMFactory constructs an LLMClient on first use.
type LLMFactory func() (LLMClient, error)

// CRMFactory constructs a CRMClient on first use.
type CRMFactory func() (CRMClient, error)

// Services is the bag of external clients available to node handlers.
// Clients are constructed lazily and memoized: the first node that
// needs the LLM pays the construction cost, later nodes reuse it.
type Services struct {
	logger *slog.Logger

	llmFactory LLMFactory
	llmOnce    sync.Once
	llm        LLMClient
	llmErr     error

	crmFactory CRMFactory
	crmOnce    sync.Once
	crm        CRMClient
	crmErr     error
}

// ServicesOption configures a Services bag.
type ServicesOption func(*Services)

// WithLLMFactory installs the factory used to build the LLM client.
func WithLLMFactory(f LLMFactory) ServicesOption {
	return func(s *Services) { s.llmFactory = f }
}

// WithLLMClient installs an already-constructed LLM client.
func WithLLMClient(c LLMClient) ServicesOption {
	return func(s *Services) {
		s.llmFactory = func() (LLMClient, error) { return c, nil }
	}
}

// WithCRMFactory installs the factory used to build the CRM client.
func WithCRMFactory(f CRMFactory) ServicesOption {
	return func(s *Services) { s.crmFactory = f }
}

// WithCRMClient installs an already-constructed CRM client.
func WithCRMClient(c CRMClient) ServicesOption {
	return func(s *Services) {
		s.crmFactory = func() (CRMClient, error) { return c, nil }
	}
}

// NewServices creates a Services bag. A nil logger defaults to
// slog.Default().
func NewServices(logger *slog.Logger, opts ...ServicesOption) *Services {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Services{logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LLM returns the memoized LLM client, constructing it on first call.
// Returns ErrServiceUnavailable if no factory was configured.
func (s *Services) LLM() (LLMClient, error) {
	s.llmOnce.Do(func() {
		if s.llmFactory == nil {
			s.llmErr = ErrServiceUnavailable
			return
		}
		s.llm, s.llmErr = s.llmFactory()
		if s.llmErr == nil {
			observability.LogClientConstructed(s.logger, "llm")
		}
	})
	return s.llm, s.llmErr
}

// CRM returns the memoized CRM client, constructing it on first call.
// Returns ErrServiceUnavailable if no factory was configured.
func (s *Services) CRM() (CRMClient, error) {
	s.crmOnce.Do(func() {
		if s.crmFactory == nil {
			s.crmErr = ErrServiceUnavailable
			return
		}
		s.crm, s.crmErr = s.crmFactory()
		if s.crmErr == nil {
			observability.LogClientConstructed(s.logger, "crm")
		}
	})
	return s.crm, s.crmErr
}
