package convoy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/meridianlabs-io/convoy/pkg/convoy/checkpoint"
	"github.com/meridianlabs-io/convoy/pkg/convoy/config"
	"github.com/stretchr/testify/require"
)

// quietLogger discards log output so test runs stay readable.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fastConfig returns an engine configuration with near-zero backoffs so
// retry tests finish quickly.
func fastConfig() config.EngineConfig {
	cfg := config.DefaultEngine()
	cfg.RetryInitialBackoff = time.Millisecond
	cfg.RetryMaxBackoff = 5 * time.Millisecond
	cfg.BreakerCoolDown = 10 * time.Millisecond
	return cfg
}

// fakeLLM is a scripted LLM client. Err, when set, is returned from
// every call; otherwise Reply is.
type fakeLLM struct {
	mu    sync.Mutex
	Reply string
	Image string
	Err   error
	Calls int
}

func (f *fakeLLM) Complete(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	if f.Err != nil {
		return "", f.Err
	}
	return f.Reply, nil
}

func (f *fakeLLM) AnalyzeImage(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	if f.Err != nil {
		return "", f.Err
	}
	if f.Image == "" {
		return "a navy blue jacket", nil
	}
	return f.Image, nil
}

// fakeCRM counts order submissions; SubmitErr injects failures.
type fakeCRM struct {
	mu        sync.Mutex
	Orders    []Order
	SubmitErr error
	Notified  []string
}

func (f *fakeCRM) SubmitOrder(_ context.Context, order Order) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubmitErr != nil {
		return "", f.SubmitErr
	}
	f.Orders = append(f.Orders, order)
	return fmt.Sprintf("ord-%04d", len(f.Orders)), nil
}

func (f *fakeCRM) NotifyOperator(_ context.Context, threadID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Notified = append(f.Notified, threadID)
	return nil
}

func (f *fakeCRM) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Orders)
}

// testEngine bundles an engine with its collaborators for assertions.
type testEngine struct {
	engine *Engine
	store  *checkpoint.MemoryStore
	llm    *fakeLLM
	crm    *fakeCRM
	cfg    config.EngineConfig
}

func newTestEngine(t *testing.T, opts ...EngineOption) *testEngine {
	t.Helper()

	cfg := fastConfig()
	registry, err := DefaultRegistry()
	require.NoError(t, err)

	store := checkpoint.NewMemoryStore()
	t.Cleanup(func() { store.Close() })

	base := []EngineOption{
		WithEngineConfig(cfg),
		WithEngineLogger(quietLogger()),
	}
	engine, err := NewEngine(registry, store, append(base, opts...)...)
	require.NoError(t, err)

	return &testEngine{
		engine: engine,
		store:  store,
		llm:    &fakeLLM{Reply: "Sure, happy to help!"},
		crm:    &fakeCRM{},
		cfg:    cfg,
	}
}

// ctx builds a turn context wired to the fake clients.
func (te *testEngine) ctx(threadID string) Context {
	services := NewServices(quietLogger(),
		WithLLMClient(te.llm),
		WithCRMClient(te.crm),
	)
	return NewContext(context.Background(),
		WithLogger(quietLogger()),
		WithServices(services),
		WithThreadID(threadID),
	)
}

// turn sends one text message and requires a non-error outcome.
func (te *testEngine) turn(t *testing.T, threadID, text string) TurnResult {
	t.Helper()
	result, err := te.engine.ProcessTurn(te.ctx(threadID), TurnRequest{
		ThreadID: threadID,
		Text:     text,
	})
	require.NoError(t, err)
	return result
}

// checkout drives a thread to the suspended order-confirmation step.
func (te *testEngine) checkout(t *testing.T, threadID string) TurnResult {
	t.Helper()
	te.turn(t, threadID, "hello")
	te.turn(t, threadID, "do you have a winter jacket?")
	te.turn(t, threadID, "size m please")
	te.turn(t, threadID, "yes, perfect")
	te.turn(t, threadID, "yes, go ahead")
	te.turn(t, threadID, "Jane Doe, 555-123-4567, 1 Main St")
	result := te.turn(t, threadID, "yes that's correct")
	require.Equal(t, StatusPending, result.Status)
	require.NotEmpty(t, result.ApprovalID)
	return result
}

// failingStore wraps a checkpoint store and fails Put after a given
// number of successful writes.
type failingStore struct {
	checkpoint.Store
	mu        sync.Mutex
	successes int
	failAfter int
}

var errDiskFull = errors.New("disk full")

func (f *failingStore) Put(ctx context.Context, cp *checkpoint.Checkpoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.successes >= f.failAfter {
		return errDiskFull
	}
	f.successes++
	return f.Store.Put(ctx, cp)
}
