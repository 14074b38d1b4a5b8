package effect_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/meridianlabs-io/convoy/pkg/convoy/effect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(onError func(effect.Effect, error)) *effect.Registry {
	return effect.NewRegistry(effect.RegistryConfig{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		OnError: onError,
	})
}

func TestRegistry_DispatchFansOut(t *testing.T) {
	r := testRegistry(nil)

	var first, second []string
	require.NoError(t, r.Register(effect.KindNotifyOperator, func(_ context.Context, fx effect.Effect) error {
		first = append(first, fx.ThreadID)
		return nil
	}))
	require.NoError(t, r.Register(effect.KindNotifyOperator, func(_ context.Context, fx effect.Effect) error {
		second = append(second, fx.ThreadID)
		return nil
	}))

	r.Dispatch(context.Background(), []effect.Effect{
		effect.NotifyOperator("t1", "slow_replies"),
		effect.NotifyOperator("t2", "complaint"),
	})

	assert.Equal(t, []string{"t1", "t2"}, first)
	assert.Equal(t, []string{"t1", "t2"}, second)
}

func TestRegistry_UnhandledKindDropped(t *testing.T) {
	r := testRegistry(nil)
	// Must not panic or block.
	r.Dispatch(context.Background(), []effect.Effect{
		effect.SubmitOrder("t1", map[string]any{"order_id": "ord-1"}),
	})
}

func TestRegistry_FailuresDoNotStopDelivery(t *testing.T) {
	var failed []string
	r := testRegistry(func(fx effect.Effect, _ error) {
		failed = append(failed, fx.ID)
	})

	var delivered int
	require.NoError(t, r.Register(effect.KindHandoff, func(_ context.Context, fx effect.Effect) error {
		return errors.New("webhook down")
	}))
	require.NoError(t, r.Register(effect.KindHandoff, func(_ context.Context, fx effect.Effect) error {
		delivered++
		return nil
	}))

	fx := effect.Handoff("t1", "transient")
	r.Dispatch(context.Background(), []effect.Effect{fx})

	assert.Equal(t, 1, delivered, "second handler still runs")
	assert.Equal(t, []string{fx.ID}, failed)
}

func TestRegistry_RegisterValidation(t *testing.T) {
	r := testRegistry(nil)
	assert.Error(t, r.Register("", func(context.Context, effect.Effect) error { return nil }))
	assert.Error(t, r.Register(effect.KindHandoff, nil))
	assert.Panics(t, func() { r.MustRegister("", nil) })
}

func TestEffect_Constructors(t *testing.T) {
	fx := effect.NotifyOperator("t1", "complaint")
	assert.Equal(t, effect.KindNotifyOperator, fx.Kind)
	assert.Equal(t, "t1", fx.ThreadID)
	assert.Equal(t, "complaint", fx.Payload["reason"])
	assert.NotEmpty(t, fx.ID)
	assert.False(t, fx.At.IsZero())

	ho := effect.Handoff("t2", "permanent")
	assert.Equal(t, effect.KindHandoff, ho.Kind)
	assert.Equal(t, "permanent", ho.Payload["error_class"])
	assert.NotEqual(t, fx.ID, ho.ID)
}
