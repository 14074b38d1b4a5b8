package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/meridianlabs-io/convoy/pkg/convoy/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromYAML(t *testing.T) {
	c, err := config.FromYAML([]byte(`
engine:
  max_iterations: 8
  node_timeout: 10s
  confirmation_keywords:
    - "si"
    - "vale"
store:
  path: ./conversations.db
`))
	require.NoError(t, err)

	engine := c.Section("engine")
	assert.Equal(t, 8, engine.Int("max_iterations", 0))
	assert.Equal(t, 10*time.Second, engine.Duration("node_timeout", 0))
	assert.Equal(t, []string{"si", "vale"}, engine.StringSlice("confirmation_keywords", nil))
	assert.Equal(t, "./conversations.db", c.Section("store").String("path", ""))
}

func TestFromJSON(t *testing.T) {
	c, err := config.FromJSON([]byte(`{"engine":{"max_iterations":4,"retry_jitter":0.2}}`))
	require.NoError(t, err)

	engine := c.Section("engine")
	assert.Equal(t, 4, engine.Int("max_iterations", 0))
	assert.Equal(t, 0.2, engine.Float("retry_jitter", 0))
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "convoy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  turn_budget: 90s\n"), 0o644))

	c, err := config.FromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, c.Section("engine").Duration("turn_budget", 0))

	_, err = config.FromFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	unsupported := filepath.Join(dir, "convoy.toml")
	require.NoError(t, os.WriteFile(unsupported, []byte("x = 1"), 0o644))
	_, err = config.FromFile(unsupported)
	assert.Error(t, err)
}

func TestConfig_AccessorDefaults(t *testing.T) {
	c := config.New(map[string]any{
		"name":   "convoy",
		"count":  3,
		"ratio":  1.5,
		"flag":   true,
		"badint": "not a number",
	})

	assert.Equal(t, "convoy", c.String("name", "x"))
	assert.Equal(t, "fallback", c.String("missing", "fallback"))
	assert.Equal(t, 3, c.Int("count", 0))
	assert.Equal(t, 7, c.Int("badint", 7))
	assert.Equal(t, 1.5, c.Float("ratio", 0))
	assert.True(t, c.Bool("flag", false))
	assert.False(t, c.Bool("missing", false))
}

func TestConfig_DurationForms(t *testing.T) {
	c := config.New(map[string]any{
		"as_string": "45s",
		"as_int":    30,
		"as_float":  1.5,
		"bad":       "forever",
	})

	assert.Equal(t, 45*time.Second, c.Duration("as_string", 0))
	assert.Equal(t, 30*time.Second, c.Duration("as_int", 0))
	assert.Equal(t, 1500*time.Millisecond, c.Duration("as_float", 0))
	assert.Equal(t, time.Minute, c.Duration("bad", time.Minute))
	assert.Equal(t, time.Minute, c.Duration("missing", time.Minute))
}

func TestEngineFromConfig(t *testing.T) {
	c, err := config.FromYAML([]byte(`
engine:
  max_iterations: 4
  breaker_failure_threshold: 5
  message_cap: 50
`))
	require.NoError(t, err)

	e := config.EngineFromConfig(c)
	assert.Equal(t, 4, e.MaxIterations)
	assert.Equal(t, 5, e.BreakerFailureThreshold)
	assert.Equal(t, 50, e.MessageCap)
	// Unset keys keep defaults.
	def := config.DefaultEngine()
	assert.Equal(t, def.NodeTimeout, e.NodeTimeout)
	assert.Equal(t, def.ConfirmationKeywords, e.ConfirmationKeywords)
}

func TestEngineConfig_Validate(t *testing.T) {
	assert.NoError(t, config.DefaultEngine().Validate())

	bad := config.DefaultEngine()
	bad.MaxIterations = 0
	bad.MessageCap = -1
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_iterations")
	assert.Contains(t, err.Error(), "message_cap")
}
