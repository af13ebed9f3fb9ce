package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "agent", cfg.Agent.ID)
	assert.Equal(t, 10, cfg.Orchestrator.MaxTurns)
	assert.Equal(t, 3, cfg.Collaboration.MaxDepth)
	assert.Equal(t, 5, cfg.Resilience.BreakerThreshold)
	assert.Equal(t, 30*time.Second, cfg.Directory.SweepInterval)
}

func TestLoadOverridesAndFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
agent:
  id: translator
  endpoint: http://localhost:9001
model:
  provider: anthropic
  name: claude-sonnet-4-20250514
orchestrator:
  max_turns: 5
collaboration:
  max_depth: 2
  deadline: 30s
directory:
  sqlite_path: data/peers.db
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "translator", cfg.Agent.ID)
	assert.Equal(t, "anthropic", cfg.Model.Provider)
	assert.Equal(t, 5, cfg.Orchestrator.MaxTurns)
	assert.Equal(t, 2, cfg.Collaboration.MaxDepth)
	assert.Equal(t, 30*time.Second, cfg.Collaboration.Deadline)
	assert.Equal(t, "data/peers.db", cfg.Directory.SqlitePath)

	// Untouched sections keep their defaults.
	assert.Equal(t, 4, cfg.Orchestrator.MaxParallel)
	assert.Equal(t, time.Second, cfg.Resilience.BaseDelay)
	assert.Equal(t, 120*time.Second, cfg.Directory.SilenceTimeout)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_MODEL_KEY", "sk-test-123")

	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model:
  api_key: ${TEST_MODEL_KEY}
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-test-123", cfg.Model.APIKey)
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent: [unclosed"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
