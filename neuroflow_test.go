package neuroflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lamwimham/neuroflow/capability"
	"github.com/lamwimham/neuroflow/config"
	"github.com/lamwimham/neuroflow/core"
	"github.com/lamwimham/neuroflow/model"
)

func TestRunLocalWithFunctionCapability(t *testing.T) {
	mock := model.NewMockModel("mock", "test")
	mock.ScriptFunctionCall("call-1", "add", map[string]any{"a": 2.0, "b": 3.0})
	mock.ScriptContent(core.NewAssistantContent("The sum is 5."))

	agent := New(mock)
	require.NoError(t, agent.RegisterFunction(capability.NewFunction(
		"add", "Add two numbers",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"a": map[string]any{"type": "number"},
				"b": map[string]any{"type": "number"},
			},
			"required": []any{"a", "b"},
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			return args["a"].(float64) + args["b"].(float64), nil
		},
	)))

	result, err := agent.RunLocal(context.Background(), "what is 2+3?")
	require.NoError(t, err)
	assert.NotEmpty(t, result.FinalAnswer)
	assert.Equal(t, 2, result.ModelCalls)
}

func TestRunSyncWithoutPeers(t *testing.T) {
	agent := New(model.NewMockModel("mock", "test"))

	answer, err := agent.RunSync(context.Background(), "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, answer)
}

func TestRunAsyncDeliversAnswer(t *testing.T) {
	agent := New(model.NewMockModel("mock", "test"))

	resultCh, errCh := agent.Run(context.Background(), "hello")
	select {
	case answer := <-resultCh:
		assert.NotEmpty(t, answer)
	case err := <-errCh:
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFromConfigAppliesSettings(t *testing.T) {
	cfg, err := config.Load("does-not-exist.yaml")
	require.NoError(t, err)
	cfg.Agent.ID = "configured"
	cfg.Orchestrator.MaxTurns = 2

	agent := New(model.NewMockModel("mock", "test"), FromConfig(cfg))
	assert.Equal(t, "configured", agent.opts.AgentID)
	assert.Equal(t, 2, agent.opts.MaxTurns)
}

func TestNewModelFromConfigSelectsProvider(t *testing.T) {
	cfg, err := config.Load("does-not-exist.yaml")
	require.NoError(t, err)

	m, err := NewModelFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "mock", m.Info().Provider)

	cfg.Model.Provider = "anthropic"
	cfg.Model.Name = "claude-3-5-haiku-20241022"
	m, err = NewModelFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", m.Info().Provider)
	assert.Equal(t, "claude-3-5-haiku-20241022", m.Info().Name)

	cfg.Model.Provider = "openai"
	cfg.Model.Name = "gpt-4o"
	m, err = NewModelFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "openai", m.Info().Provider)
	assert.Equal(t, "gpt-4o", m.Info().Name)

	cfg.Model.Provider = "bedrock"
	_, err = NewModelFromConfig(cfg)
	require.Error(t, err)
}

func TestRegisterPeerCapability(t *testing.T) {
	agent := New(model.NewMockModel("mock", "test"))
	require.NoError(t, agent.RegisterPeerCapability("summarize", "Summarize via a specialist peer"))

	def, ok := agent.Catalog().Get("summarize")
	require.True(t, ok)
	assert.Equal(t, "summarize", def.Name)
}
