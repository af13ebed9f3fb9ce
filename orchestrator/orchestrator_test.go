package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lamwimham/neuroflow/capability"
	"github.com/lamwimham/neuroflow/core"
	"github.com/lamwimham/neuroflow/model"
)

func newMathCatalog(t *testing.T) *capability.Catalog {
	t.Helper()
	catalog := capability.NewCatalog()
	exec := capability.NewFunctionExecutor()
	catalog.RegisterBackend(core.BackendInProcess, exec)

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []any{"a", "b"},
	}
	add := capability.NewFunction("add", "Add two numbers", schema,
		func(ctx context.Context, args map[string]any) (any, error) {
			return args["a"].(float64) + args["b"].(float64), nil
		})
	require.NoError(t, capability.RegisterFunction(catalog, exec, add))

	fail := capability.NewFunction("always_fails", "Fails every time", nil,
		func(ctx context.Context, args map[string]any) (any, error) {
			return nil, errors.New("not implemented")
		})
	require.NoError(t, capability.RegisterFunction(catalog, exec, fail))

	return catalog
}

func TestRunCapabilityLoop(t *testing.T) {
	catalog := newMathCatalog(t)
	mock := model.NewMockModel("mock", "test")
	mock.ScriptFunctionCall("call-1", "add", map[string]any{"a": 2.0, "b": 3.0})
	mock.ScriptContent(core.NewAssistantContent("The sum is 5."))

	orch := New(mock, catalog)
	result, err := orch.Run(context.Background(), "What is 2+3?")
	require.NoError(t, err)

	assert.Equal(t, "The sum is 5.", result.FinalAnswer)
	assert.Equal(t, 2, result.Turns)
	assert.Equal(t, 2, result.ModelCalls)
	assert.False(t, result.Synthesized)

	// The outcome landed in the conversation between the two model turns.
	var sawResult bool
	for _, c := range result.Conversation {
		if c.Role != "tool" {
			continue
		}
		fr := c.Parts[0].(core.FunctionResponsePart).FunctionResponse
		assert.Equal(t, "call-1", fr.ID)
		assert.Equal(t, 5.0, fr.Response)
		sawResult = true
	}
	assert.True(t, sawResult)
}

func TestRunTerminatesWithinBudget(t *testing.T) {
	catalog := newMathCatalog(t)
	mock := model.NewMockModel("mock", "test")
	// The model keeps requesting capabilities forever.
	for i := 0; i < 20; i++ {
		mock.ScriptFunctionCall("", "add", map[string]any{"a": 1.0, "b": 1.0})
	}

	orch := New(mock, catalog, func(o *Options) { o.MaxTurns = 3 })
	result, err := orch.Run(context.Background(), "loop forever")
	require.NoError(t, err)

	// maxTurns model calls plus exactly one synthesis call.
	assert.Equal(t, 4, result.ModelCalls)
	assert.Equal(t, 4, mock.Calls())
	assert.True(t, result.Synthesized)
	assert.NotEmpty(t, result.FinalAnswer)
}

func TestRunBatchPreservesInvocationOrder(t *testing.T) {
	catalog := newMathCatalog(t)
	mock := model.NewMockModel("mock", "test")

	// One batch with a failing and a succeeding invocation.
	mock.ScriptContent(core.Content{
		Role: "assistant",
		Parts: []core.Part{
			core.FunctionCallPart{FunctionCall: core.FunctionCall{
				ID: "call-fail", Name: "always_fails", Arguments: "{}",
			}},
			core.FunctionCallPart{FunctionCall: core.FunctionCall{
				ID: "call-ok", Name: "add", Arguments: `{"a": 2, "b": 3}`,
			}},
		},
	})
	mock.ScriptContent(core.NewAssistantContent("done"))

	orch := New(mock, catalog)
	result, err := orch.Run(context.Background(), "mixed batch")
	require.NoError(t, err)

	var toolResponses []core.FunctionResponse
	for _, c := range result.Conversation {
		if c.Role == "tool" {
			toolResponses = append(toolResponses, c.Parts[0].(core.FunctionResponsePart).FunctionResponse)
		}
	}
	require.Len(t, toolResponses, 2)

	// Outcomes appear in invocation order regardless of completion order.
	assert.Equal(t, "call-fail", toolResponses[0].ID)
	assert.NotEmpty(t, toolResponses[0].Error)
	assert.Equal(t, "call-ok", toolResponses[1].ID)
	assert.Equal(t, 5.0, toolResponses[1].Response)
}

func TestRunUnknownCapabilityBecomesFailedOutcome(t *testing.T) {
	catalog := newMathCatalog(t)
	mock := model.NewMockModel("mock", "test")
	mock.ScriptFunctionCall("call-1", "no_such_capability", nil)
	mock.ScriptContent(core.NewAssistantContent("recovered"))

	orch := New(mock, catalog)
	result, err := orch.Run(context.Background(), "bad request")
	require.NoError(t, err)
	assert.Equal(t, "recovered", result.FinalAnswer)

	var sawFailure bool
	for _, c := range result.Conversation {
		if c.Role == "tool" {
			fr := c.Parts[0].(core.FunctionResponsePart).FunctionResponse
			assert.Contains(t, fr.Error, "capability not found")
			sawFailure = true
		}
	}
	assert.True(t, sawFailure)
}

func TestRunMalformedArgumentsBecomeFailedOutcome(t *testing.T) {
	catalog := newMathCatalog(t)
	mock := model.NewMockModel("mock", "test")
	mock.ScriptContent(core.Content{
		Role: "assistant",
		Parts: []core.Part{core.FunctionCallPart{FunctionCall: core.FunctionCall{
			ID: "call-1", Name: "add", Arguments: "{not json",
		}}},
	})
	mock.ScriptContent(core.NewAssistantContent("recovered"))

	orch := New(mock, catalog)
	result, err := orch.Run(context.Background(), "garbage args")
	require.NoError(t, err)
	assert.Equal(t, "recovered", result.FinalAnswer)
}

// brokenModel always fails generation; used to assert TaskError propagation.
type brokenModel struct{}

func (brokenModel) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	respCh := make(chan model.Response)
	errCh := make(chan error, 1)
	errCh <- errors.New("connection refused")
	close(respCh)
	close(errCh)
	return respCh, errCh
}

func (brokenModel) Info() model.Info { return model.Info{Name: "broken", Provider: "test"} }

func TestRunModelFailureIsTaskError(t *testing.T) {
	catalog := newMathCatalog(t)
	orch := New(brokenModel{}, catalog)

	_, err := orch.Run(context.Background(), "anything")
	require.Error(t, err)

	var taskErr *core.TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, "model_call", taskErr.Stage)
	assert.ErrorContains(t, taskErr, "connection refused")
}
