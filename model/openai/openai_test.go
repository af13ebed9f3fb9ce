package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lamwimham/neuroflow/core"
	"github.com/lamwimham/neuroflow/model"
)

func TestChatMessagesKeepsOutcomePairing(t *testing.T) {
	req := model.Request{
		Instructions: "You are a calculator.",
		Contents: []core.Content{
			core.NewUserContent("add 2 and 3"),
			{Role: "assistant", Parts: []core.Part{core.FunctionCallPart{FunctionCall: core.FunctionCall{
				ID: "call-1", Name: "add", Arguments: `{"a":2,"b":3}`,
			}}}},
			{Role: "tool", Parts: []core.Part{core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{
				ID: "call-1", Name: "add", Response: 5.0,
			}}}},
		},
	}

	msgs := chatMessages(req)
	require.Len(t, msgs, 4)

	assert.NotNil(t, msgs[0].OfSystem)
	assert.NotNil(t, msgs[1].OfUser)

	require.NotNil(t, msgs[2].OfAssistant)
	require.Len(t, msgs[2].OfAssistant.ToolCalls, 1)
	assert.Equal(t, "call-1", msgs[2].OfAssistant.ToolCalls[0].ID)

	// The tool message directly follows its assistant turn, keyed by call id.
	require.NotNil(t, msgs[3].OfTool)
	assert.Equal(t, "call-1", msgs[3].OfTool.ToolCallID)
}

func TestChatMessagesFailedOutcomeCarriesError(t *testing.T) {
	req := model.Request{Contents: []core.Content{
		{Role: "tool", Parts: []core.Part{core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{
			ID: "call-9", Name: "add", Error: "EXECUTION_ERROR: boom",
		}}}},
	}}

	msgs := chatMessages(req)
	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].OfTool)
}

func TestCompletionParamsExposesCapabilities(t *testing.T) {
	m := NewModel(func(o *Options) { o.Model = "gpt-4o" })
	req := model.Request{
		Contents: []core.Content{core.NewUserContent("hi")},
		Tools: []model.ToolDefinition{{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        "add",
				Description: "Add two numbers",
				Parameters:  map[string]any{"type": "object"},
			},
		}},
	}

	params := m.completionParams(req)
	require.Len(t, params.Tools, 1)
	assert.Equal(t, "add", params.Tools[0].Function.Name)
}

func TestInfo(t *testing.T) {
	m := NewModel(func(o *Options) { o.Model = "gpt-4o" })
	info := m.Info()
	assert.Equal(t, "gpt-4o", info.Name)
	assert.Equal(t, "openai", info.Provider)
	assert.True(t, info.SupportsTools)
}
