package model

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lamwimham/neuroflow/core"
)

// ToolDefinition declaratively exposes a registered capability to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual capability exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"` // JSON Schema
}

// Request captures the normalized model input produced by the orchestrator.
type Request struct {
	Instructions string           `json:"instructions"` // Instructions for the model
	Contents     []core.Content   `json:"contents"`     // Conversation converted to provider messages
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Stream       bool             `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a streaming model.
type Response struct {
	ID           string       `json:"id"`
	Partial      bool         `json:"partial"` // Indicates if this is a partial response
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "local", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface the orchestrator and coordinator need to
// drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a lightweight in-memory Model useful for tests & examples. It
// matches the text of the last content against registered prompts; an
// optional function call script lets tests drive the capability loop.
type MockModel struct {
	info      Info
	responses map[string]string
	script    []core.Content // Consumed in order before canned text responses
	calls     int
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      provider,
			SupportsTools: true,
		},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) { m.responses[prompt] = response }

// ScriptContent appends an assistant content that will be returned verbatim
// on the next Generate call, ahead of any canned text responses. Useful for
// scripting function call batches in tests.
func (m *MockModel) ScriptContent(c core.Content) { m.script = append(m.script, c) }

// ScriptFunctionCall is a convenience wrapper around ScriptContent for a
// single function call with JSON-encoded arguments.
func (m *MockModel) ScriptFunctionCall(id, name string, args map[string]any) {
	raw, _ := json.Marshal(args)
	m.ScriptContent(core.Content{
		Role: "assistant",
		Parts: []core.Part{core.FunctionCallPart{FunctionCall: core.FunctionCall{
			ID:        id,
			Name:      name,
			Arguments: string(raw),
		}}},
	})
}

// Calls returns the number of Generate invocations observed so far.
func (m *MockModel) Calls() int { return m.calls }

// Generate implements Model; consumes the script first, then emits optional
// streaming char chunks followed by a final canned response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	m.calls++

	// Scripted contents only apply when tools are offered; a tool-free
	// request always falls through to a canned text answer.
	if len(m.script) > 0 && len(req.Tools) > 0 {
		next := m.script[0]
		m.script = m.script[1:]
		go func() {
			defer close(respCh)
			defer close(errCh)
			respCh <- Response{Partial: false, Content: next, FinishReason: "tool_calls"}
		}()
		return respCh, errCh
	}

	go func() {
		defer close(respCh)
		defer close(errCh)
		if len(req.Contents) == 0 {
			errCh <- fmt.Errorf("no contents provided")
			return
		}
		last := req.Contents[len(req.Contents)-1]
		inputText := last.Text()
		full := m.responses[inputText]
		if full == "" {
			full = fmt.Sprintf("Mock response to: %s", inputText)
		}
		if req.Stream {
			for _, r := range full {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{
					Partial: true,
					Content: core.Content{
						Role:  "assistant",
						Parts: []core.Part{core.TextPart{Text: string(r)}},
					},
				}:
				}
			}
		}
		respCh <- Response{
			Partial: false,
			Content: core.Content{
				Role:  "assistant",
				Parts: []core.Part{core.TextPart{Text: full}},
			},
			FinishReason: "stop",
		}
	}()
	return respCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
