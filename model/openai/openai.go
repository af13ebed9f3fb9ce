// Package openai adapts the OpenAI Chat Completions API to the model.Model
// interface, including streamed deltas and function/tool calling. Capability
// outcomes (role "tool") become tool messages keyed by call id, emitted in
// the position the orchestrator placed them so the id pairing the API
// requires is preserved.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lamwimham/neuroflow/core"
	"github.com/lamwimham/neuroflow/model"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Options configure the adapter.
type Options struct {
	// Model is the chat model name.
	Model string
	// Temperature is passed through to the Chat Completions API.
	Temperature float64
	// MaxCompletionTokens bounds each completion.
	MaxCompletionTokens int64
	// APIKey overrides the OPENAI_API_KEY environment variable.
	APIKey string
}

func defaultOptions() Options {
	return Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
}

// Model implements model.Model on top of the Chat Completions API.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel builds an adapter with its own API client.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	var reqOpts []option.RequestOption
	if opts.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
	}
	client := openai.NewClient(reqOpts...)
	return &Model{client: &client, opts: opts}
}

// NewModelFromClient builds an adapter around an existing client.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Generate implements model.Model.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)
		params := m.completionParams(req)
		if req.Stream {
			m.generateStream(ctx, params, out, errCh)
			return
		}
		m.generateOnce(ctx, params, out, errCh)
	}()

	return out, errCh
}

// completionParams assembles the request: instructions first, then the
// conversation, then the capability catalog as tool definitions.
func (m *Model) completionParams(req model.Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages:            chatMessages(req),
		Model:               m.opts.Model,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	}
	for _, def := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        def.Function.Name,
				Description: openai.String(def.Function.Description),
				Parameters:  def.Function.Parameters,
			},
		})
	}
	return params
}

// chatMessages maps the normalized conversation onto chat messages. The
// orchestrator appends outcome contents directly after the assistant turn
// that requested them, so tool messages can be emitted in place.
func chatMessages(req model.Request) []openai.ChatCompletionMessageParamUnion {
	var msgs []openai.ChatCompletionMessageParamUnion
	if req.Instructions != "" {
		msgs = append(msgs, openai.SystemMessage(req.Instructions))
	}
	for _, c := range req.Contents {
		switch c.Role {
		case "system":
			if text := c.Text(); text != "" {
				msgs = append(msgs, openai.SystemMessage(text))
			}
		case "assistant":
			msgs = append(msgs, assistantMessage(c))
		case "tool":
			for _, p := range c.Parts {
				fr, ok := p.(core.FunctionResponsePart)
				if !ok || fr.FunctionResponse.ID == "" {
					continue
				}
				text := outcomeText(fr.FunctionResponse.Response)
				if fr.FunctionResponse.Error != "" {
					text = fr.FunctionResponse.Error
				}
				msgs = append(msgs, openai.ToolMessage(text, fr.FunctionResponse.ID))
			}
		default:
			if text := c.Text(); text != "" {
				msgs = append(msgs, openai.UserMessage(text))
			}
		}
	}
	return msgs
}

// assistantMessage rebuilds an assistant turn, attaching any function calls
// the model issued on that turn.
func assistantMessage(c core.Content) openai.ChatCompletionMessageParamUnion {
	var calls []openai.ChatCompletionMessageToolCallParam
	for _, p := range c.Parts {
		if fc, ok := p.(core.FunctionCallPart); ok {
			calls = append(calls, openai.ChatCompletionMessageToolCallParam{
				ID:   fc.FunctionCall.ID,
				Type: "function",
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      fc.FunctionCall.Name,
					Arguments: fc.FunctionCall.Arguments,
				},
			})
		}
	}
	if len(calls) == 0 {
		return openai.AssistantMessage(c.Text())
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &openai.ChatCompletionAssistantMessageParam{
		Role:      "assistant",
		ToolCalls: calls,
	}}
}

// outcomeText renders a capability result for the model. Non-string results
// are JSON-encoded so structured outcomes survive the round trip.
func outcomeText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if raw, err := json.Marshal(v); err == nil {
		return string(raw)
	}
	return fmt.Sprintf("%v", v)
}

// callDraft accumulates the streamed fragments of one function call.
type callDraft struct{ id, name, args string }

// generateStream forwards text deltas as partial responses and emits one
// final response carrying the full text plus any completed function calls,
// in the order the model opened them.
func (m *Model) generateStream(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	stream := m.client.Chat.Completions.NewStreaming(ctx, params)
	var text strings.Builder
	drafts := map[int64]*callDraft{}
	var order []int64
	for stream.Next() {
		chunk := stream.Current()
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				text.WriteString(choice.Delta.Content)
				out <- model.Response{
					ID:      chunk.ID,
					Partial: true,
					Content: core.Content{
						Role:  "assistant",
						Parts: []core.Part{core.TextPart{Text: choice.Delta.Content}},
					},
				}
			}
			for _, tc := range choice.Delta.ToolCalls {
				d, ok := drafts[tc.Index]
				if !ok {
					d = &callDraft{}
					drafts[tc.Index] = d
					order = append(order, tc.Index)
				}
				if tc.ID != "" {
					d.id = tc.ID
				}
				if tc.Function.Name != "" {
					d.name = tc.Function.Name
				}
				d.args += tc.Function.Arguments
			}
			if choice.FinishReason != "" {
				out <- finalResponse(chunk.ID, text.String(), drafts, order, choice.FinishReason)
			}
		}
	}
	if err := stream.Err(); err != nil {
		errCh <- fmt.Errorf("openai streaming error: %w", err)
	}
}

func finalResponse(id, text string, drafts map[int64]*callDraft, order []int64, finish string) model.Response {
	parts := make([]core.Part, 0, len(order)+1)
	if text != "" {
		parts = append(parts, core.TextPart{Text: text})
	}
	for _, idx := range order {
		d := drafts[idx]
		parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
			ID:        d.id,
			Name:      d.name,
			Arguments: d.args,
		}})
	}
	return model.Response{
		ID:           id,
		Content:      core.Content{Role: "assistant", Parts: parts},
		FinishReason: finish,
	}
}

// generateOnce issues a single non-streaming completion.
func (m *Model) generateOnce(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		errCh <- fmt.Errorf("openai api error: %w", err)
		return
	}
	if len(resp.Choices) == 0 {
		errCh <- fmt.Errorf("openai returned no choices")
		return
	}

	choice := resp.Choices[0]
	parts := make([]core.Part, 0, len(choice.Message.ToolCalls)+1)
	if choice.Message.Content != "" {
		parts = append(parts, core.TextPart{Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		}})
	}

	out <- model.Response{
		ID:           resp.ID,
		Content:      core.Content{Role: "assistant", Parts: parts},
		FinishReason: choice.FinishReason,
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
}

// Info implements model.Model.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "openai",
		SupportsTools: true,
	}
}
