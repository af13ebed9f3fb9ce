// Package orchestrator drives the bounded "ask model -> execute requested
// capabilities -> feed back" loop for one task. Capability failures are folded
// into the conversation as failed outcomes; only a failure of the model call
// itself aborts the task. When the turn budget is spent, one extra synthesis
// call asks the model for a best-effort final answer instead of failing.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/lamwimham/neuroflow/capability"
	"github.com/lamwimham/neuroflow/core"
	"github.com/lamwimham/neuroflow/logging"
	"github.com/lamwimham/neuroflow/model"
)

// synthesisPrompt is appended as a user turn when the turn budget is spent.
const synthesisPrompt = "You have reached the maximum number of reasoning turns. " +
	"Provide your best final answer now using only the information gathered so far. " +
	"Do not request any further capability calls."

// Options configure an Orchestrator.
type Options struct {
	// Instructions is the system prompt prepended to every task conversation.
	Instructions string
	// MaxTurns bounds the loop; the model is consulted at most MaxTurns+1
	// times (the +1 being the synthesis call).
	MaxTurns int
	// MaxParallel caps capability fan-out within one batch. <=0 means one
	// goroutine per invocation.
	MaxParallel int
	// InvocationTimeout bounds each capability invocation.
	InvocationTimeout time.Duration
	// Logger receives structured turn events. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Result is the terminal output of one orchestrated task.
type Result struct {
	FinalAnswer  string
	Turns        int
	ModelCalls   int
	Synthesized  bool // answer came from the post-limit synthesis call
	Conversation []core.Content
}

// Orchestrator owns one task at a time; many orchestrators can run
// concurrently sharing the same catalog and model.
type Orchestrator struct {
	model   model.Model
	catalog *capability.Catalog
	opts    Options
}

// New constructs an Orchestrator with defaults: 10 turns, fan-out cap 4,
// 30s invocation timeout.
func New(m model.Model, c *capability.Catalog, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		MaxTurns:          10,
		MaxParallel:       4,
		InvocationTimeout: 30 * time.Second,
		Logger:            logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Orchestrator{model: m, catalog: c, opts: opts}
}

// Run resolves a task from scratch: seeds a conversation with the configured
// instructions plus the task text and drives the turn loop to completion.
func (o *Orchestrator) Run(ctx context.Context, task string) (*Result, error) {
	return o.RunConversation(ctx, core.NewConversationFromTask(o.opts.Instructions, task))
}

// RunConversation drives the turn loop over an existing conversation. The
// conversation is owned by the loop until it returns.
func (o *Orchestrator) RunConversation(ctx context.Context, conv *core.ConversationState) (*Result, error) {
	modelCalls := 0

	for turn := 0; turn < o.opts.MaxTurns; turn++ {
		o.opts.Logger.Debug("orchestrator.turn.start", "turn", turn)

		content, err := o.callModel(ctx, conv, true)
		modelCalls++
		if err != nil {
			return nil, &core.TaskError{Stage: "model_call", Err: err}
		}

		calls := content.FunctionCalls()
		if len(calls) == 0 {
			conv.Append(content)
			o.opts.Logger.Info("orchestrator.done", "turns", turn+1, "model_calls", modelCalls)
			return &Result{
				FinalAnswer:  content.Text(),
				Turns:        turn + 1,
				ModelCalls:   modelCalls,
				Conversation: conv.Contents(),
			}, nil
		}

		outcomes := o.executeBatch(ctx, calls)
		conv.AppendOutcomes(content, outcomes)

		o.opts.Logger.Info(
			"orchestrator.turn.executed",
			"turn", turn,
			"invocations", len(calls),
		)
	}

	// Turn budget spent: one best-effort synthesis call without tools.
	conv.Append(core.NewUserContent(synthesisPrompt))
	content, err := o.callModel(ctx, conv, false)
	modelCalls++
	if err != nil {
		return nil, &core.TaskError{Stage: "synthesis", Err: err}
	}
	conv.Append(content)

	o.opts.Logger.Info("orchestrator.synthesized", "turns", o.opts.MaxTurns, "model_calls", modelCalls)
	return &Result{
		FinalAnswer:  content.Text(),
		Turns:        o.opts.MaxTurns,
		ModelCalls:   modelCalls,
		Synthesized:  true,
		Conversation: conv.Contents(),
	}, nil
}

// callModel issues one generation and drains the streaming channels down to
// the final (non-partial) content. withTools controls whether the catalog
// schema is attached; the synthesis call omits it to force a text answer.
func (o *Orchestrator) callModel(ctx context.Context, conv *core.ConversationState, withTools bool) (core.Content, error) {
	req := model.Request{
		Instructions: o.opts.Instructions,
		Contents:     conv.Contents(),
	}
	if withTools {
		req.Tools = o.catalog.DescribeAll()
	}

	start := time.Now()
	respCh, errCh := o.model.Generate(ctx, req)

	var final core.Content
	var sawFinal bool
	for {
		select {
		case <-ctx.Done():
			return core.Content{}, ctx.Err()
		case resp, ok := <-respCh:
			if !ok {
				if !sawFinal {
					// Channel closed without a final chunk: surface any terminal error.
					select {
					case err, ok := <-errCh:
						if ok && err != nil {
							return core.Content{}, err
						}
					default:
					}
					return core.Content{}, fmt.Errorf("model returned no final response")
				}
				o.opts.Logger.Debug("orchestrator.model.call", "duration_ms", time.Since(start).Milliseconds())
				return final, nil
			}
			if !resp.Partial {
				final = resp.Content
				sawFinal = true
			}
		case err, ok := <-errCh:
			if ok && err != nil {
				return core.Content{}, err
			}
			// errCh closed with no error: keep draining responses.
			errCh = nil
		}
	}
}
