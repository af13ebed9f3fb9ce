// Package collab implements agent-to-agent collaboration: a coordinator that
// decides when to delegate, bounded delegation contexts on the wire, an HTTP
// peer client/server pair and a peer-agent capability executor. Delegation is
// always best-effort: every path ends in an answer for the caller, falling
// back to local execution when no peer can help.
package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lamwimham/neuroflow/core"
	"github.com/lamwimham/neuroflow/directory"
	"github.com/lamwimham/neuroflow/internal/util"
	"github.com/lamwimham/neuroflow/logging"
	"github.com/lamwimham/neuroflow/model"
	"github.com/lamwimham/neuroflow/orchestrator"
	"github.com/lamwimham/neuroflow/resilience"
)

// State labels one phase of a coordinated task. States are per-task and reset
// between calls; they exist for observability only.
type State string

const (
	StateIdle           State = "idle"
	StateEvaluatingNeed State = "evaluating_need"
	StateNoDelegation   State = "no_delegation"
	StateDelegating     State = "delegating"
	StateSynthesizing   State = "synthesizing"
	StateDone           State = "done"
)

const plannerPromptTemplate = `You coordinate a network of specialist agents. Decide whether the task below
should be delegated to peers or handled locally.

Task: {{.Task}}

Available peers:
{{.Peers}}

Respond with a single JSON object, no other text:
{"needsDelegation": bool, "targetPeers": ["peer-id"], "subTasks": ["task per peer"], "rationale": "one sentence", "confidence": 0.0}

Only set needsDelegation to true when a listed peer is clearly better suited
than handling the task locally.`

const synthesisPromptTemplate = `You delegated parts of a task to peer agents. Merge their answers into one
final response for the original requester.

Original task: {{.Task}}

Peer answers:
{{.Answers}}

Write the final answer only.`

// Plan is the planner model's delegation decision.
type Plan struct {
	NeedsDelegation bool     `json:"needsDelegation"`
	TargetPeers     []string `json:"targetPeers"`
	SubTasks        []string `json:"subTasks"`
	Rationale       string   `json:"rationale"`
	Confidence      float64  `json:"confidence"`
}

// DelegationResult records one assist attempt against one peer.
type DelegationResult struct {
	PeerID  string
	Success bool
	Result  string
	Error   string
	Elapsed time.Duration
}

// Options configure a Coordinator.
type Options struct {
	// AgentID identifies this agent in responses and visited sets.
	AgentID string
	// MaxDepth bounds recursive delegation for root contexts.
	MaxDepth int
	// Deadline is the wall-clock budget of a root collaboration tree.
	Deadline time.Duration
	// MaxPeers caps how many peers one plan may target.
	MaxPeers int
	// Resilience wraps every peer call. Defaults to a fresh Executor.
	Resilience *resilience.Executor
	// Caller issues assist calls. Defaults to an HTTP Client.
	Caller PeerCaller
	// Logger receives structured collaboration events. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Coordinator decides per task whether to delegate to peers and merges the
// outcome. It holds no cross-task state.
type Coordinator struct {
	model model.Model
	orch  *orchestrator.Orchestrator
	dir   *directory.Directory
	opts  Options
}

// NewCoordinator constructs a Coordinator. The orchestrator handles local
// execution; the directory supplies delegation candidates.
func NewCoordinator(m model.Model, orch *orchestrator.Orchestrator, dir *directory.Directory, optFns ...func(o *Options)) *Coordinator {
	opts := Options{
		AgentID:  "agent",
		MaxDepth: 3,
		Deadline: 60 * time.Second,
		MaxPeers: 3,
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Resilience == nil {
		opts.Resilience = resilience.NewExecutor(func(o *resilience.Options) { o.Logger = opts.Logger })
	}
	if opts.Caller == nil {
		opts.Caller = NewClient(func(o *ClientOptions) { o.Logger = opts.Logger })
	}
	return &Coordinator{model: m, orch: orch, dir: dir, opts: opts}
}

// Handle resolves a task end to end with a fresh root collaboration context.
// The agent's own id is seeded into the visited set so no delegation chain,
// however deep, can route the task back to its originator.
func (c *Coordinator) Handle(ctx context.Context, task string) (string, error) {
	root := core.NewCollaborationContext(c.opts.MaxDepth, c.opts.Deadline)
	root.Visited = append(root.Visited, c.opts.AgentID)
	return c.HandleWithContext(ctx, task, root)
}

// HandleWithContext resolves a task under an existing collaboration context,
// e.g. one reconstructed from an incoming assist request. The caller always
// gets an answer unless the local model itself fails.
func (c *Coordinator) HandleWithContext(ctx context.Context, task string, cc core.CollaborationContext) (string, error) {
	c.transition(StateIdle, StateEvaluatingNeed, cc.RequestID)

	peers := c.candidates(cc)
	plan := c.EvaluateNeedForDelegation(ctx, task, peers)

	if !plan.NeedsDelegation || len(plan.TargetPeers) == 0 {
		c.transition(StateEvaluatingNeed, StateNoDelegation, cc.RequestID)
		return c.runLocal(ctx, task, cc.RequestID)
	}

	c.transition(StateEvaluatingNeed, StateDelegating, cc.RequestID)
	results := c.Delegate(ctx, task, plan, cc)

	var successes []DelegationResult
	for _, r := range results {
		if r.Success {
			successes = append(successes, r)
		}
	}
	if len(successes) == 0 {
		c.opts.Logger.Info("collab.delegate.all_failed", "request_id", cc.RequestID, "attempts", len(results))
		return c.runLocal(ctx, task, cc.RequestID)
	}

	c.transition(StateDelegating, StateSynthesizing, cc.RequestID)
	answer := c.synthesize(ctx, task, successes)
	c.transition(StateSynthesizing, StateDone, cc.RequestID)
	return answer, nil
}

// EvaluateNeedForDelegation issues one planner model call over the candidate
// peers. Any malformed or unparseable answer degrades to "handle locally".
func (c *Coordinator) EvaluateNeedForDelegation(ctx context.Context, task string, peers []core.PeerRecord) Plan {
	if len(peers) == 0 {
		return Plan{}
	}

	var sb strings.Builder
	for _, p := range peers {
		fmt.Fprintf(&sb, "- %s (%s): capabilities %v, success rate %.2f\n", p.ID, p.Name, p.Capabilities, p.SuccessRate)
	}
	prompt, err := util.RenderTemplate(plannerPromptTemplate, map[string]any{
		"Task":  task,
		"Peers": sb.String(),
	})
	if err != nil {
		c.opts.Logger.Error("collab.plan.template_failed", "error", err.Error())
		return Plan{}
	}

	text, err := c.generate(ctx, prompt)
	if err != nil {
		c.opts.Logger.Warn("collab.plan.model_failed", "error", err.Error())
		return Plan{}
	}

	plan, err := parsePlan(text)
	if err != nil {
		c.opts.Logger.Warn("collab.plan.unparseable", "error", err.Error())
		return Plan{}
	}
	c.opts.Logger.Info(
		"collab.plan",
		"needs_delegation", plan.NeedsDelegation,
		"targets", plan.TargetPeers,
		"confidence", plan.Confidence,
	)
	return plan
}

// Delegate attempts each planned target under the parent context. Denied
// targets (depth, cycle, deadline) and unknown peers are skipped, not
// surfaced; each permitted attempt goes through the resilience executor and
// feeds the peer's rolling stats.
func (c *Coordinator) Delegate(ctx context.Context, task string, plan Plan, parent core.CollaborationContext) []DelegationResult {
	targets := plan.TargetPeers
	if c.opts.MaxPeers > 0 && len(targets) > c.opts.MaxPeers {
		targets = targets[:c.opts.MaxPeers]
	}

	var results []DelegationResult
	for i, peerID := range targets {
		if err := parent.CanDelegateTo(peerID); err != nil {
			var denied *core.DelegationDeniedError
			reason := "unknown"
			if errors.As(err, &denied) {
				reason = string(denied.Reason)
			}
			c.opts.Logger.Info("collab.delegate.denied", "peer_id", peerID, "reason", reason)
			continue
		}

		peer, ok := c.dir.Get(peerID)
		if !ok || peer.Endpoint == "" {
			c.opts.Logger.Warn("collab.delegate.unknown_peer", "peer_id", peerID)
			continue
		}

		subTask := task
		if i < len(plan.SubTasks) && plan.SubTasks[i] != "" {
			subTask = plan.SubTasks[i]
		}
		req := NewAssistRequest(subTask, parent.Child(peerID))

		start := time.Now()
		raw, err := c.opts.Resilience.Execute(ctx, peerID, func(ctx context.Context) (any, error) {
			resp, err := c.opts.Caller.Assist(ctx, peer.Endpoint, req)
			if err != nil {
				return nil, err
			}
			if !resp.Success {
				return nil, fmt.Errorf("peer %s: %s", peerID, resp.Error)
			}
			return resp, nil
		})
		elapsed := time.Since(start)

		result := DelegationResult{PeerID: peerID, Elapsed: elapsed}
		if err != nil {
			result.Error = err.Error()
		} else {
			result.Success = true
			result.Result = raw.(AssistResponse).Result
		}
		results = append(results, result)

		c.dir.RecordObservation(peerID, elapsed, result.Success)
		c.opts.Logger.Info(
			"collab.delegate",
			"peer_id", peerID,
			"success", result.Success,
			"duration_ms", elapsed.Milliseconds(),
		)
	}
	return results
}

// candidates lists directory peers eligible under the context, best first.
func (c *Coordinator) candidates(cc core.CollaborationContext) []core.PeerRecord {
	var out []core.PeerRecord
	for _, p := range c.dir.List("", "") {
		if p.ID == c.opts.AgentID || cc.HasVisited(p.ID) {
			continue
		}
		if p.Status == core.PeerStatusUnhealthy || p.Status == core.PeerStatusOffline {
			continue
		}
		out = append(out, p)
	}
	return out
}

// runLocal answers the task through the turn orchestrator.
func (c *Coordinator) runLocal(ctx context.Context, task, requestID string) (string, error) {
	result, err := c.orch.Run(ctx, task)
	if err != nil {
		return "", err
	}
	c.transition(StateNoDelegation, StateDone, requestID)
	return result.FinalAnswer, nil
}

// synthesize merges successful peer answers with one model call. If the
// synthesis call itself fails the partials are joined verbatim so the caller
// still gets an answer.
func (c *Coordinator) synthesize(ctx context.Context, task string, successes []DelegationResult) string {
	var sb strings.Builder
	for _, r := range successes {
		fmt.Fprintf(&sb, "- %s: %s\n", r.PeerID, r.Result)
	}
	prompt, err := util.RenderTemplate(synthesisPromptTemplate, map[string]any{
		"Task":    task,
		"Answers": sb.String(),
	})
	if err == nil {
		var text string
		if text, err = c.generate(ctx, prompt); err == nil && text != "" {
			return text
		}
	}
	c.opts.Logger.Warn("collab.synthesis.failed", "error", fmt.Sprintf("%v", err))

	parts := make([]string, 0, len(successes))
	for _, r := range successes {
		parts = append(parts, r.Result)
	}
	return strings.Join(parts, "\n")
}

// generate issues one tool-free model call and returns the final text.
func (c *Coordinator) generate(ctx context.Context, prompt string) (string, error) {
	respCh, errCh := c.model.Generate(ctx, model.Request{
		Contents: []core.Content{core.NewUserContent(prompt)},
	})

	var final core.Content
	var sawFinal bool
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case resp, ok := <-respCh:
			if !ok {
				if !sawFinal {
					return "", fmt.Errorf("model returned no final response")
				}
				return final.Text(), nil
			}
			if !resp.Partial {
				final = resp.Content
				sawFinal = true
			}
		case err, ok := <-errCh:
			if ok && err != nil {
				return "", err
			}
			errCh = nil
		}
	}
}

func (c *Coordinator) transition(from, to State, requestID string) {
	c.opts.Logger.Debug("collab.state", "from", string(from), "to", string(to), "request_id", requestID)
}

// parsePlan extracts the first JSON object from the planner's answer. Models
// sometimes wrap the object in prose or code fences.
func parsePlan(text string) (Plan, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return Plan{}, fmt.Errorf("no JSON object in planner output")
	}
	var plan Plan
	if err := json.Unmarshal([]byte(text[start:end+1]), &plan); err != nil {
		return Plan{}, fmt.Errorf("decode plan: %w", err)
	}
	return plan, nil
}
