package collab

import (
	"context"
	"fmt"
	"time"

	"github.com/lamwimham/neuroflow/core"
	"github.com/lamwimham/neuroflow/directory"
	"github.com/lamwimham/neuroflow/logging"
	"github.com/lamwimham/neuroflow/resilience"
)

// ExecutorOptions configure a PeerExecutor.
type ExecutorOptions struct {
	// MaxDepth bounds delegation trees rooted at capability calls.
	MaxDepth int
	// Deadline is the wall-clock budget for one delegated capability call.
	Deadline time.Duration
	// Candidates caps how many scored peers are tried per call.
	Candidates int
	// Resilience wraps the peer call. Defaults to a fresh Executor.
	Resilience *resilience.Executor
	// Caller issues assist calls. Defaults to an HTTP Client.
	Caller PeerCaller
	// Logger receives structured delegation events. Defaults to NoOpLogger.
	Logger logging.Logger
}

// PeerExecutor is the peer-agent backend: a capability registered with
// core.BackendPeerAgent is fulfilled by delegating its task to the
// best-scored peer advertising the capability's name as a tag. Peers are
// tried in score order until one answers.
type PeerExecutor struct {
	agentID string
	dir     *directory.Directory
	opts    ExecutorOptions
}

// NewPeerExecutor constructs the peer-agent backend executor.
func NewPeerExecutor(agentID string, dir *directory.Directory, optFns ...func(o *ExecutorOptions)) *PeerExecutor {
	opts := ExecutorOptions{
		MaxDepth:   3,
		Deadline:   60 * time.Second,
		Candidates: 3,
		Logger:     logging.NoOpLogger{},
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
	return &PeerExecutor{agentID: agentID, dir: dir, opts: opts}
}

// Execute delegates the invocation's task to a discovered peer. The argument
// map must carry the task under "task"; a missing task falls back to the
// capability description.
func (e *PeerExecutor) Execute(ctx context.Context, def core.CapabilityDefinition, inv core.CapabilityInvocation) (any, error) {
	task, _ := inv.Arguments["task"].(string)
	if task == "" {
		task = def.Description
	}
	if task == "" {
		return nil, &core.CapabilityError{
			Capability: inv.Name,
			Message:    "no task to delegate",
			Code:       core.CodeValidationError,
		}
	}

	candidates := e.dir.DiscoverByCapability(def.Name, e.opts.Candidates)
	if len(candidates) == 0 {
		return nil, &core.CapabilityError{
			Capability: inv.Name,
			Message:    fmt.Sprintf("no peer advertises %q", def.Name),
			Code:       core.CodeExecutionError,
		}
	}

	root := core.NewCollaborationContext(e.opts.MaxDepth, e.opts.Deadline)
	root.Visited = append(root.Visited, e.agentID) // a peer must never route the task back here

	var lastErr error
	for _, peer := range candidates {
		if peer.ID == e.agentID || peer.Endpoint == "" {
			continue
		}
		if err := root.CanDelegateTo(peer.ID); err != nil {
			continue
		}

		req := NewAssistRequest(task, root.Child(peer.ID))
		start := time.Now()
		raw, err := e.opts.Resilience.Execute(ctx, peer.ID, func(ctx context.Context) (any, error) {
			resp, err := e.opts.Caller.Assist(ctx, peer.Endpoint, req)
			if err != nil {
				return nil, err
			}
			if !resp.Success {
				return nil, fmt.Errorf("peer %s: %s", peer.ID, resp.Error)
			}
			return resp, nil
		})
		elapsed := time.Since(start)
		e.dir.RecordObservation(peer.ID, elapsed, err == nil)

		if err != nil {
			lastErr = err
			e.opts.Logger.Warn("collab.peer_exec.failed", "peer_id", peer.ID, "capability", inv.Name, "error", err.Error())
			continue
		}

		e.opts.Logger.Info(
			"collab.peer_exec",
			"peer_id", peer.ID,
			"capability", inv.Name,
			"duration_ms", elapsed.Milliseconds(),
		)
		return raw.(AssistResponse).Result, nil
	}

	return nil, &core.CapabilityError{
		Capability: inv.Name,
		Message:    fmt.Sprintf("all candidate peers failed: %v", lastErr),
		Code:       core.CodeExecutionError,
	}
}
