// Package neuroflow provides a high-level façade over the capability catalog,
// turn orchestrator, peer directory and collaboration coordinator. Most
// applications interact with this package by:
//  1. Creating an Agent via New() around a model implementation
//  2. Registering capabilities (in-process functions, sandboxed runners,
//     remote MCP servers, peer agents)
//  3. Resolving tasks synchronously (RunSync) or asynchronously (Run), or
//     serving the collaboration HTTP surface to peers (Serve)
//
// All defaults are safe for local development and testing; production
// deployments typically supply a YAML config, a sqlite-backed directory store
// and a structured logger.
package neuroflow

import (
	"context"
	"fmt"
	"time"

	"github.com/lamwimham/neuroflow/capability"
	"github.com/lamwimham/neuroflow/collab"
	"github.com/lamwimham/neuroflow/config"
	"github.com/lamwimham/neuroflow/core"
	"github.com/lamwimham/neuroflow/directory"
	"github.com/lamwimham/neuroflow/logging"
	"github.com/lamwimham/neuroflow/model"
	"github.com/lamwimham/neuroflow/model/anthropic"
	"github.com/lamwimham/neuroflow/model/openai"
	"github.com/lamwimham/neuroflow/orchestrator"
	"github.com/lamwimham/neuroflow/resilience"
)

// Options configure an Agent.
type Options struct {
	// AgentID identifies this agent to peers. Defaults to "agent".
	AgentID string
	// Instructions is the system prompt for local task resolution.
	Instructions string
	// ListenAddr is the collaboration server address used by Serve.
	ListenAddr string

	// MaxTurns bounds the local reasoning loop.
	MaxTurns int
	// MaxParallel caps capability fan-out within one turn.
	MaxParallel int
	// InvocationTimeout bounds each capability invocation.
	InvocationTimeout time.Duration

	// CollabMaxDepth bounds recursive delegation trees rooted here.
	CollabMaxDepth int
	// CollabDeadline is the wall-clock budget of one delegation tree.
	CollabDeadline time.Duration

	// Catalog overrides the default empty catalog.
	Catalog *capability.Catalog
	// Directory overrides the default in-memory peer directory.
	Directory *directory.Directory
	// Resilience overrides the default retry/breaker executor.
	Resilience *resilience.Executor
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// Agent is the façade aggregating one model, its capability catalog and the
// collaboration machinery.
type Agent struct {
	opts    Options
	model   model.Model
	catalog *capability.Catalog
	fnExec  *capability.FunctionExecutor
	orch    *orchestrator.Orchestrator
	dir     *directory.Directory
	coord   *collab.Coordinator
	server  *collab.Server
}

// New creates an Agent with optional overrides. Any unset component is
// initialized with an in-memory implementation.
func New(m model.Model, optFns ...func(o *Options)) *Agent {
	opts := Options{
		AgentID:           "agent",
		ListenAddr:        ":8080",
		MaxTurns:          10,
		MaxParallel:       4,
		InvocationTimeout: 30 * time.Second,
		CollabMaxDepth:    3,
		CollabDeadline:    60 * time.Second,
		Logger:            logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Catalog == nil {
		opts.Catalog = capability.NewCatalog(func(o *capability.CatalogOptions) {
			o.DefaultTimeout = opts.InvocationTimeout
			o.Logger = opts.Logger
		})
	}
	if opts.Directory == nil {
		opts.Directory = directory.New(func(o *directory.Options) { o.Logger = opts.Logger })
	}
	if opts.Resilience == nil {
		opts.Resilience = resilience.NewExecutor(func(o *resilience.Options) { o.Logger = opts.Logger })
	}

	fnExec := capability.NewFunctionExecutor()
	opts.Catalog.RegisterBackend(core.BackendInProcess, fnExec)
	opts.Catalog.RegisterBackend(core.BackendPeerAgent, collab.NewPeerExecutor(opts.AgentID, opts.Directory, func(o *collab.ExecutorOptions) {
		o.MaxDepth = opts.CollabMaxDepth
		o.Deadline = opts.CollabDeadline
		o.Resilience = opts.Resilience
		o.Logger = opts.Logger
	}))

	orch := orchestrator.New(m, opts.Catalog, func(o *orchestrator.Options) {
		o.Instructions = opts.Instructions
		o.MaxTurns = opts.MaxTurns
		o.MaxParallel = opts.MaxParallel
		o.InvocationTimeout = opts.InvocationTimeout
		o.Logger = opts.Logger
	})

	coord := collab.NewCoordinator(m, orch, opts.Directory, func(o *collab.Options) {
		o.AgentID = opts.AgentID
		o.MaxDepth = opts.CollabMaxDepth
		o.Deadline = opts.CollabDeadline
		o.Resilience = opts.Resilience
		o.Logger = opts.Logger
	})

	a := &Agent{
		opts:    opts,
		model:   m,
		catalog: opts.Catalog,
		fnExec:  fnExec,
		orch:    orch,
		dir:     opts.Directory,
		coord:   coord,
	}
	a.server = collab.NewServer(opts.AgentID, coord, opts.Directory, func(o *collab.ServerOptions) {
		o.Addr = opts.ListenAddr
		o.Logger = opts.Logger
	})
	return a
}

// FromConfig builds the option overrides for a loaded configuration. Use as
// New(m, neuroflow.FromConfig(cfg)).
func FromConfig(cfg *config.Config) func(o *Options) {
	return func(o *Options) {
		o.AgentID = cfg.Agent.ID
		o.MaxTurns = cfg.Orchestrator.MaxTurns
		o.MaxParallel = cfg.Orchestrator.MaxParallel
		o.InvocationTimeout = cfg.Orchestrator.InvocationTimeout
		o.CollabMaxDepth = cfg.Collaboration.MaxDepth
		o.CollabDeadline = cfg.Collaboration.Deadline
		o.Resilience = resilience.NewExecutor(func(r *resilience.Options) {
			r.MaxRetries = cfg.Resilience.MaxRetries
			r.BaseDelay = cfg.Resilience.BaseDelay
			r.MaxDelay = cfg.Resilience.MaxDelay
			r.BreakerThreshold = cfg.Resilience.BreakerThreshold
			r.RecoveryWindow = cfg.Resilience.RecoveryWindow
		})
		o.Directory = directory.New(func(d *directory.Options) {
			d.SweepInterval = cfg.Directory.SweepInterval
			d.SilenceTimeout = cfg.Directory.SilenceTimeout
		})
	}
}

// NewModelFromConfig constructs the provider adapter named by cfg.Model.
// Provider "mock" (the default) returns a MockModel for offline development;
// pair with FromConfig: New(m, neuroflow.FromConfig(cfg)).
func NewModelFromConfig(cfg *config.Config) (model.Model, error) {
	mc := cfg.Model
	switch mc.Provider {
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if mc.Name != "" {
				o.Model = mc.Name
			}
			if mc.Temperature > 0 {
				o.Temperature = mc.Temperature
			}
			if mc.MaxTokens > 0 {
				o.MaxTokens = int64(mc.MaxTokens)
			}
			o.APIKey = mc.APIKey
		}), nil
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			if mc.Name != "" {
				o.Model = mc.Name
			}
			if mc.Temperature > 0 {
				o.Temperature = mc.Temperature
			}
			if mc.MaxTokens > 0 {
				o.MaxCompletionTokens = int64(mc.MaxTokens)
			}
			o.APIKey = mc.APIKey
		}), nil
	case "mock", "":
		name := mc.Name
		if name == "" {
			name = "mock"
		}
		return model.NewMockModel(name, "mock"), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", mc.Provider)
	}
}

// Catalog exposes the capability catalog for direct registration.
func (a *Agent) Catalog() *capability.Catalog { return a.catalog }

// Directory exposes the peer directory.
func (a *Agent) Directory() *directory.Directory { return a.dir }

// Coordinator exposes the collaboration coordinator.
func (a *Agent) Coordinator() *collab.Coordinator { return a.coord }

// RegisterFunction registers an in-process function capability.
func (a *Agent) RegisterFunction(f *capability.Function) error {
	return capability.RegisterFunction(a.catalog, a.fnExec, f)
}

// RegisterPeerCapability advertises a capability fulfilled by delegating to
// peers that carry name as a tag.
func (a *Agent) RegisterPeerCapability(name, description string) error {
	return a.catalog.Register(core.CapabilityDefinition{
		Name:        name,
		Description: description,
		Backend:     core.BackendPeerAgent,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"task": map[string]any{"type": "string", "description": "The task to delegate"},
			},
			"required": []any{"task"},
		},
	})
}

// RunSync resolves one task, delegating to peers when the coordinator decides
// it helps, and blocks until the final answer.
func (a *Agent) RunSync(ctx context.Context, task string) (string, error) {
	return a.coord.Handle(ctx, task)
}

// Run resolves one task asynchronously; exactly one of the returned channels
// yields before both are closed.
func (a *Agent) Run(ctx context.Context, task string) (<-chan string, <-chan error) {
	resultCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		defer close(resultCh)
		defer close(errCh)
		answer, err := a.coord.Handle(ctx, task)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- answer
	}()
	return resultCh, errCh
}

// RunLocal resolves one task through the turn loop only, never delegating.
func (a *Agent) RunLocal(ctx context.Context, task string) (*orchestrator.Result, error) {
	return a.orch.Run(ctx, task)
}

// Serve starts the directory sweep and the collaboration HTTP surface,
// blocking until ctx is cancelled.
func (a *Agent) Serve(ctx context.Context) error {
	a.dir.Start()
	defer a.dir.Stop()
	return a.server.Start(ctx)
}
