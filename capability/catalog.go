package capability

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lamwimham/neuroflow/core"
	"github.com/lamwimham/neuroflow/internal/util"
	"github.com/lamwimham/neuroflow/logging"
	"github.com/lamwimham/neuroflow/model"
)

// Executor runs invocations for one backend kind. Implementations must honor
// ctx cancellation and return either a JSON-serializable result or an error;
// they never need to build outcomes themselves.
type Executor interface {
	Execute(ctx context.Context, def core.CapabilityDefinition, inv core.CapabilityInvocation) (any, error)
}

// CatalogOptions configure a Catalog.
type CatalogOptions struct {
	// DefaultTimeout bounds invocations that carry no explicit timeout.
	// Zero disables the implicit bound.
	DefaultTimeout time.Duration

	// Logger receives structured dispatch events. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Catalog maps capability name -> definition + backend and routes calls. It
// is one of the two long-lived shared mutable structures in the system and is
// safe for concurrent use.
type Catalog struct {
	opts CatalogOptions

	mu        sync.RWMutex
	defs      map[string]core.CapabilityDefinition
	order     []string // registration order, drives DescribeAll
	executors map[core.BackendKind]Executor
	outcomes  map[string]core.CapabilityOutcome // consumed invocation ids
	inflight  map[string]chan struct{}          // invocation ids currently executing
}

// NewCatalog constructs an empty catalog.
func NewCatalog(optFns ...func(o *CatalogOptions)) *Catalog {
	opts := CatalogOptions{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Catalog{
		opts:      opts,
		defs:      make(map[string]core.CapabilityDefinition),
		executors: make(map[core.BackendKind]Executor),
		outcomes:  make(map[string]core.CapabilityOutcome),
		inflight:  make(map[string]chan struct{}),
	}
}

// Register adds a definition to the catalog. A name collision returns
// core.ErrDuplicateCapability; an empty id is filled in.
func (c *Catalog) Register(def core.CapabilityDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("capability name must not be empty")
	}
	if def.ID == "" {
		def.ID = uuid.NewString()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.defs[def.Name]; exists {
		return fmt.Errorf("%w: %s", core.ErrDuplicateCapability, def.Name)
	}
	c.defs[def.Name] = def
	c.order = append(c.order, def.Name)

	c.opts.Logger.Debug("catalog.register", "capability", def.Name, "backend", string(def.Backend))

	return nil
}

// RegisterBackend binds one executor to a backend kind. Re-binding a kind
// replaces the previous executor.
func (c *Catalog) RegisterBackend(kind core.BackendKind, ex Executor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.executors[kind] = ex
}

// Get returns the definition registered under name.
func (c *Catalog) Get(name string) (core.CapabilityDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.defs[name]
	return def, ok
}

// Names returns all registered capability names in registration order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// DescribeAll emits the model-facing schema for every registered capability,
// in registration order, preserving names, typed parameters and the required
// list.
func (c *Catalog) DescribeAll() []model.ToolDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()

	defs := make([]model.ToolDefinition, 0, len(c.order))
	for _, name := range c.order {
		def := c.defs[name]
		params := def.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  params,
			},
		})
	}
	return defs
}

// Dispatch resolves and executes one invocation. The two configuration
// errors (core.ErrCapabilityNotFound, core.ErrNoExecutorForBackend) are
// returned directly; every execution failure, validation failure, panic or
// timeout is captured as a failed outcome with a nil error. Re-dispatching an
// already-consumed invocation id returns the recorded outcome without running
// the backend again; a dispatch racing an in-flight duplicate waits for that
// execution instead of starting a second one.
func (c *Catalog) Dispatch(ctx context.Context, inv core.CapabilityInvocation) (core.CapabilityOutcome, error) {
	c.mu.Lock()
	if prior, done := c.outcomes[inv.ID]; done {
		c.mu.Unlock()
		return prior, nil
	}
	def, ok := c.defs[inv.Name]
	var ex Executor
	if ok {
		ex = c.executors[def.Backend]
	}
	if !ok {
		c.mu.Unlock()
		return core.CapabilityOutcome{}, fmt.Errorf("%w: %s", core.ErrCapabilityNotFound, inv.Name)
	}
	if ex == nil {
		c.mu.Unlock()
		return core.CapabilityOutcome{}, fmt.Errorf("%w: %s", core.ErrNoExecutorForBackend, def.Backend)
	}
	if wait, busy := c.inflight[inv.ID]; busy {
		c.mu.Unlock()
		return c.awaitInflight(ctx, inv, wait)
	}
	wait := make(chan struct{})
	c.inflight[inv.ID] = wait
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.inflight, inv.ID)
		c.mu.Unlock()
		close(wait)
	}()

	start := time.Now()

	if def.Parameters != nil {
		if err := util.ValidateParameters(inv.Arguments, def.Parameters); err != nil {
			c.opts.Logger.Warn("catalog.dispatch.validation_failed", "capability", inv.Name, "error", err.Error())
			return c.record(core.FailedOutcome(inv, &core.CapabilityError{
				Capability: inv.Name,
				Message:    fmt.Sprintf("parameter validation failed: %v", err),
				Code:       core.CodeValidationError,
				Details:    err,
			}, time.Since(start))), nil
		}
	}

	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = c.opts.DefaultTimeout
	}
	execCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := c.runExecutor(execCtx, ex, def, inv)
	elapsed := time.Since(start)

	c.opts.Logger.Info(
		"catalog.dispatch.executed",
		"capability", inv.Name,
		"backend", string(def.Backend),
		"duration_ms", elapsed.Milliseconds(),
		"error", err != nil,
	)

	if err != nil {
		if execCtx.Err() != nil && ctx.Err() == nil {
			err = &core.CapabilityError{
				Capability: inv.Name,
				Message:    fmt.Sprintf("invocation timed out after %s", timeout),
				Code:       core.CodeTimeout,
			}
		}
		return c.record(core.FailedOutcome(inv, err, elapsed)), nil
	}
	return c.record(core.SuccessOutcome(inv, result, elapsed)), nil
}

// awaitInflight blocks until the dispatch already running this invocation id
// records its outcome. Every return path of the running dispatch records
// before releasing the wait channel, so the outcome is present once it closes.
func (c *Catalog) awaitInflight(ctx context.Context, inv core.CapabilityInvocation, wait <-chan struct{}) (core.CapabilityOutcome, error) {
	select {
	case <-wait:
	case <-ctx.Done():
		return core.FailedOutcome(inv, ctx.Err(), 0), nil
	}
	c.mu.RLock()
	prior := c.outcomes[inv.ID]
	c.mu.RUnlock()
	return prior, nil
}

// runExecutor executes with panic safety and cooperative timeout enforcement:
// an executor that ignores ctx cannot hold the dispatcher past the deadline.
func (c *Catalog) runExecutor(
	ctx context.Context,
	ex Executor,
	def core.CapabilityDefinition,
	inv core.CapabilityInvocation,
) (any, error) {
	type execResult struct {
		value any
		err   error
	}
	done := make(chan execResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.opts.Logger.Error("catalog.dispatch.panic", "capability", inv.Name, "recover", r, "stack", string(debug.Stack()))
				done <- execResult{err: &core.CapabilityError{
					Capability: inv.Name,
					Message:    fmt.Sprintf("panic: %v", r),
					Code:       core.CodeExecutionError,
				}}
			}
		}()
		value, err := ex.Execute(ctx, def, inv)
		done <- execResult{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		return res.value, res.err
	}
}

// record stores the outcome under its invocation id so duplicate dispatches
// never re-apply side effects.
func (c *Catalog) record(o core.CapabilityOutcome) core.CapabilityOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prior, done := c.outcomes[o.InvocationID]; done {
		return prior
	}
	c.outcomes[o.InvocationID] = o
	return o
}
