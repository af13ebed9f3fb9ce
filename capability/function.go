package capability

import (
	"context"
	"fmt"
	"sync"

	"github.com/lamwimham/neuroflow/core"
	"github.com/lamwimham/neuroflow/internal/util"
)

// Handler is the signature of an in-process capability implementation.
// Arguments arrive already validated against the declared schema.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Function pairs a capability definition with its in-process handler.
//
// Error semantics mirror the rest of the dispatch layer:
//
//	*core.CapabilityError (returned directly) -> forwarded unchanged
//	other error                               -> wrapped with Code EXECUTION_ERROR
//
// A Function has no internal mutable state after construction and is safe for
// concurrent use by multiple goroutines.
type Function struct {
	def core.CapabilityDefinition
	fn  Handler
}

// NewFunction constructs a Function from explicit schema and handler.
//
// Example:
//
//	add := capability.NewFunction(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(ctx context.Context, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunction(name, description string, parameters map[string]any, fn Handler) *Function {
	return &Function{
		def: core.CapabilityDefinition{
			Name:        name,
			Description: description,
			Backend:     core.BackendInProcess,
			Parameters:  parameters,
		},
		fn: fn,
	}
}

// NewFunctionFromStruct derives the parameter schema from a struct using
// reflection (json / description tags), equivalent to util.CreateSchema.
func NewFunctionFromStruct(name, description string, structType any, fn Handler) *Function {
	return NewFunction(name, description, util.CreateSchema(structType), fn)
}

// Definition returns the immutable capability definition.
func (f *Function) Definition() core.CapabilityDefinition { return f.def }

// FunctionExecutor is the in-process backend: a registry of Functions keyed
// by capability name. Safe for concurrent use.
type FunctionExecutor struct {
	mu  sync.RWMutex
	fns map[string]*Function
}

// NewFunctionExecutor constructs an empty in-process executor.
func NewFunctionExecutor() *FunctionExecutor {
	return &FunctionExecutor{fns: make(map[string]*Function)}
}

// Add makes a Function callable through this executor. The definition must
// still be registered with the catalog separately; RegisterFunction does both.
func (e *FunctionExecutor) Add(f *Function) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fns[f.def.Name] = f
}

// Execute implements Executor.
func (e *FunctionExecutor) Execute(ctx context.Context, def core.CapabilityDefinition, inv core.CapabilityInvocation) (any, error) {
	e.mu.RLock()
	f, ok := e.fns[inv.Name]
	e.mu.RUnlock()

	if !ok {
		return nil, &core.CapabilityError{
			Capability: inv.Name,
			Message:    "no in-process handler bound",
			Code:       core.CodeExecutionError,
		}
	}

	result, err := f.fn(ctx, inv.Arguments)
	if err != nil {
		if capErr, ok := err.(*core.CapabilityError); ok {
			return nil, capErr
		}
		return nil, &core.CapabilityError{
			Capability: inv.Name,
			Message:    err.Error(),
			Code:       core.CodeExecutionError,
		}
	}
	return result, nil
}

// RegisterFunction wires a Function into both the catalog and the in-process
// executor in one step.
func RegisterFunction(c *Catalog, e *FunctionExecutor, f *Function) error {
	if err := c.Register(f.Definition()); err != nil {
		return fmt.Errorf("register %s: %w", f.def.Name, err)
	}
	e.Add(f)
	return nil
}
