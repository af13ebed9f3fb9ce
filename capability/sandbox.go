package capability

import (
	"context"

	"github.com/lamwimham/neuroflow/core"
)

// SandboxRunner executes code-carrying capabilities inside an isolation
// boundary (container, jail, separate process). The isolation mechanism
// itself lives outside this module; the dispatcher only needs a call surface.
type SandboxRunner interface {
	Run(ctx context.Context, def core.CapabilityDefinition, args map[string]any) (any, error)
}

// SandboxExecutor adapts a SandboxRunner to the Executor interface used by
// the catalog for the sandboxed backend kind.
type SandboxExecutor struct {
	runner SandboxRunner
}

// NewSandboxExecutor wraps a runner. A nil runner is allowed; every
// invocation then fails with an EXECUTION_ERROR outcome instead of panicking.
func NewSandboxExecutor(runner SandboxRunner) *SandboxExecutor {
	return &SandboxExecutor{runner: runner}
}

// Execute implements Executor.
func (e *SandboxExecutor) Execute(ctx context.Context, def core.CapabilityDefinition, inv core.CapabilityInvocation) (any, error) {
	if e.runner == nil {
		return nil, &core.CapabilityError{
			Capability: inv.Name,
			Message:    "no sandbox runner configured",
			Code:       core.CodeExecutionError,
		}
	}
	result, err := e.runner.Run(ctx, def, inv.Arguments)
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
