package core

import (
	"time"

	"github.com/google/uuid"
)

// BackendKind identifies where a capability implementation lives. Dispatch
// routes every invocation through exactly one executor per kind.
type BackendKind string

const (
	// BackendInProcess marks capabilities implemented as plain Go functions.
	BackendInProcess BackendKind = "in-process"
	// BackendSandboxed marks capabilities executed by an isolated runner.
	BackendSandboxed BackendKind = "sandboxed"
	// BackendRemoteServer marks capabilities served by a remote protocol server (MCP).
	BackendRemoteServer BackendKind = "remote-server"
	// BackendPeerAgent marks capabilities fulfilled by delegating to another agent.
	BackendPeerAgent BackendKind = "peer-agent"
)

// CapabilityDefinition describes a single named operation the model may
// request. Definitions are immutable after registration; the catalog owns
// them and rejects duplicate names.
type CapabilityDefinition struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Backend     BackendKind    `json:"backend"`
	Parameters  map[string]any `json:"parameters"`            // JSON schema (type, properties, required)
	ResultHint  string         `json:"result_hint,omitempty"` // Free-form hint about the result shape
}

// CapabilityInvocation is a single requested call of a registered capability.
// Created once per turn and consumed exactly once by the dispatcher.
type CapabilityInvocation struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Timeout   time.Duration  `json:"timeout,omitempty"`
}

// NewCapabilityInvocation creates an invocation with a fresh id.
func NewCapabilityInvocation(name string, args map[string]any, timeout time.Duration) CapabilityInvocation {
	if args == nil {
		args = map[string]any{}
	}
	return CapabilityInvocation{
		ID:        uuid.NewString(),
		Name:      name,
		Arguments: args,
		Timeout:   timeout,
	}
}

// CapabilityOutcome answers exactly one invocation. Immutable once created.
type CapabilityOutcome struct {
	InvocationID string        `json:"invocation_id"`
	Name         string        `json:"name"`
	Success      bool          `json:"success"`
	Result       any           `json:"result,omitempty"`
	Error        string        `json:"error,omitempty"`
	Elapsed      time.Duration `json:"elapsed"`
}

// SuccessOutcome builds a successful outcome for an invocation.
func SuccessOutcome(inv CapabilityInvocation, result any, elapsed time.Duration) CapabilityOutcome {
	return CapabilityOutcome{
		InvocationID: inv.ID,
		Name:         inv.Name,
		Success:      true,
		Result:       result,
		Elapsed:      elapsed,
	}
}

// FailedOutcome builds a failed outcome for an invocation.
func FailedOutcome(inv CapabilityInvocation, err error, elapsed time.Duration) CapabilityOutcome {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return CapabilityOutcome{
		InvocationID: inv.ID,
		Name:         inv.Name,
		Success:      false,
		Error:        msg,
		Elapsed:      elapsed,
	}
}

// FunctionResponse converts the outcome into the content part fed back to the model.
func (o CapabilityOutcome) FunctionResponse() FunctionResponse {
	return FunctionResponse{
		ID:       o.InvocationID,
		Name:     o.Name,
		Response: o.Result,
		Error:    o.Error,
	}
}
