package core

import (
	"errors"
	"fmt"
)

// Configuration errors surfaced immediately by the catalog; never retried and
// never converted into outcomes.
var (
	// ErrDuplicateCapability is returned when registering a name the catalog already holds.
	ErrDuplicateCapability = errors.New("capability already registered")
	// ErrCapabilityNotFound is returned when dispatching an unknown capability name.
	ErrCapabilityNotFound = errors.New("capability not found")
	// ErrNoExecutorForBackend is returned when a capability's backend kind has no bound executor.
	ErrNoExecutorForBackend = errors.New("no executor registered for backend")
	// ErrDelegationNotPermitted is the errors.Is target for all delegation denials.
	ErrDelegationNotPermitted = errors.New("delegation not permitted")
)

// CapabilityError represents a failure inside a capability execution. It is
// captured as a failed CapabilityOutcome and never aborts the turn loop.
type CapabilityError struct {
	Capability string      `json:"capability"`        // Name of the capability that failed
	Message    string      `json:"message"`           // Error message
	Code       string      `json:"code"`              // Error code for categorization
	Details    interface{} `json:"details,omitempty"` // Additional error details
}

// Error codes used by CapabilityError.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeExecutionError  = "EXECUTION_ERROR"
	CodeTimeout         = "TIMEOUT"
)

func (e *CapabilityError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("capability error [%s] in %s: %s", e.Code, e.Capability, e.Message)
	}
	return fmt.Sprintf("capability error in %s: %s", e.Capability, e.Message)
}

// NewCapabilityError creates a new CapabilityError with the specified details.
func NewCapabilityError(capability, message, code string) *CapabilityError {
	return &CapabilityError{
		Capability: capability,
		Message:    message,
		Code:       code,
	}
}

// TaskError is the only task-fatal error: a failure of the orchestrating
// model call itself. Capability and peer failures are absorbed locally.
type TaskError struct {
	Stage string // "model_call", "synthesis"
	Err   error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task failed during %s: %v", e.Stage, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *TaskError) Unwrap() error { return e.Err }

// DelegationDenialReason explains why CanDelegateTo failed closed.
type DelegationDenialReason string

// Denial reasons.
const (
	DeniedDepth    DelegationDenialReason = "depth"
	DeniedCycle    DelegationDenialReason = "cycle"
	DeniedDeadline DelegationDenialReason = "deadline"
)

// DelegationDeniedError rejects one delegation attempt. Denials are skipped
// silently by the coordinator, not surfaced to callers.
type DelegationDeniedError struct {
	Peer   string
	Reason DelegationDenialReason
}

func (e *DelegationDeniedError) Error() string {
	return fmt.Sprintf("delegation to %s not permitted: %s", e.Peer, e.Reason)
}

// Is matches ErrDelegationNotPermitted so callers can test with errors.Is.
func (e *DelegationDeniedError) Is(target error) bool {
	return target == ErrDelegationNotPermitted
}
