package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is wrapped by ConfigurationError when an adapter is
	// used before Initialize succeeded.
	ErrNotInitialized = errors.New("adapter not initialized")

	// ErrChainLimit is wrapped by WorkflowError when a plan holds more steps
	// than the configured maximum chain length.
	ErrChainLimit = errors.New("plan exceeds max chain length")
)

// ConfigurationError reports bad or missing setup options.
type ConfigurationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %s", msg)
	}
	return fmt.Sprintf("configuration error [%s]: %s", e.Field, msg)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NewConfigurationError creates a ConfigurationError for the given field.
func NewConfigurationError(field, message string) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: message}
}

// WorkflowError reports a failed plan, execute or reflect phase. Phase is the
// phase that was active when the failure occurred.
type WorkflowError struct {
	Agent string
	Phase Phase
	Err   error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("workflow error in %s phase (agent %s): %v", e.Phase, e.Agent, e.Err)
}

func (e *WorkflowError) Unwrap() error { return e.Err }

// UnknownToolError reports a lookup miss in the tool bridge.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}

// ToolExecutionError wraps a failure raised by a tool's own execution.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %q failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// PhaseOf returns the failed phase carried by err, or PhasePending when err
// holds no WorkflowError.
func PhaseOf(err error) Phase {
	var wfErr *WorkflowError
	if errors.As(err, &wfErr) {
		return wfErr.Phase
	}
	return PhasePending
}
