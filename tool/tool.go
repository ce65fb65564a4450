// Package tool implements the tool bridge: the subsystem that lets agents
// invoke structured capabilities (APIs, computations, shared team context)
// with schema validated arguments, per-tool usage statistics and consistent
// error reporting.
package tool

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentbridge/core"
	"github.com/hupe1980/agentbridge/logging"
)

// Tool defines the interface for extending agent capabilities with external functions.
//
// Tools are registered with an adapter's Bridge. Plans produced by a backend
// reasoner reference tools by name; the bridge dispatches those steps here.
//
// Tool implementations should:
//   - Provide clear, descriptive names (snake_case recommended)
//   - Define a JSON schema for parameters
//   - Honour ctx cancellation for slow work
//   - Be safe for concurrent use
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what this tool does.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	Parameters() map[string]any

	// Call executes the tool with structured arguments.
	Call(ctx context.Context, args map[string]any) (any, error)
}

// Spec returns the reasoner facing description of t.
func Spec(t Tool) core.ToolSpec {
	return core.ToolSpec{Name: t.Name(), Description: t.Description(), Parameters: t.Parameters()}
}

// ToolError represents errors raised by a tool implementation. The bridge
// wraps it into a core.ToolExecutionError; callers reach it with errors.As.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Unwrap exposes Details when it is an error.
func (e *ToolError) Unwrap() error {
	if err, ok := e.Details.(error); ok {
		return err
	}
	return nil
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// Error codes used by the built-in tools.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeSchema     = "SCHEMA_ERROR"
)

// CallInfo describes the invocation a tool is running under.
type CallInfo struct {
	Agent  string
	CallID string
	Logger logging.Logger
}

type callInfoKey struct{}

// WithCallInfo attaches info to ctx.
func WithCallInfo(ctx context.Context, info CallInfo) context.Context {
	return context.WithValue(ctx, callInfoKey{}, info)
}

// CallInfoFromContext returns the call info attached by the bridge. The
// returned Logger is never nil.
func CallInfoFromContext(ctx context.Context) (CallInfo, bool) {
	info, ok := ctx.Value(callInfoKey{}).(CallInfo)
	if info.Logger == nil {
		info.Logger = logging.NoOpLogger{}
	}
	return info, ok
}
