package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentbridge/core"
	"github.com/hupe1980/agentbridge/logging"
)

// CallbackType defines the lifecycle points of an adapter run where callbacks
// can be executed.
//
// Available callback types:
//   - BeforeRun/AfterRun: around a complete run
//   - BeforePhase/AfterPhase: around plan, execute and reflect
//   - BeforeTool/AfterTool: around individual tool steps
//   - OnError: when a run fails
//
// Callbacks are executed synchronously. A before-callback that returns an
// error aborts the run with a WorkflowError tagged with the active phase.
type CallbackType string

const (
	// CallbackBeforeRun is triggered before planning starts.
	CallbackBeforeRun CallbackType = "before_run"

	// CallbackAfterRun is triggered after a turn was recorded.
	CallbackAfterRun CallbackType = "after_run"

	// CallbackBeforePhase is triggered when a workflow phase is entered.
	CallbackBeforePhase CallbackType = "before_phase"

	// CallbackAfterPhase is triggered when a workflow phase completed.
	CallbackAfterPhase CallbackType = "after_phase"

	// CallbackBeforeTool is triggered before a tool step is dispatched to the
	// tool bridge. Use for argument checks or allow-lists.
	CallbackBeforeTool CallbackType = "before_tool"

	// CallbackAfterTool is triggered after a tool step returned.
	CallbackAfterTool CallbackType = "after_tool"

	// CallbackOnError is triggered when a run fails. Its return value is
	// ignored.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext carries the state of the run a callback is observing.
// Fields not relevant to the callback type are left zero.
type CallbackContext struct {
	// Agent is the adapter's agent name.
	Agent string

	// Input is the run's input text.
	Input string

	// Phase is the active workflow phase.
	Phase core.Phase

	// Step is the step being executed, set for tool callbacks.
	Step *core.Step

	// Tool is the tool call record, set for after_tool.
	Tool *core.ToolCallRecord

	// Output is the run output, set for after_run.
	Output string

	// Err is the failure, set for on_error.
	Err error

	// CallbackType indicates which callback type triggered this execution.
	CallbackType CallbackType

	// Metadata is the caller supplied run metadata.
	Metadata map[string]string
}

// Callback defines the interface for run lifecycle hooks.
//
// Implementations should be fast because they run inline with the workflow.
// Returning an error from a before-callback terminates the run.
type Callback interface {
	// Type returns the callback type this implementation handles.
	Type() CallbackType

	// Execute performs the callback logic with the provided context.
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
//
// Example:
//
//	cb := NewFunctionCallback(
//	    CallbackBeforeRun,
//	    func(ctx context.Context, callbackCtx *CallbackContext) error {
//	        log.Printf("starting %s", callbackCtx.Agent)
//	        return nil
//	    },
//	)
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute calls the wrapped function with the provided context.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager is a registry of callbacks keyed by type.
//
// Callbacks are executed in registration order, and the first error stops
// the remaining callbacks of that type. The manager is safe for concurrent
// registration and execution.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty callback manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds a callback for its type.
//
// Example:
//
//	manager := NewCallbackManager()
//	manager.RegisterCallback(NewLoggingCallback(CallbackAfterRun, logger))
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// Count returns the number of callbacks registered for callbackType.
func (cm *CallbackManager) Count(callbackType CallbackType) int {
	if cm == nil {
		return 0
	}

	cm.mu.RLock()
	defer cm.mu.RUnlock()

	return len(cm.callbacks[callbackType])
}

// ExecuteCallbacks executes all callbacks registered for callbackType and
// returns the first error. A nil manager executes nothing.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	if cm == nil {
		return nil
	}

	cm.mu.RLock()
	callbacks := append([]Callback(nil), cm.callbacks[callbackType]...)
	cm.mu.RUnlock()

	callbackCtx.CallbackType = callbackType

	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return err
		}
	}

	return nil
}

// LoggingCallback writes one structured log line per lifecycle event.
type LoggingCallback struct {
	callbackType CallbackType
	logger       logging.Logger
}

// NewLoggingCallback creates a logging callback for callbackType.
func NewLoggingCallback(callbackType CallbackType, logger logging.Logger) *LoggingCallback {
	return &LoggingCallback{
		callbackType: callbackType,
		logger:       logging.OrNoOp(logger),
	}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType {
	return c.callbackType
}

// Execute logs the event. It never fails.
func (c *LoggingCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	args := []any{"agent", callbackCtx.Agent, "phase", callbackCtx.Phase.String()}
	if callbackCtx.Step != nil {
		args = append(args, "step", callbackCtx.Step.String())
	}
	if callbackCtx.Err != nil {
		args = append(args, "error", callbackCtx.Err)
		c.logger.Warn("adapter.callback."+string(c.callbackType), args...)
		return nil
	}
	c.logger.Debug("adapter.callback."+string(c.callbackType), args...)
	return nil
}

// ToolPolicyCallback rejects tool steps whose tool is not on an allow-list.
//
// Example:
//
//	callbacks.RegisterCallback(NewToolPolicyCallback("add", "multiply"))
type ToolPolicyCallback struct {
	allowed map[string]struct{}
}

// NewToolPolicyCallback allows only the named tools.
func NewToolPolicyCallback(allowed ...string) *ToolPolicyCallback {
	set := make(map[string]struct{}, len(allowed))
	for _, name := range allowed {
		set[name] = struct{}{}
	}
	return &ToolPolicyCallback{allowed: set}
}

// Type returns CallbackBeforeTool.
func (c *ToolPolicyCallback) Type() CallbackType {
	return CallbackBeforeTool
}

// Execute returns an error for tools outside the allow-list.
func (c *ToolPolicyCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	if callbackCtx.Step == nil {
		return nil
	}
	if _, ok := c.allowed[callbackCtx.Step.Tool]; !ok {
		return fmt.Errorf("tool %q is not allowed for agent %s", callbackCtx.Step.Tool, callbackCtx.Agent)
	}
	return nil
}
