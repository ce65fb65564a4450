package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/hupe1980/agentbridge/internal/util"
)

// FunctionTool is a generic adapter that exposes a plain Go function as a tool.
//
// Arguments are validated against the declared JSON schema before the function
// runs. Failures are normalised so callers receive *ToolError with consistent codes:
//
//	VALIDATION_ERROR -> schema / argument mismatch
//	EXECUTION_ERROR  -> underlying function returned an error (non-ToolError)
//	SCHEMA_ERROR     -> the declared schema does not compile
//
// Custom codes are preserved if the function returns *ToolError directly.
// A FunctionTool has no mutable state after construction and is safe for
// concurrent use.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	schema      *jsonschema.Schema
	schemaErr   error
	fn          func(ctx context.Context, args map[string]any) (any, error)
}

// NewFunctionTool constructs a FunctionTool from explicit schema and function.
//
// Example:
//
//	sumTool := NewFunctionTool(
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
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(ctx context.Context, args map[string]any) (any, error),
) *FunctionTool {
	if parameters == nil {
		parameters = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	schema, err := util.CompileSchema(name, parameters)
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		schema:      schema,
		schemaErr:   err,
		fn:          fn,
	}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct using
// reflection (see util.CreateSchema).
//
// Example:
//
//	type SumArgs struct {
//	  A float64 `json:"a" description:"First addend"`
//	  B float64 `json:"b" description:"Second addend"`
//	}
//
//	sumTool := NewFunctionToolFromStruct("calculate_sum", "Calculate the sum of two numbers", SumArgs{}, fn)
func NewFunctionToolFromStruct(
	name, description string,
	structType any,
	fn func(ctx context.Context, args map[string]any) (any, error),
) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn)
}

// Name returns the unique tool name used in plans and routing.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the short natural language description exposed to reasoners.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Call validates the provided args against the declared schema then invokes
// the underlying function.
func (t *FunctionTool) Call(ctx context.Context, args map[string]any) (any, error) {
	info, _ := CallInfoFromContext(ctx)
	logger := info.Logger
	start := time.Now()

	logger.Debug("tool.call.start", "tool", t.name, "call_id", info.CallID)

	if t.schemaErr != nil {
		return nil, &ToolError{Tool: t.name, Message: t.schemaErr.Error(), Code: CodeSchema, Details: t.schemaErr}
	}

	if err := util.ValidateArgs(t.schema, args); err != nil {
		logger.Warn("tool.call.validation_failed", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}

	result, err := t.fn(ctx, args)
	if err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) {
			return nil, toolErr
		}

		return nil, &ToolError{
			Tool:    t.name,
			Message: err.Error(),
			Code:    CodeExecution,
			Details: err,
		}
	}

	logger.Debug("tool.call.done", "tool", t.name, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}

// DecodeArgs converts validated arguments into a typed struct via JSON.
func DecodeArgs[T any](args map[string]any) (T, error) {
	var out T
	raw, err := json.Marshal(args)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

// NewTypedTool builds a FunctionTool whose schema is derived from T and whose
// implementation receives the decoded struct.
func NewTypedTool[T any](name, description string, fn func(ctx context.Context, args T) (any, error)) *FunctionTool {
	var zero T
	return NewFunctionToolFromStruct(name, description, zero, func(ctx context.Context, raw map[string]any) (any, error) {
		args, err := DecodeArgs[T](raw)
		if err != nil {
			return nil, &ToolError{Tool: name, Message: err.Error(), Code: CodeValidation, Details: err}
		}
		return fn(ctx, args)
	})
}
