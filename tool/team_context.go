package tool

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentbridge/core"
)

// TeamContextTool exposes a team's shared context to a backend through tool
// steps, so reasoners can read facts published by teammates and publish
// their own.
type TeamContextTool struct {
	name        string
	description string
	op          string
	broker      core.ContextBroker
	teamID      string
	author      string
}

// NewTeamContextTools returns the team_context_get and team_context_set tools
// bound to one team. Values written through them are attributed to author.
func NewTeamContextTools(broker core.ContextBroker, teamID, author string) []Tool {
	return []Tool{
		&TeamContextTool{
			name:        "team_context_get",
			description: "Read a value from the shared team context. Omit key to list every entry.",
			op:          "get",
			broker:      broker,
			teamID:      teamID,
			author:      author,
		},
		&TeamContextTool{
			name:        "team_context_set",
			description: "Publish a value to the shared team context under key.",
			op:          "set",
			broker:      broker,
			teamID:      teamID,
			author:      author,
		},
	}
}

// Name returns the tool identifier.
func (t *TeamContextTool) Name() string { return t.name }

// Description returns the tool description.
func (t *TeamContextTool) Description() string { return t.description }

// Parameters returns the JSON schema for tool parameters.
func (t *TeamContextTool) Parameters() map[string]any {
	props := map[string]any{
		"key": map[string]any{
			"type":        "string",
			"description": "Context key",
		},
	}
	if t.op == "get" {
		return map[string]any{"type": "object", "properties": props}
	}
	props["value"] = map[string]any{
		"description": "Value to store (any JSON type)",
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   []string{"key", "value"},
	}
}

// Call implements the Tool interface.
func (t *TeamContextTool) Call(ctx context.Context, args map[string]any) (any, error) {
	switch t.op {
	case "get":
		return t.handleGet(ctx, args)
	case "set":
		return t.handleSet(ctx, args)
	default:
		return nil, NewToolError(t.name, "unsupported operation "+t.op, CodeExecution)
	}
}

func (t *TeamContextTool) handleGet(ctx context.Context, args map[string]any) (any, error) {
	key, _ := args["key"].(string)
	if key == "" {
		snap, err := t.broker.Snapshot(ctx, t.teamID)
		if err != nil {
			return nil, err
		}
		values := make(map[string]any, len(snap))
		for k, e := range snap {
			values[k] = e.Value
		}
		return values, nil
	}

	entry, ok, err := t.broker.Get(ctx, t.teamID, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return map[string]any{"key": key, "found": false}, nil
	}
	return map[string]any{"key": key, "found": true, "value": entry.Value, "author": entry.Author}, nil
}

func (t *TeamContextTool) handleSet(ctx context.Context, args map[string]any) (any, error) {
	key, ok := args["key"].(string)
	if !ok || key == "" {
		return nil, NewToolError(t.name, "key parameter is required", CodeValidation)
	}
	value, ok := args["value"]
	if !ok {
		return nil, NewToolError(t.name, "value parameter is required", CodeValidation)
	}

	author := t.author
	if info, ok := CallInfoFromContext(ctx); ok && info.Agent != "" {
		author = info.Agent
	}

	if err := t.broker.Set(ctx, t.teamID, key, value, author); err != nil {
		return nil, err
	}

	return map[string]any{
		"success": true,
		"message": fmt.Sprintf("Context key '%s' set successfully", key),
	}, nil
}
