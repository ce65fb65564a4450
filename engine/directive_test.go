package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentbridge/core"
	"github.com/hupe1980/agentbridge/tool"
)

func TestParseDirectives(t *testing.T) {
	specs := []core.ToolSpec{
		tool.Spec(newDoubleTool()),
		tool.Spec(tool.NewAddTool()),
		tool.Spec(tool.NewEchoTool()),
	}

	tests := []struct {
		name  string
		input string
		want  []Directive
	}{
		{
			name:  "positional single",
			input: "please double(21) now",
			want:  []Directive{{Tool: "double", Args: map[string]any{"x": 21.0}, Raw: "double(21)"}},
		},
		{
			name:  "positional in required order",
			input: "add(2, 3)",
			want:  []Directive{{Tool: "add", Args: map[string]any{"a": 2.0, "b": 3.0}, Raw: "add(2, 3)"}},
		},
		{
			name:  "key value",
			input: "add(b=1, a=2.5)",
			want:  []Directive{{Tool: "add", Args: map[string]any{"a": 2.5, "b": 1.0}, Raw: "add(b=1, a=2.5)"}},
		},
		{
			name:  "json object",
			input: `echo({"text": "a, b (c)"})`,
			want:  []Directive{{Tool: "echo", Args: map[string]any{"text": "a, b (c)"}, Raw: `echo({"text": "a, b (c)"})`}},
		},
		{
			name:  "string property keeps text",
			input: "echo(42)",
			want:  []Directive{{Tool: "echo", Args: map[string]any{"text": "42"}, Raw: "echo(42)"}},
		},
		{
			name:  "quoted string",
			input: `echo("hello, world")`,
			want:  []Directive{{Tool: "echo", Args: map[string]any{"text": "hello, world"}, Raw: `echo("hello, world")`}},
		},
		{
			name:  "multiple in order",
			input: "double(1) then add(1,2)",
			want: []Directive{
				{Tool: "double", Args: map[string]any{"x": 1.0}, Raw: "double(1)"},
				{Tool: "add", Args: map[string]any{"a": 1.0, "b": 2.0}, Raw: "add(1,2)"},
			},
		},
		{
			name:  "unknown identifiers and suffix matches ignored",
			input: "triple(3) redouble(2) double (4)",
		},
		{
			name:  "unclosed",
			input: "double(21",
		},
		{
			name:  "empty args",
			input: "echo()",
			want:  []Directive{{Tool: "echo", Args: map[string]any{}, Raw: "echo()"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDirectives(tt.input, specs)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDirectives_Errors(t *testing.T) {
	specs := []core.ToolSpec{tool.Spec(tool.NewAddTool())}

	_, err := ParseDirectives("add(1, 2, 3)", specs)
	assert.ErrorContains(t, err, "3 positional arguments for 2 parameters")

	_, err = ParseDirectives("add(1, b=2)", specs)
	assert.ErrorContains(t, err, "cannot mix")

	_, err = ParseDirectives("add({bad json)", specs)
	assert.ErrorContains(t, err, "invalid JSON")
}

func TestParseDirectives_NoTools(t *testing.T) {
	got, err := ParseDirectives("double(2)", nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}
