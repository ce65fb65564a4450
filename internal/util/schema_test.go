package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type addArgs struct {
	A     float64 `json:"a" description:"first operand"`
	B     float64 `json:"b"`
	Note  string  `json:"note,omitempty"`
	Scale *int    `json:"scale"`
}

func TestCreateSchema(t *testing.T) {
	s := CreateSchema(addArgs{})

	assert.Equal(t, "object", s["type"])
	assert.Equal(t, []string{"a", "b"}, RequiredFields(s))
	assert.Equal(t, []string{"a", "b", "note", "scale"}, PropertyNames(s))
	assert.Equal(t, "number", PropertyType(s, "a"))
	assert.Equal(t, "integer", PropertyType(s, "scale"))
	assert.Equal(t, "", PropertyType(s, "missing"))

	props := s["properties"].(map[string]any)
	assert.Equal(t, "first operand", props["a"].(map[string]any)["description"])
}

func TestCreateSchema_NonStruct(t *testing.T) {
	s := CreateSchema(42)
	assert.Empty(t, RequiredFields(s))
	assert.Empty(t, PropertyNames(s))
}

func TestCompileAndValidate(t *testing.T) {
	schema, err := CompileSchema("add", CreateSchema(addArgs{}))
	require.NoError(t, err)

	assert.NoError(t, ValidateArgs(schema, map[string]any{"a": 1, "b": 2.5}))
	assert.Error(t, ValidateArgs(schema, map[string]any{"a": 1}))
	assert.Error(t, ValidateArgs(schema, map[string]any{"a": "one", "b": 2}))
	assert.NoError(t, ValidateArgs(nil, nil))
}

func TestCompileSchema_Invalid(t *testing.T) {
	_, err := CompileSchema("bad", map[string]any{"type": 12})
	assert.Error(t, err)
}

func TestRequiredFields_StringSlice(t *testing.T) {
	s := map[string]any{"required": []string{"x", "y"}}
	assert.Equal(t, []string{"x", "y"}, RequiredFields(s))
}
