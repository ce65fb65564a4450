package tool

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"
)

type echoArgs struct {
	Text string `json:"text" description:"Text to echo back"`
}

// NewEchoTool returns a tool that echoes its input.
func NewEchoTool() *FunctionTool {
	return NewTypedTool("echo", "Echo the given text back", func(_ context.Context, a echoArgs) (any, error) {
		return a.Text, nil
	})
}

type numberArgs struct {
	A float64 `json:"a" description:"First operand"`
	B float64 `json:"b" description:"Second operand"`
}

// NewAddTool returns a tool adding two numbers.
func NewAddTool() *FunctionTool {
	return NewTypedTool("add", "Add two numbers", func(_ context.Context, a numberArgs) (any, error) {
		return a.A + a.B, nil
	})
}

// NewMultiplyTool returns a tool multiplying two numbers.
func NewMultiplyTool() *FunctionTool {
	return NewTypedTool("multiply", "Multiply two numbers", func(_ context.Context, a numberArgs) (any, error) {
		return a.A * a.B, nil
	})
}

// NewDivideTool returns a tool dividing a by b. Division by zero fails.
func NewDivideTool() *FunctionTool {
	return NewTypedTool("divide", "Divide a by b", func(_ context.Context, a numberArgs) (any, error) {
		if a.B == 0 {
			return nil, errors.New("division by zero")
		}
		return a.A / a.B, nil
	})
}

type textArgs struct {
	Text string `json:"text" description:"Input text"`
}

// NewWordCountTool returns a tool counting words and characters.
func NewWordCountTool() *FunctionTool {
	return NewTypedTool("word_count", "Count words and characters in text", func(_ context.Context, a textArgs) (any, error) {
		return map[string]any{
			"words":      len(strings.Fields(a.Text)),
			"characters": utf8.RuneCountInString(a.Text),
		}, nil
	})
}

// NewUppercaseTool returns a tool upper-casing text.
func NewUppercaseTool() *FunctionTool {
	return NewTypedTool("uppercase", "Convert text to upper case", func(_ context.Context, a textArgs) (any, error) {
		return strings.ToUpper(a.Text), nil
	})
}

// DefaultCatalog returns a catalog populated with the built-in tools.
func DefaultCatalog() *Catalog {
	c := NewCatalog()
	for _, reg := range []struct {
		tool     Tool
		category string
	}{
		{NewEchoTool(), DefaultCategory},
		{NewAddTool(), "math"},
		{NewMultiplyTool(), "math"},
		{NewDivideTool(), "math"},
		{NewWordCountTool(), "text"},
		{NewUppercaseTool(), "text"},
	} {
		// Names are distinct so registration cannot fail.
		_ = c.RegisterTool(reg.tool, reg.category)
	}
	return c
}
