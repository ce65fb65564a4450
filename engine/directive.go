package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/agentbridge/core"
	"github.com/hupe1980/agentbridge/internal/util"
)

// Directive is a tool invocation written inline as name(args), for example
// "double(21)", "add(a=2, b=3)" or `echo({"text": "hi"})`.
type Directive struct {
	Tool string
	Args map[string]any
	Raw  string
}

// ParseDirectives finds directives for the given tools in input, in order of
// appearance. Identifiers that are not tool names are ignored, as is an
// opening parenthesis without a matching close.
//
// Arguments are one of:
//   - a JSON object
//   - comma separated key=value pairs
//   - positional values mapped onto the schema's required properties; a
//     schema with a single property accepts one positional value
//
// Values parse as JSON where possible and fall back to the raw text. String
// typed properties always receive text.
func ParseDirectives(input string, tools []core.ToolSpec) ([]Directive, error) {
	specs := make(map[string]core.ToolSpec, len(tools))
	for _, t := range tools {
		specs[t.Name] = t
	}
	if len(specs) == 0 {
		return nil, nil
	}

	var out []Directive
	for i := 0; i < len(input); {
		if !isIdentStart(input[i]) || (i > 0 && isIdentChar(input[i-1])) {
			i++
			continue
		}
		j := i
		for j < len(input) && isIdentChar(input[j]) {
			j++
		}
		name := input[i:j]
		spec, ok := specs[name]
		if !ok || j >= len(input) || input[j] != '(' {
			i = j
			continue
		}
		end := matchParen(input, j)
		if end < 0 {
			i = j
			continue
		}
		args, err := parseArgs(input[j+1:end], spec.Parameters)
		if err != nil {
			return nil, fmt.Errorf("tool directive %s: %w", input[i:end+1], err)
		}
		out = append(out, Directive{Tool: name, Args: args, Raw: input[i : end+1]})
		i = end + 1
	}
	return out, nil
}

func parseArgs(raw string, schema map[string]any) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	args := map[string]any{}
	if raw == "" {
		return args, nil
	}

	if strings.HasPrefix(raw, "{") {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return nil, fmt.Errorf("invalid JSON arguments: %w", err)
		}
		return args, nil
	}

	parts := splitTopLevel(raw)
	keyed := 0
	for _, p := range parts {
		if _, _, ok := splitKeyValue(p); ok {
			keyed++
		}
	}

	switch keyed {
	case len(parts):
		for _, p := range parts {
			k, v, _ := splitKeyValue(p)
			args[k] = parseValue(v, util.PropertyType(schema, k))
		}
		return args, nil
	case 0:
	default:
		return nil, fmt.Errorf("cannot mix positional and key=value arguments")
	}

	names := util.RequiredFields(schema)
	if len(names) == 0 {
		if props := util.PropertyNames(schema); len(props) == 1 {
			names = props
		}
	}
	if len(parts) > len(names) {
		return nil, fmt.Errorf("%d positional arguments for %d parameters", len(parts), len(names))
	}
	for i, p := range parts {
		args[names[i]] = parseValue(p, util.PropertyType(schema, names[i]))
	}
	return args, nil
}

func parseValue(raw, typ string) any {
	raw = strings.TrimSpace(raw)
	if typ == "string" {
		var s string
		if err := json.Unmarshal([]byte(raw), &s); err == nil {
			return s
		}
		return trimQuotes(raw)
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return trimQuotes(raw)
}

func trimQuotes(s string) string {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return s[1 : len(s)-1]
	}
	return s
}

func splitKeyValue(part string) (string, string, bool) {
	idx := strings.IndexByte(part, '=')
	if idx <= 0 {
		return "", "", false
	}
	key := strings.TrimSpace(part[:idx])
	if !isIdent(key) {
		return "", "", false
	}
	return key, part[idx+1:], true
}

// splitTopLevel splits on commas outside brackets and double quotes.
func splitTopLevel(s string) []string {
	var (
		parts []string
		depth int
		quote byte
		start int
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"':
			quote = c
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			depth--
		case c == ',' && depth == 0:
			parts = append(parts, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	return append(parts, strings.TrimSpace(s[start:]))
}

// matchParen returns the index of the parenthesis closing the one at open,
// or -1.
func matchParen(s string, open int) int {
	depth := 0
	var quote byte
	for i := open; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func isIdent(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentChar(s[i]) {
			return false
		}
	}
	return true
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
