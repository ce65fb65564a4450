package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentbridge"
	"github.com/hupe1980/agentbridge/engine"
)

const testConfig = `
log:
  backend: none
agents:
  - name: helper
  - name: calc
    kind: dialogue
    tools: [add]
`

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRunCmd(t *testing.T) {
	cfg := writeFile(t, "agentbridge.yaml", testConfig)

	out, _, err := execute(t, "run", "-c", cfg, "calc", "add(2,", "3)")
	require.NoError(t, err)
	assert.Contains(t, out, "[calc]: ")
	assert.Contains(t, out, "Tool add returned: 5")

	out, _, err = execute(t, "run", "-c", cfg, "--raw", "helper", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, engine.ReflectionMarker)

	_, _, err = execute(t, "run", "-c", cfg, "nobody", "hi")
	assert.ErrorIs(t, err, agentbridge.ErrUnknownAgent)

	_, _, err = execute(t, "run", "-c", cfg, "helper")
	assert.Error(t, err, "a message is required")
}

func TestMigrateCmd(t *testing.T) {
	legacy := writeFile(t, "legacy.json", `{
		"name": "support",
		"tools": ["add"],
		"max_iterations": 4,
		"verbose": true
	}`)

	out, stderr, err := execute(t, "migrate", legacy)
	require.NoError(t, err)

	var doc struct {
		Agents []struct {
			Name           string   `yaml:"name"`
			Tools          []string `yaml:"tools"`
			MaxChainLength int      `yaml:"max_chain_length"`
		} `yaml:"agents"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	require.Len(t, doc.Agents, 1)
	assert.Equal(t, "support", doc.Agents[0].Name)
	assert.Equal(t, []string{"add"}, doc.Agents[0].Tools)
	assert.Equal(t, 4, doc.Agents[0].MaxChainLength)
	assert.Contains(t, stderr, `legacy key "verbose"`)

	target := filepath.Join(t.TempDir(), "agents.yaml")
	_, _, err = execute(t, "migrate", legacy, "-o", target)
	require.NoError(t, err)
	written, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, out, string(written))

	_, _, err = execute(t, "migrate", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestVerifyCmd(t *testing.T) {
	cfg := writeFile(t, "agentbridge.yaml", testConfig)
	report := filepath.Join(t.TempDir(), "report.yaml")

	_, stderr, err := execute(t, "verify", "-c", cfg, "--format", "yaml", "--output", report, "--concurrency", "2")
	require.NoError(t, err, stderr)

	data, err := os.ReadFile(report)
	require.NoError(t, err)
	var got struct {
		Summary struct {
			Total  int `yaml:"total"`
			Failed int `yaml:"failed"`
		} `yaml:"summary"`
	}
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Positive(t, got.Summary.Total)
	assert.Zero(t, got.Summary.Failed)
	assert.Contains(t, stderr, "scenarios passed")

	_, _, err = execute(t, "verify", "-c", cfg, "--format", "xml")
	assert.ErrorContains(t, err, `unknown format "xml"`)
}

func TestVerifyCmd_Cases(t *testing.T) {
	cfg := writeFile(t, "agentbridge.yaml", testConfig)
	cases := writeFile(t, "cases.yaml", `
- agent: calc
  input: add(4, 4)
  expected: "Tool add returned: 8"
- input: hello
  expected: never in the output
`)

	out, stderr, err := execute(t, "verify", "-c", cfg, "--cases", cases)
	assert.ErrorIs(t, err, errSilent)
	assert.Contains(t, stderr, "1/2 cases passed")

	var suite struct {
		Total   int `json:"total_tests"`
		Passed  int `json:"passed"`
		Details []struct {
			Status string `json:"status"`
		} `json:"details"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &suite))
	assert.Equal(t, 2, suite.Total)
	assert.Equal(t, 1, suite.Passed)
	require.Len(t, suite.Details, 2)
	assert.Equal(t, "passed", suite.Details[0].Status)
	assert.Equal(t, "failed", suite.Details[1].Status)
}
