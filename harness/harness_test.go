package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestCatalogue_Layout(t *testing.T) {
	scenarios := Catalogue()

	var order []string
	names := map[string]bool{}
	perCategory := map[string]int{}
	for _, sc := range scenarios {
		require.NotNil(t, sc.Run, sc.Name)
		assert.False(t, names[sc.Name], "duplicate scenario %q", sc.Name)
		names[sc.Name] = true

		if len(order) == 0 || order[len(order)-1] != sc.Category {
			order = append(order, sc.Category)
		}
		perCategory[sc.Category]++
	}

	assert.Equal(t, Categories(), order, "categories appear once each, in report order")
	for _, c := range Categories() {
		assert.GreaterOrEqual(t, perCategory[c], 3, c)
	}
}

func TestHarness_CatalogueAllPass(t *testing.T) {
	report := New().Run(context.Background())

	for _, f := range report.Failures() {
		t.Errorf("%s / %s: %s", f.Category, f.Name, f.Error)
	}
	assert.True(t, report.Passed())
	assert.Equal(t, len(Catalogue()), report.Summary.Total)
	assert.Equal(t, 100.0, report.Summary.SuccessRate)

	require.Len(t, report.Categories, len(Categories()))
	for i, c := range report.Categories {
		assert.Equal(t, Categories()[i], c.Name)
		assert.Equal(t, c.Total, c.Passed)
	}
}

func TestHarness_FailuresAndPanics(t *testing.T) {
	h := New(func(o *Options) {
		o.Concurrency = 2
		o.Scenarios = []Scenario{
			{Name: "ok", Category: "A", Run: func(context.Context, *Env) error { return nil }},
			{Name: "fails", Category: "A", Run: func(context.Context, *Env) error { return errors.New("nope") }},
			{Name: "panics", Category: "B", Run: func(context.Context, *Env) error { panic("boom") }},
		}
	})

	report := h.Run(context.Background())

	assert.False(t, report.Passed())
	assert.Equal(t, 3, report.Summary.Total)
	assert.Equal(t, 1, report.Summary.Passed)
	assert.Equal(t, 2, report.Summary.Failed)
	assert.InDelta(t, 33.33, report.Summary.SuccessRate, 0.01)

	assert.Equal(t, []CategorySummary{
		{Name: "A", Total: 2, Passed: 1, Failed: 1},
		{Name: "B", Total: 1, Passed: 0, Failed: 1},
	}, report.Categories)

	require.Len(t, report.Results, 3)
	assert.Equal(t, "ok", report.Results[0].Name, "results keep catalogue order")
	assert.Equal(t, "nope", report.Results[1].Error)
	assert.Equal(t, "panic: boom", report.Results[2].Error)
}

func TestHarness_ScenarioTimeout(t *testing.T) {
	h := New(func(o *Options) {
		o.ScenarioTimeout = 10 * time.Millisecond
		o.Scenarios = []Scenario{{
			Name:     "waits",
			Category: "A",
			Run: func(ctx context.Context, _ *Env) error {
				<-ctx.Done()
				return ctx.Err()
			},
		}}
	})

	report := h.Run(context.Background())
	require.Len(t, report.Results, 1)
	assert.False(t, report.Results[0].Passed)
	assert.Equal(t, context.DeadlineExceeded.Error(), report.Results[0].Error)
}

func TestHarness_EmptyRun(t *testing.T) {
	report := New(func(o *Options) { o.Scenarios = []Scenario{} }).Run(context.Background())
	assert.True(t, report.Passed())
	assert.Zero(t, report.Summary.Total)
	assert.Zero(t, report.Summary.SuccessRate)
}

func TestReport_Write(t *testing.T) {
	report := New(func(o *Options) {
		o.Scenarios = []Scenario{
			{Name: "ok", Category: "A", Run: func(context.Context, *Env) error { return nil }},
		}
	}).Run(context.Background())

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, report.WriteJSON(&buf))

		var got map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		summary := got["summary"].(map[string]any)
		assert.Equal(t, 1.0, summary["total"])
		assert.Equal(t, 100.0, summary["success_rate"])
		assert.Len(t, got["results"], 1)
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, report.WriteYAML(&buf))

		var got struct {
			Summary struct {
				Total  int `yaml:"total"`
				Passed int `yaml:"passed"`
			} `yaml:"summary"`
			Categories []struct {
				Name string `yaml:"name"`
			} `yaml:"categories"`
		}
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, 1, got.Summary.Total)
		assert.Equal(t, 1, got.Summary.Passed)
		require.Len(t, got.Categories, 1)
		assert.Equal(t, "A", got.Categories[0].Name)
	})
}
