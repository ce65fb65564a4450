package harness

import (
	"encoding/json"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// Result is the outcome of one scenario.
type Result struct {
	Name     string        `json:"name" yaml:"name"`
	Category string        `json:"category" yaml:"category"`
	Passed   bool          `json:"passed" yaml:"passed"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`
	Duration time.Duration `json:"duration_ns" yaml:"duration"`
}

// CategorySummary totals the scenarios of one category.
type CategorySummary struct {
	Name   string `json:"name" yaml:"name"`
	Total  int    `json:"total" yaml:"total"`
	Passed int    `json:"passed" yaml:"passed"`
	Failed int    `json:"failed" yaml:"failed"`
}

// Summary totals the whole run.
type Summary struct {
	Total  int `json:"total" yaml:"total"`
	Passed int `json:"passed" yaml:"passed"`
	Failed int `json:"failed" yaml:"failed"`
	// SuccessRate is Passed/Total as a percentage, 0 for an empty run.
	SuccessRate float64       `json:"success_rate" yaml:"success_rate"`
	Duration    time.Duration `json:"duration_ns" yaml:"duration"`
}

// Report is the results artifact of a harness run.
type Report struct {
	StartedAt  time.Time         `json:"started_at" yaml:"started_at"`
	Results    []Result          `json:"results" yaml:"results"`
	Categories []CategorySummary `json:"categories" yaml:"categories"`
	Summary    Summary           `json:"summary" yaml:"summary"`
}

func newReport(start time.Time, results []Result) *Report {
	r := &Report{StartedAt: start.UTC(), Results: results}

	index := map[string]int{}
	for _, res := range results {
		i, ok := index[res.Category]
		if !ok {
			i = len(r.Categories)
			index[res.Category] = i
			r.Categories = append(r.Categories, CategorySummary{Name: res.Category})
		}
		r.Categories[i].Total++
		r.Summary.Total++
		if res.Passed {
			r.Categories[i].Passed++
			r.Summary.Passed++
		} else {
			r.Categories[i].Failed++
			r.Summary.Failed++
		}
	}
	if r.Summary.Total > 0 {
		r.Summary.SuccessRate = float64(r.Summary.Passed) / float64(r.Summary.Total) * 100
	}
	r.Summary.Duration = time.Since(start)
	return r
}

// Passed reports whether every scenario passed.
func (r *Report) Passed() bool {
	return r.Summary.Failed == 0
}

// Failures returns the failed results in run order.
func (r *Report) Failures() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.Passed {
			out = append(out, res)
		}
	}
	return out
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteYAML writes the report as YAML.
func (r *Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}
