package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentbridge"
	"github.com/hupe1980/agentbridge/core"
	"github.com/hupe1980/agentbridge/engine"
	"github.com/hupe1980/agentbridge/harness"
)

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Run the verification scenarios and write a report",
		Long: "Runs the built-in scenario catalogue (or the cases of --cases) against the configured\n" +
			"backend and writes the results. Exits non-zero when anything fails.",
		Args: cobra.NoArgs,
		RunE: runVerify,
	}
	cmd.Flags().StringP("format", "f", "json", "Report format: json or yaml")
	cmd.Flags().StringP("output", "o", "", "Write the report to a file instead of stdout")
	cmd.Flags().Int("concurrency", harness.DefaultConcurrency, "Scenarios run at once")
	cmd.Flags().String("cases", "", "YAML file of {agent, input, expected} cases to run instead of the catalogue")
	return cmd
}

func runVerify(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("format")
	if format != "json" && format != "yaml" {
		return fmt.Errorf("unknown format %q", format)
	}
	output, _ := cmd.Flags().GetString("output")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	casesPath, _ := cmd.Flags().GetString("cases")

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	b, err := agentbridge.New(func(o *agentbridge.Options) {
		o.Config = cfg
		o.Logger = logger
	})
	if err != nil {
		return err
	}
	defer b.Close()

	reasoner, err := b.Reasoner(cfg.Engine.Backend, cfg.Engine.Model)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		defer f.Close()
		w = f
	}

	if casesPath != "" {
		return verifyCases(cmd, w, format, casesPath, reasoner, b)
	}

	report := harness.New(func(o *harness.Options) {
		o.Concurrency = concurrency
		o.Logger = logger
		o.NewReasoner = func() core.Reasoner { return reasoner }
	}).Run(cmd.Context())

	if format == "yaml" {
		err = report.WriteYAML(w)
	} else {
		err = report.WriteJSON(w)
	}
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	s := report.Summary
	fmt.Fprintf(cmd.ErrOrStderr(), "%d/%d scenarios passed (%.1f%%) in %s\n", s.Passed, s.Total, s.SuccessRate, s.Duration)
	if !report.Passed() {
		for _, f := range report.Failures() {
			fmt.Fprintf(cmd.ErrOrStderr(), "FAIL %s / %s: %s\n", f.Category, f.Name, f.Error)
		}
		return errSilent
	}
	return nil
}

func verifyCases(cmd *cobra.Command, w io.Writer, format, path string, reasoner core.Reasoner, b *agentbridge.Bridge) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open cases: %w", err)
	}
	defer f.Close()

	cases, err := harness.LoadCases(f)
	if err != nil {
		return err
	}

	ti := harness.NewTestInterface(func(o *engine.AdapterOptions) {
		o.Reasoner = reasoner
		o.Logger = b.Logger()
	})
	for _, def := range b.Config().Agents {
		cfg := engine.DefaultConfig(def.Name)
		tools, err := b.Catalog().Resolve(def.Tools...)
		if err != nil {
			return err
		}
		cfg.Tools = tools
		if def.SystemPrompt != "" {
			cfg.SystemPrompt = def.SystemPrompt
		}
		if _, err := ti.CreateTestAgent(def.Name, cfg); err != nil {
			return err
		}
	}

	suite := ti.RunTestSuite(cmd.Context(), cases)
	if err := encode(w, format, suite); err != nil {
		return fmt.Errorf("write results: %w", err)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "%d/%d cases passed\n", suite.Passed, suite.Total)
	if suite.Failed > 0 {
		return errSilent
	}
	return nil
}

func encode(w io.Writer, format string, v any) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
