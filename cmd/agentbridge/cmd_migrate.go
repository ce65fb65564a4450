package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentbridge/config"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate <legacy-file>",
		Short: "Convert a legacy agent definition into an agents YAML section",
		Args:  cobra.ExactArgs(1),
		RunE:  runMigrate,
	}
	cmd.Flags().StringP("output", "o", "", "Write the YAML to a file instead of stdout")
	return cmd
}

func runMigrate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read legacy config: %w", err)
	}
	legacy, err := config.ParseLegacy(data)
	if err != nil {
		return err
	}
	m, err := config.MigrateLegacy(legacy)
	if err != nil {
		return err
	}
	out, err := config.MarshalAgents(m.Agent)
	if err != nil {
		return fmt.Errorf("render agents: %w", err)
	}

	if path, _ := cmd.Flags().GetString("output"); path != "" {
		if err := os.WriteFile(path, out, 0o644); err != nil {
			return fmt.Errorf("write agents: %w", err)
		}
	} else if _, err := cmd.OutOrStdout().Write(out); err != nil {
		return err
	}

	for _, key := range m.Unmapped {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: legacy key %q has no counterpart and was dropped\n", key)
	}
	return nil
}
