// Command agentbridge verifies, migrates and drives agents configured for
// the adapter layer.
//
//	agentbridge verify [--format json|yaml] [--output report.json]
//	agentbridge migrate legacy.json [--output agents.yaml]
//	agentbridge run <agent> <message...>
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentbridge/config"
	"github.com/hupe1980/agentbridge/logging"
)

// errSilent marks failures that were already reported to the user.
var errSilent = errors.New("silent")

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "agentbridge",
		Short:         "Agent backend adapter layer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringP("config", "c", "", "Path to the YAML configuration file")
	cmd.AddCommand(
		newVerifyCmd(),
		newMigrateCmd(),
		newRunCmd(),
	)
	return cmd
}

// loadConfig reads the --config file with environment overrides. Logs go to
// the command's error stream.
func loadConfig(cmd *cobra.Command) (*config.Config, logging.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	cfg.Log.Output = cmd.ErrOrStderr()
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errSilent) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
