package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentbridge"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <agent> <message...>",
		Short: "Send a message to a configured agent",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runAgent,
	}
	cmd.Flags().Bool("raw", false, "Run the adapter directly, bypassing the agent facade")
	return cmd
}

func runAgent(cmd *cobra.Command, args []string) error {
	raw, _ := cmd.Flags().GetBool("raw")

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

	if err := b.LoadAgents(); err != nil {
		return err
	}

	name, message := args[0], strings.Join(args[1:], " ")
	var out string
	if raw {
		out, err = b.Run(cmd.Context(), name, message)
	} else {
		out, err = b.Send(cmd.Context(), name, message)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}
