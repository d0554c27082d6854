package main

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	workspace  string
	headless   bool
	retries    int
	verbose    bool
}

// newRootCmd creates the root command with all subcommands attached.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "hubspoke",
		Short:         "Agent-driven content hub pipeline",
		Long:          "hubspoke plans a hub with an architect, lays out its sections with an assembler,\nwrites them with writers and restyles them with a persona. Review feedback is\nlogged per agent and later folded into the agent's truths by evolve.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := cmd.PersistentFlags()
	f.StringVarP(&opts.configPath, "config", "c", "config.json", "path to config.json")
	f.StringVarP(&opts.workspace, "workspace", "w", "", "workspace root (overrides config.workspace)")
	f.BoolVar(&opts.headless, "headless", false, "accept every response without review")
	f.IntVar(&opts.retries, "retries", 2, "retries per agent after a failed generation")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logs")

	cmd.AddCommand(
		newHubCmd(opts),
		newAgentsCmd(opts),
		newFeedbackCmd(opts),
		newEvolveCmd(opts),
		newServeCmd(opts),
	)
	return cmd
}
