package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/galdahar56/raid-logger-bot-2/internal/config"
	"github.com/galdahar56/raid-logger-bot-2/internal/version"
)

// configEnvKey names the config file when --config is not given.
const configEnvKey = config.EnvPrefix + "CONFIG"

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "raidbot",
		Short: "Raid signup coordinator",
		Long: `raidbot turns run announcements into role signups, mirrors every
signup into the schedule spreadsheet and announces each group once all of
its roles are filled.`,
		Version:      version.Resolved(),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c",
		config.ParseString(configEnvKey, ""), "path to YAML config file (env "+configEnvKey+")")

	cmd.AddCommand(newServeCmd(opts), newVersionCmd(), newConfigCmd(opts))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
