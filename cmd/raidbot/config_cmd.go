// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/galdahar56/raid-logger-bot-2/internal/config"
	"github.com/galdahar56/raid-logger-bot-2/internal/version"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(newConfigValidateCmd(opts), newConfigDumpCmd(opts))
	return cmd
}

func newConfigValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration without connecting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := config.NewLoader(opts.configPath, version.Resolved()).Load(); err != nil {
				return err
			}
			source := opts.configPath
			if source == "" {
				source = "environment"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is valid\n", source)
			return nil
		},
	}
}

func newConfigDumpCmd(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.NewLoader(opts.configPath, version.Resolved()).Load()
			if err != nil {
				return err
			}
			fc := cfg.Redacted().FileConfig()

			out, err := yaml.Marshal(fc)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			switch format {
			case "yaml":
			case "json":
				if out, err = yamlToJSON(out); err != nil {
					return fmt.Errorf("encode config: %w", err)
				}
			default:
				return fmt.Errorf("unknown format %q (want yaml or json)", format)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "output format: yaml or json")
	return cmd
}

// yamlToJSON re-encodes a YAML document so JSON output keeps the YAML keys.
func yamlToJSON(in []byte) ([]byte, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(in, &doc); err != nil {
		return nil, err
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}
