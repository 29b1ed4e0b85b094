package main

import (
	"errors"
	"fmt"
	"os"

	"strathyterm/internal/config"

	"github.com/spf13/cobra"
)

func configCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to the config file",
		Long: `init writes the configuration strathyterm would run with (defaults,
.env and STRATHYTERM_* variables applied) to --config, or to the default
location. An existing file is kept unless --force is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := writeConfig(f.configPath, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	cmd.AddCommand(initCmd, &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Run: func(cmd *cobra.Command, args []string) {
			path := f.configPath
			if path == "" {
				path = config.DefaultPath()
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
		},
	})
	return cmd
}

func writeConfig(path string, force bool) (string, error) {
	if path == "" {
		path = config.DefaultPath()
	}
	if _, err := os.Stat(path); err == nil && !force {
		return "", fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("stat config file: %w", err)
	}

	// Start from what would be loaded without the file itself.
	cfg, err := config.Load("")
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Save(path); err != nil {
		return "", err
	}
	return path, nil
}
