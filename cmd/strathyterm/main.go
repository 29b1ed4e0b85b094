// Package main is the strathyterm entry point: a terminal console for the
// student support inbox.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
	appName = "strathyterm"
)

type flags struct {
	configPath string
	logLevel   string
	noCache    bool
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Terminal console for the student support inbox",
		Long: `strathyterm polls unread student threads, shows them in a paginated
list and lets an operator escalate, block or reply to them.

Threads come from the inbox backend over HTTP (provider "http") or straight
from Gmail (provider "gmail").`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, f)
		},
	}

	cmd.PersistentFlags().StringVarP(&f.configPath, "config", "c", "", "config file path (YAML)")
	cmd.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&f.noCache, "no-cache", false, "do not read or write the thread cache")

	cmd.AddCommand(watchCmd(&f))
	cmd.AddCommand(configCmd(&f))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, Version)
		},
	})

	return cmd
}
