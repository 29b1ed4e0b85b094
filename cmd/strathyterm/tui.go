package main

import (
	"fmt"

	"strathyterm/internal/config"
	"strathyterm/internal/gmail"
	"strathyterm/internal/inbox"
	"strathyterm/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

func runTUI(_ *cobra.Command, f flags) error {
	a, err := setup(f, fileSink)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := tui.Options{
		Connect: a.connect,
		NewConsole: func(fd inbox.Feed) *inbox.Console {
			return a.newConsole(fd, nil)
		},
		LoginURL:     a.loginURL(),
		PollInterval: a.cfg.PollInterval,
		Logger:       a.log.With("component", "tui"),
	}
	if a.cfg.Provider == config.ProviderGmail {
		opts.Reauthorize = func() error { return gmail.ForgetToken(a.cfg.ConfigDir) }
	}

	m := tui.NewAppModel(opts)
	final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	if fm, ok := final.(*tui.AppModel); ok && fm.Err != nil {
		return fm.Err
	}
	return nil
}
