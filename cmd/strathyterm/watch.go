package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"strathyterm/internal/inbox"
	"strathyterm/internal/model"

	"github.com/spf13/cobra"
)

func watchCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Poll the inbox without a UI and log thread changes",
		Long: `watch runs the same poll loop as the console and logs new threads,
status changes and automated replies until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(*f)
		},
	}
}

func runWatch(f flags) error {
	a, err := setup(f, stderrSink)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fd, err := a.connect(ctx, nil)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	c := a.newConsole(fd, changeLogger(a.log))
	defer c.Close()
	c.WarmStart(ctx)

	a.log.Info("watching", "interval", a.cfg.PollInterval)
	c.Run(ctx, a.cfg.PollInterval)
	a.log.Info("stopped")
	return nil
}

// changeLogger returns an OnChange hook that logs the difference between
// successive states.
func changeLogger(log *slog.Logger) func(inbox.State) {
	var (
		mu      sync.Mutex
		seen    = map[string]model.Thread{}
		lastErr string
	)
	return func(st inbox.State) {
		mu.Lock()
		defer mu.Unlock()

		if st.LastError != lastErr {
			if st.LastError != "" {
				log.Warn("refresh failed", "err", st.LastError, "auth_required", st.AuthRequired)
			}
			lastErr = st.LastError
		}

		next := make(map[string]model.Thread, len(st.Threads))
		for _, t := range st.Threads {
			next[t.ID] = t
			prev, ok := seen[t.ID]
			if !ok {
				log.Info("new thread", "thread_id", t.ID, "from", t.StudentEmail, "subject", t.Subject)
				continue
			}
			if prev.Status != t.Status {
				log.Info("status changed", "thread_id", t.ID, "from", prev.Status, "to", t.Status)
			}
			if prev.AIReply != t.AIReply && t.AIReply != "" {
				log.Info("automated reply", "thread_id", t.ID, "at", t.AIRepliedAt)
			}
		}
		for id := range seen {
			if _, ok := next[id]; !ok {
				log.Info("thread evicted", "thread_id", id)
			}
		}
		seen = next
	}
}
