package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"strathyterm/internal/config"
	"strathyterm/internal/feed"
	"strathyterm/internal/gmail"
	"strathyterm/internal/inbox"
	"strathyterm/internal/logger"
	"strathyterm/internal/store"

	"github.com/dustin/go-humanize"
)

// app holds what both the TUI and the watcher need.
type app struct {
	cfg       *config.Config
	log       *slog.Logger
	logCloser io.Closer
	cache     *store.SQLiteStore
}

// setup loads configuration, opens the log sink and the cache. defaultSink
// is used when the config leaves log_sink empty.
func setup(f flags, defaultSink func(*config.Config) string) (*app, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.noCache {
		cfg.CachePath = ""
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	sink := cfg.LogSink
	if sink == "" {
		sink = defaultSink(cfg)
	}
	log, closer := logger.New(cfg.LogLevel, sink)

	a := &app{cfg: cfg, log: log, logCloser: closer}
	if cfg.CachePath != "" {
		cache, err := store.NewSQLiteStore(cfg.CachePath, log.With("component", "cache"))
		if err != nil {
			// Run without a cache rather than refuse to start.
			log.Warn("thread cache unavailable", "path", cfg.CachePath, "err", err)
		} else {
			a.cache = cache
			a.logCache()
		}
	}
	log.Info("starting", "version", Version, "provider", cfg.Provider)
	return a, nil
}

// logCache reports what the warm start will load.
func (a *app) logCache() {
	ctx := context.Background()
	n, err := a.cache.CountThreads(ctx)
	if err != nil {
		a.log.Warn("counting cached threads failed", "err", err)
		return
	}
	savedAt, ok, err := a.cache.SavedAt(ctx)
	if err != nil || !ok {
		a.log.Info("thread cache is empty", "path", a.cfg.CachePath)
		return
	}
	a.log.Info("thread cache found", "path", a.cfg.CachePath, "threads", n,
		"saved", humanize.Time(savedAt))
}

func fileSink(cfg *config.Config) string {
	return "file:" + filepath.Join(cfg.ConfigDir, appName+".log")
}

func stderrSink(*config.Config) string { return "stderr" }

func (a *app) Close() {
	if a.cache != nil {
		a.cache.Close()
	}
	a.logCloser.Close()
}

// connect builds the configured provider. For Gmail it may run the OAuth
// consent flow through prompt (nil uses the terminal).
func (a *app) connect(ctx context.Context, prompt *gmail.Prompt) (inbox.Feed, error) {
	switch a.cfg.Provider {
	case config.ProviderGmail:
		svc, err := gmail.NewService(ctx, a.cfg.ConfigDir, prompt)
		if err != nil {
			return nil, fmt.Errorf("gmail auth: %w", err)
		}
		return gmail.NewProvider(svc, gmail.Options{
			AssistantAddress: a.cfg.AssistantAddress,
			RequestRate:      a.cfg.RequestRate,
			Logger:           a.log.With("component", "gmail"),
		}), nil
	default:
		return a.httpFeed()
	}
}

func (a *app) httpFeed() (*feed.Client, error) {
	return feed.New(a.cfg.FeedURL,
		feed.WithRateLimit(a.cfg.RequestRate, 4),
		feed.WithLogger(a.log.With("component", "feed")),
	)
}

// loginURL is the backend sign-in page, or "" for Gmail where an expired
// session is handled by re-running the consent flow.
func (a *app) loginURL() string {
	if a.cfg.Provider != config.ProviderHTTP {
		return ""
	}
	c, err := a.httpFeed()
	if err != nil {
		return ""
	}
	return c.LoginURL()
}

func (a *app) newConsole(f inbox.Feed, onChange func(inbox.State)) *inbox.Console {
	opts := inbox.Options{
		Policy: inbox.SendPolicy{
			DomainSuffix: a.cfg.DomainSuffix,
			Blocklist:    a.cfg.Blocklist,
		},
		EvictAfter: a.cfg.EvictAfterPolls,
		PageSize:   a.cfg.PageSize,
		Logger:     a.log.With("component", "inbox"),
		OnChange:   onChange,
	}
	// A nil *SQLiteStore must not become a non-nil interface.
	if a.cache != nil {
		opts.Cache = a.cache
	}
	return inbox.NewConsole(f, opts)
}
