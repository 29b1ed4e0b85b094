// Package config loads strathyterm settings. Precedence, lowest first:
// built-in defaults, the YAML config file, a .env file in the working
// directory, then STRATHYTERM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderHTTP  = "http"
	ProviderGmail = "gmail"

	envPrefix = "STRATHYTERM_"
)

// Config is the complete application configuration.
type Config struct {
	// Provider selects the thread source: the inbox backend over HTTP, or
	// Gmail directly.
	Provider string `yaml:"provider"`
	// FeedURL is the inbox backend base URL (http provider).
	FeedURL string `yaml:"feed_url"`
	// ConfigDir holds OAuth credentials, the token, the cache and the log.
	ConfigDir string `yaml:"config_dir"`
	// CachePath is the SQLite snapshot cache. Empty disables caching.
	CachePath string `yaml:"cache_path"`

	PollInterval time.Duration `yaml:"poll_interval"`
	PageSize     int           `yaml:"page_size"`

	DomainSuffix string   `yaml:"domain_suffix"`
	Blocklist    []string `yaml:"blocklist"`
	// EvictAfterPolls drops threads missing from this many consecutive
	// polls. Zero keeps them.
	EvictAfterPolls int `yaml:"evict_after_polls"`

	// AssistantAddress is the mailbox the automated assistant replies from
	// (gmail provider).
	AssistantAddress string `yaml:"assistant_address"`
	// RequestRate caps provider requests per second.
	RequestRate float64 `yaml:"request_rate"`

	LogLevel string `yaml:"log_level"`
	// LogSink is "stderr" or "file:<path>". Empty picks a per-mode default.
	LogSink string `yaml:"log_sink"`
}

// Default returns the built-in configuration.
func Default() *Config {
	dir := defaultConfigDir()
	return &Config{
		Provider:     ProviderHTTP,
		FeedURL:      "http://localhost:8000",
		ConfigDir:    dir,
		CachePath:    filepath.Join(dir, "strathyterm.db"),
		PollInterval: 20 * time.Second,
		PageSize:     50,
		DomainSuffix: "@strathmore.edu",
		Blocklist: []string{
			"strathmorecommunication@gmail.com",
			"allstudents@strathmore.edu",
			"allstaff@strathmore.edu",
		},
		RequestRate: 2,
		LogLevel:    "info",
	}
}

func defaultConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "strathyterm")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "strathyterm")
}

// DefaultPath is where Load looks when no path is given.
func DefaultPath() string {
	return filepath.Join(defaultConfigDir(), "config.yaml")
}

// Load builds the configuration from path (DefaultPath when empty), .env and
// the environment. A missing config file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	defaultDir, defaultCache := cfg.ConfigDir, cfg.CachePath

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// .env never overrides variables already set in the environment.
	_ = godotenv.Load(".env")

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}
	// The cache follows a relocated config dir unless set on its own.
	if cfg.CachePath == defaultCache && cfg.ConfigDir != defaultDir {
		cfg.CachePath = filepath.Join(cfg.ConfigDir, "strathyterm.db")
	}
	cfg.expand()
	return cfg, nil
}

func (c *Config) loadFromEnv() error {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	str("PROVIDER", &c.Provider)
	str("FEED_URL", &c.FeedURL)
	str("CONFIG_DIR", &c.ConfigDir)
	str("CACHE_PATH", &c.CachePath)
	str("DOMAIN_SUFFIX", &c.DomainSuffix)
	str("ASSISTANT_ADDRESS", &c.AssistantAddress)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_SINK", &c.LogSink)

	if v, ok := os.LookupEnv(envPrefix + "BLOCKLIST"); ok {
		c.Blocklist = splitList(v)
	}
	if v, ok := os.LookupEnv(envPrefix + "POLL_INTERVAL"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sPOLL_INTERVAL: %w", envPrefix, err)
		}
		c.PollInterval = d
	}
	for name, dst := range map[string]*int{
		"PAGE_SIZE":         &c.PageSize,
		"EVICT_AFTER_POLLS": &c.EvictAfterPolls,
	} {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, name, err)
			}
			*dst = n
		}
	}
	if v, ok := os.LookupEnv(envPrefix + "REQUEST_RATE"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%sREQUEST_RATE: %w", envPrefix, err)
		}
		c.RequestRate = f
	}
	return nil
}

// expand resolves a leading "~/" in path settings.
func (c *Config) expand() {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	for _, p := range []*string{&c.ConfigDir, &c.CachePath} {
		if strings.HasPrefix(*p, "~/") {
			*p = filepath.Join(home, (*p)[2:])
		}
	}
	if strings.HasPrefix(c.LogSink, "file:~/") {
		c.LogSink = "file:" + filepath.Join(home, c.LogSink[len("file:~/"):])
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderHTTP:
		if c.FeedURL == "" {
			return errors.New("feed_url is required for the http provider")
		}
	case ProviderGmail:
	default:
		return fmt.Errorf("unknown provider %q (want %q or %q)", c.Provider, ProviderHTTP, ProviderGmail)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive, got %d", c.PageSize)
	}
	if c.EvictAfterPolls < 0 {
		return fmt.Errorf("evict_after_polls must not be negative, got %d", c.EvictAfterPolls)
	}
	if !strings.HasPrefix(c.DomainSuffix, "@") {
		return fmt.Errorf("domain_suffix must start with @, got %q", c.DomainSuffix)
	}
	return nil
}

// Save writes the configuration as YAML, creating the directory if needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
