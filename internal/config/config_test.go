package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test in an empty directory with a private config home so
// no real .env or config file leaks in.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, ".config"))
	for _, name := range []string{
		"PROVIDER", "FEED_URL", "CONFIG_DIR", "CACHE_PATH", "POLL_INTERVAL", "PAGE_SIZE",
		"DOMAIN_SUFFIX", "BLOCKLIST", "EVICT_AFTER_POLLS", "ASSISTANT_ADDRESS",
		"REQUEST_RATE", "LOG_LEVEL", "LOG_SINK",
	} {
		t.Setenv(envPrefix+name, "")
		os.Unsetenv(envPrefix + name)
	}
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ProviderHTTP, cfg.Provider)
	assert.Equal(t, "http://localhost:8000", cfg.FeedURL)
	assert.Equal(t, 20*time.Second, cfg.PollInterval)
	assert.Equal(t, 50, cfg.PageSize)
	assert.Equal(t, "@strathmore.edu", cfg.DomainSuffix)
	assert.Len(t, cfg.Blocklist, 3)
	assert.Zero(t, cfg.EvictAfterPolls)
	assert.Equal(t, filepath.Join(cfg.ConfigDir, "strathyterm.db"), cfg.CachePath)
}

func TestLoadPrecedence(t *testing.T) {
	dir := isolate(t)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
provider: gmail
poll_interval: 45s
page_size: 25
config_dir: `+filepath.Join(dir, "conf")+`
blocklist:
  - news@strathmore.edu
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("STRATHYTERM_PAGE_SIZE=30\nSTRATHYTERM_LOG_LEVEL=debug\n"), 0o644))
	t.Setenv("STRATHYTERM_PAGE_SIZE", "40")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ProviderGmail, cfg.Provider)
	assert.Equal(t, 45*time.Second, cfg.PollInterval)
	assert.Equal(t, 40, cfg.PageSize, "environment beats .env and file")
	assert.Equal(t, "debug", cfg.LogLevel, ".env beats defaults")
	assert.Equal(t, []string{"news@strathmore.edu"}, cfg.Blocklist)
	assert.Equal(t, filepath.Join(dir, "conf", "strathyterm.db"), cfg.CachePath)
}

func TestLoadEnvLists(t *testing.T) {
	isolate(t)
	t.Setenv("STRATHYTERM_BLOCKLIST", " a@strathmore.edu, ,b@strathmore.edu ")
	t.Setenv("STRATHYTERM_CACHE_PATH", "")
	t.Setenv("STRATHYTERM_REQUEST_RATE", "0.5")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"a@strathmore.edu", "b@strathmore.edu"}, cfg.Blocklist)
	assert.Empty(t, cfg.CachePath, "empty cache path disables the cache")
	assert.Equal(t, 0.5, cfg.RequestRate)
}

func TestLoadErrors(t *testing.T) {
	dir := isolate(t)

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err, "an explicit path must exist")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("page_size: [oops"), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)

	t.Setenv("STRATHYTERM_POLL_INTERVAL", "soon")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.Provider = "imap" }},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }},
		{"negative page size", func(c *Config) { c.PageSize = -1 }},
		{"negative eviction", func(c *Config) { c.EvictAfterPolls = -2 }},
		{"suffix without at", func(c *Config) { c.DomainSuffix = "strathmore.edu" }},
		{"http without url", func(c *Config) { c.FeedURL = "" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := Default()
	cfg.Provider = ProviderGmail
	cfg.AssistantAddress = "desk@strathmore.edu"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ProviderGmail, loaded.Provider)
	assert.Equal(t, "desk@strathmore.edu", loaded.AssistantAddress)
	assert.Equal(t, cfg.PollInterval, loaded.PollInterval)
}
