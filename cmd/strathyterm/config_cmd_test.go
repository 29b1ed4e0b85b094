package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"strathyterm/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigInit(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, ".config"))
	t.Setenv("STRATHYTERM_PROVIDER", "gmail")
	path := filepath.Join(dir, "conf", "config.yaml")

	var out bytes.Buffer
	root := rootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"config", "init", "--config", path})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), path)

	os.Unsetenv("STRATHYTERM_PROVIDER")
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.ProviderGmail, cfg.Provider, "environment overrides are written out")

	_, err = writeConfig(path, false)
	assert.Error(t, err, "an existing file is kept")
	_, err = writeConfig(path, true)
	assert.NoError(t, err)
}
