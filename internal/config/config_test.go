package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/pdblister/internal/fetch"
)

// Test Plan for Config System:
// - Default() returns a valid configuration with the expected defaults
// - Load uses defaults when no config file exists
// - Load reads .pdblister/config.yml and .pdblister/config.yaml
// - a partial config file merges with defaults
// - environment variables override the config file and the defaults
// - Load returns an error for malformed YAML and for invalid values
// - Validate rejects each invalid field with its sentinel error
// - Validate reports multiple problems at once

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()

	root := t.TempDir()
	dir := filepath.Join(root, ".pdblister")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	return root
}

func TestDefault_ReturnsValidConfiguration(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "manifest", cfg.Manifest.Path)
	assert.Zero(t, cfg.Manifest.Workers)
	assert.Empty(t, cfg.Discovery.Include)
	assert.Empty(t, cfg.Download.Server)
	assert.Equal(t, fetch.MaxConcurrency, cfg.Download.Concurrency)
	assert.Equal(t, 5*time.Minute, cfg.Download.Timeout)
	assert.Equal(t, "filestore", cfg.Filestore.Path)
	assert.Equal(t, "info", cfg.Log.Level)

	assert.NoError(t, Validate(cfg))
}

func TestLoadConfig_UsesDefaultsWhenNoConfigFile(t *testing.T) {
	cfg, err := NewLoader(t.TempDir()).Load()
	require.NoError(t, err)

	expected := Default()
	assert.Equal(t, expected.Manifest, cfg.Manifest)
	assert.Equal(t, expected.Download, cfg.Download)
	assert.Equal(t, expected.Filestore, cfg.Filestore)
	assert.Equal(t, expected.Log, cfg.Log)
	assert.Empty(t, cfg.Discovery.Include)
	assert.Empty(t, cfg.Discovery.Ignore)
}

func TestLoadConfig_LoadsFromConfigYml(t *testing.T) {
	root := writeConfig(t, "config.yml", `
manifest:
  path: out/manifest.txt
  workers: 4

discovery:
  include:
    - "**/*.{exe,dll,sys}"
  ignore:
    - "winsxs/**"

download:
  server: SRV*c:\symbols*https://msdl.microsoft.com/download/symbols
  concurrency: 16
  timeout: 90s

filestore:
  path: store

log:
  level: debug
  pretty: false
`)

	cfg, err := NewLoader(root).Load()
	require.NoError(t, err)

	assert.Equal(t, "out/manifest.txt", cfg.Manifest.Path)
	assert.Equal(t, 4, cfg.Manifest.Workers)
	assert.Equal(t, []string{"**/*.{exe,dll,sys}"}, cfg.Discovery.Include)
	assert.Equal(t, []string{"winsxs/**"}, cfg.Discovery.Ignore)
	assert.Equal(t, `SRV*c:\symbols*https://msdl.microsoft.com/download/symbols`, cfg.Download.Server)
	assert.Equal(t, 16, cfg.Download.Concurrency)
	assert.Equal(t, 90*time.Second, cfg.Download.Timeout)
	assert.Equal(t, "store", cfg.Filestore.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Log.Pretty)
}

func TestLoadConfig_LoadsFromConfigYaml(t *testing.T) {
	root := writeConfig(t, "config.yaml", "manifest:\n  path: other\n")

	cfg, err := NewLoader(root).Load()
	require.NoError(t, err)
	assert.Equal(t, "other", cfg.Manifest.Path)
}

func TestLoadConfig_MergesConfigWithDefaults(t *testing.T) {
	root := writeConfig(t, "config.yml", "download:\n  concurrency: 8\n")

	cfg, err := NewLoader(root).Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Download.Concurrency)
	assert.Equal(t, fetch.DefaultTimeout, cfg.Download.Timeout)
	assert.Equal(t, "manifest", cfg.Manifest.Path)
}

func TestLoadConfig_EnvironmentVariablesOverrideConfigFile(t *testing.T) {
	root := writeConfig(t, "config.yml", "download:\n  concurrency: 8\nlog:\n  level: warn\n")

	t.Setenv("PDBLISTER_DOWNLOAD_CONCURRENCY", "32")
	t.Setenv("PDBLISTER_LOG_LEVEL", "debug")

	cfg, err := NewLoader(root).Load()
	require.NoError(t, err)

	assert.Equal(t, 32, cfg.Download.Concurrency)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfig_EnvironmentVariablesOverrideDefaults(t *testing.T) {
	t.Setenv("PDBLISTER_MANIFEST_PATH", "from-env")
	t.Setenv("PDBLISTER_DOWNLOAD_TIMEOUT", "30s")
	t.Setenv("PDBLISTER_DOWNLOAD_SERVER", "SRV*cache*http://localhost:1234")

	cfg, err := NewLoader(t.TempDir()).Load()
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Manifest.Path)
	assert.Equal(t, 30*time.Second, cfg.Download.Timeout)
	assert.Equal(t, "SRV*cache*http://localhost:1234", cfg.Download.Server)
}

func TestLoadConfig_ReturnsErrorForMalformedYaml(t *testing.T) {
	root := writeConfig(t, "config.yml", "manifest: [unclosed\n")

	_, err := NewLoader(root).Load()
	assert.Error(t, err)
}

func TestLoadConfig_ReturnsErrorForInvalidValues(t *testing.T) {
	root := writeConfig(t, "config.yml", "download:\n  concurrency: 100\n")

	_, err := NewLoader(root).Load()
	assert.ErrorIs(t, err, ErrInvalidConcurrency)
}

func TestValidate_RejectsInvalidFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"empty manifest path", func(c *Config) { c.Manifest.Path = " " }, ErrEmptyPath},
		{"negative workers", func(c *Config) { c.Manifest.Workers = -1 }, ErrInvalidWorkers},
		{"bad include", func(c *Config) { c.Discovery.Include = []string{"[abc"} }, ErrInvalidPattern},
		{"bad ignore", func(c *Config) { c.Discovery.Ignore = []string{"{a,b"} }, ErrInvalidPattern},
		{"multi server", func(c *Config) { c.Download.Server = "SRV*a*http://x;SRV*b*http://y" }, ErrInvalidServer},
		{"not srv", func(c *Config) { c.Download.Server = "c:\\symbols" }, ErrInvalidServer},
		{"zero concurrency", func(c *Config) { c.Download.Concurrency = 0 }, ErrInvalidConcurrency},
		{"too much concurrency", func(c *Config) { c.Download.Concurrency = fetch.MaxConcurrency + 1 }, ErrInvalidConcurrency},
		{"zero timeout", func(c *Config) { c.Download.Timeout = 0 }, ErrInvalidTimeout},
		{"empty filestore", func(c *Config) { c.Filestore.Path = "" }, ErrEmptyPath},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, ErrInvalidLogLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, Validate(cfg), tt.wantErr)
		})
	}
}

func TestValidate_ReturnsMultipleErrorsForMultipleInvalidFields(t *testing.T) {
	cfg := Default()
	cfg.Manifest.Workers = -2
	cfg.Download.Timeout = -time.Second
	cfg.Log.Level = "loud"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
	assert.Contains(t, err.Error(), "worker count")
	assert.Contains(t, err.Error(), "download timeout")
	assert.Contains(t, err.Error(), "log level")
}
