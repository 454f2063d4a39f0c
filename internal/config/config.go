// Package config loads pdblister settings from .pdblister/config.yml and
// PDBLISTER_* environment variables.
package config

import (
	"time"

	"github.com/mvp-joe/pdblister/internal/fetch"
)

// Config represents the complete pdblister configuration.
type Config struct {
	Manifest  ManifestConfig  `yaml:"manifest" mapstructure:"manifest"`
	Discovery DiscoveryConfig `yaml:"discovery" mapstructure:"discovery"`
	Download  DownloadConfig  `yaml:"download" mapstructure:"download"`
	Filestore FilestoreConfig `yaml:"filestore" mapstructure:"filestore"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// ManifestConfig configures manifest generation.
type ManifestConfig struct {
	Path    string `yaml:"path" mapstructure:"path"`       // manifest file written and read
	Workers int    `yaml:"workers" mapstructure:"workers"` // parser goroutines, 0 means one per CPU
}

// DiscoveryConfig defines which files under the scanned directory are parsed.
type DiscoveryConfig struct {
	Include []string `yaml:"include" mapstructure:"include"` // glob patterns, empty means every file
	Ignore  []string `yaml:"ignore" mapstructure:"ignore"`   // glob patterns to skip
}

// DownloadConfig configures the symbol fetcher.
type DownloadConfig struct {
	Server      string        `yaml:"server" mapstructure:"server"` // SRV*<cache>*<url>
	Concurrency int           `yaml:"concurrency" mapstructure:"concurrency"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"` // per download
}

// FilestoreConfig configures the binary store.
type FilestoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// LogConfig configures diagnostics.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Pretty bool   `yaml:"pretty" mapstructure:"pretty"`
}

// DefaultSymbolCache is the cache directory clean removes when no server is
// configured.
const DefaultSymbolCache = "symbols"

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Manifest: ManifestConfig{
			Path:    "manifest",
			Workers: 0,
		},
		Discovery: DiscoveryConfig{
			Include: []string{},
			Ignore:  []string{},
		},
		Download: DownloadConfig{
			Server:      "",
			Concurrency: fetch.MaxConcurrency,
			Timeout:     fetch.DefaultTimeout,
		},
		Filestore: FilestoreConfig{
			Path: "filestore",
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}
