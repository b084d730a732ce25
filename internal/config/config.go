// Package config loads the server configuration file. Flags on the CLI
// override anything set here; the file is optional and every field has a
// working default.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/FocuswithJustin/PaathGuide/core/errors"
)

// Config is the top-level configuration.
type Config struct {
	Server   Server   `yaml:"server"`
	Database Database `yaml:"database"`
	Search   Search   `yaml:"search"`
	Log      Log      `yaml:"log"`
}

// Server configures the HTTP API.
type Server struct {
	Port           int       `yaml:"port"`
	AllowedOrigins []string  `yaml:"allowed_origins"`
	RateLimit      RateLimit `yaml:"rate_limit"`
	Auth           Auth      `yaml:"auth"`
	TLS            TLS       `yaml:"tls"`
}

// RateLimit configures per-IP request throttling. Zero disables it.
type RateLimit struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// Auth configures API-key authentication.
type Auth struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
}

// TLS configures HTTPS.
type TLS struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Database configures the SQLite verse store.
type Database struct {
	Path string `yaml:"path"`
}

// Search tunes the fuzzy matching pipeline.
type Search struct {
	ShingleSize   int     `yaml:"shingle_size"`
	MinSimilarity float64 `yaml:"min_similarity"`
	MaxCandidates int     `yaml:"max_candidates"`
}

// Log configures structured logging.
type Log struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server: Server{
			Port: 8080,
		},
		Database: Database{
			Path: "paathguide.db",
		},
		Search: Search{
			ShingleSize:   3,
			MinSimilarity: 0.3,
			MaxCandidates: 500,
		},
		Log: Log{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads a YAML configuration file over the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.NewIO("read", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "failed to parse config %s", path)
	}
	return cfg, nil
}
