// Package config loads the application configuration. Settings come
// from an optional YAML file with environment-variable overrides; the
// API key is never stored in YAML and is read only from the
// environment (a .env file is loaded first when present).
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file name looked up in the working
// directory when no explicit path is given.
const DefaultFile = "fabula.yaml"

// BackendConfig selects and tunes the LLM backend.
type BackendConfig struct {
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"` // empty means the provider default
	APIKey  string `yaml:"-"`        // only from FABULA_API_KEY or OPENAI_API_KEY
}

// Config is the resolved application configuration.
type Config struct {
	Database       string        `yaml:"database"`
	OutputDir      string        `yaml:"output_dir"`
	SessionDir     string        `yaml:"session_dir"`
	EditIterations int           `yaml:"edit_iterations"`
	Backend        BackendConfig `yaml:"backend"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database:       "fabula.db",
		OutputDir:      "output",
		SessionDir:     "sessions",
		EditIterations: 2,
		Backend:        BackendConfig{Model: "gpt-4o"},
	}
}

// Load resolves the configuration: defaults, then the YAML file (the
// given path, or ./fabula.yaml when path is empty and the file
// exists), then environment variables. A missing explicit path is an
// error; a missing default file is not.
func Load(path string) (*Config, error) {
	// Best effort: most setups keep the API key in a .env file.
	_ = godotenv.Load()

	cfg := Default()

	explicit := path != ""
	if path == "" {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	case explicit:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	applyEnv(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("FABULA_DB"); v != "" {
		cfg.Database = v
	}
	if v := os.Getenv("FABULA_OUTPUT_DIR"); v != "" {
		cfg.OutputDir = v
	}
	if v := os.Getenv("FABULA_SESSION_DIR"); v != "" {
		cfg.SessionDir = v
	}
	if v := os.Getenv("FABULA_EDIT_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EditIterations = n
		}
	}
	if v := os.Getenv("FABULA_MODEL"); v != "" {
		cfg.Backend.Model = v
	}
	if v := os.Getenv("FABULA_BASE_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("FABULA_API_KEY"); v != "" {
		cfg.Backend.APIKey = v
	} else {
		cfg.Backend.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}
