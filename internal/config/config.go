// Package config loads koppla settings from a YAML file and the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names.
const (
	BackendREST  = "rest"
	BackendLocal = "local"
)

// Environment variables that override file values.
const (
	EnvBaseURL = "KOPPLA_BASE_URL"
	EnvToken   = "KOPPLA_TOKEN"
	EnvProject = "KOPPLA_PROJECT"
)

// Config is the full koppla configuration.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after creation.
type Config struct {
	Backend      string `yaml:"backend"`
	BaseURL      string `yaml:"base_url"`
	Project      string `yaml:"project"`
	Token        string `yaml:"token"`
	RequireToken bool   `yaml:"require_token"`

	Local  LocalConfig  `yaml:"local"`
	Outbox OutboxConfig `yaml:"outbox"`
	Sync   SyncConfig   `yaml:"sync"`
	Editor EditorConfig `yaml:"editor"`
	HTTP   HTTPConfig   `yaml:"http"`

	// Palette maps color names used in type descriptors to concrete colors.
	Palette map[string]string `yaml:"palette"`
}

// LocalConfig configures the SQLite project backend.
type LocalConfig struct {
	Path string `yaml:"path"`
}

// OutboxConfig configures the staging area. An empty path keeps staged
// operations in memory only.
type OutboxConfig struct {
	Path string `yaml:"path"`
}

// SyncConfig configures persistence timing.
type SyncConfig struct {
	Throttle time.Duration `yaml:"throttle"`
	Retry    RetryConfig   `yaml:"retry"`
}

// RetryConfig configures backoff after failed persistence cycles.
type RetryConfig struct {
	Initial     time.Duration `yaml:"initial"`
	Max         time.Duration `yaml:"max"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// EditorConfig configures the editor façade.
type EditorConfig struct {
	GridSize float64 `yaml:"grid_size"`
}

// HTTPConfig configures the REST client.
type HTTPConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Backend: BackendREST,
		Local:   LocalConfig{Path: "koppla.db"},
		Sync: SyncConfig{
			Throttle: time.Second,
			Retry: RetryConfig{
				Initial:     500 * time.Millisecond,
				Max:         30 * time.Second,
				MaxAttempts: 8,
			},
		},
		Editor: EditorConfig{GridSize: 20},
		HTTP:   HTTPConfig{Timeout: 30 * time.Second},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decode rejects unknown keys so typos do not silently fall back to defaults.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvBaseURL); ok {
		c.BaseURL = v
	}
	if v, ok := lookup(EnvToken); ok {
		c.Token = v
	}
	if v, ok := lookup(EnvProject); ok {
		c.Project = v
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendREST:
		if c.BaseURL == "" {
			return errors.New("config: rest backend requires base_url")
		}
	case BackendLocal:
		if c.Local.Path == "" {
			return errors.New("config: local backend requires local.path")
		}
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if c.Sync.Throttle <= 0 {
		return fmt.Errorf("config: sync.throttle must be positive, got %s", c.Sync.Throttle)
	}
	if c.Sync.Retry.Initial <= 0 || c.Sync.Retry.Max < c.Sync.Retry.Initial {
		return fmt.Errorf("config: sync.retry needs 0 < initial <= max, got %s and %s", c.Sync.Retry.Initial, c.Sync.Retry.Max)
	}
	if c.Sync.Retry.MaxAttempts < 1 {
		return errors.New("config: sync.retry.max_attempts must be at least 1")
	}
	if c.Editor.GridSize <= 0 {
		return errors.New("config: editor.grid_size must be positive")
	}
	for name, color := range c.Palette {
		if name == "" || color == "" {
			return fmt.Errorf("config: palette entry %q=%q needs a name and a color", name, color)
		}
	}
	return nil
}

// ProjectURL is the REST base URL joined with the project, if any.
func (c Config) ProjectURL() string {
	if c.Project == "" {
		return c.BaseURL
	}
	base := c.BaseURL
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base + "/" + c.Project
}
