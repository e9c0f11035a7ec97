package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/stepd-host/internal/foundation/errors"
)

// envFiles are loaded (when present) before the configuration is expanded.
var envFiles = []string{".env", ".env.local"}

// Load reads, expands and validates the configuration file at path. A missing file
// yields the defaults so the adapter can run unconfigured.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return cfg, nil
	case err != nil:
		return nil, errors.FileSystemError("failed to read config file").
			WithCause(err).WithContext("path", path).Build()
	}

	if err := Parse(data, cfg); err != nil {
		return nil, errors.ValidationError("failed to parse config file").
			WithCause(err).WithContext("path", path).Build()
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse expands ${VAR} references and unmarshals YAML over cfg.
func Parse(data []byte, cfg *Config) error {
	expanded := os.ExpandEnv(string(data))
	dec := yaml.NewDecoder(bytes.NewBufferString(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

// loadEnvFiles loads every existing env file; godotenv.Load never overrides
// variables already present in the process environment.
func loadEnvFiles() {
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			fmt.Fprintf(os.Stderr, "Note: could not load %s: %v\n", f, err)
		}
	}
}

// Resolve joins p onto the data directory unless it is already absolute.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

// SettingsPath returns the absolute-or-data-relative settings file path.
func (c *Config) SettingsPath() string { return c.Resolve(c.SettingsFile) }

// EventStorePath returns the SQLite event store path, or "" when disabled.
func (c *Config) EventStorePath() string {
	if c.Events.Store == "" || c.Events.Store == ":memory:" {
		return c.Events.Store
	}
	return c.Resolve(c.Events.Store)
}
