package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/stepd-host/internal/foundation/errors"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	require.Equal(t, DefaultDataDir, cfg.DataDir)
	require.Equal(t, DefaultRepositoryURL, cfg.Repository.URL)
	require.Equal(t, []string{"go", "build", "-a", "./cmd/stepd"}, cfg.Build.Command)
	require.Equal(t, "7", cfg.Build.Env["GOARM"])
	require.True(t, cfg.Update.OnStart)
	require.True(t, cfg.Update.WatchSettings)
	require.Equal(t, DefaultTeardownTimeout, cfg.Launch.TeardownTimeout)
	require.Equal(t, DefaultWriteTimeout, cfg.Launch.WriteTimeout)
	require.Equal(t, LogLevelInfo, cfg.Monitoring.LogLevel)
}

func TestLoadOverridesAndExpandsEnv(t *testing.T) {
	t.Setenv("STEPD_TEST_REMOTE", "https://example.com/fork.git")
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
data_dir: /var/lib/stepd
repository:
  url: ${STEPD_TEST_REMOTE}
  branch: develop
  retry_backoff: exponential
build:
  command: [make, stepd]
  output: bin/stepd
  env: {GOARM: "6"}
  timeout: 5m
update:
  on_start: false
  schedule: "@every 6h"
monitoring:
  log_level: DEBUG
  log_format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "https://example.com/fork.git", cfg.Repository.URL)
	require.Equal(t, "develop", cfg.Repository.Branch)
	require.Equal(t, RetryBackoffExponential, cfg.Repository.RetryBackoff)
	require.Equal(t, []string{"make", "stepd"}, cfg.Build.Command)
	require.Equal(t, "bin/stepd", cfg.Build.Output)
	require.Equal(t, 5*time.Minute, cfg.Build.Timeout)
	require.False(t, cfg.Update.OnStart)
	require.True(t, cfg.Update.WatchSettings, "unset booleans keep their defaults")
	require.Equal(t, LogLevelDebug, cfg.Monitoring.LogLevel)
	require.Equal(t, LogFormatJSON, cfg.Monitoring.LogFormat)
	require.Equal(t, "/var/lib/stepd/events.db", cfg.EventStorePath())
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dri: typo\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryValidation))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty url", func(c *Config) { c.Repository.URL = " " }, "repository.url"},
		{"negative retries", func(c *Config) { c.Repository.MaxRetries = -1 }, "repository.max_retries"},
		{"bad backoff", func(c *Config) { c.Repository.RetryBackoff = "random" }, "repository.retry_backoff"},
		{"bad delay", func(c *Config) { c.Repository.RetryMaxDelay = "soon" }, "repository.retry_max_delay"},
		{"bad auth", func(c *Config) { c.Repository.Auth = &AuthConfig{Type: "kerberos"} }, "repository.auth.type"},
		{"empty command", func(c *Config) { c.Build.Command = []string{""} }, "build.command"},
		{"nested config file", func(c *Config) { c.Launch.ConfigFile = "conf/config.json" }, "launch.config_file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			ce, ok := errors.AsClassified(err)
			require.True(t, ok)
			field, _ := ce.Context().GetString("field")
			require.Equal(t, tt.field, field)
		})
	}

	require.NoError(t, Validate(Default()))
}

func TestResolve(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/data"
	require.Equal(t, "/data/settings.yaml", cfg.SettingsPath())
	require.Equal(t, "/etc/stepd.yaml", cfg.Resolve("/etc/stepd.yaml"))
	cfg.Events.Store = ""
	require.Empty(t, cfg.EventStorePath())
}
