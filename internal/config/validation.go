package config

import (
	"strings"
	"time"

	"git.home.luguber.info/inful/stepd-host/internal/foundation/errors"
)

// Validate checks the configuration after defaults were applied.
func Validate(cfg *Config) error {
	if strings.TrimSpace(cfg.DataDir) == "" {
		return invalid("data_dir", "data directory must not be empty")
	}
	if err := validateRepository(&cfg.Repository); err != nil {
		return err
	}
	if len(cfg.Build.Command) == 0 || strings.TrimSpace(cfg.Build.Command[0]) == "" {
		return invalid("build.command", "build command must name an executable")
	}
	if strings.Contains(cfg.Launch.ConfigFile, "/") {
		// The daemon is always invoked with config=<file> relative to its cwd.
		return invalid("launch.config_file", "daemon config file must be a plain file name")
	}
	return nil
}

func validateRepository(r *RepositoryConfig) error {
	if strings.TrimSpace(r.URL) == "" {
		return invalid("repository.url", "repository url must not be empty")
	}
	if r.MaxRetries < 0 {
		return invalid("repository.max_retries", "max retries cannot be negative")
	}
	if NormalizeRetryBackoff(string(r.RetryBackoff)) == "" {
		return invalid("repository.retry_backoff", "unknown backoff mode "+string(r.RetryBackoff))
	}
	for field, raw := range map[string]string{
		"repository.retry_initial_delay": r.RetryInitialDelay,
		"repository.retry_max_delay":     r.RetryMaxDelay,
	} {
		if _, err := time.ParseDuration(raw); err != nil {
			return errors.ValidationError("invalid duration").WithCause(err).WithContext("field", field).Build()
		}
	}
	if r.Auth != nil {
		switch r.Auth.Type {
		case "", "none", "ssh", "token", "basic":
		default:
			return invalid("repository.auth.type", "unsupported authentication type "+r.Auth.Type)
		}
	}
	return nil
}

func invalid(field, msg string) error {
	return errors.ValidationError(msg).WithContext("field", field).Build()
}
