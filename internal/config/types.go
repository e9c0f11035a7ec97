package config

import "time"

// Config is the application configuration of the stepd host adapter.
type Config struct {
	DataDir      string           `yaml:"data_dir"`
	SettingsFile string           `yaml:"settings_file"`
	Repository   RepositoryConfig `yaml:"repository"`
	Build        BuildConfig      `yaml:"build"`
	Launch       LaunchConfig     `yaml:"launch"`
	Update       UpdateConfig     `yaml:"update"`
	Monitoring   MonitoringConfig `yaml:"monitoring"`
	Events       EventsConfig     `yaml:"events"`
}

// RepositoryConfig describes the remote source of the step daemon.
type RepositoryConfig struct {
	URL               string           `yaml:"url"`
	Branch            string           `yaml:"branch,omitempty"` // "" = remote default branch
	Auth              *AuthConfig      `yaml:"auth,omitempty"`
	MaxRetries        int              `yaml:"max_retries"`
	RetryBackoff      RetryBackoffMode `yaml:"retry_backoff"`
	RetryInitialDelay string           `yaml:"retry_initial_delay"`
	RetryMaxDelay     string           `yaml:"retry_max_delay"`
}

// AuthConfig represents authentication configuration for the remote.
type AuthConfig struct {
	Type     string `yaml:"type"` // "none", "ssh", "token", "basic"
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Token    string `yaml:"token,omitempty"`
	KeyPath  string `yaml:"key_path,omitempty"`
}

// BuildConfig parameterizes the toolchain invocation.
type BuildConfig struct {
	Command      []string          `yaml:"command"`
	CleanCommand []string          `yaml:"clean_command"`
	Output       string            `yaml:"output"` // artifact path relative to the checkout
	Env          map[string]string `yaml:"env,omitempty"`
	Timeout      time.Duration     `yaml:"timeout"`
}

// LaunchConfig describes how the built daemon is started.
type LaunchConfig struct {
	Binary          string        `yaml:"binary"`      // stable artifact path, relative to data_dir
	ConfigFile      string        `yaml:"config_file"` // daemon config, relative to data_dir
	TeardownTimeout time.Duration `yaml:"teardown_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"` // bound on one stdin write
}

// UpdateConfig controls when update cycles are triggered.
type UpdateConfig struct {
	OnStart       bool   `yaml:"on_start"`
	Schedule      string `yaml:"schedule"` // cron expression or "@every <duration>"
	WatchSettings bool   `yaml:"watch_settings"`
}

// MonitoringConfig holds logging and metrics options.
type MonitoringConfig struct {
	LogLevel    LogLevel  `yaml:"log_level"`
	LogFormat   LogFormat `yaml:"log_format"`
	MetricsAddr string    `yaml:"metrics_addr"` // "" disables the metrics listener
}

// EventsConfig configures lifecycle event sinks.
type EventsConfig struct {
	Store       string `yaml:"store"` // SQLite file relative to data_dir; "" disables
	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`
}
