package config

import "time"

const (
	DefaultDataDir         = "./stepd-data"
	DefaultSettingsFile    = "settings.yaml"
	DefaultRepositoryURL   = "https://github.com/colinrgodsey/step-daemon.git"
	DefaultArtifactName    = "stepd"
	DefaultDaemonConfig    = "config.json"
	DefaultEventStore      = "events.db"
	DefaultNATSSubject     = "stepd.lifecycle"
	DefaultBuildTimeout    = 30 * time.Minute
	DefaultTeardownTimeout = 10 * time.Second
	DefaultWriteTimeout    = 5 * time.Second
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{
		Update: UpdateConfig{OnStart: true, WatchSettings: true},
		Events: EventsConfig{Store: DefaultEventStore},
	}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills zero-valued fields. Booleans are left alone because YAML cannot
// distinguish "false" from "absent"; Load pre-seeds them before unmarshalling.
func applyDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir
	}
	if cfg.SettingsFile == "" {
		cfg.SettingsFile = DefaultSettingsFile
	}

	r := &cfg.Repository
	if r.URL == "" {
		r.URL = DefaultRepositoryURL
	}
	if r.RetryBackoff == "" {
		r.RetryBackoff = RetryBackoffLinear
	}
	if r.RetryInitialDelay == "" {
		r.RetryInitialDelay = "1s"
	}
	if r.RetryMaxDelay == "" {
		r.RetryMaxDelay = "10s"
	}

	b := &cfg.Build
	if len(b.Command) == 0 {
		b.Command = []string{"go", "build", "-a", "./cmd/stepd"}
	}
	if len(b.CleanCommand) == 0 {
		b.CleanCommand = []string{"go", "clean"}
	}
	if b.Output == "" {
		b.Output = DefaultArtifactName
	}
	if b.Env == nil {
		// Raspberry Pi toolchains often report the wrong ARM revision.
		b.Env = map[string]string{"GOARM": "7"}
	}
	if b.Timeout <= 0 {
		b.Timeout = DefaultBuildTimeout
	}

	l := &cfg.Launch
	if l.Binary == "" {
		l.Binary = DefaultArtifactName
	}
	if l.ConfigFile == "" {
		l.ConfigFile = DefaultDaemonConfig
	}
	if l.TeardownTimeout <= 0 {
		l.TeardownTimeout = DefaultTeardownTimeout
	}
	if l.WriteTimeout <= 0 {
		l.WriteTimeout = DefaultWriteTimeout
	}

	m := &cfg.Monitoring
	m.LogLevel = NormalizeLogLevel(string(m.LogLevel))
	m.LogFormat = NormalizeLogFormat(string(m.LogFormat))

	if cfg.Events.NATSSubject == "" {
		cfg.Events.NATSSubject = DefaultNATSSubject
	}
}
