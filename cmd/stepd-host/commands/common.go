package commands

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/stepd-host/internal/config"
	"git.home.luguber.info/inful/stepd-host/internal/host"
	"git.home.luguber.info/inful/stepd-host/internal/workspace"
)

// Global context passed to subcommands.
type Global struct {
	Logger *slog.Logger
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"stepd-host.yaml"`
	DataDir string           `short:"d" help:"Override data_dir from the configuration"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Run         RunCmd         `cmd:"" default:"1" help:"Supervise the step daemon until interrupted"`
	Check       CheckCmd       `cmd:"" help:"Check the remote for updates and build when needed, without launching"`
	WriteConfig WriteConfigCmd `cmd:"" name:"write-config" help:"Render the daemon configuration from the settings file"`
	History     HistoryCmd     `cmd:"" help:"Show recent lifecycle events"`

	cfg    *config.Config `kong:"-"`
	logger *slog.Logger   `kong:"-"`
}

// AfterApply runs after flag parsing: load configuration and set up logging once.
func (c *CLI) AfterApply() error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	if c.DataDir != "" {
		cfg.DataDir = c.DataDir
	}
	c.cfg = cfg
	c.logger = newLogger(os.Stderr, cfg.Monitoring, c.Verbose)
	slog.SetDefault(c.logger)
	return nil
}

// Logger returns the configured logger, or the default before AfterApply ran.
func (c *CLI) Logger() *slog.Logger {
	if c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// Loaded returns the configuration loaded in AfterApply.
func (c *CLI) Loaded() *config.Config {
	if c.cfg == nil {
		return config.Default()
	}
	return c.cfg
}

func newLogger(w io.Writer, m config.MonitoringConfig, verbose bool) *slog.Logger {
	level := config.NormalizeLogLevel(string(m.LogLevel)).SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if config.NormalizeLogFormat(string(m.LogFormat)) == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// environment bundles what every command derives from the configuration.
type environment struct {
	cfg    *config.Config
	layout workspace.Layout
	host   *host.FileHost
	logger *slog.Logger
}

func newEnvironment(root *CLI, logger *slog.Logger) (*environment, error) {
	cfg := root.Loaded()
	layout := workspace.New(cfg.DataDir, cfg)
	if err := layout.Create(); err != nil {
		return nil, err
	}
	return &environment{
		cfg:    cfg,
		layout: layout,
		host:   host.NewFileHost(cfg.DataDir, cfg.SettingsPath(), logger),
		logger: logger,
	}, nil
}
