// Package workspace describes the on-disk layout of the adapter's data directory:
//
//	<data>/repo          step daemon checkout
//	<data>/stepd         installed artifact (launch.binary)
//	<data>/config.json   daemon configuration (launch.config_file)
//
// The daemon runs with <data> as its working directory.
package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	appcfg "git.home.luguber.info/inful/stepd-host/internal/config"
	"git.home.luguber.info/inful/stepd-host/internal/logfields"
)

// RepoDir is the checkout directory name inside the data directory.
const RepoDir = "repo"

// Layout resolves every path the supervisor touches.
type Layout struct {
	Root       string
	binary     string
	configFile string
}

// New builds a Layout rooted at dataDir using the launch configuration.
func New(dataDir string, cfg *appcfg.Config) Layout {
	l := Layout{Root: dataDir, binary: appcfg.DefaultArtifactName, configFile: appcfg.DefaultDaemonConfig}
	if cfg != nil {
		if cfg.Launch.Binary != "" {
			l.binary = cfg.Launch.Binary
		}
		if cfg.Launch.ConfigFile != "" {
			l.configFile = cfg.Launch.ConfigFile
		}
	}
	return l
}

// Create ensures the data directory exists.
func (l Layout) Create() error {
	if err := os.MkdirAll(l.Root, 0o750); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	slog.Debug("Using data directory", logfields.Path(l.Root))
	return nil
}

// RepoPath is the step daemon checkout.
func (l Layout) RepoPath() string { return filepath.Join(l.Root, RepoDir) }

// ArtifactPath is the stable path of the installed daemon binary.
func (l Layout) ArtifactPath() string { return l.resolve(l.binary) }

// ConfigPath is where config.json is written before launch.
func (l Layout) ConfigPath() string { return l.resolve(l.configFile) }

// ConfigArg is the config file as passed to the daemon, relative to its cwd when possible.
func (l Layout) ConfigArg() string {
	if filepath.IsAbs(l.configFile) {
		return l.configFile
	}
	return filepath.ToSlash(l.configFile)
}

func (l Layout) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(l.Root, p)
}
