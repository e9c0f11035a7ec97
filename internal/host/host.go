// Package host adapts a standalone process to the supervisor's host capabilities: settings
// come from a YAML file, the data directory is fixed at construction and readiness is
// delivered to registered callbacks.
package host

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/stepd-host/internal/foundation/errors"
	"git.home.luguber.info/inful/stepd-host/internal/logfields"
	"git.home.luguber.info/inful/stepd-host/internal/settings"
	"git.home.luguber.info/inful/stepd-host/internal/supervisor"
)

// FileHost implements supervisor.Host on top of a settings file.
type FileHost struct {
	dataDir      string
	settingsPath string
	logger       *slog.Logger

	mu      sync.Mutex
	onReady []func(*supervisor.Cycle)
}

// NewFileHost creates a host rooted at dataDir reading settings from settingsPath.
func NewFileHost(dataDir, settingsPath string, logger *slog.Logger) *FileHost {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileHost{dataDir: dataDir, settingsPath: settingsPath, logger: logger}
}

// DataDir is the supervisor's working directory.
func (h *FileHost) DataDir() string { return h.dataDir }

// SettingsPath is the file Settings reads.
func (h *FileHost) SettingsPath() string { return h.settingsPath }

// Settings captures a fresh snapshot. A missing file yields the plugin defaults.
func (h *FileHost) Settings() (settings.Settings, error) {
	data, err := os.ReadFile(h.settingsPath)
	if errors.Is(err, fs.ErrNotExist) {
		h.logger.Debug("Settings file not found; using defaults", logfields.Path(h.settingsPath))
		return settings.WithDefaults(nil), nil
	}
	if err != nil {
		return settings.Settings{}, ferrors.FileSystemError("failed to read settings file").
			WithCause(err).
			WithContext("path", h.settingsPath).
			Build()
	}
	var values map[string]any
	if err := yaml.Unmarshal(data, &values); err != nil {
		return settings.Settings{}, ferrors.ConfigError(fmt.Sprintf("invalid settings file %s", h.settingsPath)).
			WithCause(err).
			WithContext("path", h.settingsPath).
			Build()
	}
	return settings.WithDefaults(values), nil
}

// HandleReady registers fn to run whenever a cycle's daemon becomes ready.
func (h *FileHost) HandleReady(fn func(*supervisor.Cycle)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onReady = append(h.onReady, fn)
}

// OnReady dispatches to the registered callbacks in registration order.
func (h *FileHost) OnReady(c *supervisor.Cycle) {
	h.mu.Lock()
	fns := append([]func(*supervisor.Cycle){}, h.onReady...)
	h.mu.Unlock()
	h.logger.Info("Step daemon ready", logfields.CycleID(c.ID))
	for _, fn := range fns {
		fn(c)
	}
}

// WriteSettings stores values as the settings file, used to seed a data directory.
func WriteSettings(path string, values map[string]any) error {
	data, err := yaml.Marshal(values)
	if err != nil {
		return ferrors.InternalError("failed to encode settings").WithCause(err).Build()
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return ferrors.FileSystemError("failed to write settings file").WithCause(err).WithContext("path", path).Build()
	}
	return nil
}
