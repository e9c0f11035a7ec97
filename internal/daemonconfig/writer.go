// Package daemonconfig renders host settings into the step daemon's config.json
// and the matching process arguments.
package daemonconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	ferrors "git.home.luguber.info/inful/stepd-host/internal/foundation/errors"
	"git.home.luguber.info/inful/stepd-host/internal/settings"
)

// BedSamplesPath is where the daemon stores bed levelling samples, relative to its cwd.
const BedSamplesPath = "./bedlevel.json"

// Config is the flat daemon configuration schema.
type Config struct {
	Jerk           []float64  `json:"sjerk"`
	Format         string     `json:"format"`
	TicksPerSecond int        `json:"ticks-per-second"`
	BedSamplesPath string     `json:"bed-samples-path"`
	BedMax         [2]float64 `json:"bed-max"`
}

// FromSettings builds a Config from a settings snapshot.
func FromSettings(s settings.Settings) (*Config, error) {
	jerk, err := s.FloatList(settings.KeyJerk)
	if err != nil {
		return nil, err
	}
	format := s.String(settings.KeyFormat)
	if !ValidFormat(format) {
		return nil, ferrors.ConfigError(fmt.Sprintf("unsupported page format %q (want one of %s)", format, strings.Join(PageFormats, ", "))).
			WithContext("field", settings.KeyFormat).
			Build()
	}
	ticks, err := s.Int(settings.KeyTickRate)
	if err != nil {
		return nil, err
	}
	if ticks <= 0 {
		return nil, ferrors.ConfigError("tick rate must be positive").WithContext("field", settings.KeyTickRate).Build()
	}
	bedX, err := s.Float(settings.KeyBedX)
	if err != nil {
		return nil, err
	}
	bedY, err := s.Float(settings.KeyBedY)
	if err != nil {
		return nil, err
	}
	return &Config{
		Jerk:           jerk,
		Format:         format,
		TicksPerSecond: ticks,
		BedSamplesPath: BedSamplesPath,
		BedMax:         [2]float64{bedX, bedY},
	}, nil
}

// Write renders s into path. The file is written beside path and renamed into place,
// so a launching daemon never sees a partial file.
func Write(s settings.Settings, path string) (*Config, error) {
	cfg, err := FromSettings(s)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, ferrors.InternalError("marshal daemon config").WithCause(err).Build()
	}
	if err := writeAtomic(path, append(data, '\n')); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read loads a previously written config file.
func Read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ferrors.FileSystemError("read daemon config").WithCause(err).WithContext("path", path).Build()
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, ferrors.ConfigError("parse daemon config").WithCause(err).WithContext("path", path).Build()
	}
	return &cfg, nil
}

// Args returns the daemon's command line: device, baud and config file name.
func Args(s settings.Settings, configFile string) ([]string, error) {
	baud, err := s.Int(settings.KeyBaud)
	if err != nil {
		return nil, err
	}
	if baud <= 0 {
		return nil, ferrors.ConfigError("baud rate must be positive").WithContext("field", settings.KeyBaud).Build()
	}
	port := s.String(settings.KeyPort)
	if port == "" {
		return nil, ferrors.ConfigError("serial port must not be empty").WithContext("field", settings.KeyPort).Build()
	}
	return []string{
		"device=" + port,
		"baud=" + strconv.Itoa(baud),
		"config=" + configFile,
	}, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ferrors.FileSystemError("ensure config directory").WithCause(err).WithContext("path", dir).Build()
	}
	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return ferrors.FileSystemError("create temporary config").WithCause(err).WithContext("path", path).Build()
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return ferrors.FileSystemError("write temporary config").WithCause(err).WithContext("path", path).Build()
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return ferrors.FileSystemError("sync temporary config").WithCause(err).WithContext("path", path).Build()
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return ferrors.FileSystemError("close temporary config").WithCause(err).WithContext("path", path).Build()
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return ferrors.FileSystemError("chmod config").WithCause(err).WithContext("path", path).Build()
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return ferrors.FileSystemError("replace config").WithCause(err).WithContext("path", path).Build()
	}
	return nil
}
