// Package watch reports changes to the host settings file.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events editors produce on save.
const DefaultDebounce = 2 * time.Second

// SettingsWatcher calls onChange (debounced) whenever the settings file is written,
// created or renamed into place.
type SettingsWatcher struct {
	path     string
	onChange func()
	debounce time.Duration
	logger   *slog.Logger

	watcher  *fsnotify.Watcher
	trigger  chan struct{}
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a watcher for path. debounce <= 0 uses DefaultDebounce.
func New(path string, debounce time.Duration, onChange func(), logger *slog.Logger) (*SettingsWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve settings path: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &SettingsWatcher{
		path:     absPath,
		onChange: onChange,
		debounce: debounce,
		logger:   logger,
		watcher:  w,
		trigger:  make(chan struct{}, 1),
		stopChan: make(chan struct{}),
	}, nil
}

// Start begins monitoring. The directory is watched so atomic replacements are seen.
func (sw *SettingsWatcher) Start(ctx context.Context) error {
	dir := filepath.Dir(sw.path)
	if err := sw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch settings directory %s: %w", dir, err)
	}
	sw.logger.Info("Watching settings file", slog.String("path", sw.path))

	sw.wg.Add(2)
	go func() { defer sw.wg.Done(); sw.watchLoop(ctx) }()
	go func() { defer sw.wg.Done(); sw.debounceLoop(ctx) }()
	return nil
}

// Stop ends monitoring and waits for the watcher goroutines. Safe to call twice.
func (sw *SettingsWatcher) Stop() error {
	var err error
	sw.stopOnce.Do(func() {
		close(sw.stopChan)
		err = sw.watcher.Close()
		sw.wg.Wait()
	})
	return err
}

func (sw *SettingsWatcher) watchLoop(ctx context.Context) {
	name := filepath.Base(sw.path)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sw.stopChan:
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			switch {
			case event.Has(fsnotify.Write), event.Has(fsnotify.Create), event.Has(fsnotify.Rename):
				sw.logger.Debug("Settings file change detected", slog.String("op", event.Op.String()))
				select {
				case sw.trigger <- struct{}{}:
				default:
				}
			case event.Has(fsnotify.Remove):
				sw.logger.Warn("Settings file removed", slog.String("path", event.Name))
			}
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			sw.logger.Error("Settings watcher error", slog.String("error", err.Error()))
		}
	}
}

func (sw *SettingsWatcher) debounceLoop(ctx context.Context) {
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sw.stopChan:
			return
		case <-sw.trigger:
			if timer == nil {
				timer = time.NewTimer(sw.debounce)
			} else {
				timer.Reset(sw.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			sw.logger.Info("Settings changed", slog.String("path", sw.path))
			sw.onChange()
		}
	}
}
