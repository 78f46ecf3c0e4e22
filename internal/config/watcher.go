package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits after the last write.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads a config file when it changes and hands the result to a
// callback. Invalid files are logged and skipped.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	onChange func(*Config)
	logger   *slog.Logger
	debounce time.Duration
}

// NewWatcher watches path's directory, so editors that replace the file by
// rename are seen too.
func NewWatcher(path string, logger *slog.Logger, onChange func(*Config)) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", path, err)
	}
	return &Watcher{
		watcher:  w,
		path:     filepath.Clean(path),
		onChange: onChange,
		logger:   logger,
		debounce: DefaultDebounce,
	}, nil
}

// Run watches for changes until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(w.debounce, w.reload)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Error("config reload failed", "path", w.path, "error", err)
		return
	}
	w.logger.Info("config reloaded", "path", w.path)
	w.onChange(cfg)
}
