package datasource

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces editor save bursts into one reload.
const watchDebounce = 100 * time.Millisecond

// Watch reloads the provisioning directory whenever a YAML file in it is
// written, created, renamed or removed, and calls onReload with the merged
// settings. It blocks until ctx is cancelled. Parse errors are logged and the
// previous settings stay in effect.
func Watch(ctx context.Context, dir string, base []Settings, logger *slog.Logger, onReload func([]Settings) error) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	if err := watcher.Add(dir); err != nil {
		return err
	}
	logger.Debug("watching provisioning directory", "dir", dir)

	reload := make(chan struct{}, 1)
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !IsProvisioningFile(event.Name) {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(watchDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			settings, err := LoadProvisioning(dir, base)
			if err != nil {
				logger.Error("failed to load provisioning", "dir", dir, "error", err)
				continue
			}
			if err := onReload(settings); err != nil {
				logger.Error("failed to apply provisioning", "dir", dir, "error", err)
				continue
			}
			logger.Info("datasources reloaded", "count", len(settings))

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher error", "error", err)
		}
	}
}
