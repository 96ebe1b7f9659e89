package config

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce coalesces the burst of events editors produce on save.
const DefaultWatchDebounce = 250 * time.Millisecond

// Watch reloads the file at path whenever it changes and passes valid
// settings to onChange. Invalid files are logged and ignored. The parent
// directory is watched so atomic rename-on-save is seen. Watch blocks until
// ctx is cancelled.
func Watch(ctx context.Context, path string, debounce time.Duration, logger *log.Logger, onChange func(Settings)) error {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer watcher.Close()

	clean := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(clean)); err != nil {
		return fmt.Errorf("watch config dir %q: %w", filepath.Dir(clean), err)
	}

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != clean {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Printf("config watch error: %v", err)
		case <-timer.C:
			cfg, err := Load(ctx, clean)
			if err != nil {
				logger.Printf("config reload failed path=%s err=%v", clean, err)
				continue
			}
			if err := cfg.Validate(); err != nil {
				logger.Printf("config reload rejected path=%s err=%v", clean, err)
				continue
			}
			logger.Printf("config reloaded path=%s", clean)
			onChange(cfg)
		}
	}
}
