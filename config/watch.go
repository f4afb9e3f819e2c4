package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reloads the configuration file whenever it changes on disk and hands
// each successfully validated result to onChange. The parent directory is
// watched so that editors which replace the file by rename are noticed.
// Watch returns once the watcher is set up; it stops when ctx is done.
func Watch(ctx context.Context, path string, logger *zap.Logger, onChange func(*Config)) error {
	resolved, err := resolve(path)
	if err != nil {
		return err
	}
	if resolved == "" {
		resolved = path
		if resolved == "" {
			resolved = DefaultPath
		}
	}
	target, err := filepath.Abs(resolved)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		// editors often emit several events per save
		const settle = 100 * time.Millisecond
		var pending <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
					pending = time.After(settle)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher error", zap.Error(err))
			case <-pending:
				pending = nil
				cfg, err := Load(target)
				if err != nil {
					logger.Warn("config reload rejected", zap.String("path", target), zap.Error(err))
					continue
				}
				logger.Info("config reloaded", zap.String("path", target))
				onChange(cfg)
			}
		}
	}()
	return nil
}
