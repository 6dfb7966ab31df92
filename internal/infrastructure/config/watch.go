package config

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDebounce = 300 * time.Millisecond

// Watch reloads path after it changes on disk and passes the result to
// onChange. Bursts of events within the debounce window produce one reload;
// files that fail to parse are logged and skipped. Watch returns once the
// watcher is set up; the watch ends with ctx.
func Watch(ctx context.Context, path string, log *zap.Logger, onChange func(Config)) error {
	if path == "" {
		return errors.New("empty config path")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return err
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)

	fire := func() {
		if ctx.Err() != nil {
			return
		}
		cfg, err := Load(path)
		if err != nil {
			log.Warn("config reload failed", zap.String("path", path), zap.Error(err))
			return
		}
		log.Info("config reloaded", zap.String("path", path))
		onChange(cfg)
	}

	schedule := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer == nil {
			timer = time.AfterFunc(reloadDebounce, fire)
			return
		}
		timer.Reset(reloadDebounce)
	}

	go func() {
		defer func() { _ = w.Close() }()
		defer func() {
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			mu.Unlock()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}

				if filepath.Base(ev.Name) != base {
					continue
				}

				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					schedule()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("fsnotify error", zap.Error(err))
			}
		}
	}()

	return nil
}
