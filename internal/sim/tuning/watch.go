package tuning

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reloads path whenever it changes and hands every valid result to fn.
// Invalid edits are logged and ignored. The parent directory is watched so
// editors that replace the file on save are handled. Watch blocks until ctx
// is done.
func Watch(ctx context.Context, path string, logger *zap.Logger, fn func(Tuning)) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			t, err := Load(abs)
			if err != nil {
				logger.Warn("tuning reload rejected", zap.String("path", abs), zap.Error(err))
				continue
			}
			logger.Info("tuning reloaded", zap.String("path", abs))
			fn(t)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("tuning watcher error", zap.Error(err))
		}
	}
}
