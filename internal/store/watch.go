package store

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reloads s whenever the file backing it is rewritten by another process.
// It blocks until ctx is done. The parent directory is watched because atomic
// writes replace the file rather than modify it.
func Watch(ctx context.Context, s *Store, b *FileBackend) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	target := filepath.Clean(b.Path(StorageKey))
	if err := w.Add(filepath.Dir(target)); err != nil {
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
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
				continue
			}
			changed, err := s.Reload()
			if err != nil {
				s.log.Warn("reload tasks after external write", zap.Error(err))
				continue
			}
			if changed {
				s.log.Debug("tasks reloaded from disk", zap.String("path", target))
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("task file watcher", zap.Error(err))
		}
	}
}
