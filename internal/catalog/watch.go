package catalog

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDebounce = 250 * time.Millisecond

// Watch reloads the catalog whenever its file changes on disk and hands each
// non-empty Change to onChange. It blocks until ctx is done.
func (c *Catalog) Watch(ctx context.Context, log *zap.Logger, onChange func(Change)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir := filepath.Dir(c.path)
	file := filepath.Base(c.path)
	if err := w.Add(dir); err != nil {
		return err
	}
	log.Info("catalog watcher started", zap.String("path", c.path))

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	reload := func() {
		change, err := c.Reload()
		if err != nil {
			log.Warn("catalog reload rejected", zap.String("path", c.path), zap.Error(err))
			return
		}
		if change.Empty() {
			log.Debug("catalog unchanged", zap.String("path", c.path))
			return
		}
		log.Info("catalog reloaded",
			zap.Strings("added", change.Added),
			zap.Strings("removed", change.Removed),
			zap.Int("updated", len(change.Updated)),
		)
		if onChange != nil {
			onChange(change)
		}
	}
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(reloadDebounce, reload)
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Base(ev.Name), file) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("catalog watch error", zap.Error(err))
		}
	}
}
