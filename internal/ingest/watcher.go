package ingest

import (
	"context"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// Watcher observes the document root and fires a callback after file
// activity settles for the debounce interval. The callback decides what
// a change means; the watcher itself never touches the index.
type Watcher struct {
	root     string
	debounce time.Duration
	trigger  func(ctx context.Context)
	fsw      *fsnotify.Watcher
}

func NewWatcher(root string, debounce time.Duration, trigger func(ctx context.Context)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{root: root, debounce: debounce, trigger: trigger, fsw: fsw}
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if entry.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
	if err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Start blocks until ctx is cancelled; run it in its own goroutine.
func (w *Watcher) Start(ctx context.Context) {
	logger := logutil.GetLogger(ctx).With(zap.String("root", w.root))
	logger.Info("corpus watcher started")
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			_ = w.fsw.Close()
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op.Has(fsnotify.Create) {
				// new subdirectories need their own watch
				_ = w.fsw.Add(event.Name)
			}
			logger.Debug("corpus change", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("watcher error", zap.Error(err))
		case <-fire:
			timer = nil
			fire = nil
			logger.Info("corpus changed, triggering reindex")
			w.trigger(ctx)
		}
	}
}
