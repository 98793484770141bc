package content

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a content directory when files in it change.
type Watcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	onChange func(Library)
	logger   *log.Logger
	debounce time.Duration

	mu    sync.Mutex
	timer *time.Timer
	done  chan struct{}
	once  sync.Once
}

// WatchDir watches dir and hands every successfully reloaded library to
// onChange. A library that fails to load is logged and skipped.
func WatchDir(dir string, onChange func(Library), logger *log.Logger) (*Watcher, error) {
	if logger == nil {
		logger = log.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("error creating fsnotify watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("error adding content dir to fsnotify watcher: %w", err)
	}

	w := &Watcher{
		watcher:  fw,
		dir:      dir,
		onChange: onChange,
		logger:   logger,
		debounce: 150 * time.Millisecond,
		done:     make(chan struct{}),
	}
	go w.run()
	logger.Debug("watching content dir", "dir", dir)
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !Supported(event.Name) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Debug("fsnotify event", "file", event.Name, "event", event.Op)
			w.schedule()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Debug("fsnotify error", "dir", w.dir, "error", err)

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	select {
	case <-w.done:
		return
	default:
	}
	lib, err := LoadDir(w.dir)
	if err != nil {
		w.logger.Warn("content reload failed", "dir", w.dir, "err", err)
		return
	}
	w.logger.Info("content reloaded", "dir", w.dir, "scenes", len(lib.Scenes), "groups", len(lib.Groups))
	if w.onChange != nil {
		w.onChange(lib)
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		err = w.watcher.Close()
	})
	return err
}
