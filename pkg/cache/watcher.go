package cache

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher observes the snapshot blob for writes made by another process
// (a second client instance on the same machine) and signals that a fresh
// Load is worthwhile. Consumers are free to ignore it; the engine stays
// correct without one.
type Watcher struct {
	path    string
	fsw     *fsnotify.Watcher
	changes chan struct{}
	done    chan struct{}
	log     zerolog.Logger
}

// NewWatcher starts watching the directory that contains path. The parent
// directory must already exist.
func NewWatcher(path string, logger zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	w := &Watcher{
		path:    path,
		fsw:     fsw,
		changes: make(chan struct{}, 1),
		done:    make(chan struct{}),
		log:     logger,
	}
	go w.loop()
	return w, nil
}

// Changes delivers one signal per burst of external snapshot writes.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Close stops the watcher and releases the underlying fsnotify resources.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case evt, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != filepath.Clean(w.path) {
				continue
			}
			if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) && !evt.Has(fsnotify.Rename) {
				continue
			}
			select {
			case w.changes <- struct{}{}:
			default:
				// A signal is already pending; bursts coalesce.
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Debug().Err(err).Str("path", w.path).Msg("cache: watcher error")
		}
	}
}
