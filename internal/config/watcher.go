package config

import (
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vdkio/vdkio/internal/vdkerrors"
)

// Watcher watches a configuration file and signals on Watch() after every
// write, so segmenter tuning can be reloaded without restarting an
// in-flight session.
type Watcher struct {
	inner *fsnotify.Watcher
	path  string

	signal chan struct{}
	done   chan struct{}
}

// NewWatcher starts watching fpath. The file must already exist.
func NewWatcher(fpath string) (*Watcher, error) {
	inner, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, vdkerrors.Wrap(vdkerrors.IO, err, "creating config watcher")
	}

	if _, err := os.Stat(fpath); err != nil {
		inner.Close()
		return nil, vdkerrors.Wrap(vdkerrors.IO, err, "stat config file %s", fpath)
	}
	if err := inner.Add(fpath); err != nil {
		inner.Close()
		return nil, vdkerrors.Wrap(vdkerrors.IO, err, "watching config file %s", fpath)
	}

	w := &Watcher{
		inner:  inner,
		path:   fpath,
		signal: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Path returns the configuration file path this Watcher was constructed
// with, so a reload handler can re-read the same file that changed.
func (w *Watcher) Path() string {
	return w.path
}

func (w *Watcher) run() {
	defer close(w.done)

outer:
	for {
		select {
		case event, ok := <-w.inner.Events:
			if !ok {
				break outer
			}
			if event.Op&fsnotify.Write == fsnotify.Write {
				// give the writer time to finish before re-reading.
				time.Sleep(10 * time.Millisecond)
				w.signal <- struct{}{}
			}

		case _, ok := <-w.inner.Errors:
			if !ok {
				break outer
			}
		}
	}

	close(w.signal)
}

// Watch returns the channel that receives a value after each reload-worthy
// write to the watched file.
func (w *Watcher) Watch() chan struct{} {
	return w.signal
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() {
	go func() {
		for range w.signal {
		}
	}()
	w.inner.Close()
	<-w.done
}
