// Package filemon implements the File Monitor of spec §4.8: a
// platform-specific backend (inotify on Linux, polling elsewhere)
// presenting the same FileCreated/FileModified/FileDeleted event stream
// regardless of platform. FileRenamed comes only from the inotify
// backend; the polling backend reports a rename as FileDeleted for the
// old name plus FileCreated for the new one.
package filemon

import (
	"path/filepath"
	"sync"

	"github.com/arolang/runtime"
)

// Watcher monitors one directory and publishes file events to an event
// bus. The platform-specific backend (see inotify_linux.go / poll_other.go)
// supplies the actual detection loop via runBackend.
type Watcher struct {
	Path       string
	NewContext func() *aro.Context

	stop  chan struct{}
	wg    sync.WaitGroup
	close func() // set by the platform backend to unblock a pending read on Stop
}

func NewWatcher(path string) *Watcher {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return &Watcher{Path: abs, stop: make(chan struct{})}
}

// Start resolves Path against the current working directory if relative
// (spec §4.8 "paths are resolved against the current working directory
// if relative" — done in NewWatcher) and begins the platform backend.
func (w *Watcher) Start() error {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		runBackend(w)
	}()
	return nil
}

func (w *Watcher) Stop() error {
	close(w.stop)
	if w.close != nil {
		w.close()
	}
	w.wg.Wait()
	return nil
}

func (w *Watcher) publish(topic, name, oldName string) {
	if w.NewContext == nil {
		return
	}
	ctx := w.NewContext()
	evt := aro.NewOrderedMap()
	evt.Set("path", aro.String(filepath.Join(w.Path, name)))
	if oldName != "" {
		evt.Set("oldPath", aro.String(filepath.Join(w.Path, oldName)))
	}
	ctx.EventBus().Publish(ctx, aro.Event{Topic: topic, Payload: aro.Map(evt)})
}
