package filemon

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/arolang/runtime"
	"github.com/arolang/runtime/eventbus"
)

func newTestWatcher(t *testing.T, dir string, bus *eventbus.Bus) *Watcher {
	t.Helper()
	registry := aro.NewRegistry()
	aro.RegisterBuiltins(registry)
	w := NewWatcher(dir)
	w.NewContext = func() *aro.Context {
		return aro.NewContext(nil, "test", registry, bus, nil, nil, nil)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { w.Stop() })
	return w
}

func TestWatcherEmitsFileCreated(t *testing.T) {
	dir := t.TempDir()
	bus := eventbus.New(eventbus.NewScheduler())
	var wg sync.WaitGroup
	wg.Add(1)
	var gotPath string
	bus.Subscribe("FileCreated", func(ctx *aro.Context, evt aro.Event) error {
		defer wg.Done()
		if v, ok := ctx.Resolve("event:path"); ok {
			gotPath = v.AsString()
		}
		return nil
	})

	newTestWatcher(t, dir, bus)
	// Give the backend time to install its watch before the file appears.
	time.Sleep(100 * time.Millisecond)

	target := filepath.Join(dir, "new-file.txt")
	if err := os.WriteFile(target, []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if waitTimeout(&wg, 3*time.Second) {
		t.Fatal("FileCreated was not published within timeout")
	}
	if gotPath != target {
		t.Errorf("path = %q, want %q", gotPath, target)
	}
}

func TestWatcherEmitsFileDeleted(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "to-delete.txt")
	if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	bus := eventbus.New(eventbus.NewScheduler())
	var wg sync.WaitGroup
	wg.Add(1)
	bus.Subscribe("FileDeleted", func(ctx *aro.Context, evt aro.Event) error {
		wg.Done()
		return nil
	})

	newTestWatcher(t, dir, bus)
	time.Sleep(100 * time.Millisecond)

	if err := os.Remove(target); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if waitTimeout(&wg, 3*time.Second) {
		t.Fatal("FileDeleted was not published within timeout")
	}
}

func waitTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return false
	case <-time.After(timeout):
		return true
	}
}
