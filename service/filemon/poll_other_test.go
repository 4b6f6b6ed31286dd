//go:build !linux

package filemon

import (
	"sync"
	"testing"
	"time"

	"github.com/arolang/runtime"
	"github.com/arolang/runtime/eventbus"
)

func TestDiffDetectsCreatedModifiedAndDeleted(t *testing.T) {
	t0 := time.Now()
	prev := map[string]fileState{
		"a.txt": {modTime: t0},
		"b.txt": {modTime: t0},
	}
	next := map[string]fileState{
		"a.txt": {modTime: t0},                 // unchanged
		"b.txt": {modTime: t0.Add(time.Second)}, // modified
		"c.txt": {modTime: t0},                  // created
	}

	registry := aro.NewRegistry()
	aro.RegisterBuiltins(registry)
	bus := eventbus.New(eventbus.NewScheduler())

	var mu sync.Mutex
	var topics []string
	var wg sync.WaitGroup
	wg.Add(3)
	for _, topic := range []string{"FileCreated", "FileModified", "FileDeleted"} {
		bus.Subscribe(topic, func(ctx *aro.Context, evt aro.Event) error {
			mu.Lock()
			topics = append(topics, evt.Topic)
			mu.Unlock()
			wg.Done()
			return nil
		})
	}

	w := NewWatcher("/tmp")
	w.NewContext = func() *aro.Context {
		return aro.NewContext(nil, "test", registry, bus, nil, nil, nil)
	}

	diff(prev, next, w)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected three events (created, modified, deleted)")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(topics) != 3 {
		t.Fatalf("got %d events, want 3: %v", len(topics), topics)
	}
}
