//go:build !linux

package filemon

import (
	"os"
	"time"
)

// runBackend implements spec §4.8's "Other" path: 1-second polling,
// comparing directory listings and modification timestamps. macOS
// FSEvents is not implemented (see DESIGN.md); this fallback also covers
// macOS, trading latency for a single portable code path.
func runBackend(w *Watcher) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	known := snapshot(w.Path)

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			current := snapshot(w.Path)
			diff(known, current, w)
			known = current
		}
	}
}

type fileState struct {
	modTime time.Time
}

func snapshot(dir string) map[string]fileState {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return map[string]fileState{}
	}
	out := make(map[string]fileState, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		out[e.Name()] = fileState{modTime: info.ModTime()}
	}
	return out
}

func diff(prev, next map[string]fileState, w *Watcher) {
	for name, state := range next {
		if prevState, existed := prev[name]; !existed {
			w.publish("FileCreated", name, "")
		} else if !prevState.modTime.Equal(state.modTime) {
			w.publish("FileModified", name, "")
		}
	}
	for name := range prev {
		if _, stillThere := next[name]; !stillThere {
			w.publish("FileDeleted", name, "")
		}
	}
}
