//go:build linux

package filemon

import (
	"log/slog"
	"unsafe"

	"golang.org/x/sys/unix"
)

// runBackend implements spec §4.8's Linux path: inotify with
// IN_CREATE | IN_DELETE | IN_MODIFY | IN_MOVED_FROM | IN_MOVED_TO.
// MOVED_FROM/MOVED_TO pairs sharing a cookie are correlated into a single
// FileRenamed event; an unpaired MOVED_FROM (the file moved outside the
// watched directory) is reported as FileDeleted, an unpaired MOVED_TO as
// FileCreated.
func runBackend(w *Watcher) {
	fd, err := unix.InotifyInit1(0)
	if err != nil {
		slog.Error("service/filemon: inotify_init1 failed", "error", err)
		return
	}
	w.close = func() { unix.Close(fd) }
	defer unix.Close(fd)

	const mask = unix.IN_CREATE | unix.IN_DELETE | unix.IN_MODIFY | unix.IN_MOVED_FROM | unix.IN_MOVED_TO
	wd, err := unix.InotifyAddWatch(fd, w.Path, mask)
	if err != nil {
		slog.Error("service/filemon: inotify_add_watch failed", "path", w.Path, "error", err)
		return
	}
	defer unix.InotifyRmWatch(fd, uint32(wd))

	pendingMoveFrom := make(map[uint32]string)
	buf := make([]byte, 4096)

	for {
		n, err := unix.Read(fd, buf)
		if err != nil || n <= 0 {
			// Stop() closes fd, which unblocks Read with an error here.
			return
		}
		offset := 0
		for offset+unix.SizeofInotifyEvent <= n {
			raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
			nameStart := offset + unix.SizeofInotifyEvent
			nameLen := int(raw.Len)
			name := ""
			if nameLen > 0 {
				name = cString(buf[nameStart : nameStart+nameLen])
			}
			offset = nameStart + nameLen

			switch {
			case raw.Mask&unix.IN_CREATE != 0:
				w.publish("FileCreated", name, "")
			case raw.Mask&unix.IN_MODIFY != 0:
				w.publish("FileModified", name, "")
			case raw.Mask&unix.IN_DELETE != 0:
				w.publish("FileDeleted", name, "")
			case raw.Mask&unix.IN_MOVED_FROM != 0:
				pendingMoveFrom[raw.Cookie] = name
			case raw.Mask&unix.IN_MOVED_TO != 0:
				if oldName, ok := pendingMoveFrom[raw.Cookie]; ok {
					delete(pendingMoveFrom, raw.Cookie)
					w.publish("FileRenamed", name, oldName)
				} else {
					w.publish("FileCreated", name, "")
				}
			}
		}
		// A MOVED_FROM whose MOVED_TO did not arrive in the same read
		// left the watched directory.
		for cookie, oldName := range pendingMoveFrom {
			delete(pendingMoveFrom, cookie)
			w.publish("FileDeleted", oldName, "")
		}

		select {
		case <-w.stop:
			return
		default:
		}
	}
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
