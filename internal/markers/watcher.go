package markers

import (
	"os"
	"time"
)

// Watcher notices when range files are rewritten, e.g. by the calibrate
// tool while the tracker is running. It polls modification times from
// the caller's loop; there is no background goroutine.
type Watcher struct {
	paths         []string
	modTimes      []time.Time
	checkInterval time.Duration
	lastCheck     time.Time
	now           func() time.Time
}

// NewWatcher records the current modification times of paths.
// Paths that cannot be stat'ed are watched for appearance.
func NewWatcher(checkInterval time.Duration, paths ...string) *Watcher {
	w := &Watcher{
		paths:         paths,
		modTimes:      make([]time.Time, len(paths)),
		checkInterval: checkInterval,
		now:           time.Now,
	}
	for i, p := range paths {
		w.modTimes[i] = modTime(p)
	}
	w.lastCheck = w.now()
	return w
}

// Changed reports whether any file was modified since the previous
// positive result. It touches the filesystem at most once per interval.
func (w *Watcher) Changed() bool {
	now := w.now()
	if now.Sub(w.lastCheck) < w.checkInterval {
		return false
	}
	w.lastCheck = now

	changed := false
	for i, p := range w.paths {
		mt := modTime(p)
		if mt.After(w.modTimes[i]) {
			w.modTimes[i] = mt
			changed = true
		}
	}
	return changed
}

func modTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
