// Package app provides the tracker's run loop, controls, and events.
package app

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"marker-tracker/internal/config"
	"marker-tracker/internal/markers"
	"marker-tracker/internal/params"
	"marker-tracker/internal/pipeline"
	"marker-tracker/internal/prefs"
	"marker-tracker/internal/vision"
)

const (
	// How often marker range files are checked for edits.
	markerCheckInterval = time.Second
	// Without -verbose the tracked position is logged at most this often.
	selectionLogInterval = time.Second
	// A frame error identical to the previous one is logged at most this often.
	frameErrorLogInterval = 5 * time.Second
)

// State holds the long-lived tracker state shared by the run loop and the
// controls.
type State struct {
	mu sync.RWMutex

	Session  string // Random id tagging this run's log lines and snapshots
	Config   config.Config
	Store    *params.Store
	Pipeline *pipeline.Pipeline

	// Prefs is nil when persistence is disabled.
	Prefs *prefs.Prefs
	// Watcher is nil when every marker is configured inline.
	Watcher *markers.Watcher

	// Counters
	Frames   int
	Failures int

	lastSelectionLog time.Time
	lastFrameErr     string
	lastFrameErrLog  time.Time
	suppressed       int
	now              func() time.Time

	// Event listeners
	listeners map[EventType][]EventListener
}

// EventType identifies different tracker events.
type EventType int

const (
	EventParamsChanged EventType = iota
	EventMarkersReloaded
	EventSnapshotSaved
	EventFrameFailed
)

func (e EventType) String() string {
	switch e {
	case EventParamsChanged:
		return "params-changed"
	case EventMarkersReloaded:
		return "markers-reloaded"
	case EventSnapshotSaved:
		return "snapshot-saved"
	case EventFrameFailed:
		return "frame-failed"
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// EventListener is called when an event occurs.
type EventListener func(data interface{})

// NewState loads markers and saved parameters and builds the pipeline.
func NewState(cfg config.Config, lib vision.Library) (*State, error) {
	pair, err := cfg.MarkerPair()
	if err != nil {
		return nil, err
	}

	s := &State{
		Session:   uuid.NewString(),
		Config:    cfg,
		now:       time.Now,
		listeners: make(map[EventType][]EventListener),
	}

	initial := cfg.Params
	switch cfg.PrefsPath {
	case "-":
	case "":
		s.Prefs = prefs.Load(prefs.DefaultPath())
	default:
		s.Prefs = prefs.Load(cfg.PrefsPath)
	}
	if s.Prefs != nil {
		initial = s.Prefs.Parameters(initial)
	}

	s.Store, err = params.NewStore(initial)
	if err != nil {
		return nil, err
	}
	s.Store.OnChange(func(p params.Parameters) {
		log.Printf("Params: %s", p)
		if s.Prefs != nil {
			s.Prefs.SetParameters(p)
		}
		s.Emit(EventParamsChanged, p)
	})

	s.Pipeline, err = pipeline.New(lib, pair,
		pipeline.WithMirror(cfg.Mirror),
		pipeline.WithVerbose(cfg.Verbose))
	if err != nil {
		return nil, err
	}

	if files := cfg.MarkerFiles(); len(files) > 0 {
		s.Watcher = markers.NewWatcher(markerCheckInterval, files...)
	}
	return s, nil
}

// On registers an event listener for the specified event type.
func (s *State) On(event EventType, listener EventListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[event] = append(s.listeners[event], listener)
}

// Emit calls every listener registered for event.
func (s *State) Emit(event EventType, data interface{}) {
	s.mu.RLock()
	listeners := append([]EventListener(nil), s.listeners[event]...)
	s.mu.RUnlock()

	for _, l := range listeners {
		l(data)
	}
}

// CheckMarkers reloads the marker ranges when a range file changed.
// A file that no longer parses is logged and the old ranges stay active.
func (s *State) CheckMarkers() {
	if s.Watcher == nil || !s.Watcher.Changed() {
		return
	}
	pair, err := s.Config.MarkerPair()
	if err == nil {
		err = s.Pipeline.SetMarkers(pair)
	}
	if err != nil {
		log.Printf("Markers: keeping previous ranges: %v", err)
		return
	}
	log.Printf("Markers: reloaded %s / %s", pair[0], pair[1])
	s.Emit(EventMarkersReloaded, pair)
}

// RecordFrame updates the frame counters. A non-nil err is emitted and
// logged; a repeat of the previous error is logged at most once per
// frameErrorLogInterval with a count of the repeats skipped.
func (s *State) RecordFrame(err error) {
	s.mu.Lock()
	s.Frames++
	if err == nil {
		s.mu.Unlock()
		return
	}
	s.Failures++
	msg := err.Error()
	now := s.now()
	logIt := msg != s.lastFrameErr || now.Sub(s.lastFrameErrLog) >= frameErrorLogInterval
	skipped := s.suppressed
	if logIt {
		s.lastFrameErr = msg
		s.lastFrameErrLog = now
		s.suppressed = 0
	} else {
		s.suppressed++
	}
	s.mu.Unlock()

	if logIt {
		if skipped > 0 {
			log.Printf("Frame: %v (%d repeats not logged)", err, skipped)
		} else {
			log.Printf("Frame: %v", err)
		}
	}
	s.Emit(EventFrameFailed, err)
}

// Counts returns the processed and failed frame counts.
func (s *State) Counts() (frames, failures int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Frames, s.Failures
}

// SavePrefs writes changed parameters to disk.
func (s *State) SavePrefs() error {
	if s.Prefs == nil {
		return nil
	}
	return errors.Wrap(s.Prefs.SaveIfChanged(), "save preferences")
}

// logSelection logs the tracked position, rate limited. Verbose runs
// already log every frame from the pipeline.
func (s *State) logSelection(res *pipeline.Result) {
	if s.Config.Verbose || res.Position == nil {
		return
	}
	now := s.now()
	if now.Sub(s.lastSelectionLog) < selectionLogInterval {
		return
	}
	s.lastSelectionLog = now
	log.Printf("Tracker: position (%.0f, %.0f) score %.3f",
		res.Position.X, res.Position.Y, res.Selection.Best.Score.Aggregate)
}

// SnapshotPath returns a fresh file name for a debug-grid snapshot in dir.
func SnapshotPath(dir string) string {
	return filepath.Join(dir, fmt.Sprintf("snapshot-%s.png", uuid.NewString()))
}
