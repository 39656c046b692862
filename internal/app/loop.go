package app

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"marker-tracker/internal/compositor"
	"marker-tracker/internal/vision"
	"marker-tracker/internal/vision/cv"
)

// ErrCapture is returned when the camera stops delivering frames.
var ErrCapture = errors.New("capture failed")

// Action is what a key press asks the loop to do.
type Action int

const (
	ActionNone Action = iota
	ActionQuit
	ActionSnapshot
	ActionPrintParams
)

const keyEscape = 27

// KeyAction maps a WaitKey result to an action.
func KeyAction(key int) Action {
	if key < 0 {
		return ActionNone
	}
	switch key & 0xff {
	case 'q', keyEscape:
		return ActionQuit
	case 's':
		return ActionSnapshot
	case 'p':
		return ActionPrintParams
	}
	return ActionNone
}

// ProcessFrame runs the pipeline over frame and renders the debug grid.
// The caller owns the returned grid.
func (s *State) ProcessFrame(lib vision.Library, frame vision.Image) (vision.Image, error) {
	w, h := lib.Size(frame)
	res, err := s.Pipeline.Process(frame, w, h, s.Store)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	s.logSelection(res)
	return compositor.Render(lib, res.Stages, w, h)
}

// Run opens the camera and processes frames until ctx is cancelled, the
// user quits, or the camera fails. Per-frame errors are logged and the
// loop continues.
func Run(ctx context.Context, s *State, lib *cv.GoCV) error {
	cfg := s.Config
	capture, err := gocv.VideoCaptureDevice(cfg.Camera)
	if err != nil {
		return errors.Wrapf(ErrCapture, "open camera %d: %v", cfg.Camera, err)
	}
	defer capture.Close()

	window := gocv.NewWindow(cfg.Window)
	defer window.Close()
	panel := gocv.NewWindow(cfg.Window + " controls")
	defer panel.Close()

	controls := NewControls(func(name string, max int) Slider {
		return panel.CreateTrackbar(name, max)
	}, s.Store)

	log.Printf("Tracker: session %s", s.Session)
	log.Printf("Tracker: camera %d, %.0fx%.0f, markers %s / %s",
		cfg.Camera,
		capture.Get(gocv.VideoCaptureFrameWidth),
		capture.Get(gocv.VideoCaptureFrameHeight),
		s.Pipeline.Markers()[0], s.Pipeline.Markers()[1])
	log.Printf("Tracker: %s", s.Store.Snapshot())

	defer func() {
		if err := s.SavePrefs(); err != nil {
			log.Printf("Tracker: %v", err)
		}
		frames, failures := s.Counts()
		log.Printf("Tracker: %d frames, %d failed", frames, failures)
	}()

	frame := gocv.NewMat()
	defer frame.Close()

	for ctx.Err() == nil {
		if ok := capture.Read(&frame); !ok || frame.Empty() {
			return errors.Wrapf(ErrCapture, "camera %d read", cfg.Camera)
		}

		controls.Sync(s.Store)
		s.CheckMarkers()

		grid, err := s.ProcessFrame(lib, cv.WrapMat(frame))
		s.RecordFrame(err)
		if err != nil {
			if KeyAction(window.WaitKey(1)) == ActionQuit {
				return nil
			}
			continue
		}

		window.IMShow(grid.(*cv.Mat).Mat())
		action := KeyAction(window.WaitKey(1))
		if action == ActionSnapshot {
			s.snapshot(grid.(*cv.Mat).Mat())
		}
		grid.Close()

		switch action {
		case ActionQuit:
			return nil
		case ActionPrintParams:
			log.Printf("Tracker: %s", s.Store.Snapshot())
		}
	}
	return nil
}

func (s *State) snapshot(grid gocv.Mat) {
	dir := s.Config.SnapshotDir
	path := SnapshotPath(filepath.Join(dir, s.Session))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Printf("Snapshot: %v", err)
		return
	}
	if !gocv.IMWrite(path, grid) {
		log.Printf("Snapshot: write %s failed", path)
		return
	}
	log.Printf("Snapshot: %s", path)
	s.Emit(EventSnapshotSaved, path)
	if err := s.SavePrefs(); err != nil {
		log.Printf("Snapshot: %v", err)
	}
}
