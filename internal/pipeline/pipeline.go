// Package pipeline runs the per-frame marker tracking stages: segment,
// clean, extract blobs, pair, and annotate.
package pipeline

import (
	"fmt"
	"log"

	"github.com/pkg/errors"

	"marker-tracker/internal/blob"
	"marker-tracker/internal/compositor"
	"marker-tracker/internal/markers"
	"marker-tracker/internal/pairing"
	"marker-tracker/internal/params"
	"marker-tracker/internal/vision"
	"marker-tracker/pkg/geometry"
)

// Stage names, in emission order.
const (
	StageInput   = "input"
	StageSegment = "segment"
	StageClose   = "close"
	StageBlobs   = "blobs"
	StageResult  = "result"
)

// StageNames lists every stage the pipeline emits, in order. Every
// successful Process call emits exactly these stages.
var StageNames = []string{StageInput, StageSegment, StageClose, StageBlobs, StageResult}

// ErrUpstreamIO marks a failure of the image-processing collaborator.
// The frame is abandoned; the caller decides whether to continue.
var ErrUpstreamIO = errors.New("upstream image processing failed")

// ParamSource supplies the tuning parameters. It is read once per frame.
type ParamSource interface {
	Snapshot() params.Parameters
}

// Result is everything one frame produced. Close releases its images.
type Result struct {
	Stages    []compositor.Stage
	Blobs     [markers.Count][]blob.Record
	Selection pairing.Selection
	// Position is the midpoint of the selected pair, nil when no pair
	// was accepted.
	Position *geometry.Point2D
	Params   params.Parameters
}

// Close releases every stage image.
func (r *Result) Close() error {
	if r == nil {
		return nil
	}
	err := compositor.CloseStages(r.Stages)
	r.Stages = nil
	return err
}

// Pipeline holds the per-run configuration. It is not safe for
// concurrent use; frames are processed one at a time.
type Pipeline struct {
	lib     vision.Library
	markers markers.Pair
	mirror  bool
	verbose bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMirror flips the input horizontally before processing, so the
// debug view behaves like a mirror for a user facing the camera.
func WithMirror(mirror bool) Option {
	return func(p *Pipeline) { p.mirror = mirror }
}

// WithVerbose logs per-frame blob counts and selections.
func WithVerbose(verbose bool) Option {
	return func(p *Pipeline) { p.verbose = verbose }
}

// New creates a pipeline for the given marker pair.
func New(lib vision.Library, pair markers.Pair, opts ...Option) (*Pipeline, error) {
	if err := pair.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{lib: lib, markers: pair, mirror: true}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Markers returns the marker ranges in use.
func (p *Pipeline) Markers() markers.Pair {
	return p.markers
}

// SetMarkers replaces the marker ranges used from the next frame on.
func (p *Pipeline) SetMarkers(pair markers.Pair) error {
	if err := pair.Validate(); err != nil {
		return err
	}
	p.markers = pair
	return nil
}

// Process runs every stage over one frame. The frame is not modified and
// remains owned by the caller. An empty blob set or a rejected pairing is
// not an error: the result then has a nil Position but all stages.
func (p *Pipeline) Process(frame vision.Image, width, height int, source ParamSource) (*Result, error) {
	if w, h := p.lib.Size(frame); w != width || h != height {
		return nil, errors.Errorf("frame is %dx%d, expected %dx%d", w, h, width, height)
	}

	f := &frameRun{
		p:      p,
		width:  width,
		height: height,
		res:    &Result{Params: source.Snapshot()},
	}
	defer f.closeTemps()

	if err := f.run(frame); err != nil {
		f.res.Close()
		return nil, err
	}
	return f.res, nil
}

// frameRun tracks one frame's intermediate images.
type frameRun struct {
	p      *Pipeline
	width  int
	height int
	res    *Result
	temps  []vision.Image
}

func (f *frameRun) temp(img vision.Image) vision.Image {
	f.temps = append(f.temps, img)
	return img
}

func (f *frameRun) closeTemps() {
	vision.CloseAll(f.temps...)
	f.temps = nil
}

func (f *frameRun) emit(name string, images ...vision.Image) {
	f.res.Stages = append(f.res.Stages, compositor.Stage{Name: name, Images: images})
}

func upstream(stage string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUpstreamIO, stage, err)
}

func (f *frameRun) run(frame vision.Image) error {
	lib := f.p.lib
	prm := f.res.Params

	var input vision.Image
	var err error
	if f.p.mirror {
		input, err = lib.Mirror(frame)
	} else {
		input, err = lib.Clone(frame)
	}
	if err != nil {
		return upstream(StageInput, err)
	}
	f.emit(StageInput, input)

	// Segment each marker color.
	hsv, err := lib.ConvertColor(input, vision.BGRToHSV)
	if err != nil {
		return upstream(StageSegment, err)
	}
	f.temp(hsv)

	var masks [markers.Count]vision.Image
	segment := make([]vision.Image, 0, markers.Count)
	for i, m := range f.p.markers {
		mask, err := lib.InRange(hsv, m.Low, m.High)
		if err != nil {
			return upstream(StageSegment, errors.Wrap(err, m.Name))
		}
		masks[i] = f.temp(mask)

		display, err := f.display(hsv, mask)
		if err != nil {
			f.emit(StageSegment, segment...)
			return upstream(StageSegment, errors.Wrap(err, m.Name))
		}
		segment = append(segment, display)
	}
	f.emit(StageSegment, segment...)

	// Close small gaps.
	var closed [markers.Count]vision.Image
	closeStage := make([]vision.Image, 0, markers.Count)
	for i := range masks {
		c, err := lib.MorphClose(masks[i], prm.CloseKernelSize, prm.CloseIterations)
		if err != nil {
			f.emit(StageClose, closeStage...)
			return upstream(StageClose, err)
		}
		closed[i] = f.temp(c)

		bgr, err := lib.ConvertColor(c, vision.GrayToBGR)
		if err != nil {
			f.emit(StageClose, closeStage...)
			return upstream(StageClose, err)
		}
		closeStage = append(closeStage, bgr)
	}
	f.emit(StageClose, closeStage...)

	// Label and filter.
	blobStage := make([]vision.Image, 0, markers.Count)
	for i := range closed {
		labeling, err := lib.LabelComponents(closed[i])
		if err != nil {
			f.emit(StageBlobs, blobStage...)
			return upstream(StageBlobs, err)
		}
		f.temp(labeling.Labels)

		f.res.Blobs[i] = blob.FromStats(labeling.Stats, prm.MinBlobArea)

		kept, err := f.survivors(labeling.Labels, f.res.Blobs[i])
		if err != nil {
			f.emit(StageBlobs, blobStage...)
			return upstream(StageBlobs, err)
		}
		blobStage = append(blobStage, kept)
	}
	f.emit(StageBlobs, blobStage...)

	// Pair.
	sel, err := pairing.SelectBest(f.res.Blobs[0], f.res.Blobs[1], prm)
	if err != nil {
		return errors.Wrap(err, "pairing")
	}
	f.res.Selection = sel
	if sel.Best != nil {
		pos := sel.Best.Position()
		f.res.Position = &pos
	}

	result, err := lib.Clone(input)
	if err != nil {
		return upstream(StageResult, err)
	}
	f.emit(StageResult, result)
	if err := compositor.Annotate(lib, result, sel, prm.SimilarityCap); err != nil {
		return upstream(StageResult, err)
	}

	if f.p.verbose {
		f.logFrame()
	}
	return nil
}

// display shows the input pixels that fall inside a marker's mask.
func (f *frameRun) display(hsv, mask vision.Image) (vision.Image, error) {
	masked, err := f.p.lib.Masked(hsv, mask)
	if err != nil {
		return nil, err
	}
	defer masked.Close()
	return f.p.lib.ConvertColor(masked, vision.HSVToBGR)
}

// survivors renders only the components that passed the area filter.
func (f *frameRun) survivors(labels vision.Image, records []blob.Record) (vision.Image, error) {
	lib := f.p.lib

	var combined vision.Image
	if len(records) == 0 {
		blank, err := lib.Blank(f.width, f.height, 1)
		if err != nil {
			return nil, err
		}
		combined = blank
	} else {
		masks := make([]vision.Image, 0, len(records))
		defer func() { vision.CloseAll(masks...) }()
		for _, r := range records {
			m, err := lib.LabelMask(labels, r.Label)
			if err != nil {
				return nil, err
			}
			masks = append(masks, m)
		}
		c, err := lib.CombineMasks(masks, vision.OpOr)
		if err != nil {
			return nil, err
		}
		combined = c
	}
	defer combined.Close()

	return lib.ConvertColor(combined, vision.GrayToBGR)
}

func (f *frameRun) logFrame() {
	r := f.res
	if r.Position == nil {
		log.Printf("Pipeline: blobs %d/%d, %d pairs evaluated, none accepted (cap %.2f)",
			len(r.Blobs[0]), len(r.Blobs[1]), r.Selection.Evaluated, r.Params.SimilarityCap)
		return
	}
	best := r.Selection.Best
	log.Printf("Pipeline: blobs %d/%d, pair %s + %s score %.3f [%s] at (%.0f, %.0f)",
		len(r.Blobs[0]), len(r.Blobs[1]), best.Upper, best.Lower,
		best.Score.Aggregate, best.Score.Components, r.Position.X, r.Position.Y)
}
