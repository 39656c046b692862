// Package compositor lays out the pipeline's debug stages into a single
// labeled grid and draws the pairing overlay onto the result frame.
package compositor

import (
	"fmt"

	"github.com/pkg/errors"

	"marker-tracker/internal/vision"
	"marker-tracker/pkg/colorutil"
	"marker-tracker/pkg/geometry"
)

// Stage is one named pipeline step and the images it produced.
type Stage struct {
	Name   string
	Images []vision.Image
}

// Cell is one grid slot.
type Cell struct {
	Stage int    // Row: index of the stage in emission order
	Image int    // Column: index of the image within the stage
	Label string // Text drawn into the cell
	Rect  geometry.RectInt
}

// Grid is a computed layout. Every cell has the size of the input frame.
type Grid struct {
	Rows       int
	Cols       int
	CellWidth  int
	CellHeight int
	Cells      []Cell
}

// Width returns the canvas width.
func (g Grid) Width() int { return g.Cols * g.CellWidth }

// Height returns the canvas height.
func (g Grid) Height() int { return g.Rows * g.CellHeight }

const (
	labelScale     = 1.0
	labelThickness = 2
	labelInset     = 10
	labelBaseline  = 35
)

// Layout places stage i on row i and its images on consecutive columns,
// preserving emission order. The stage and image counts are all that
// matter; cell size is fixed to the frame size.
func Layout(stages []Stage, frameWidth, frameHeight int) (Grid, error) {
	if frameWidth <= 0 || frameHeight <= 0 {
		return Grid{}, errors.Errorf("invalid frame size %dx%d", frameWidth, frameHeight)
	}

	g := Grid{
		Rows:       len(stages),
		Cols:       1,
		CellWidth:  frameWidth,
		CellHeight: frameHeight,
	}
	for _, s := range stages {
		if len(s.Images) > g.Cols {
			g.Cols = len(s.Images)
		}
	}

	for si, s := range stages {
		for ii := range s.Images {
			g.Cells = append(g.Cells, Cell{
				Stage: si,
				Image: ii,
				Label: cellLabel(si, ii, len(s.Images), s.Name),
				Rect:  geometry.NewRectInt(ii*frameWidth, si*frameHeight, frameWidth, frameHeight),
			})
		}
	}
	return g, nil
}

func cellLabel(stage, image, count int, name string) string {
	if count > 1 {
		return fmt.Sprintf("%d.%d %s", stage+1, image+1, name)
	}
	return fmt.Sprintf("%d %s", stage+1, name)
}

// Render composes the stages onto a new canvas. Empty slots stay black.
// The caller owns the returned image.
func Render(lib vision.Library, stages []Stage, frameWidth, frameHeight int) (vision.Image, error) {
	g, err := Layout(stages, frameWidth, frameHeight)
	if err != nil {
		return nil, err
	}
	if g.Rows == 0 {
		return nil, errors.New("no stages to render")
	}

	canvas, err := lib.Blank(g.Width(), g.Height(), 3)
	if err != nil {
		return nil, errors.Wrap(err, "allocating canvas")
	}

	for _, c := range g.Cells {
		img := stages[c.Stage].Images[c.Image]
		if w, h := lib.Size(img); w != c.Rect.Width || h != c.Rect.Height {
			canvas.Close()
			return nil, errors.Errorf("stage %q image %d is %dx%d, want %dx%d",
				stages[c.Stage].Name, c.Image, w, h, c.Rect.Width, c.Rect.Height)
		}
		if err := lib.Paste(canvas, img, c.Rect); err != nil {
			canvas.Close()
			return nil, errors.Wrapf(err, "pasting %s", c.Label)
		}
		at := geometry.PointInt{X: c.Rect.X + labelInset, Y: c.Rect.Y + labelBaseline}
		if err := lib.DrawText(canvas, c.Label, at, labelScale, colorutil.White, labelThickness); err != nil {
			canvas.Close()
			return nil, errors.Wrapf(err, "labeling %s", c.Label)
		}
	}
	return canvas, nil
}

// Names returns the stage names in order.
func Names(stages []Stage) []string {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name
	}
	return names
}

// CloseStages releases every stage image.
func CloseStages(stages []Stage) error {
	var first error
	for _, s := range stages {
		if err := vision.CloseAll(s.Images...); err != nil && first == nil {
			first = err
		}
	}
	return first
}
