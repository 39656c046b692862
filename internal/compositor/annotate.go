package compositor

import (
	"fmt"

	"github.com/pkg/errors"

	"marker-tracker/internal/pairing"
	"marker-tracker/internal/params"
	"marker-tracker/internal/scoring"
	"marker-tracker/internal/vision"
	"marker-tracker/pkg/colorutil"
	"marker-tracker/pkg/geometry"
)

// Overlay styling.
const (
	candidateThickness = 2
	candidateDot       = 4
	selectedThickness  = 5
	markerSize         = 50
	markerThickness    = 10
	scoreTextScale     = 0.6
	breakdownTextScale = 0.7
	lineHeight         = 28
)

// Annotate draws the pairing outcome onto dst: every accepted candidate
// in a red→green confidence color, the selected pair in blue with a
// cross at its midpoint, and the score breakdown of the selected pair.
func Annotate(lib vision.Library, dst vision.Image, sel pairing.Selection, similarityCap float64) error {
	for i, c := range sel.Accepted {
		if sel.Best != nil && sameCandidate(c, *sel.Best) {
			continue
		}
		col := colorutil.Confidence(c.Score.Aggregate, similarityCap)
		for _, b := range []geometry.RectInt{c.Upper.BBox, c.Lower.BBox} {
			if err := lib.DrawRectangle(dst, b, col, candidateThickness); err != nil {
				return errors.Wrapf(err, "candidate %d", i)
			}
		}
		if err := lib.DrawCircle(dst, c.Position().Round(), candidateDot, col, -1); err != nil {
			return errors.Wrapf(err, "candidate %d", i)
		}
		at := geometry.PointInt{X: c.Upper.BBox.X, Y: c.Upper.BBox.Y - 6}
		if err := lib.DrawText(dst, fmt.Sprintf("%.2f", c.Score.Aggregate), at, scoreTextScale, col, 1); err != nil {
			return errors.Wrapf(err, "candidate %d", i)
		}
	}

	if sel.Best == nil {
		return lib.DrawText(dst, fmt.Sprintf("no pair (%d evaluated)", sel.Evaluated),
			geometry.PointInt{X: labelInset, Y: 2 * lineHeight}, breakdownTextScale, colorutil.Yellow, 2)
	}

	best := sel.Best
	for _, b := range []geometry.RectInt{best.Upper.BBox, best.Lower.BBox} {
		if err := lib.DrawRectangle(dst, b, colorutil.Blue, selectedThickness); err != nil {
			return errors.Wrap(err, "selected pair")
		}
	}
	if err := lib.DrawMarker(dst, best.Position().Round(), colorutil.Blue, markerSize, markerThickness); err != nil {
		return errors.Wrap(err, "position marker")
	}

	lines := []string{fmt.Sprintf("score %.3f", best.Score.Aggregate)}
	for _, pc := range params.Components {
		c := best.Score.Components.Get(pc)
		line := fmt.Sprintf("%-9s %6.3f", pc, c.Value)
		if c.Penalized {
			line += fmt.Sprintf(" x%.2f", scoring.PenaltyFactor)
		}
		lines = append(lines, line)
	}
	for i, line := range lines {
		at := geometry.PointInt{X: labelInset, Y: (i + 2) * lineHeight}
		if err := lib.DrawText(dst, line, at, breakdownTextScale, colorutil.Confidence(best.Score.Aggregate, similarityCap), 2); err != nil {
			return errors.Wrap(err, "score breakdown")
		}
	}
	return nil
}

func sameCandidate(a, b pairing.Candidate) bool {
	return a.Index0 == b.Index0 && a.Index1 == b.Index1
}
