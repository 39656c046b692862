// Package scoring rates how likely two blobs are the two halves of a
// stacked marker pair.
package scoring

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"marker-tracker/internal/blob"
	"marker-tracker/internal/params"
)

const (
	// PenaltyThreshold is the component value below which a weighted
	// component discounts the aggregate.
	PenaltyThreshold = 0.3
	// PenaltyFactor multiplies the aggregate once per offending component.
	PenaltyFactor = 0.75
)

// ErrDegenerateInput is returned when a score would divide by zero:
// all weights zero, or a blob with no area or an empty bounding box.
var ErrDegenerateInput = errors.New("degenerate scoring input")

// Component is one similarity axis of a score.
type Component struct {
	Value     float64 `json:"value"`
	Penalized bool    `json:"penalized"`
}

// Components holds the per-axis breakdown of a score.
type Components [params.NumComponents]Component

// Get returns the breakdown entry for c.
func (cs Components) Get(c params.Component) Component {
	return cs[c]
}

// Values returns the raw component values in scoring order.
func (cs Components) Values() []float64 {
	v := make([]float64, len(cs))
	for i, c := range cs {
		v[i] = c.Value
	}
	return v
}

// Penalties counts penalized components.
func (cs Components) Penalties() int {
	n := 0
	for _, c := range cs {
		if c.Penalized {
			n++
		}
	}
	return n
}

func (cs Components) String() string {
	return fmt.Sprintf("area=%.2f%s xpos=%.2f%s ytoh=%.2f%s square=%.2f%s",
		cs[params.AreaSimilarity].Value, mark(cs[params.AreaSimilarity]),
		cs[params.XAlignment].Value, mark(cs[params.XAlignment]),
		cs[params.YDistanceToHeight].Value, mark(cs[params.YDistanceToHeight]),
		cs[params.Squareness].Value, mark(cs[params.Squareness]))
}

func mark(c Component) string {
	if c.Penalized {
		return "!"
	}
	return ""
}

// Result is the aggregate similarity plus its breakdown.
type Result struct {
	Aggregate  float64    `json:"aggregate"`
	Components Components `json:"components"`
}

// ValidateWeights fails with ErrDegenerateInput when no weight is set.
func ValidateWeights(p params.Parameters) error {
	if floats.Sum(p.Weights[:]) <= 0 {
		return errors.Wrap(ErrDegenerateInput, "component weights sum to zero")
	}
	return nil
}

// Score compares two blobs. b0 is expected to be the upper blob of the
// pair (smaller centroid y) and b1 the lower one; the squareness term
// relates the upper blob's width to the lower blob's height.
//
// The aggregate is the weighted mean of the four components, multiplied
// by PenaltyFactor once for every component with a non-zero weight whose
// value is below PenaltyThreshold.
func Score(b0, b1 blob.Record, p params.Parameters) (Result, error) {
	if err := ValidateWeights(p); err != nil {
		return Result{}, err
	}
	if err := checkBlob(b0); err != nil {
		return Result{}, err
	}
	if err := checkBlob(b1); err != nil {
		return Result{}, err
	}

	var cs Components
	cs[params.AreaSimilarity].Value = blob.Similarity(float64(b0.Area), float64(b1.Area))
	cs[params.XAlignment].Value = xAlignment(b0, b1)
	cs[params.YDistanceToHeight].Value = blob.Similarity(
		abs(b0.Centroid.Y-b1.Centroid.Y),
		(float64(b0.Height())+float64(b1.Height()))/2,
	)
	cs[params.Squareness].Value = blob.Similarity(float64(b0.Width())/float64(b1.Height()), 1)

	aggregate := stat.Mean(cs.Values(), p.Weights[:])
	for i := range cs {
		if p.Weights[i] > 0 && cs[i].Value < PenaltyThreshold {
			cs[i].Penalized = true
			aggregate *= PenaltyFactor
		}
	}

	return Result{Aggregate: aggregate, Components: cs}, nil
}

// xAlignment compares centroid x only for blobs sharing a column range;
// blobs in unrelated lanes score 0.
func xAlignment(b0, b1 blob.Record) float64 {
	if !b0.BBox.OverlapsX(b1.BBox) {
		return 0
	}
	return blob.Similarity(b0.Centroid.X, b1.Centroid.X)
}

func checkBlob(b blob.Record) error {
	if b.Area < 1 {
		return errors.Wrapf(ErrDegenerateInput, "blob %d has area %d", b.Label, b.Area)
	}
	if b.BBox.Empty() {
		return errors.Wrapf(ErrDegenerateInput, "blob %d has empty bounding box %dx%d",
			b.Label, b.BBox.Width, b.BBox.Height)
	}
	return nil
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
