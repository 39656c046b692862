// Package pairing picks the best-matching pair of blobs across the two
// marker colors.
package pairing

import (
	"github.com/pkg/errors"

	"marker-tracker/internal/blob"
	"marker-tracker/internal/params"
	"marker-tracker/internal/scoring"
	"marker-tracker/pkg/geometry"
)

// Candidate is one evaluated pair. Upper has the smaller centroid y.
type Candidate struct {
	Upper  blob.Record    `json:"upper"`
	Lower  blob.Record    `json:"lower"`
	Score  scoring.Result `json:"score"`
	Index0 int            `json:"index0"` // Position of the marker-0 blob in its set
	Index1 int            `json:"index1"` // Position of the marker-1 blob in its set
}

// Position returns the midpoint of the two centroids.
func (c Candidate) Position() geometry.Point2D {
	return c.Upper.Centroid.Midpoint(c.Lower.Centroid)
}

// Selection is the outcome of one pairing pass.
type Selection struct {
	// Best is nil when no pair cleared the similarity cap.
	Best *Candidate
	// Accepted lists every pair that cleared the cap, in evaluation order.
	Accepted []Candidate
	// Evaluated counts all scored pairs.
	Evaluated int
}

// Found reports whether a pair was selected.
func (s Selection) Found() bool {
	return s.Best != nil
}

// Order returns the two blobs ordered by centroid y, smaller first.
// Equal y keeps the argument order.
func Order(a, b blob.Record) (upper, lower blob.Record) {
	if b.Centroid.Y < a.Centroid.Y {
		return b, a
	}
	return a, b
}

// SelectBest scores every pair in set0 × set1, drops pairs scoring below
// the similarity cap and returns the highest-scoring survivor. Ties go to
// the pair evaluated first; set0 is the outer loop. An empty set yields an
// empty selection, not an error.
func SelectBest(set0, set1 []blob.Record, p params.Parameters) (Selection, error) {
	if err := scoring.ValidateWeights(p); err != nil {
		return Selection{}, err
	}

	var sel Selection
	best := -1
	for i, b0 := range set0 {
		for j, b1 := range set1 {
			upper, lower := Order(b0, b1)
			res, err := scoring.Score(upper, lower, p)
			if err != nil {
				return Selection{}, errors.Wrapf(err, "scoring pair (%d, %d)", i, j)
			}
			sel.Evaluated++

			if res.Aggregate < p.SimilarityCap {
				continue
			}
			sel.Accepted = append(sel.Accepted, Candidate{
				Upper:  upper,
				Lower:  lower,
				Score:  res,
				Index0: i,
				Index1: j,
			})
			if best < 0 || res.Aggregate > sel.Accepted[best].Score.Aggregate {
				best = len(sel.Accepted) - 1
			}
		}
	}

	if best >= 0 {
		c := sel.Accepted[best]
		sel.Best = &c
	}
	return sel, nil
}
