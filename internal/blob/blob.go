// Package blob holds the per-frame geometric summary of detected marker
// regions and the symmetric ratio used to compare them.
package blob

import (
	"fmt"
	"math"
	"sort"

	"marker-tracker/internal/vision"
	"marker-tracker/pkg/geometry"
)

// Record is one connected region that survived the minimum-area filter.
// Records are rebuilt every frame and never mutated afterwards.
type Record struct {
	Label    int              `json:"label"` // Label in the frame's labeling, used to rebuild masks
	Area     int              `json:"area"`  // Pixel count
	Centroid geometry.Point2D `json:"centroid"`
	BBox     geometry.RectInt `json:"bbox"`
}

func (r Record) String() string {
	return fmt.Sprintf("(%.0f, %.0f)x%d[%d, %d, %d, %d]",
		r.Centroid.X, r.Centroid.Y, r.Area,
		r.BBox.X, r.BBox.Y, r.BBox.Width, r.BBox.Height)
}

// Height returns the bounding-box height.
func (r Record) Height() int {
	return r.BBox.Height
}

// Width returns the bounding-box width.
func (r Record) Width() int {
	return r.BBox.Width
}

// FromStats converts a labeling into records, dropping the background
// (label 0) and every component smaller than minArea. The result is
// sorted by descending area; equal areas keep label order so iteration
// over the set is reproducible.
func FromStats(stats []vision.ComponentStats, minArea int) []Record {
	records := make([]Record, 0, len(stats))
	for _, s := range stats {
		if s.Label == 0 || s.Area < minArea || s.Area < 1 {
			continue
		}
		records = append(records, Record{
			Label:    s.Label,
			Area:     s.Area,
			Centroid: s.Centroid,
			BBox:     s.BBox,
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Area > records[j].Area
	})
	return records
}

// Similarity is the symmetric ratio 1 - |a-b| / ((a+b)/2).
// It is 1 for equal inputs (including 0, 0) and is not clamped: very
// dissimilar inputs produce negative values. When the mean is zero but
// the inputs differ (only possible with opposite signs) it returns 0.
func Similarity(a, b float64) float64 {
	if a == b {
		return 1
	}
	mean := (a + b) / 2
	if mean == 0 {
		return 0
	}
	return 1 - math.Abs(a-b)/mean
}
