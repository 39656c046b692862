package blob

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marker-tracker/internal/vision"
	"marker-tracker/pkg/geometry"
)

func stat(label, area int) vision.ComponentStats {
	return vision.ComponentStats{
		Label:    label,
		Area:     area,
		BBox:     geometry.NewRectInt(label*10, 0, 5, 5),
		Centroid: geometry.NewPoint2D(float64(label*10)+2.5, 2.5),
	}
}

func TestFromStatsFiltersAndSorts(t *testing.T) {
	stats := []vision.ComponentStats{
		stat(0, 90000), // background
		stat(1, 50),
		stat(2, 400),
		stat(3, 10),
		stat(4, 400),
		stat(5, 900),
	}

	records := FromStats(stats, 50)
	require.Len(t, records, 4)
	assert.Equal(t, []int{5, 2, 4, 1}, labels(records))
	assert.Equal(t, 900, records[0].Area)
	assert.Equal(t, geometry.NewRectInt(50, 0, 5, 5), records[0].BBox)
}

func TestFromStatsZeroMinAreaKeepsAllForeground(t *testing.T) {
	records := FromStats([]vision.ComponentStats{stat(0, 10), stat(1, 1), stat(2, 0)}, 0)
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].Label)
}

func TestFromStatsEmpty(t *testing.T) {
	assert.Empty(t, FromStats(nil, 10))
	assert.Empty(t, FromStats([]vision.ComponentStats{stat(0, 100)}, 0))
}

func TestRecordString(t *testing.T) {
	r := Record{Area: 1000, Centroid: geometry.NewPoint2D(100, 160), BBox: geometry.NewRectInt(80, 140, 40, 40)}
	assert.Equal(t, "(100, 160)x1000[80, 140, 40, 40]", r.String())
	assert.Equal(t, 40, r.Width())
	assert.Equal(t, 40, r.Height())
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 0.6, Similarity(60, 40), 1e-12)
	assert.InDelta(t, 1-0.9/0.55, Similarity(0.1, 1.0), 1e-12)
	assert.Equal(t, 1.0, Similarity(0, 0))
	assert.Equal(t, 0.0, Similarity(-2, 2))
	assert.Less(t, Similarity(1, 100), 0.0)
}

func TestSimilarityIsSymmetric(t *testing.T) {
	values := []float64{0, 0.1, 1, 3.5, 40, 60, 1000, 1e6, -7}
	for _, a := range values {
		for _, b := range values {
			sa, sb := Similarity(a, b), Similarity(b, a)
			assert.Truef(t, sa == sb || (math.IsNaN(sa) && math.IsNaN(sb)), "sim(%v,%v)=%v sim(%v,%v)=%v", a, b, sa, b, a, sb)
		}
	}
}

func TestSimilarityIdentity(t *testing.T) {
	for _, a := range []float64{0.001, 1, 42, 1e9, -3} {
		assert.Equal(t, 1.0, Similarity(a, a))
	}
}

func labels(records []Record) []int {
	out := make([]int, len(records))
	for i, r := range records {
		out[i] = r.Label
	}
	return out
}
