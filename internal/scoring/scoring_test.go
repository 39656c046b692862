package scoring

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marker-tracker/internal/blob"
	"marker-tracker/internal/params"
	"marker-tracker/pkg/geometry"
)

func record(area int, cx, cy float64, x, y, w, h int) blob.Record {
	return blob.Record{
		Area:     area,
		Centroid: geometry.NewPoint2D(cx, cy),
		BBox:     geometry.NewRectInt(x, y, w, h),
	}
}

func equalWeights() params.Parameters {
	p := params.DefaultParameters()
	p.Weights = [params.NumComponents]float64{0.25, 0.25, 0.25, 0.25}
	p.SimilarityCap = 0.5
	return p
}

func stackedPair() (blob.Record, blob.Record) {
	return record(1000, 100, 100, 80, 80, 40, 40), record(1000, 100, 160, 80, 140, 40, 40)
}

func TestScoreStackedMarkers(t *testing.T) {
	b0, b1 := stackedPair()

	res, err := Score(b0, b1, equalWeights())
	require.NoError(t, err)

	want := Components{
		{Value: 1.0},
		{Value: 1.0},
		{Value: 0.6},
		{Value: 1.0},
	}
	if diff := cmp.Diff(want, res.Components, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("components mismatch (-want +got):\n%s", diff)
	}
	assert.InDelta(t, 0.9, res.Aggregate, 1e-12)
	assert.Zero(t, res.Components.Penalties())
}

func TestScoreTallLowerBlob(t *testing.T) {
	b0, b1 := stackedPair()
	b1.BBox.Height = 400

	res, err := Score(b0, b1, equalWeights())
	require.NoError(t, err)

	square := res.Components.Get(params.Squareness)
	assert.InDelta(t, 1-0.9/0.55, square.Value, 1e-12)
	assert.True(t, square.Penalized)

	// The tall box also breaks the spacing-to-height ratio: sim(60, 220).
	ytoh := res.Components.Get(params.YDistanceToHeight)
	assert.InDelta(t, 1-160.0/140.0, ytoh.Value, 1e-12)
	assert.True(t, ytoh.Penalized)

	mean := (1 + 1 + ytoh.Value + square.Value) / 4
	assert.InDelta(t, mean*PenaltyFactor*PenaltyFactor, res.Aggregate, 1e-12)
}

func TestScorePenaltyAppliedOnceForSingleWeakComponent(t *testing.T) {
	b0, b1 := stackedPair()
	// A narrow upper blob: width/height = 4/40 = 0.1.
	b0.BBox = geometry.NewRectInt(98, 80, 4, 40)

	res, err := Score(b0, b1, equalWeights())
	require.NoError(t, err)

	require.Equal(t, 1, res.Components.Penalties())
	assert.True(t, res.Components.Get(params.Squareness).Penalized)

	square := 1 - 0.9/0.55
	mean := (1 + 1 + 0.6 + square) / 4
	assert.InDelta(t, mean*PenaltyFactor, res.Aggregate, 1e-12)
}

func TestScoreNoXOverlap(t *testing.T) {
	b0, b1 := stackedPair()
	b1.BBox.X = 200
	b1.Centroid.X = 220

	res, err := Score(b0, b1, equalWeights())
	require.NoError(t, err)

	x := res.Components.Get(params.XAlignment)
	assert.Zero(t, x.Value)
	assert.True(t, x.Penalized)
}

func TestScoreZeroWeightComponentIsNotPenalized(t *testing.T) {
	b0, b1 := stackedPair()
	b0.BBox = geometry.NewRectInt(98, 80, 4, 40)

	p := equalWeights()
	p.Weights[params.Squareness] = 0

	res, err := Score(b0, b1, p)
	require.NoError(t, err)
	assert.False(t, res.Components.Get(params.Squareness).Penalized)
	assert.InDelta(t, (1+1+0.6)/3, res.Aggregate, 1e-12)
}

func TestScorePenaltyDominatesWeight(t *testing.T) {
	b0, b1 := stackedPair()
	b0.BBox = geometry.NewRectInt(98, 80, 4, 40)

	p := equalWeights()
	prev := math.Inf(1)
	for w := 0.05; w <= 1.0; w += 0.05 {
		p.Weights[params.Squareness] = w
		res, err := Score(b0, b1, p)
		require.NoError(t, err)
		assert.Lessf(t, res.Aggregate, prev, "weight %.2f", w)
		prev = res.Aggregate
	}
}

func TestScorePenaltyComposition(t *testing.T) {
	cases := []struct {
		name   string
		b0, b1 blob.Record
	}{
		{"clean", record(1000, 100, 100, 80, 80, 40, 40), record(1000, 100, 160, 80, 140, 40, 40)},
		{"area", record(100, 100, 100, 80, 80, 40, 40), record(3000, 100, 160, 80, 140, 40, 40)},
		{"lanes", record(1000, 10, 100, 0, 80, 20, 40), record(1000, 300, 160, 280, 140, 40, 40)},
		{"everything", record(10, 10, 100, 0, 0, 2, 200), record(5000, 300, 900, 280, 140, 400, 400)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := params.DefaultParameters()
			p.Weights = [params.NumComponents]float64{0.9, 0.4, 0.7, 0.2}
			res, err := Score(tc.b0, tc.b1, p)
			require.NoError(t, err)

			var num, den float64
			for i, c := range res.Components {
				num += c.Value * p.Weights[i]
				den += p.Weights[i]
			}
			want := num / den * math.Pow(PenaltyFactor, float64(res.Components.Penalties()))
			assert.InDelta(t, want, res.Aggregate, 1e-12)
		})
	}
}

func TestScoreAllZeroWeights(t *testing.T) {
	b0, b1 := stackedPair()
	p := equalWeights()
	p.Weights = [params.NumComponents]float64{}

	_, err := Score(b0, b1, p)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDegenerateInput)
}

func TestScoreDegenerateBlobs(t *testing.T) {
	b0, b1 := stackedPair()

	zeroHeight := b1
	zeroHeight.BBox.Height = 0
	_, err := Score(b0, zeroHeight, equalWeights())
	assert.ErrorIs(t, err, ErrDegenerateInput)

	zeroArea := b0
	zeroArea.Area = 0
	_, err = Score(zeroArea, b1, equalWeights())
	assert.ErrorIs(t, err, ErrDegenerateInput)
}

func TestComponentsString(t *testing.T) {
	cs := Components{{Value: 1}, {Value: 0.5}, {Value: 0.25, Penalized: true}, {Value: 1}}
	assert.Equal(t, "area=1.00 xpos=0.50 ytoh=0.25! square=1.00", cs.String())
}
