package pipeline

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marker-tracker/internal/compositor"
	"marker-tracker/internal/markers"
	"marker-tracker/internal/params"
	"marker-tracker/internal/scoring"
	"marker-tracker/internal/vision"
	"marker-tracker/internal/vision/visiontest"
	"marker-tracker/pkg/geometry"
)

const (
	frameW = 640
	frameH = 480
)

var testMarkers = markers.Pair{
	{Name: "green", Low: vision.HSV{50, 50, 0}, High: vision.HSV{75, 255, 255}},
	{Name: "pink", Low: vision.HSV{140, 80, 60}, High: vision.HSV{170, 255, 255}},
}

type countingSource struct {
	p     params.Parameters
	reads int
}

func (c *countingSource) Snapshot() params.Parameters {
	c.reads++
	return c.p
}

func defaultSource() *countingSource {
	return &countingSource{p: params.DefaultParameters()}
}

func component(label, area int, cx, cy float64, x, y, w, h int) vision.ComponentStats {
	return vision.ComponentStats{
		Label:    label,
		Area:     area,
		Centroid: geometry.NewPoint2D(cx, cy),
		BBox:     geometry.NewRectInt(x, y, w, h),
	}
}

func newPipeline(t *testing.T, lib vision.Library, opts ...Option) *Pipeline {
	t.Helper()
	p, err := New(lib, testMarkers, opts...)
	require.NoError(t, err)
	return p
}

func imageCounts(stages []compositor.Stage) []int {
	counts := make([]int, len(stages))
	for i, s := range stages {
		counts[i] = len(s.Images)
	}
	return counts
}

func TestProcessStackedPair(t *testing.T) {
	lib := visiontest.NewLibrary()
	lib.Stats[testMarkers[0].Low] = []vision.ComponentStats{
		component(1, 1000, 100, 100, 80, 80, 40, 40),
		component(2, 20, 500, 400, 495, 395, 10, 10), // below min area
	}
	lib.Stats[testMarkers[1].Low] = []vision.ComponentStats{
		component(1, 1000, 100, 160, 80, 140, 40, 40),
	}

	p := newPipeline(t, lib)
	frame := lib.NewFrame(frameW, frameH)
	src := defaultSource()

	res, err := p.Process(frame, frameW, frameH, src)
	require.NoError(t, err)
	defer res.Close()

	assert.Equal(t, 1, src.reads)
	assert.Equal(t, StageNames, compositor.Names(res.Stages))
	assert.Equal(t, []int{1, 2, 2, 2, 1}, imageCounts(res.Stages))

	require.Len(t, res.Blobs[0], 1)
	require.Len(t, res.Blobs[1], 1)
	require.NotNil(t, res.Position)
	assert.Equal(t, geometry.NewPoint2D(100, 130), *res.Position)
	assert.InDelta(t, 0.9, res.Selection.Best.Score.Aggregate, 1e-12)

	// Only surviving labels are drawn into the blobs stage.
	assert.Equal(t, 2, lib.CallCount("LabelMask"))

	result := res.Stages[4].Images[0].(*visiontest.Image)
	require.NotEmpty(t, result.Draws)
	assert.True(t, strings.HasPrefix(result.Draws[len(result.Draws)-5], "DrawText"))
	assert.Contains(t, strings.Join(result.Draws, "\n"), "DrawMarker 100,130")
}

func TestProcessStageOrderIndependentOfBlobCount(t *testing.T) {
	many := []vision.ComponentStats{
		component(1, 1500, 100, 100, 80, 80, 40, 40),
		component(2, 900, 300, 100, 285, 85, 30, 30),
		component(3, 700, 500, 300, 490, 290, 20, 20),
	}
	one := []vision.ComponentStats{component(1, 1000, 100, 160, 80, 140, 40, 40)}

	cases := map[string][2][]vision.ComponentStats{
		"none":         {nil, nil},
		"one and none": {one, nil},
		"none and one": {nil, one},
		"one each":     {one, one},
		"many":         {many, many},
		"many and one": {many, one},
	}
	for name, stats := range cases {
		t.Run(name, func(t *testing.T) {
			lib := visiontest.NewLibrary()
			lib.Stats[testMarkers[0].Low] = stats[0]
			lib.Stats[testMarkers[1].Low] = stats[1]

			p := newPipeline(t, lib)
			frame := lib.NewFrame(frameW, frameH)
			res, err := p.Process(frame, frameW, frameH, defaultSource())
			require.NoError(t, err)

			if diff := cmp.Diff(StageNames, compositor.Names(res.Stages)); diff != "" {
				t.Errorf("stage order mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, []int{1, 2, 2, 2, 1}, imageCounts(res.Stages))

			require.NoError(t, res.Close())
			assert.Equal(t, []*visiontest.Image{frame}, lib.Open())
		})
	}
}

func TestProcessEmptySetIsNotAnError(t *testing.T) {
	lib := visiontest.NewLibrary()
	lib.Stats[testMarkers[0].Low] = []vision.ComponentStats{component(1, 1000, 100, 100, 80, 80, 40, 40)}

	p := newPipeline(t, lib)
	res, err := p.Process(lib.NewFrame(frameW, frameH), frameW, frameH, defaultSource())
	require.NoError(t, err)
	defer res.Close()

	assert.Nil(t, res.Position)
	assert.False(t, res.Selection.Found())
	assert.Empty(t, res.Blobs[1])
	// The empty marker gets a blank mask rather than a combine of nothing.
	assert.Equal(t, 1, lib.CallCount("Blank"))
	assert.Equal(t, 1, lib.CallCount("CombineMasks"))

	result := res.Stages[4].Images[0].(*visiontest.Image)
	require.Len(t, result.Draws, 1)
	assert.Contains(t, result.Draws[0], "no pair")
}

func TestProcessUsesCurrentParameters(t *testing.T) {
	lib := visiontest.NewLibrary()
	lib.Stats[testMarkers[0].Low] = []vision.ComponentStats{
		component(1, 1000, 100, 100, 80, 80, 40, 40),
		component(2, 400, 300, 100, 290, 90, 20, 20),
	}

	src := defaultSource()
	src.p.CloseKernelSize = 9
	src.p.CloseIterations = 3
	src.p.MinBlobArea = 500

	p := newPipeline(t, lib)
	res, err := p.Process(lib.NewFrame(frameW, frameH), frameW, frameH, src)
	require.NoError(t, err)
	defer res.Close()

	closeImg := res.Stages[2].Images[0].(*visiontest.Image)
	assert.Equal(t, "ConvertColor Gray->BGR", closeImg.Op)

	var morph []string
	for _, img := range lib.Images() {
		if strings.HasPrefix(img.Op, "MorphClose") {
			assert.True(t, img.Closed(), "temporary %s left open", img.Op)
			morph = append(morph, img.Op)
		}
	}
	assert.Equal(t, []string{"MorphClose k=9 i=3", "MorphClose k=9 i=3"}, morph)
	require.Len(t, res.Blobs[0], 1)
	assert.Equal(t, 1000, res.Blobs[0][0].Area)
	assert.Equal(t, src.p, res.Params)
}

func TestProcessUpstreamFailure(t *testing.T) {
	for _, method := range []string{"Mirror", "ConvertColor", "InRange", "Masked", "MorphClose", "LabelComponents", "LabelMask", "CombineMasks", "Clone", "DrawText"} {
		t.Run(method, func(t *testing.T) {
			lib := visiontest.NewLibrary()
			lib.Stats[testMarkers[0].Low] = []vision.ComponentStats{component(1, 1000, 100, 100, 80, 80, 40, 40)}
			lib.Stats[testMarkers[1].Low] = []vision.ComponentStats{component(1, 1000, 100, 160, 80, 140, 40, 40)}
			cause := errors.New("camera unplugged")
			lib.Fail[method] = cause

			p := newPipeline(t, lib)
			frame := lib.NewFrame(frameW, frameH)
			res, err := p.Process(frame, frameW, frameH, defaultSource())
			require.Error(t, err)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, ErrUpstreamIO)
			assert.ErrorIs(t, err, cause)

			// Nothing but the caller's frame is left open.
			assert.Equal(t, []*visiontest.Image{frame}, lib.Open())
		})
	}
}

func TestProcessDegenerateWeights(t *testing.T) {
	lib := visiontest.NewLibrary()
	src := defaultSource()
	src.p.Weights = [params.NumComponents]float64{}

	p := newPipeline(t, lib)
	frame := lib.NewFrame(frameW, frameH)
	_, err := p.Process(frame, frameW, frameH, src)
	require.Error(t, err)
	assert.ErrorIs(t, err, scoring.ErrDegenerateInput)
	assert.NotErrorIs(t, err, ErrUpstreamIO)
	assert.Equal(t, []*visiontest.Image{frame}, lib.Open())
}

func TestProcessFrameSizeMismatch(t *testing.T) {
	lib := visiontest.NewLibrary()
	p := newPipeline(t, lib)
	_, err := p.Process(lib.NewFrame(320, 240), frameW, frameH, defaultSource())
	assert.Error(t, err)
}

func TestProcessWithoutMirror(t *testing.T) {
	lib := visiontest.NewLibrary()
	p := newPipeline(t, lib, WithMirror(false))
	res, err := p.Process(lib.NewFrame(frameW, frameH), frameW, frameH, defaultSource())
	require.NoError(t, err)
	defer res.Close()

	assert.Zero(t, lib.CallCount("Mirror"))
	assert.Equal(t, 2, lib.CallCount("Clone"))
}

func TestNewRejectsInvalidMarkers(t *testing.T) {
	bad := testMarkers
	bad[1].Low[0] = 175
	bad[1].High[0] = 170

	_, err := New(visiontest.NewLibrary(), bad)
	assert.ErrorIs(t, err, markers.ErrConfiguration)

	p := newPipeline(t, visiontest.NewLibrary())
	assert.ErrorIs(t, p.SetMarkers(bad), markers.ErrConfiguration)
	assert.Equal(t, testMarkers, p.Markers())
}

func TestResultCloseNil(t *testing.T) {
	var r *Result
	assert.NoError(t, r.Close())
}
