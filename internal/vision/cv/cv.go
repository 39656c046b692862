// Package cv implements vision.Library with OpenCV through gocv.
package cv

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"marker-tracker/internal/vision"
	"marker-tracker/pkg/geometry"
)

// Mat wraps a gocv.Mat as an Image.
type Mat struct {
	mat gocv.Mat
}

// WrapMat takes ownership of m.
func WrapMat(m gocv.Mat) *Mat {
	return &Mat{mat: m}
}

// Mat returns the underlying OpenCV matrix. It stays owned by the wrapper.
func (m *Mat) Mat() gocv.Mat {
	return m.mat
}

// Close releases the matrix.
func (m *Mat) Close() error {
	return m.mat.Close()
}

// GoCV implements vision.Library on top of OpenCV.
type GoCV struct{}

// NewGoCV returns the OpenCV library.
func NewGoCV() *GoCV {
	return &GoCV{}
}

var _ vision.Library = (*GoCV)(nil)

func matOf(img vision.Image) (gocv.Mat, error) {
	m, ok := img.(*Mat)
	if !ok || m == nil {
		return gocv.Mat{}, fmt.Errorf("not an OpenCV image: %T", img)
	}
	if m.mat.Empty() {
		return gocv.Mat{}, fmt.Errorf("empty image")
	}
	return m.mat, nil
}

// produce runs fn into a fresh Mat and checks the result.
func produce(op string, fn func(dst *gocv.Mat)) (vision.Image, error) {
	dst := gocv.NewMat()
	fn(&dst)
	if dst.Empty() {
		dst.Close()
		return nil, fmt.Errorf("%s produced an empty image", op)
	}
	return WrapMat(dst), nil
}

func (g *GoCV) Size(img vision.Image) (int, int) {
	m, err := matOf(img)
	if err != nil {
		return 0, 0
	}
	return m.Cols(), m.Rows()
}

func (g *GoCV) Clone(src vision.Image) (vision.Image, error) {
	m, err := matOf(src)
	if err != nil {
		return nil, err
	}
	return WrapMat(m.Clone()), nil
}

func (g *GoCV) Blank(width, height, channels int) (vision.Image, error) {
	mt := gocv.MatTypeCV8UC3
	switch channels {
	case 1:
		mt = gocv.MatTypeCV8UC1
	case 3:
	default:
		return nil, fmt.Errorf("unsupported channel count %d", channels)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid size %dx%d", width, height)
	}
	return WrapMat(gocv.Zeros(height, width, mt)), nil
}

func (g *GoCV) Mirror(src vision.Image) (vision.Image, error) {
	m, err := matOf(src)
	if err != nil {
		return nil, err
	}
	return produce("flip", func(dst *gocv.Mat) { gocv.Flip(m, dst, 1) })
}

func (g *GoCV) ConvertColor(src vision.Image, conv vision.ColorConversion) (vision.Image, error) {
	m, err := matOf(src)
	if err != nil {
		return nil, err
	}
	var code gocv.ColorConversionCode
	switch conv {
	case vision.BGRToHSV:
		code = gocv.ColorBGRToHSV
	case vision.HSVToBGR:
		code = gocv.ColorHSVToBGR
	case vision.GrayToBGR:
		code = gocv.ColorGrayToBGR
	default:
		return nil, fmt.Errorf("unsupported conversion %s", conv)
	}
	return produce(conv.String(), func(dst *gocv.Mat) { gocv.CvtColor(m, dst, code) })
}

func scalar(v vision.HSV) gocv.Scalar {
	return gocv.NewScalar(float64(v[0]), float64(v[1]), float64(v[2]), 0)
}

func (g *GoCV) InRange(src vision.Image, low, high vision.HSV) (vision.Image, error) {
	m, err := matOf(src)
	if err != nil {
		return nil, err
	}
	return produce("inRange", func(dst *gocv.Mat) {
		gocv.InRangeWithScalar(m, scalar(low), scalar(high), dst)
	})
}

func (g *GoCV) Masked(src, mask vision.Image) (vision.Image, error) {
	m, err := matOf(src)
	if err != nil {
		return nil, err
	}
	k, err := matOf(mask)
	if err != nil {
		return nil, err
	}
	return produce("bitwise_and", func(dst *gocv.Mat) {
		gocv.BitwiseAndWithMask(m, m, dst, k)
	})
}

func (g *GoCV) MorphClose(mask vision.Image, kernelSize, iterations int) (vision.Image, error) {
	m, err := matOf(mask)
	if err != nil {
		return nil, err
	}
	if kernelSize < 1 {
		return nil, fmt.Errorf("invalid kernel size %d", kernelSize)
	}
	if iterations <= 0 {
		return WrapMat(m.Clone()), nil
	}

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Point{kernelSize, kernelSize})
	defer kernel.Close()
	return produce("morphologyEx", func(dst *gocv.Mat) {
		gocv.MorphologyExWithParams(m, dst, gocv.MorphClose, kernel, iterations, gocv.BorderConstant)
	})
}

func (g *GoCV) LabelComponents(mask vision.Image) (vision.Labeling, error) {
	m, err := matOf(mask)
	if err != nil {
		return vision.Labeling{}, err
	}

	labels := gocv.NewMat()
	stats := gocv.NewMat()
	defer stats.Close()
	centroids := gocv.NewMat()
	defer centroids.Close()

	n := gocv.ConnectedComponentsWithStats(m, &labels, &stats, &centroids)
	if labels.Empty() {
		labels.Close()
		return vision.Labeling{}, fmt.Errorf("connected components produced no labels")
	}

	out := make([]vision.ComponentStats, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, vision.ComponentStats{
			Label: i,
			Area:  int(stats.GetIntAt(i, int(gocv.CCStatArea))),
			BBox: geometry.RectInt{
				X:      int(stats.GetIntAt(i, int(gocv.CCStatLeft))),
				Y:      int(stats.GetIntAt(i, int(gocv.CCStatTop))),
				Width:  int(stats.GetIntAt(i, int(gocv.CCStatWidth))),
				Height: int(stats.GetIntAt(i, int(gocv.CCStatHeight))),
			},
			Centroid: geometry.Point2D{
				X: centroids.GetDoubleAt(i, 0),
				Y: centroids.GetDoubleAt(i, 1),
			},
		})
	}
	return vision.Labeling{Labels: WrapMat(labels), Stats: out}, nil
}

func (g *GoCV) LabelMask(labels vision.Image, label int) (vision.Image, error) {
	m, err := matOf(labels)
	if err != nil {
		return nil, err
	}
	l := float64(label)
	v := gocv.NewScalar(l, l, l, l)
	return produce("label mask", func(dst *gocv.Mat) {
		gocv.InRangeWithScalar(m, v, v, dst)
	})
}

func (g *GoCV) CombineMasks(masks []vision.Image, op vision.BitwiseOp) (vision.Image, error) {
	if len(masks) == 0 {
		return nil, fmt.Errorf("no masks to combine")
	}
	first, err := matOf(masks[0])
	if err != nil {
		return nil, err
	}
	dst := first.Clone()
	for _, img := range masks[1:] {
		m, err := matOf(img)
		if err != nil {
			dst.Close()
			return nil, err
		}
		switch op {
		case vision.OpAnd:
			gocv.BitwiseAnd(dst, m, &dst)
		case vision.OpOr:
			gocv.BitwiseOr(dst, m, &dst)
		case vision.OpXor:
			gocv.BitwiseXor(dst, m, &dst)
		default:
			dst.Close()
			return nil, fmt.Errorf("unsupported bitwise op %s", op)
		}
	}
	return WrapMat(dst), nil
}

func (g *GoCV) Paste(dst, src vision.Image, r geometry.RectInt) error {
	d, err := matOf(dst)
	if err != nil {
		return err
	}
	s, err := matOf(src)
	if err != nil {
		return err
	}
	if s.Cols() != r.Width || s.Rows() != r.Height {
		return fmt.Errorf("paste size mismatch: %dx%d into %dx%d", s.Cols(), s.Rows(), r.Width, r.Height)
	}
	if r.X < 0 || r.Y < 0 || r.Right() > d.Cols() || r.Bottom() > d.Rows() {
		return fmt.Errorf("paste region %v outside %dx%d", r, d.Cols(), d.Rows())
	}
	if s.Channels() != d.Channels() {
		return fmt.Errorf("paste channel mismatch: %d into %d", s.Channels(), d.Channels())
	}

	region := d.Region(r.ToImage())
	defer region.Close()
	s.CopyTo(&region)
	return nil
}

func (g *GoCV) DrawRectangle(dst vision.Image, r geometry.RectInt, c color.RGBA, thickness int) error {
	m, err := matOf(dst)
	if err != nil {
		return err
	}
	gocv.Rectangle(&m, r.ToImage(), c, thickness)
	return nil
}

// DrawMarker draws a cross centred on at.
func (g *GoCV) DrawMarker(dst vision.Image, at geometry.PointInt, c color.RGBA, size, thickness int) error {
	m, err := matOf(dst)
	if err != nil {
		return err
	}
	h := size / 2
	gocv.Line(&m, image.Pt(at.X-h, at.Y), image.Pt(at.X+h, at.Y), c, thickness)
	gocv.Line(&m, image.Pt(at.X, at.Y-h), image.Pt(at.X, at.Y+h), c, thickness)
	return nil
}

func (g *GoCV) DrawCircle(dst vision.Image, center geometry.PointInt, radius int, c color.RGBA, thickness int) error {
	m, err := matOf(dst)
	if err != nil {
		return err
	}
	gocv.Circle(&m, center.ToImage(), radius, c, thickness)
	return nil
}

func (g *GoCV) DrawText(dst vision.Image, text string, at geometry.PointInt, scale float64, c color.RGBA, thickness int) error {
	m, err := matOf(dst)
	if err != nil {
		return err
	}
	gocv.PutText(&m, text, at.ToImage(), gocv.FontHersheySimplex, scale, c, thickness)
	return nil
}
