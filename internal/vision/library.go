// Package vision defines the image-processing collaborator used by the
// tracking pipeline. The OpenCV implementation lives in vision/cv so this
// package stays free of cgo.
package vision

import (
	"image/color"

	"marker-tracker/pkg/geometry"
)

// Image is an opaque image handle owned by a Library.
// Every Image returned by a Library must be closed by the caller.
type Image interface {
	Close() error
}

// ColorConversion identifies a color space conversion.
type ColorConversion int

const (
	// BGRToHSV converts a camera frame to HSV (OpenCV scale).
	BGRToHSV ColorConversion = iota
	// HSVToBGR converts back to displayable BGR.
	HSVToBGR
	// GrayToBGR expands a single-channel mask to three channels.
	GrayToBGR
)

func (c ColorConversion) String() string {
	switch c {
	case BGRToHSV:
		return "BGR->HSV"
	case HSVToBGR:
		return "HSV->BGR"
	case GrayToBGR:
		return "Gray->BGR"
	default:
		return "Unknown"
	}
}

// BitwiseOp selects how masks are combined.
type BitwiseOp int

const (
	OpAnd BitwiseOp = iota
	OpOr
	OpXor
)

func (o BitwiseOp) String() string {
	switch o {
	case OpAnd:
		return "AND"
	case OpOr:
		return "OR"
	case OpXor:
		return "XOR"
	default:
		return "Unknown"
	}
}

// HSV is a color triple in OpenCV HSV scale (H 0-179, S/V 0-255).
type HSV [3]int

// MaxHSV holds the largest value of each channel for 8-bit images.
var MaxHSV = HSV{179, 255, 255}

// ComponentStats is one row of a connected-component labeling.
// Label 0 is the background.
type ComponentStats struct {
	Label    int
	Area     int
	BBox     geometry.RectInt
	Centroid geometry.Point2D
}

// Labeling is the result of connected-component labeling of a mask.
type Labeling struct {
	Labels Image
	Stats  []ComponentStats
}

// Close releases the label image.
func (l Labeling) Close() error {
	if l.Labels == nil {
		return nil
	}
	return l.Labels.Close()
}

// Library is the image-processing collaborator. Implementations never
// modify their inputs except for the Draw* methods, which annotate dst
// in place.
type Library interface {
	// Size returns the width and height of an image.
	Size(img Image) (width, height int)
	// Clone copies an image.
	Clone(src Image) (Image, error)
	// Blank creates a black image with the given channel count (1 or 3).
	Blank(width, height, channels int) (Image, error)
	// Mirror flips an image horizontally.
	Mirror(src Image) (Image, error)
	// ConvertColor converts src between color spaces.
	ConvertColor(src Image, conv ColorConversion) (Image, error)
	// InRange thresholds src, producing a mask of pixels within [low, high].
	InRange(src Image, low, high HSV) (Image, error)
	// Masked copies src keeping only pixels set in mask.
	Masked(src, mask Image) (Image, error)
	// MorphClose applies a morphological close with a square kernel.
	MorphClose(mask Image, kernelSize, iterations int) (Image, error)
	// LabelComponents runs 8-connected component labeling on a mask.
	LabelComponents(mask Image) (Labeling, error)
	// LabelMask returns a mask of pixels carrying the given label.
	LabelMask(labels Image, label int) (Image, error)
	// CombineMasks merges masks with a bitwise operation.
	CombineMasks(masks []Image, op BitwiseOp) (Image, error)
	// Paste copies src into the region of dst at r; src must be r-sized.
	Paste(dst, src Image, r geometry.RectInt) error

	DrawRectangle(dst Image, r geometry.RectInt, c color.RGBA, thickness int) error
	DrawMarker(dst Image, at geometry.PointInt, c color.RGBA, size, thickness int) error
	DrawCircle(dst Image, center geometry.PointInt, radius int, c color.RGBA, thickness int) error
	DrawText(dst Image, text string, at geometry.PointInt, scale float64, c color.RGBA, thickness int) error
}

// CloseAll closes every non-nil image and returns the first error.
func CloseAll(images ...Image) error {
	var first error
	for _, img := range images {
		if img == nil {
			continue
		}
		if err := img.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
