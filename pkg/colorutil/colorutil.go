// Package colorutil provides shared color utilities for the tracker overlays.
package colorutil

import (
	"image/color"
	"math"
)

// Common overlay colors used throughout the application.
var (
	White  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Red    = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	Green  = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	Blue   = color.RGBA{R: 0, G: 0, B: 255, A: 255}
	Yellow = color.RGBA{R: 255, G: 255, B: 0, A: 255}
)

// Confidence maps a similarity score onto a Red to Green gradient.
// A score equal to floor is Red, 1.0 is Green. Scores outside
// [floor, 1] are clamped.
func Confidence(score, floor float64) color.RGBA {
	t := 1.0
	if floor < 1 {
		t = (score - floor) / (1 - floor)
	}
	t = clamp(t, 0, 1)
	return color.RGBA{
		R: lerp(Red.R, Green.R, t),
		G: lerp(Red.G, Green.G, t),
		B: lerp(Red.B, Green.B, t),
		A: 255,
	}
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(math.Round(float64(a) + (float64(b)-float64(a))*t))
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
