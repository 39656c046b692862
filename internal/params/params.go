// Package params holds the live-tunable tracking parameters.
package params

import (
	"fmt"

	"github.com/pkg/errors"
)

// Component indexes the four similarity components and their weights.
type Component int

const (
	AreaSimilarity Component = iota
	XAlignment
	YDistanceToHeight
	Squareness

	NumComponents = 4
)

// Components lists every component in scoring order.
var Components = [NumComponents]Component{AreaSimilarity, XAlignment, YDistanceToHeight, Squareness}

func (c Component) String() string {
	switch c {
	case AreaSimilarity:
		return "area"
	case XAlignment:
		return "xpos"
	case YDistanceToHeight:
		return "ytoheight"
	case Squareness:
		return "square"
	default:
		return "unknown"
	}
}

// Upper bounds exposed to the control surface.
const (
	MaxMinBlobArea     = 10000
	MaxCloseKernelSize = 31
	MaxCloseIterations = 10
)

// ErrInvalid is returned when a parameter value is outside its domain.
var ErrInvalid = errors.New("invalid parameter")

// Parameters is one consistent set of tuning values.
// See DefaultParameters for the values used at start-up.
type Parameters struct {
	MinBlobArea     int                    `json:"min_blob_area" toml:"min_blob_area"`
	CloseKernelSize int                    `json:"close_kernel_size" toml:"close_kernel_size"`
	CloseIterations int                    `json:"close_iterations" toml:"close_iterations"`
	Weights         [NumComponents]float64 `json:"component_weights" toml:"component_weights"`
	SimilarityCap   float64                `json:"similarity_cap" toml:"similarity_cap"`
}

// DefaultParameters returns the start-up parameters.
func DefaultParameters() Parameters {
	return Parameters{
		MinBlobArea:     300, // Rejects sensor noise at 640x480
		CloseKernelSize: 5,
		CloseIterations: 1,
		Weights:         [NumComponents]float64{0.25, 0.25, 0.25, 0.25},
		SimilarityCap:   0.5,
	}
}

// Validate checks every field against its domain. A zero total weight is
// accepted here; the scorer rejects it when it is asked to score.
func (p Parameters) Validate() error {
	if p.MinBlobArea < 0 {
		return errors.Wrapf(ErrInvalid, "min_blob_area %d < 0", p.MinBlobArea)
	}
	if p.CloseKernelSize < 1 {
		return errors.Wrapf(ErrInvalid, "close_kernel_size %d < 1", p.CloseKernelSize)
	}
	if p.CloseIterations < 0 {
		return errors.Wrapf(ErrInvalid, "close_iterations %d < 0", p.CloseIterations)
	}
	for _, c := range Components {
		if w := p.Weights[c]; w < 0 || w > 1 {
			return errors.Wrapf(ErrInvalid, "weight %s=%g outside [0,1]", c, w)
		}
	}
	if p.SimilarityCap < 0 || p.SimilarityCap > 1 {
		return errors.Wrapf(ErrInvalid, "similarity_cap %g outside [0,1]", p.SimilarityCap)
	}
	return nil
}

func (p Parameters) String() string {
	return fmt.Sprintf("min_area=%d close=%dx%d weights=[%.2f %.2f %.2f %.2f] cap=%.2f",
		p.MinBlobArea, p.CloseKernelSize, p.CloseIterations,
		p.Weights[0], p.Weights[1], p.Weights[2], p.Weights[3], p.SimilarityCap)
}
