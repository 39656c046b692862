package app

import (
	"log"

	"marker-tracker/internal/markers"
	"marker-tracker/internal/params"
	"marker-tracker/internal/vision"
)

// Slider is one trackbar of the control surface.
type Slider interface {
	GetPos() int
	SetPos(pos int)
}

// SliderFactory creates a slider named name with range [0, max].
type SliderFactory func(name string, max int) Slider

// Fractions are shown on a 0..percent scale.
const percent = 100

type control struct {
	name   string
	max    int
	get    func(p params.Parameters) int
	set    func(s *params.Store, pos int) error
	slider Slider
	last   int
}

// Controls maps trackbar positions onto the parameter store.
type Controls struct {
	controls []*control
}

// NewControls creates one slider per tunable parameter, positioned at the
// store's current values.
func NewControls(create SliderFactory, store *params.Store) *Controls {
	defs := []*control{
		{
			name: "min_pixels", max: params.MaxMinBlobArea,
			get: func(p params.Parameters) int { return p.MinBlobArea },
			set: func(s *params.Store, pos int) error { return s.SetMinBlobArea(pos) },
		},
		{
			name: "close_kernel", max: params.MaxCloseKernelSize,
			get: func(p params.Parameters) int { return p.CloseKernelSize },
			set: func(s *params.Store, pos int) error { return s.SetCloseKernelSize(pos) },
		},
		{
			name: "close_iter", max: params.MaxCloseIterations,
			get: func(p params.Parameters) int { return p.CloseIterations },
			set: func(s *params.Store, pos int) error { return s.SetCloseIterations(pos) },
		},
	}
	for _, c := range params.Components {
		c := c
		defs = append(defs, &control{
			name: "w_" + c.String(), max: percent,
			get:  func(p params.Parameters) int { return toPercent(p.Weights[c]) },
			set:  func(s *params.Store, pos int) error { return s.SetWeight(c, fromPercent(pos)) },
		})
	}
	defs = append(defs, &control{
		name: "similarity_cap", max: percent,
		get:  func(p params.Parameters) int { return toPercent(p.SimilarityCap) },
		set:  func(s *params.Store, pos int) error { return s.SetSimilarityCap(fromPercent(pos)) },
	})

	current := store.Snapshot()
	for _, c := range defs {
		c.slider = create(c.name, c.max)
		c.last = c.get(current)
		c.slider.SetPos(c.last)
	}
	return &Controls{controls: defs}
}

// Names returns the slider names in creation order.
func (c *Controls) Names() []string {
	names := make([]string, len(c.controls))
	for i, ctl := range c.controls {
		names[i] = ctl.name
	}
	return names
}

// Sync writes moved sliders into store. A position the store rejects is
// logged and the slider snaps back.
func (c *Controls) Sync(store *params.Store) {
	for _, ctl := range c.controls {
		pos := ctl.slider.GetPos()
		if pos == ctl.last {
			continue
		}
		if err := ctl.set(store, pos); err != nil {
			log.Printf("Controls: %s=%d rejected: %v", ctl.name, pos, err)
			ctl.slider.SetPos(ctl.last)
			continue
		}
		ctl.last = pos
	}
}

func toPercent(v float64) int {
	return int(v*percent + 0.5)
}

func fromPercent(pos int) float64 {
	return float64(pos) / percent
}

// RangeControls edits one marker range with six sliders.
type RangeControls struct {
	name string
	low  [3]Slider
	high [3]Slider
	last markers.Range
}

var channelNames = [3]string{"H", "S", "V"}

// NewRangeControls creates HMin..VMax sliders positioned at r.
func NewRangeControls(create SliderFactory, r markers.Range) *RangeControls {
	rc := &RangeControls{name: r.Name, last: r}
	for c := range channelNames {
		rc.low[c] = create(channelNames[c]+"Min", vision.MaxHSV[c])
	}
	for c := range channelNames {
		rc.high[c] = create(channelNames[c]+"Max", vision.MaxHSV[c])
	}
	for c := range channelNames {
		rc.low[c].SetPos(r.Low[c])
		rc.high[c].SetPos(r.High[c])
	}
	return rc
}

// Range returns the range the sliders currently describe and whether it
// differs from the previous call.
func (rc *RangeControls) Range() (markers.Range, bool) {
	r := markers.Range{Name: rc.name}
	for c := range channelNames {
		r.Low[c] = rc.low[c].GetPos()
		r.High[c] = rc.high[c].GetPos()
	}
	changed := r != rc.last
	rc.last = r
	return r, changed
}
