// Package visiontest provides an in-memory vision.Library that records
// every call, for testing code that drives the image-processing
// collaborator without OpenCV.
package visiontest

import (
	"fmt"
	"image/color"
	"sync"

	"marker-tracker/internal/vision"
	"marker-tracker/pkg/geometry"
)

// Image is a fake image. It carries no pixels, only provenance.
type Image struct {
	ID       int
	Width    int
	Height   int
	Channels int
	Op       string     // Operation that produced the image
	Range    vision.HSV // Low bound of the InRange call this image derives from
	Draws    []string   // Annotations drawn onto the image, in order
	Pastes   []Paste    // Images pasted into this one, in order

	lib    *Library
	closed bool
}

// Paste records one Paste call.
type Paste struct {
	Src  *Image
	Rect geometry.RectInt
}

// Close marks the image released.
func (i *Image) Close() error {
	if i.closed {
		return fmt.Errorf("image %d (%s) closed twice", i.ID, i.Op)
	}
	i.closed = true
	return nil
}

// Closed reports whether Close was called.
func (i *Image) Closed() bool {
	return i.closed
}

// Library is a recording fake of vision.Library.
type Library struct {
	mu sync.Mutex

	// Stats maps the low bound of a marker range to the labeling returned
	// for masks derived from it. The background row is added automatically.
	Stats map[vision.HSV][]vision.ComponentStats
	// Fail makes the named method return the error.
	Fail map[string]error

	// Calls lists method names in call order.
	Calls []string

	images []*Image
}

// NewLibrary creates an empty fake.
func NewLibrary() *Library {
	return &Library{
		Stats: make(map[vision.HSV][]vision.ComponentStats),
		Fail:  make(map[string]error),
	}
}

// NewFrame creates a camera frame owned by the fake.
func (l *Library) NewFrame(width, height int) *Image {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.newImage("frame", width, height, 3)
}

// Open returns images that have not been closed.
func (l *Library) Open() []*Image {
	l.mu.Lock()
	defer l.mu.Unlock()
	var open []*Image
	for _, img := range l.images {
		if !img.closed {
			open = append(open, img)
		}
	}
	return open
}

// Images returns every image created so far, in creation order.
func (l *Library) Images() []*Image {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Image(nil), l.images...)
}

// CallCount returns how often the named method was called.
func (l *Library) CallCount(name string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.Calls {
		if c == name {
			n++
		}
	}
	return n
}

func (l *Library) newImage(op string, width, height, channels int) *Image {
	img := &Image{
		ID:       len(l.images) + 1,
		Width:    width,
		Height:   height,
		Channels: channels,
		Op:       op,
		lib:      l,
	}
	l.images = append(l.images, img)
	return img
}

func (l *Library) enter(name string) error {
	l.Calls = append(l.Calls, name)
	return l.Fail[name]
}

func (l *Library) derive(name string, src vision.Image, channels int) (vision.Image, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter(name); err != nil {
		return nil, err
	}
	s, err := l.get(src)
	if err != nil {
		return nil, err
	}
	if channels == 0 {
		channels = s.Channels
	}
	out := l.newImage(name, s.Width, s.Height, channels)
	out.Range = s.Range
	return out, nil
}

func (l *Library) get(img vision.Image) (*Image, error) {
	fi, ok := img.(*Image)
	if !ok || fi == nil {
		return nil, fmt.Errorf("not a fake image: %T", img)
	}
	if fi.lib != l {
		return nil, fmt.Errorf("image %d belongs to another library", fi.ID)
	}
	if fi.closed {
		return nil, fmt.Errorf("image %d (%s) used after close", fi.ID, fi.Op)
	}
	return fi, nil
}

func (l *Library) Size(img vision.Image) (int, int) {
	fi, ok := img.(*Image)
	if !ok {
		return 0, 0
	}
	return fi.Width, fi.Height
}

func (l *Library) Clone(src vision.Image) (vision.Image, error) {
	return l.derive("Clone", src, 0)
}

func (l *Library) Blank(width, height, channels int) (vision.Image, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("Blank"); err != nil {
		return nil, err
	}
	return l.newImage("Blank", width, height, channels), nil
}

func (l *Library) Mirror(src vision.Image) (vision.Image, error) {
	return l.derive("Mirror", src, 0)
}

func (l *Library) ConvertColor(src vision.Image, conv vision.ColorConversion) (vision.Image, error) {
	channels := 3
	out, err := l.derive("ConvertColor", src, channels)
	if err != nil {
		return nil, err
	}
	out.(*Image).Op = "ConvertColor " + conv.String()
	return out, nil
}

func (l *Library) InRange(src vision.Image, low, high vision.HSV) (vision.Image, error) {
	out, err := l.derive("InRange", src, 1)
	if err != nil {
		return nil, err
	}
	out.(*Image).Range = low
	return out, nil
}

func (l *Library) Masked(src, mask vision.Image) (vision.Image, error) {
	l.mu.Lock()
	m, err := l.get(mask)
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out, err := l.derive("Masked", src, 0)
	if err != nil {
		return nil, err
	}
	out.(*Image).Range = m.Range
	return out, nil
}

func (l *Library) MorphClose(mask vision.Image, kernelSize, iterations int) (vision.Image, error) {
	out, err := l.derive("MorphClose", mask, 1)
	if err != nil {
		return nil, err
	}
	out.(*Image).Op = fmt.Sprintf("MorphClose k=%d i=%d", kernelSize, iterations)
	return out, nil
}

func (l *Library) LabelComponents(mask vision.Image) (vision.Labeling, error) {
	labels, err := l.derive("LabelComponents", mask, 1)
	if err != nil {
		return vision.Labeling{}, err
	}
	fi := labels.(*Image)

	l.mu.Lock()
	defer l.mu.Unlock()
	stats := []vision.ComponentStats{{
		Label: 0,
		Area:  fi.Width * fi.Height,
		BBox:  geometry.NewRectInt(0, 0, fi.Width, fi.Height),
	}}
	stats = append(stats, l.Stats[fi.Range]...)
	return vision.Labeling{Labels: labels, Stats: stats}, nil
}

func (l *Library) LabelMask(labels vision.Image, label int) (vision.Image, error) {
	out, err := l.derive("LabelMask", labels, 1)
	if err != nil {
		return nil, err
	}
	out.(*Image).Op = fmt.Sprintf("LabelMask %d", label)
	return out, nil
}

func (l *Library) CombineMasks(masks []vision.Image, op vision.BitwiseOp) (vision.Image, error) {
	if len(masks) == 0 {
		l.mu.Lock()
		defer l.mu.Unlock()
		if err := l.enter("CombineMasks"); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("no masks to combine")
	}
	for _, m := range masks[1:] {
		l.mu.Lock()
		_, err := l.get(m)
		l.mu.Unlock()
		if err != nil {
			return nil, err
		}
	}
	out, err := l.derive("CombineMasks", masks[0], 1)
	if err != nil {
		return nil, err
	}
	out.(*Image).Op = fmt.Sprintf("CombineMasks %s x%d", op, len(masks))
	return out, nil
}

func (l *Library) Paste(dst, src vision.Image, r geometry.RectInt) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("Paste"); err != nil {
		return err
	}
	d, err := l.get(dst)
	if err != nil {
		return err
	}
	s, err := l.get(src)
	if err != nil {
		return err
	}
	if s.Width != r.Width || s.Height != r.Height {
		return fmt.Errorf("paste size mismatch: %dx%d into %dx%d", s.Width, s.Height, r.Width, r.Height)
	}
	if r.X < 0 || r.Y < 0 || r.Right() > d.Width || r.Bottom() > d.Height {
		return fmt.Errorf("paste region %v outside %dx%d", r, d.Width, d.Height)
	}
	d.Pastes = append(d.Pastes, Paste{Src: s, Rect: r})
	return nil
}

func (l *Library) draw(name string, dst vision.Image, desc string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter(name); err != nil {
		return err
	}
	d, err := l.get(dst)
	if err != nil {
		return err
	}
	d.Draws = append(d.Draws, name+" "+desc)
	return nil
}

func (l *Library) DrawRectangle(dst vision.Image, r geometry.RectInt, c color.RGBA, thickness int) error {
	return l.draw("DrawRectangle", dst, fmt.Sprintf("%d,%d,%d,%d rgb(%d,%d,%d) t=%d",
		r.X, r.Y, r.Width, r.Height, c.R, c.G, c.B, thickness))
}

func (l *Library) DrawMarker(dst vision.Image, at geometry.PointInt, c color.RGBA, size, thickness int) error {
	return l.draw("DrawMarker", dst, fmt.Sprintf("%d,%d rgb(%d,%d,%d) s=%d", at.X, at.Y, c.R, c.G, c.B, size))
}

func (l *Library) DrawCircle(dst vision.Image, center geometry.PointInt, radius int, c color.RGBA, thickness int) error {
	return l.draw("DrawCircle", dst, fmt.Sprintf("%d,%d r=%d rgb(%d,%d,%d)", center.X, center.Y, radius, c.R, c.G, c.B))
}

func (l *Library) DrawText(dst vision.Image, text string, at geometry.PointInt, scale float64, c color.RGBA, thickness int) error {
	return l.draw("DrawText", dst, fmt.Sprintf("%q at %d,%d", text, at.X, at.Y))
}

var _ vision.Library = (*Library)(nil)
