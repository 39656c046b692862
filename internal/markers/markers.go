// Package markers describes the tracked marker colors and reads and
// writes their calibrated HSV ranges.
package markers

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"marker-tracker/internal/vision"
)

// Count is the number of markers the tracker pairs.
const Count = 2

// ErrConfiguration marks a missing or malformed marker definition.
var ErrConfiguration = errors.New("marker configuration")


// Range is the calibrated color range of one marker.
type Range struct {
	Name string     `toml:"name"`
	Low  vision.HSV `toml:"low"`
	High vision.HSV `toml:"high"`
}

func (r Range) String() string {
	return fmt.Sprintf("%s H(%d-%d) S(%d-%d) V(%d-%d)", r.Name,
		r.Low[0], r.High[0], r.Low[1], r.High[1], r.Low[2], r.High[2])
}

// Validate checks channel bounds and ordering.
func (r Range) Validate() error {
	for c := 0; c < 3; c++ {
		if r.Low[c] < 0 || r.High[c] > vision.MaxHSV[c] {
			return errors.Wrapf(ErrConfiguration, "%s: channel %d outside 0-%d", r.Name, c, vision.MaxHSV[c])
		}
		if r.Low[c] > r.High[c] {
			return errors.Wrapf(ErrConfiguration, "%s: channel %d low %d > high %d", r.Name, c, r.Low[c], r.High[c])
		}
	}
	return nil
}

// Pair is the two marker ranges, in the order their blob sets are paired.
type Pair [Count]Range

// Validate checks both ranges.
func (p Pair) Validate() error {
	for _, r := range p {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Parse reads a range in the form "hMin,sMin,vMin,hMax,sMax,vMax".
func Parse(name string, r io.Reader) (Range, error) {
	rec, err := csv.NewReader(r).Read()
	if err != nil {
		return Range{}, fmt.Errorf("%w: %s: %w", ErrConfiguration, name, err)
	}
	if len(rec) != 6 {
		return Range{}, errors.Wrapf(ErrConfiguration, "%s: want 6 values, got %d", name, len(rec))
	}

	var vals [6]int
	for i, field := range rec {
		v, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return Range{}, fmt.Errorf("%w: %s: value %d: %w", ErrConfiguration, name, i+1, err)
		}
		vals[i] = v
	}

	rng := Range{
		Name: name,
		Low:  vision.HSV{vals[0], vals[1], vals[2]},
		High: vision.HSV{vals[3], vals[4], vals[5]},
	}
	return rng, rng.Validate()
}

// Load reads a range file. The marker is named after the file.
func Load(path string) (Range, error) {
	f, err := os.Open(path)
	if err != nil {
		return Range{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Parse(name, f)
}

// Write encodes a range in the format Parse reads.
func Write(w io.Writer, r Range) error {
	cw := csv.NewWriter(w)
	rec := make([]string, 0, 6)
	for _, v := range append(r.Low[:], r.High[:]...) {
		rec = append(rec, strconv.Itoa(v))
	}
	if err := cw.Write(rec); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// Save writes a range file, creating parent directories.
func Save(path string, r Range) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
