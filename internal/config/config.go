// Package config loads the tracker's TOML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"marker-tracker/internal/markers"
	"marker-tracker/internal/params"
	"marker-tracker/internal/vision"
)

// DefaultPath is the configuration file read when no path is given.
const DefaultPath = "tracker.toml"

// ErrConfiguration is shared with the markers package so callers can test
// for any start-up configuration problem with a single errors.Is.
var ErrConfiguration = markers.ErrConfiguration

// Marker names one tracked color. Either File or both Low and High are set.
type Marker struct {
	Name string      `toml:"name"`
	File string      `toml:"file"`
	Low  *vision.HSV `toml:"low"`
	High *vision.HSV `toml:"high"`
}

// Config is the tracker configuration.
type Config struct {
	Camera      int               `toml:"camera"`    // Capture device index
	Window      string            `toml:"window"`    // Debug window title
	Mirror      bool              `toml:"mirror"`    // Flip frames horizontally
	Verbose     bool              `toml:"verbose"`   // Log every frame
	PrefsPath   string            `toml:"prefs"`     // "" for the default location, "-" to disable
	SnapshotDir string            `toml:"snapshots"` // Where 's' writes debug-grid snapshots
	Markers     []Marker          `toml:"marker"`
	Params      params.Parameters `toml:"params"` // Start-up parameters, overridden by saved prefs

	dir string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Camera:      0,
		Window:      "marker-tracker",
		Mirror:      true,
		SnapshotDir: "snapshots",
		Markers: []Marker{
			{Name: "color0", File: filepath.Join("colors", "color0.csv")},
			{Name: "color1", File: filepath.Join("colors", "color1.csv")},
		},
		Params: params.DefaultParameters(),
		dir:    ".",
	}
}

// Load reads path over the defaults. A missing file at DefaultPath yields
// the defaults; a missing explicit path is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && path == DefaultPath {
			return cfg, cfg.Validate()
		}
		return Config{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	cfg, err = Parse(string(data))
	if err != nil {
		return Config{}, errors.Wrap(err, path)
	}
	cfg.dir = filepath.Dir(path)
	return cfg, nil
}

// Parse decodes a TOML document over the defaults.
func Parse(doc string) (Config, error) {
	cfg := Default()
	defaults := cfg.Markers
	// Decoding reuses existing slice elements, so markers start empty.
	cfg.Markers = nil
	md, err := toml.Decode(doc, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if !md.IsDefined("marker") {
		cfg.Markers = defaults
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, errors.Wrapf(ErrConfiguration, "unknown keys: %s", strings.Join(keys, ", "))
	}
	return cfg, cfg.Validate()
}

// Validate checks the static parts of the configuration. Marker files are
// only read by MarkerPair.
func (c Config) Validate() error {
	if c.Camera < 0 {
		return errors.Wrapf(ErrConfiguration, "camera %d < 0", c.Camera)
	}
	if len(c.Markers) != markers.Count {
		return errors.Wrapf(ErrConfiguration, "want exactly %d markers, got %d", markers.Count, len(c.Markers))
	}
	for i, m := range c.Markers {
		inline := m.Low != nil || m.High != nil
		switch {
		case m.File != "" && inline:
			return errors.Wrapf(ErrConfiguration, "marker %d: set either file or low/high, not both", i)
		case m.File == "" && (m.Low == nil || m.High == nil):
			return errors.Wrapf(ErrConfiguration, "marker %d: needs a file or both low and high", i)
		}
	}
	if err := c.Params.Validate(); err != nil {
		return fmt.Errorf("%w: params: %w", ErrConfiguration, err)
	}
	return nil
}

// MarkerFiles returns the resolved paths of file-backed markers.
func (c Config) MarkerFiles() []string {
	var files []string
	for _, m := range c.Markers {
		if m.File != "" {
			files = append(files, c.resolve(m.File))
		}
	}
	return files
}

// MarkerPair builds the two marker ranges, reading files as needed.
func (c Config) MarkerPair() (markers.Pair, error) {
	if err := c.Validate(); err != nil {
		return markers.Pair{}, err
	}

	var pair markers.Pair
	for i, m := range c.Markers {
		var r markers.Range
		if m.File != "" {
			loaded, err := markers.Load(c.resolve(m.File))
			if err != nil {
				return markers.Pair{}, err
			}
			r = loaded
		} else {
			r = markers.Range{Low: *m.Low, High: *m.High}
		}
		if m.Name != "" {
			r.Name = m.Name
		}
		if err := r.Validate(); err != nil {
			return markers.Pair{}, err
		}
		pair[i] = r
	}
	return pair, nil
}

func (c Config) resolve(path string) string {
	if filepath.IsAbs(path) || c.dir == "" {
		return path
	}
	return filepath.Join(c.dir, path)
}
