// Package prefs persists the last tuned parameters as JSON.
package prefs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"marker-tracker/internal/params"
)

const prefsFile = "preferences.json"

// Keys under which tuning values are stored.
const (
	KeyMinBlobArea     = "min_blob_area"
	KeyCloseKernelSize = "close_kernel_size"
	KeyCloseIterations = "close_iterations"
	KeySimilarityCap   = "similarity_cap"
	keyWeightPrefix    = "weight_"
)

// Prefs stores preferences as a key-value map.
type Prefs struct {
	mu      sync.RWMutex
	values  map[string]interface{}
	path    string
	changed bool
}

// DefaultPath returns ~/.config/marker-tracker/preferences.json.
func DefaultPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(configDir, "marker-tracker", prefsFile)
}

// Load reads preferences from path.
// Returns empty Prefs if the file doesn't exist or is unreadable.
func Load(path string) *Prefs {
	p := &Prefs{
		values: make(map[string]interface{}),
		path:   path,
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p
	}
	_ = json.Unmarshal(data, &p.values)
	return p
}

// Path returns the backing file.
func (p *Prefs) Path() string {
	return p.path
}

// Save writes preferences to disk.
func (p *Prefs) Save() error {
	p.mu.Lock()
	data, err := json.MarshalIndent(p.values, "", "  ")
	p.changed = false
	p.mu.Unlock()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p.path, data, 0o644)
}

// SaveIfChanged writes preferences only when a value changed since the
// last save.
func (p *Prefs) SaveIfChanged() error {
	p.mu.RLock()
	changed := p.changed
	p.mu.RUnlock()
	if !changed {
		return nil
	}
	return p.Save()
}

// FloatWithFallback returns a float64 preference, or fallback if not set.
func (p *Prefs) FloatWithFallback(key string, fallback float64) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v, ok := p.values[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
	}
	return fallback
}

// IntWithFallback returns an int preference, or fallback if not set.
func (p *Prefs) IntWithFallback(key string, fallback int) int {
	return int(p.FloatWithFallback(key, float64(fallback)))
}

// SetFloat stores a float64 preference.
func (p *Prefs) SetFloat(key string, val float64) {
	p.mu.Lock()
	if old, ok := p.values[key]; !ok || old != val {
		p.values[key] = val
		p.changed = true
	}
	p.mu.Unlock()
}

// SetInt stores an int preference.
func (p *Prefs) SetInt(key string, val int) {
	p.SetFloat(key, float64(val))
}

// Parameters returns the stored parameters, taking missing values from
// fallback. A stored set that no longer validates yields fallback.
func (p *Prefs) Parameters(fallback params.Parameters) params.Parameters {
	out := params.Parameters{
		MinBlobArea:     p.IntWithFallback(KeyMinBlobArea, fallback.MinBlobArea),
		CloseKernelSize: p.IntWithFallback(KeyCloseKernelSize, fallback.CloseKernelSize),
		CloseIterations: p.IntWithFallback(KeyCloseIterations, fallback.CloseIterations),
		SimilarityCap:   p.FloatWithFallback(KeySimilarityCap, fallback.SimilarityCap),
	}
	for _, c := range params.Components {
		out.Weights[c] = p.FloatWithFallback(keyWeightPrefix+c.String(), fallback.Weights[c])
	}
	if out.Validate() != nil {
		return fallback
	}
	return out
}

// SetParameters stores every tuning value.
func (p *Prefs) SetParameters(v params.Parameters) {
	p.SetInt(KeyMinBlobArea, v.MinBlobArea)
	p.SetInt(KeyCloseKernelSize, v.CloseKernelSize)
	p.SetInt(KeyCloseIterations, v.CloseIterations)
	p.SetFloat(KeySimilarityCap, v.SimilarityCap)
	for _, c := range params.Components {
		p.SetFloat(keyWeightPrefix+c.String(), v.Weights[c])
	}
}
