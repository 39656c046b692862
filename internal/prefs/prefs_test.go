package prefs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marker-tracker/internal/params"
)

func TestLoadMissingFile(t *testing.T) {
	p := Load(filepath.Join(t.TempDir(), "none.json"))
	assert.Equal(t, params.DefaultParameters(), p.Parameters(params.DefaultParameters()))
	assert.Equal(t, 7, p.IntWithFallback("x", 7))
}

func TestParametersRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", prefsFile)
	want := params.Parameters{
		MinBlobArea:     750,
		CloseKernelSize: 7,
		CloseIterations: 2,
		Weights:         [params.NumComponents]float64{0.5, 0.2, 0.8, 0.1},
		SimilarityCap:   0.62,
	}

	p := Load(path)
	p.SetParameters(want)
	require.NoError(t, p.Save())

	got := Load(path).Parameters(params.DefaultParameters())
	assert.Equal(t, want, got)
}

func TestParametersFallsBackOnInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), prefsFile)
	require.NoError(t, os.WriteFile(path, []byte(`{"close_kernel_size": 0, "min_blob_area": 10}`), 0o644))

	got := Load(path).Parameters(params.DefaultParameters())
	assert.Equal(t, params.DefaultParameters(), got)
}

func TestParametersPartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), prefsFile)
	require.NoError(t, os.WriteFile(path, []byte(`{"min_blob_area": 42, "weight_square": 0.9}`), 0o644))

	got := Load(path).Parameters(params.DefaultParameters())
	want := params.DefaultParameters()
	want.MinBlobArea = 42
	want.Weights[params.Squareness] = 0.9
	assert.Equal(t, want, got)
}

func TestSaveIfChanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), prefsFile)
	p := Load(path)

	require.NoError(t, p.SaveIfChanged())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	p.SetFloat(KeySimilarityCap, 0.4)
	require.NoError(t, p.SaveIfChanged())
	_, err = os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	p.SetFloat(KeySimilarityCap, 0.4) // unchanged
	require.NoError(t, p.SaveIfChanged())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
