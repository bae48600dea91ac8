package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitsrating/pkg/photometry"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fitsrating.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	for _, path := range []string{"", filepath.Join(t.TempDir(), "missing.yaml")} {
		c, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "info", c.Log.Level)
		assert.Equal(t, "text", c.Log.Format)
		assert.Equal(t, photometry.DefaultParameters(), c.Photometry)
		assert.Positive(t, c.Limits.MaxBytes)
		assert.LessOrEqual(t, c.Limits.MaxBytes, int64(maxBytesCap))
		assert.Positive(t, c.Rate.Workers)
		assert.True(t, c.StretchEnabled())
		assert.Equal(t, 1.0, c.RenderOptions().Saturation)
		assert.Nil(t, c.Pattern())
	}
}

func TestLoadZeroSaturation(t *testing.T) {
	c, err := Load(writeConfig(t, "preview:\n  saturation: 0\n"))
	require.NoError(t, err)
	assert.Zero(t, c.RenderOptions().Saturation)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  format: json
limits:
  max_width: 1920
  max_height: 1080
  max_bytes: 1048576
preview:
  mono_color_outline: true
  saturation: 1.5
  stretch: false
photometry:
  extract_threshold: 3
  psf_fit: false
rate:
  workers: 2
  pattern: "Light_.*\\.fits$"
`)
	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "json", c.Log.Format)
	assert.Equal(t, int64(1048576), c.FitsLimits().MaxBytes)
	assert.Equal(t, 1920, c.FitsLimits().MaxWidth)
	assert.Equal(t, 1080, c.FitsLimits().MaxHeight)
	assert.True(t, c.RenderOptions().MonoColorOutline)
	assert.Equal(t, 1.5, c.RenderOptions().Saturation)
	assert.False(t, c.StretchEnabled())

	want := photometry.DefaultParameters()
	want.ExtractThreshold = 3
	want.PSFFit = false
	assert.Equal(t, want, c.Photometry)

	assert.Equal(t, 2, c.Rate.Workers)
	require.NotNil(t, c.Pattern())
	assert.True(t, c.Pattern().MatchString("Light_001.fits"))
	assert.False(t, c.Pattern().MatchString("Dark_001.fits"))
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"syntax", "log: [unclosed"},
		{"pattern", "rate:\n  pattern: \"(\"\n"},
		{"photometry", "photometry:\n  background_tile_size: -1\n"},
		{"saturation", "preview:\n  saturation: -2\n"},
		{"size", "limits:\n  max_width: -5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestDefaultMaxBytes(t *testing.T) {
	v := DefaultMaxBytes()
	assert.Positive(t, v)
	assert.LessOrEqual(t, v, int64(maxBytesCap))
}
