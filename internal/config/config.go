package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"runtime"

	"github.com/pbnjay/memory"
	"gopkg.in/yaml.v2"

	"fitsrating/pkg/fits"
	"fitsrating/pkg/photometry"
	"fitsrating/pkg/render"
)

/* Example config file ...

log:
  level: debug
  format: json

limits:
  max_width: 1920
  max_height: 1080

preview:
  mono_color_outline: true
  saturation: 1.2
  stretch: true

photometry:
  extract_threshold: 3
  min_snr: 15
  psf_fit: false

rate:
  workers: 4
  pattern: "Light_.*"

*/

// maxBytesCap bounds the default decode limit.
const maxBytesCap = 4 << 30

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Limits struct {
	MaxWidth  int   `yaml:"max_width"`
	MaxHeight int   `yaml:"max_height"`
	MaxBytes  int64 `yaml:"max_bytes"`
}

type Preview struct {
	MonoColorOutline bool    `yaml:"mono_color_outline"`
	Saturation       float64 `yaml:"saturation"`
	// Stretch disables the auto stretch when false.
	Stretch *bool `yaml:"stretch"`
}

type Rate struct {
	Workers int    `yaml:"workers"`
	Pattern string `yaml:"pattern"`
}

// Config is the file configuration of the CLI.
type Config struct {
	Log        Log                   `yaml:"log"`
	Limits     Limits                `yaml:"limits"`
	Preview    Preview               `yaml:"preview"`
	Photometry photometry.Parameters `yaml:"photometry"`
	Rate       Rate                  `yaml:"rate"`

	// Derived by Finalize.
	pattern *regexp.Regexp
}

// New returns the default configuration.
func New() *Config {
	return &Config{
		Log:        Log{Level: "info", Format: "text"},
		Preview:    Preview{Saturation: render.DefaultOptions().Saturation},
		Photometry: photometry.DefaultParameters(),
	}
}

// Load reads a YAML file over the defaults. An empty path or a missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	c := New()
	if path != "" {
		contents, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read %q: %w", path, err)
		default:
			if err := yaml.Unmarshal(contents, c); err != nil {
				return nil, fmt.Errorf("parse %q: %w", path, err)
			}
		}
	}
	if err := c.Finalize(); err != nil {
		return nil, err
	}
	return c, nil
}

// Finalize fills unset values and validates the configuration.
func (c *Config) Finalize() error {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Limits.MaxBytes <= 0 {
		c.Limits.MaxBytes = DefaultMaxBytes()
	}
	if c.Limits.MaxWidth < 0 || c.Limits.MaxHeight < 0 {
		return fmt.Errorf("negative output size %dx%d", c.Limits.MaxWidth, c.Limits.MaxHeight)
	}
	if c.Preview.Saturation < 0 {
		return fmt.Errorf("negative saturation %f", c.Preview.Saturation)
	}
	if c.Preview.Stretch == nil {
		stretch := true
		c.Preview.Stretch = &stretch
	}
	if c.Rate.Workers <= 0 {
		c.Rate.Workers = runtime.NumCPU()
	}
	c.pattern = nil
	if c.Rate.Pattern != "" {
		re, err := regexp.Compile(c.Rate.Pattern)
		if err != nil {
			return fmt.Errorf("rate pattern: %w", err)
		}
		c.pattern = re
	}
	if err := c.Photometry.Validate(); err != nil {
		return fmt.Errorf("photometry: %w", err)
	}
	return nil
}

// DefaultMaxBytes is a quarter of physical memory, at most 4 GiB. It falls
// back to the fits default when the memory size is unknown.
func DefaultMaxBytes() int64 {
	total := memory.TotalMemory()
	if total == 0 {
		return fits.DefaultLimits().MaxBytes
	}
	return int64(min(total/4, maxBytesCap))
}

// FitsLimits returns the decode limits.
func (c *Config) FitsLimits() fits.Limits {
	return fits.Limits{MaxBytes: c.Limits.MaxBytes, MaxWidth: c.Limits.MaxWidth, MaxHeight: c.Limits.MaxHeight}
}

// RenderOptions returns the compositor options.
func (c *Config) RenderOptions() render.Options {
	return render.Options{MonoColorOutline: c.Preview.MonoColorOutline, Saturation: c.Preview.Saturation}
}

// StretchEnabled reports whether previews are auto stretched.
func (c *Config) StretchEnabled() bool {
	return c.Preview.Stretch == nil || *c.Preview.Stretch
}

// Pattern returns the compiled file name filter, or nil.
func (c *Config) Pattern() *regexp.Regexp { return c.pattern }
