package photometry

import (
	"fmt"
	"log/slog"

	"fitsrating/pkg/extract"
)

// Parameters tune background estimation, extraction, photometry and PSF
// fitting.
type Parameters struct {
	// Size of background model tiles.
	BackgroundTileSize int `yaml:"background_tile_size" json:"background_tile_size"`
	// Median filter size applied to the background mesh.
	BackgroundFilterSize int `yaml:"background_filter_size" json:"background_filter_size"`

	// K of the K*sigma noise estimate.
	NoiseK float64 `yaml:"noise_k" json:"noise_k"`
	// Maximum iterations of the noise estimate.
	NoiseIterations int `yaml:"noise_iterations" json:"noise_iterations"`
	// Relative convergence threshold of the noise estimate.
	NoiseEpsilon float64 `yaml:"noise_epsilon" json:"noise_epsilon"`

	// Detection threshold in background standard deviations.
	ExtractThreshold float64 `yaml:"extract_threshold" json:"extract_threshold"`
	// Minimum number of pixels per object.
	MinObjectPixels int `yaml:"min_object_pixels" json:"min_object_pixels"`
	// Number of deblending thresholds.
	DeblendThresholds int `yaml:"deblend_thresholds" json:"deblend_thresholds"`
	// Minimum flux contrast for deblending.
	DeblendContrast float64 `yaml:"deblend_contrast" json:"deblend_contrast"`
	Clean           bool    `yaml:"clean" json:"clean"`
	// Aggressiveness of cleaning.
	CleanParameter float64 `yaml:"clean_parameter" json:"clean_parameter"`
	// Detection filter, row-major. Nil selects the 3x3 default kernel.
	Filter       []float32 `yaml:"filter,omitempty" json:"filter,omitempty"`
	FilterWidth  int       `yaml:"filter_width,omitempty" json:"filter_width,omitempty"`
	FilterHeight int       `yaml:"filter_height,omitempty" json:"filter_height,omitempty"`

	// The flux aperture radius is KronMultiple * kron radius.
	KronMultiple float64 `yaml:"kron_multiple" json:"kron_multiple"`
	// Minimum SNR for an object to be accepted.
	MinSNR float64 `yaml:"min_snr" json:"min_snr"`
	// Maximum HFR for an object to be accepted.
	MaxHFR float64 `yaml:"max_hfr" json:"max_hfr"`
	// Accepted range of sqrt(a²+b²).
	MinElongation float64 `yaml:"min_elongation" json:"min_elongation"`
	MaxElongation float64 `yaml:"max_elongation" json:"max_elongation"`
	// Objects smaller than this radius are measured with a circular aperture
	// of the same radius.
	PointSourceRadius float64 `yaml:"point_source_radius" json:"point_source_radius"`

	// Whether a Moffat PSF is fitted to each star.
	PSFFit bool `yaml:"psf_fit" json:"psf_fit"`

	// Directory for intermediate images; empty disables them.
	DebugDir string `yaml:"debug_dir,omitempty" json:"-"`
}

// DefaultParameters returns the default photometry parameters.
func DefaultParameters() Parameters {
	return Parameters{
		BackgroundTileSize:   64,
		BackgroundFilterSize: 3,
		NoiseK:               3,
		NoiseIterations:      16,
		NoiseEpsilon:         0.01,
		ExtractThreshold:     2.5,
		MinObjectPixels:      21,
		DeblendThresholds:    32,
		DeblendContrast:      0.005,
		Clean:                true,
		CleanParameter:       1.0,
		KronMultiple:         2.5,
		MinSNR:               10,
		MaxHFR:               15,
		MinElongation:        0.8,
		MaxElongation:        10,
		PointSourceRadius:    1.75,
		PSFFit:               true,
	}
}

// Validate reports parameters the engine cannot work with.
func (p Parameters) Validate() error {
	switch {
	case p.BackgroundTileSize <= 0:
		return fmt.Errorf("background tile size must be positive, got %d", p.BackgroundTileSize)
	case p.BackgroundFilterSize <= 0:
		return fmt.Errorf("background filter size must be positive, got %d", p.BackgroundFilterSize)
	case p.NoiseK <= 0:
		return fmt.Errorf("noise k must be positive, got %f", p.NoiseK)
	case p.ExtractThreshold <= 0:
		return fmt.Errorf("extract threshold must be positive, got %f", p.ExtractThreshold)
	case p.KronMultiple <= 0:
		return fmt.Errorf("kron multiple must be positive, got %f", p.KronMultiple)
	case p.MinElongation >= p.MaxElongation:
		return fmt.Errorf("elongation range [%f, %f] is empty", p.MinElongation, p.MaxElongation)
	case p.Filter != nil && len(p.Filter) != p.FilterWidth*p.FilterHeight:
		return fmt.Errorf("filter has %d values for %dx%d", len(p.Filter), p.FilterWidth, p.FilterHeight)
	}
	return nil
}

func (p Parameters) extractParams() extract.Params {
	return extract.Params{
		Threshold:         p.ExtractThreshold,
		MinArea:           p.MinObjectPixels,
		Filter:            p.Filter,
		FilterWidth:       p.FilterWidth,
		FilterHeight:      p.FilterHeight,
		DeblendThresholds: p.DeblendThresholds,
		DeblendContrast:   p.DeblendContrast,
		Clean:             p.Clean,
		CleanParameter:    p.CleanParameter,
		DebugDir:          p.DebugDir,
	}
}

// Options carry the non-numeric collaborators of an Engine.
type Options struct {
	// Progress, when set, is called at every phase boundary.
	Progress func(Progress)
	// Logger receives per-phase debug output. Nil discards it.
	Logger *slog.Logger
}
