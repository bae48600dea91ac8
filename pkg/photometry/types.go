package photometry

import (
	"fmt"

	"fitsrating/pkg/extract"
)

// PSF is the fitted (or moment-approximated) point spread function of a star.
type PSF struct {
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	AlphaX       float64 `json:"alpha_x"`
	AlphaY       float64 `json:"alpha_y"`
	Theta        float64 `json:"theta"`
	Residual     float64 `json:"residual"`
	Weight       float64 `json:"weight"`
	FWHMX        float64 `json:"fwhm_x"`
	FWHMY        float64 `json:"fwhm_y"`
	FWHM         float64 `json:"fwhm"`
	Eccentricity float64 `json:"eccentricity"`
}

// Object is an accepted star with its photometry.
type Object struct {
	// CatalogIndex is the index of the detection in Catalog.Detections.
	CatalogIndex int `json:"catalog_index"`

	XMin float64 `json:"x_min"`
	XMax float64 `json:"x_max"`
	YMin float64 `json:"y_min"`
	YMax float64 `json:"y_max"`

	KronRadius float64      `json:"kron_radius"`
	KronFlag   extract.Flag `json:"kron_flag"`

	EllipseSum     float64      `json:"ellipse_sum"`
	EllipseSumErr  float64      `json:"ellipse_sum_err"`
	EllipseSumFlag extract.Flag `json:"ellipse_sum_flag"`

	CircleSum     float64      `json:"circle_sum"`
	CircleSumErr  float64      `json:"circle_sum_err"`
	CircleSumFlag extract.Flag `json:"circle_sum_flag"`

	Flux     float64      `json:"flux"`
	FluxErr  float64      `json:"flux_err"`
	FluxFlag extract.Flag `json:"flux_flag"`

	HFR     float64      `json:"hfr"`
	HFRFlag extract.Flag `json:"hfr_flag"`

	SNR float64 `json:"snr"`

	PSF PSF `json:"psf"`
}

func (o Object) String() string {
	return fmt.Sprintf("{Index=%d, Center=(%f,%f), Flux=%f, HFR=%f, SNR=%f, FWHM=%f, Eccentricity=%f, Residual=%f}",
		o.CatalogIndex, o.PSF.X, o.PSF.Y, o.Flux, o.HFR, o.SNR, o.PSF.FWHM, o.PSF.Eccentricity, o.PSF.Residual)
}

// MetricStats summarizes one per-star metric.
type MetricStats struct {
	Max    float64 `json:"max"`
	Min    float64 `json:"min"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	MAD    float64 `json:"mad"`
}

// Statistics are the frame-level results of an extraction.
type Statistics struct {
	Stars int `json:"stars"`

	// Median of the raw channel and mean absolute deviation from it.
	Median    float64 `json:"median"`
	MedianMAD float64 `json:"median_mad"`

	// Noise is the K*sigma clipped standard deviation of the
	// background-subtracted image; NoiseRatio is the fraction of pixels kept.
	Noise      float64 `json:"noise"`
	NoiseRatio float64 `json:"noise_ratio"`

	Eccentricity MetricStats `json:"eccentricity"`
	SNR          MetricStats `json:"snr"`
	FWHM         MetricStats `json:"fwhm"`
	HFR          MetricStats `json:"hfr"`
	Residual     MetricStats `json:"residual"`
}

// HFD returns the half flux diameter statistics. Its mean is reported as
// twice the HFR median.
func (s Statistics) HFD() MetricStats {
	return MetricStats{
		Max:    2 * s.HFR.Max,
		Min:    2 * s.HFR.Min,
		Mean:   2 * s.HFR.Median,
		Median: 2 * s.HFR.Median,
		MAD:    2 * s.HFR.MAD,
	}
}

// SNRWeight is (MedianMAD/Noise)², or 0 without noise.
func (s Statistics) SNRWeight() float64 {
	if s.Noise == 0 {
		return 0
	}
	r := s.MedianMAD / s.Noise
	return r * r
}

func (s Statistics) String() string {
	return fmt.Sprintf("{Stars=%d, Median=%f, MedianMAD=%f, Noise=%f, NoiseRatio=%f, FWHM=%f, HFR=%f, Eccentricity=%f, SNR=%f, Residual=%f}",
		s.Stars, s.Median, s.MedianMAD, s.Noise, s.NoiseRatio, s.FWHM.Median, s.HFR.Median, s.Eccentricity.Median, s.SNR.Median, s.Residual.Median)
}

// Phase names a stage of Extract.
type Phase int

const (
	PhaseMedian Phase = iota
	PhaseBackground
	PhaseExtract
	PhaseObject
	PhaseStatistics
)

func (p Phase) String() string {
	switch p {
	case PhaseMedian:
		return "median"
	case PhaseBackground:
		return "background"
	case PhaseExtract:
		return "extract"
	case PhaseObject:
		return "object"
	case PhaseStatistics:
		return "statistics"
	default:
		return "unknown"
	}
}

// Progress is reported at every phase boundary. Objects is the number of
// detections, Index the detection about to be measured and Stars the number
// accepted so far.
type Progress struct {
	Phase   Phase
	Objects int
	Index   int
	Stars   int
}
