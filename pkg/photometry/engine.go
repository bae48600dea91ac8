package photometry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"fitsrating/pkg/extract"
	"fitsrating/pkg/fits"
)

const (
	kronApertureRadius = 6
	fluxRadiusAxes     = 6
	fluxRadiusSubpix   = 5
	halfFlux           = 0.5
	// snrPi is the value of pi in the SNR noise term.
	snrPi = 3.14159
)

// Engine measures the stars of decoded frames.
type Engine struct {
	params   Parameters
	progress func(Progress)
	log      *slog.Logger
}

// NewEngine returns an engine for params. The parameters are validated by
// Extract.
func NewEngine(params Parameters, opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Engine{params: params, progress: opts.Progress, log: log}
}

// Parameters returns the engine's parameters.
func (e *Engine) Parameters() Parameters { return e.params }

// checkpoint reports p and returns ErrCancelled once ctx is done.
func (e *Engine) checkpoint(ctx context.Context, p Progress) error {
	if e.progress != nil {
		e.progress(p)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return nil
}

// Extract runs background estimation, detection, photometry and PSF fitting
// on channel 0 of img. img is not modified.
func (e *Engine) Extract(ctx context.Context, img *fits.DecodedImage) (*Catalog, error) {
	p := e.params
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	if img == nil || img.Width <= 0 || img.Height <= 0 || len(img.Pix) < img.Width*img.Height {
		return nil, fmt.Errorf("%w: empty image", ErrExtraction)
	}
	plane := img.Plane(0)
	cat := &Catalog{}

	if err := e.checkpoint(ctx, Progress{Phase: PhaseMedian}); err != nil {
		return nil, err
	}
	cat.Statistics.Median, cat.Statistics.MedianMAD = imageMedian(plane)
	e.log.Debug("median", "phase", PhaseMedian, "median", cat.Statistics.Median, "mad", cat.Statistics.MedianMAD)

	if err := e.checkpoint(ctx, Progress{Phase: PhaseBackground}); err != nil {
		return nil, err
	}
	work := extract.Image{Data: slices.Clone(plane), Width: img.Width, Height: img.Height}
	bg, err := extract.NewBackground(work, extract.BackgroundParams{
		TileSize:        p.BackgroundTileSize,
		FilterSize:      p.BackgroundFilterSize,
		FilterThreshold: cat.Statistics.Median,
		DebugDir:        p.DebugDir,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	if err := bg.Subtract(work.Data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	cat.Background = bg
	noiseval := bg.GlobalRMS()
	work.Noise = noiseval
	cat.Statistics.Noise, cat.Statistics.NoiseRatio = clippedNoise(work.Data, noiseval, p.NoiseK, p.NoiseIterations, p.NoiseEpsilon)
	e.log.Debug("background", "phase", PhaseBackground,
		"global", bg.Global(), "rms", noiseval, "noise", cat.Statistics.Noise, "ratio", cat.Statistics.NoiseRatio)

	if err := e.checkpoint(ctx, Progress{Phase: PhaseExtract}); err != nil {
		return nil, err
	}
	det, err := extract.Extract(ctx, work, p.extractParams())
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", ErrCancelled, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	cat.Detections = det
	e.log.Debug("extract", "phase", PhaseExtract, "objects", len(det.Objects), "components", det.Components)

	for i := range det.Objects {
		if err := e.checkpoint(ctx, Progress{Phase: PhaseObject, Objects: len(det.Objects), Index: i, Stars: len(cat.objects)}); err != nil {
			return nil, err
		}
		if obj, ok := e.measure(work, plane, &det.Objects[i], noiseval); ok {
			cat.objects = append(cat.objects, obj)
		}
	}

	if err := e.checkpoint(ctx, Progress{Phase: PhaseStatistics, Objects: len(det.Objects), Index: len(det.Objects), Stars: len(cat.objects)}); err != nil {
		return nil, err
	}
	computeStatistics(cat.objects, p.PSFFit, &cat.Statistics)
	e.log.Debug("statistics", "phase", PhaseStatistics, "objects", len(det.Objects), "stars", cat.Statistics.Stars,
		"fwhm", cat.Statistics.FWHM.Median, "hfr", cat.Statistics.HFR.Median)
	return cat, nil
}

// measure runs aperture photometry on the background-subtracted work image
// and fits the PSF on the original plane. It reports false for rejected
// candidates.
func (e *Engine) measure(work extract.Image, plane []float32, d *extract.Object, noiseval float64) (Object, bool) {
	p := e.params
	elongation := math.Sqrt(d.A*d.A + d.B*d.B)
	if !(elongation > p.MinElongation && elongation < p.MaxElongation) {
		return Object{}, false
	}

	obj := Object{
		CatalogIndex: d.Index,
		XMin:         float64(d.Bounds.Min.X),
		XMax:         float64(d.Bounds.Max.X - 1),
		YMin:         float64(d.Bounds.Min.Y),
		YMax:         float64(d.Bounds.Max.Y - 1),
	}

	obj.KronRadius, obj.KronFlag = extract.KronRadius(work, d.X, d.Y, d.CXX, d.CYY, d.CXY, kronApertureRadius)
	if obj.KronFlag&extract.FlagNonPositive != 0 || !(obj.KronRadius > 0) {
		return Object{}, false
	}

	ellipse := extract.SumEllipse(work, d.X, d.Y, d.A, d.B, d.Theta, p.KronMultiple*obj.KronRadius, 1)
	obj.EllipseSum, obj.EllipseSumErr, obj.EllipseSumFlag = ellipse.Sum, ellipse.Err, ellipse.Flag
	chosen := ellipse
	if obj.KronRadius*math.Sqrt(d.A*d.B) < p.PointSourceRadius {
		circle := extract.SumCircle(work, d.X, d.Y, p.PointSourceRadius, 1)
		obj.CircleSum, obj.CircleSumErr, obj.CircleSumFlag = circle.Sum, circle.Err, circle.Flag
		chosen = circle
	}
	obj.Flux, obj.FluxErr, obj.FluxFlag = chosen.Sum, chosen.Err, chosen.Flag

	obj.HFR, obj.HFRFlag = extract.FluxRadius(work, d.X, d.Y, fluxRadiusAxes*d.A, fluxRadiusSubpix, obj.Flux, halfFlux)

	obj.SNR = obj.Flux / math.Sqrt(obj.Flux+chosen.Area*chosen.Area*snrPi*noiseval)
	if !(obj.Flux > 0) || math.IsNaN(obj.SNR) || math.IsInf(obj.SNR, 0) {
		return Object{}, false
	}
	if obj.SNR < p.MinSNR || obj.HFR > p.MaxHFR {
		return Object{}, false
	}

	if !p.PSFFit {
		obj.PSF = PSF{
			X:            d.X,
			Y:            d.Y,
			FWHM:         2 * math.Sqrt(math.Ln2*(d.A*d.A+d.B*d.B)),
			Eccentricity: math.Sqrt(1 - d.B*d.B/(d.A*d.A)),
		}
		return obj, true
	}

	psf, err := fitPSF(plane, work.Width, d.X, d.Y, obj.XMin, obj.YMin, obj.XMax, obj.YMax)
	if err != nil {
		e.log.Debug("psf rejected", "phase", PhaseObject, "index", d.Index, "err", err)
		return Object{}, false
	}
	obj.PSF = psf
	return obj, true
}
