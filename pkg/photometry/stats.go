package photometry

import (
	"math"
	"slices"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// computeStatistics fills the PSF widths and weights of objects and
// summarizes them into s. Widths come from the fitted alphas when fitted
// is set; otherwise the moment-based widths are kept.
func computeStatistics(objects []Object, fitted bool, s *Statistics) {
	s.Stars = len(objects)
	if len(objects) == 0 {
		s.Eccentricity, s.SNR, s.FWHM, s.HFR, s.Residual = MetricStats{}, MetricStats{}, MetricStats{}, MetricStats{}, MetricStats{}
		return
	}

	residualMin := lo.MinBy(objects, func(a, b Object) bool {
		return a.PSF.Residual < b.PSF.Residual
	}).PSF.Residual

	for i := range objects {
		psf := &objects[i].PSF
		if !fitted {
			psf.Weight = 1
			continue
		}
		psf.FWHMX = FWHM(psf.AlphaX)
		psf.FWHMY = FWHM(psf.AlphaY)
		psf.FWHM = FWHM(math.Sqrt(psf.AlphaX * psf.AlphaY))
		if psf.Residual == 0 {
			psf.Weight = 1
		} else {
			psf.Weight = residualMin / psf.Residual
		}
	}

	weights := lo.Map(objects, func(o Object, _ int) float64 { return o.PSF.Weight })
	metric := func(value func(Object) float64) MetricStats {
		return summarize(lo.Map(objects, func(o Object, _ int) float64 { return value(o) }), weights)
	}
	s.FWHM = metric(func(o Object) float64 { return o.PSF.FWHM })
	s.Eccentricity = metric(func(o Object) float64 { return o.PSF.Eccentricity })
	s.SNR = metric(func(o Object) float64 { return o.SNR })
	s.HFR = metric(func(o Object) float64 { return o.HFR })
	s.Residual = metric(func(o Object) float64 { return o.PSF.Residual })
}

// summarize computes unweighted extremes, the weighted mean, the median
// (averaging the middle pair) and the mean absolute deviation from the
// median.
func summarize(values, weights []float64) MetricStats {
	if len(values) == 0 {
		return MetricStats{}
	}
	m := MetricStats{
		Max: floats.Max(values),
		Min: floats.Min(values),
	}
	if floats.Sum(weights) > 0 {
		m.Mean = stat.Mean(values, weights)
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)
	m.Median = sortedMedian(sorted)
	m.MAD = stat.Mean(lo.Map(values, func(v float64, _ int) float64 {
		return math.Abs(m.Median - v)
	}), nil)
	return m
}

// imageMedian returns the middle order statistic of plane and the mean
// absolute deviation of plane from it.
func imageMedian(plane []float32) (median, mad float64) {
	if len(plane) == 0 {
		return 0, 0
	}
	s := slices.Clone(plane)
	slices.Sort(s)
	median = float64(s[len(s)/2])
	for _, v := range plane {
		mad += math.Abs(median - float64(v))
	}
	return median, mad / float64(len(plane))
}

// clippedNoise iterates a K*sigma clipped RMS about zero starting from
// sigma. It returns the final sigma and the fraction of pixels kept.
func clippedNoise(data []float32, sigma, k float64, iterations int, eps float64) (float64, float64) {
	n := len(data)
	if n == 0 {
		return 0, 0
	}
	work := slices.Clone(data)
	kept := n
	for i := 0; i < iterations; i++ {
		limit := k * sigma
		count := 0
		var sum float64
		for _, v := range work[:kept] {
			if math.Abs(float64(v)) < limit {
				work[count] = v
				count++
				sum += float64(v) * float64(v)
			}
		}
		if count == 0 {
			break
		}
		prev := sigma
		kept = count
		sigma = math.Sqrt(sum / float64(count))
		if i >= 1 && math.Abs(prev-sigma)/prev < eps {
			break
		}
	}
	return sigma, float64(kept) / float64(n)
}
