package photometry

import (
	"fmt"
	"math"
	"slices"
)

const (
	// moffatBeta is the fixed Moffat exponent.
	moffatBeta = 4
	// moffatFWHMScale is 2*sqrt(2^(1/beta)-1) for beta = 4.
	moffatFWHMScale = 0.869958884
	fitTolerance    = 1e-8
	winsorFraction  = 0.1
	// halfPi is the rotation tried when resolving the position angle.
	halfPi = 1.570795
)

// FWHM converts a Moffat alpha (beta = 4) to a full width at half maximum.
func FWHM(alpha float64) float64 {
	return moffatFWHMScale * alpha
}

// moffat holds the fitted parameters. The center is relative to the crop
// center (w>>1, h>>1).
type moffat struct {
	S0, S1         float64
	X0, Y0         float64
	AlphaX, AlphaY float64
	Theta          float64
}

func (p moffat) vector() []float64 {
	return []float64{p.S0, p.S1, p.X0, p.Y0, p.AlphaX, p.AlphaY, p.Theta}
}

func moffatFromVector(v []float64) moffat {
	return moffat{S0: v[0], S1: v[1], X0: v[2], Y0: v[3], AlphaX: v[4], AlphaY: v[5], Theta: v[6]}
}

// coefficients returns A, B, C of 1 + A*dx² + B*dy² + C*dx*dy.
func (p moffat) coefficients() (a, b, c float64) {
	s, co := math.Sin(p.Theta), math.Cos(p.Theta)
	sx, cx := s/p.AlphaX, co/p.AlphaX
	sy, cy := s/p.AlphaY, co/p.AlphaY
	a = cx*cx + sy*sy
	b = sx*sx + cy*cy
	c = 2 * s * co * (1/(p.AlphaX*p.AlphaX) - 1/(p.AlphaY*p.AlphaY))
	return a, b, c
}

// crop is a window of the source image in float64.
type crop struct {
	data []float64
	w, h int
}

// profile evaluates 1/(1+A*dx²+B*dy²+C*dx*dy)^beta at every crop pixel and
// passes it to fn with the pixel value.
func (c crop) profile(p moffat, fn func(i int, data, z float64)) {
	a, b, cc := p.coefficients()
	x0 := float64(c.w>>1) + p.X0
	y0 := float64(c.h>>1) + p.Y0
	i := 0
	for y := 0; y < c.h; y++ {
		dy := float64(y) - y0
		bdy := b * dy * dy
		cdy := cc * dy
		for x := 0; x < c.w; x++ {
			dx := float64(x) - x0
			fn(i, c.data[i], 1/math.Pow(1+a*dx*dx+bdy+cdy*dx, moffatBeta))
			i++
		}
	}
}

// residuals is the absolute deviation of the model from the crop.
func (c crop) residuals(x, fvec []float64) {
	p := moffatFromVector(x)
	if p.S0 < 0 || p.S1 < 0 {
		for i := range fvec {
			fvec[i] = math.MaxFloat64
		}
		return
	}
	c.profile(p, func(i int, data, z float64) {
		fvec[i] = math.Abs(data - p.S0 - p.S1*z)
	})
}

// fitError returns the winsorized mean absolute deviation of the model and
// the mean signal above background weighted by the profile.
func (c crop) fitError(p moffat) (residual, meanSignal float64) {
	adev := make([]float64, len(c.data))
	var flux, zsum float64
	c.profile(p, func(i int, data, z float64) {
		adev[i] = math.Abs(data - p.S0 - p.S1*z)
		if data > p.S0 {
			flux += (data - p.S0) * z
			zsum += z
		}
	})
	slices.Sort(adev)
	slices.Reverse(adev)
	winsorize(adev, winsorFraction)

	var sum float64
	for _, v := range adev {
		sum += v
	}
	return sum / float64(len(adev)), flux / zsum
}

// winsorize replaces the lo = floor(fraction*n) values at each end of the
// sorted slice with its median.
func winsorize(sorted []float64, fraction float64) {
	n := len(sorted)
	if n == 0 {
		return
	}
	lo := int(math.Floor(fraction * float64(n)))
	hi := n - lo
	m := sortedMedian(sorted)
	for i := 0; i < lo; i++ {
		sorted[i] = m
	}
	for i := hi; i < n; i++ {
		sorted[i] = m
	}
}

// sortedMedian averages the two middle values of an even-length slice.
func sortedMedian(sorted []float64) float64 {
	n := len(sorted)
	switch {
	case n == 0:
		return 0
	case n%2 == 0:
		return (sorted[n/2-1] + sorted[n/2]) * 0.5
	}
	return sorted[n/2]
}

// upperMedian is the middle order statistic, the upper one for even counts.
func upperMedian(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	s := slices.Clone(values)
	slices.Sort(s)
	return s[len(s)/2]
}

// fitPSF fits a Moffat profile to the object bounding box [xmin,xmax] x
// [ymin,ymax] of plane, centered near (x, y).
func fitPSF(plane []float32, width int, x, y, xmin, ymin, xmax, ymax float64) (PSF, error) {
	x1 := int(math.Floor(xmin))
	y1 := int(math.Floor(ymin))
	x2 := int(math.Floor(xmax)) + 1
	y2 := int(math.Floor(ymax)) + 1
	w, h := x2-x1, y2-y1
	if w <= 0 || h <= 0 {
		return PSF{}, fmt.Errorf("%w: empty crop", ErrFit)
	}

	c := crop{data: make([]float64, 0, w*h), w: w, h: h}
	peak := math.Inf(-1)
	for yy := y1; yy < y2; yy++ {
		for _, v := range plane[yy*width+x1 : yy*width+x2] {
			c.data = append(c.data, float64(v))
			peak = math.Max(peak, float64(v))
		}
	}

	background := c.edgeBackground()
	alpha := 0.15 * 0.5 * ((xmax - xmin) + (ymax - ymin))
	initial := moffat{
		S0:     background,
		S1:     peak - background,
		X0:     x - float64(x1+x2)*0.5,
		Y0:     y - float64(y1+y2)*0.5,
		AlphaX: alpha,
		AlphaY: alpha,
	}

	params := initial.vector()
	if status := levenbergMarquardt(c.residuals, len(c.data), params, fitTolerance); !status.converged() {
		return PSF{}, fmt.Errorf("%w: solver status %d", ErrFit, status)
	}
	fit := moffatFromVector(params)

	psf := PSF{
		X: float64(x1+(w>>1)) + fit.X0,
		Y: float64(y1+(h>>1)) + fit.Y0,
	}

	fit.AlphaX = math.Abs(fit.AlphaX)
	fit.AlphaY = math.Abs(fit.AlphaY)
	if fit.AlphaX < fit.AlphaY {
		fit.AlphaX, fit.AlphaY = fit.AlphaY, fit.AlphaX
	}
	if FWHM(fit.AlphaX) > float64(min(w, h)) {
		return PSF{}, fmt.Errorf("%w: fwhm %f exceeds crop %dx%d", ErrFit, FWHM(fit.AlphaX), w, h)
	}

	psf.AlphaX = fit.AlphaX
	psf.AlphaY = fit.AlphaY
	psf.Eccentricity = math.Sqrt(1 - fit.AlphaY*fit.AlphaY/(fit.AlphaX*fit.AlphaX))

	var meanSignal float64
	if math.Abs(fit.AlphaX-fit.AlphaY) < 0.01 {
		fit.Theta = 0
		psf.Residual, meanSignal = c.fitError(fit)
	} else {
		theta := fit.Theta
		best := theta
		for i := 0; i < 4; i++ {
			fit.Theta = theta + float64(i)*halfPi
			residual, signal := c.fitError(fit)
			if i == 0 || residual < psf.Residual {
				psf.Residual, meanSignal, best = residual, signal, fit.Theta
			}
		}
		psf.Theta = math.Atan2(math.Sin(best), math.Cos(best))
	}

	if !(meanSignal > 0) || math.IsInf(meanSignal, 0) {
		return PSF{}, fmt.Errorf("%w: no signal above background", ErrFit)
	}
	psf.Residual /= meanSignal
	return psf, nil
}

// edgeBackground averages the medians of the four crop edges.
func (c crop) edgeBackground() float64 {
	edge := make([]float64, 0, max(c.w, c.h))
	var sum float64
	for i := 0; i < 4; i++ {
		edge = edge[:0]
		switch i {
		case 0:
			edge = append(edge, c.data[:c.w]...)
		case 1:
			for y := 0; y < c.h; y++ {
				edge = append(edge, c.data[y*c.w+c.w-1])
			}
		case 2:
			edge = append(edge, c.data[(c.h-1)*c.w:]...)
		case 3:
			for y := 0; y < c.h; y++ {
				edge = append(edge, c.data[y*c.w])
			}
		}
		sum += upperMedian(edge)
	}
	return sum * 0.25
}
