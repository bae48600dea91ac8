package extract

import "math"

const (
	// pixelHalfDiagonal is the largest distance from a pixel center to its edge.
	pixelHalfDiagonal = 0.7072
	fluxRadiusBins    = 128
)

// ApertureSum is the result of an aperture photometry measurement.
type ApertureSum struct {
	Sum  float64
	Err  float64
	Area float64
	Flag Flag
}

// box is a half-open pixel range around an aperture.
type box struct {
	xmin, xmax, ymin, ymax int
	flag                   Flag
}

func boxExtent(img Image, x, y, dx, dy float64) box {
	b := box{
		xmin: int(x - dx + 0.5),
		xmax: int(x + dx + 1.4999999),
		ymin: int(y - dy + 0.5),
		ymax: int(y + dy + 1.4999999),
	}
	if b.xmin < 0 {
		b.xmin, b.flag = 0, FlagTruncated
	}
	if b.xmax > img.Width {
		b.xmax, b.flag = img.Width, FlagTruncated
	}
	if b.ymin < 0 {
		b.ymin, b.flag = 0, FlagTruncated
	}
	if b.ymax > img.Height {
		b.ymax, b.flag = img.Height, FlagTruncated
	}
	return b
}

// ellipseExtent returns the half-widths of the box enclosing
// cxx*dx² + cyy*dy² + cxy*dx*dy = r².
func ellipseExtent(cxx, cyy, cxy, r float64) (float64, float64, bool) {
	det := cxx*cyy - cxy*cxy/4
	if det <= 0 || cxx <= 0 || cyy <= 0 {
		return 0, 0, false
	}
	return r * math.Sqrt(cyy/det), r * math.Sqrt(cxx/det), true
}

// EllipseCoefficients converts semi-axes and position angle to ellipse
// coefficients.
func EllipseCoefficients(a, b, theta float64) (cxx, cyy, cxy float64) {
	c, s := math.Cos(theta), math.Sin(theta)
	cxx = c*c/(a*a) + s*s/(b*b)
	cyy = s*s/(a*a) + c*c/(b*b)
	cxy = 2 * c * s * (1/(a*a) - 1/(b*b))
	return cxx, cyy, cxy
}

// KronRadius is the first moment of the radial light distribution within
// the ellipse cxx*dx² + cyy*dy² + cxy*dx*dy < r², in units of the ellipse.
func KronRadius(img Image, x, y, cxx, cyy, cxy, r float64) (float64, Flag) {
	dxlim, dylim, ok := ellipseExtent(cxx, cyy, cxy, r)
	if !ok {
		return 0, FlagNonPositive
	}
	b := boxExtent(img, x, y, dxlim, dylim)
	r2 := r * r

	var r1, v1 float64
	area := 0
	for iy := b.ymin; iy < b.ymax; iy++ {
		dy := float64(iy) - y
		for ix := b.xmin; ix < b.xmax; ix++ {
			dx := float64(ix) - x
			rpix2 := cxx*dx*dx + cyy*dy*dy + cxy*dx*dy
			if rpix2 > r2 {
				continue
			}
			v := float64(img.at(ix, iy))
			if math.IsNaN(v) {
				continue
			}
			r1 += math.Sqrt(rpix2) * v
			v1 += v
			area++
		}
	}

	if area == 0 || r1 <= 0 || v1 <= 0 {
		return 0, b.flag | FlagNonPositive
	}
	return r1 / v1, b.flag
}

// SumEllipse sums the pixels inside the ellipse with semi-axes r*a and r*b.
// With subpix > 1 the pixels crossing the boundary are sampled on a
// subpix x subpix grid. Otherwise a pixel counts when its center is inside.
func SumEllipse(img Image, x, y, a, b, theta, r float64, subpix int) ApertureSum {
	if a <= 0 || b <= 0 || r <= 0 {
		return ApertureSum{Flag: FlagNonPositive}
	}
	cxx, cyy, cxy := EllipseCoefficients(a, b, theta)
	dxlim, dylim, ok := ellipseExtent(cxx, cyy, cxy, r)
	if !ok {
		return ApertureSum{Flag: FlagNonPositive}
	}
	return sumAperture(img, x, y, cxx, cyy, cxy, r, pixelHalfDiagonal/b, boxExtent(img, x, y, dxlim, dylim), subpix)
}

// SumCircle sums the pixels inside the circle of radius r.
func SumCircle(img Image, x, y, r float64, subpix int) ApertureSum {
	if r <= 0 {
		return ApertureSum{Flag: FlagNonPositive}
	}
	return sumAperture(img, x, y, 1, 1, 0, r, pixelHalfDiagonal, boxExtent(img, x, y, r, r), subpix)
}

func sumAperture(img Image, x, y, cxx, cyy, cxy, r, margin float64, b box, subpix int) ApertureSum {
	r2 := r * r
	rin := math.Max(r-margin, 0)
	rin2 := rin * rin
	rout2 := (r + margin) * (r + margin)
	scale := 1.0
	if subpix > 1 {
		scale = 1 / float64(subpix)
	}
	offset := 0.5 * (scale - 1)

	var sum, area float64
	for iy := b.ymin; iy < b.ymax; iy++ {
		dy := float64(iy) - y
		for ix := b.xmin; ix < b.xmax; ix++ {
			dx := float64(ix) - x
			rpix2 := cxx*dx*dx + cyy*dy*dy + cxy*dx*dy
			if rpix2 >= rout2 {
				continue
			}
			v := float64(img.at(ix, iy))
			if math.IsNaN(v) {
				continue
			}

			var overlap float64
			switch {
			case subpix <= 1:
				if rpix2 < r2 {
					overlap = 1
				}
			case rpix2 < rin2:
				overlap = 1
			default:
				for sy := 0; sy < subpix; sy++ {
					py := dy + offset + float64(sy)*scale
					for sx := 0; sx < subpix; sx++ {
						px := dx + offset + float64(sx)*scale
						if cxx*px*px+cyy*py*py+cxy*px*py < r2 {
							overlap += scale * scale
						}
					}
				}
			}
			sum += overlap * v
			area += overlap
		}
	}

	res := ApertureSum{Sum: sum, Area: area, Err: img.Noise * math.Sqrt(area), Flag: b.flag}
	if area == 0 {
		res.Flag |= FlagNonPositive
	}
	return res
}

// FluxRadius returns the radius of the circle around (x, y) that encloses
// frac of flux. A non-positive flux normalizes by the flux inside rmax. The
// radial profile is accumulated in 128 bins out to rmax, and rmax is
// returned when the fraction is never reached.
func FluxRadius(img Image, x, y, rmax float64, subpix int, flux, frac float64) (float64, Flag) {
	if rmax <= 0 {
		return 0, FlagNonPositive
	}
	b := boxExtent(img, x, y, rmax, rmax)
	step := rmax / fluxRadiusBins
	rin := math.Max(rmax-pixelHalfDiagonal, 0)
	rin2 := rin * rin
	rout2 := (rmax + pixelHalfDiagonal) * (rmax + pixelHalfDiagonal)
	subpix = max(subpix, 1)
	scale := 1 / float64(subpix)
	offset := 0.5 * (scale - 1)

	var tab [fluxRadiusBins]float64
	add := func(dx, dy, v float64) {
		if j := int(math.Sqrt(dx*dx+dy*dy) / step); j < fluxRadiusBins {
			tab[j] += v
		}
	}
	for iy := b.ymin; iy < b.ymax; iy++ {
		dy := float64(iy) - y
		for ix := b.xmin; ix < b.xmax; ix++ {
			dx := float64(ix) - x
			rpix2 := dx*dx + dy*dy
			if rpix2 >= rout2 {
				continue
			}
			v := float64(img.at(ix, iy))
			if math.IsNaN(v) {
				continue
			}
			if rpix2 < rin2 || subpix == 1 {
				add(dx, dy, v)
				continue
			}
			w := v * scale * scale
			for sy := 0; sy < subpix; sy++ {
				for sx := 0; sx < subpix; sx++ {
					add(dx+offset+float64(sx)*scale, dy+offset+float64(sy)*scale, w)
				}
			}
		}
	}

	for i := 1; i < fluxRadiusBins; i++ {
		tab[i] += tab[i-1]
	}
	if flux <= 0 {
		flux = tab[fluxRadiusBins-1]
	}
	target := frac * flux

	for i, f := range tab {
		if f < target {
			continue
		}
		var f0 float64
		if i > 0 {
			f0 = tab[i-1]
		}
		if f == f0 {
			return step * float64(i), b.flag
		}
		return step * (float64(i) + (target-f0)/(f-f0)), b.flag
	}
	return rmax, b.flag
}
