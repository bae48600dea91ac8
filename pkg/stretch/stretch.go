// Package stretch implements the automatic screen transfer function used for
// previews: a per-channel black point, midtones balance and white point
// derived from the sample median and MAD.
package stretch

import (
	"math"
	"slices"

	"golang.org/x/sync/errgroup"

	"fitsrating/pkg/fits"
)

const (
	// MaxSamples bounds the sample drawn from each channel.
	MaxSamples = 262144

	targetBackground = 0.25
	clipSigma        = -2.8
	madnScale        = 1.4826
	maxOutput        = 255
)

// ChannelParameters are the stretch parameters of one channel. Shadows,
// midtones and highlights are normalized to [0,1] relative to MaxInput.
type ChannelParameters struct {
	MaxInput   float64 `json:"max_input"`
	Shadows    float64 `json:"shadows"`
	Highlights float64 `json:"highlights"`
	Midtones   float64 `json:"midtones"`
}

// IdentityChannel leaves a 16-bit channel linear.
func IdentityChannel() ChannelParameters {
	return ChannelParameters{MaxInput: 65535, Shadows: 0, Highlights: 1, Midtones: 0.5}
}

// Parameters hold one slot per channel: luminance or red, green, blue.
type Parameters [3]ChannelParameters

// Identity disables the stretch on all channels.
func Identity() Parameters {
	return Parameters{IdentityChannel(), IdentityChannel(), IdentityChannel()}
}

// IdentityFor leaves img linear, scaling each channel by the maximum
// estimated from its brightest sample.
func IdentityFor(img *fits.DecodedImage) Parameters {
	params := Identity()
	for c := 0; c < min(img.Channels, 3); c++ {
		plane := img.Plane(c)
		if len(plane) == 0 {
			continue
		}
		params[c].MaxInput = EstimateMaximum(float64(slices.Max(plane)))
	}
	return params
}

// MTF is the midtones transfer function with balance m.
func MTF(x, m float64) float64 {
	switch {
	case x <= 0:
		return 0
	case x == m:
		return 0.5
	case x >= 1:
		return 1
	}
	return ((m - 1) * x) / ((2*m-1)*x - m)
}

// EstimateMaximum guesses the representable maximum of a channel from the
// largest observed sample.
func EstimateMaximum(max float64) float64 {
	switch {
	case max > 255:
		return 65535
	case max > 1:
		return 255
	}
	return 1
}

// ComputeChannel derives the auto-stretch parameters of one plane.
func ComputeChannel(plane []float32) ChannelParameters {
	n := len(plane)
	if n == 0 {
		return IdentityChannel()
	}
	stride := max(1, n/MaxSamples)
	samples := make([]float32, n/stride)
	for i := range samples {
		samples[i] = plane[i*stride]
	}

	median := float64(middle(samples))
	var peak float64
	for i, s := range samples {
		v := float64(s)
		peak = math.Max(peak, v)
		samples[i] = float32(math.Abs(v - median))
	}
	mad := float64(middle(samples))

	p := ChannelParameters{MaxInput: EstimateMaximum(peak)}
	norm := 1 / p.MaxInput
	m := median * norm
	madn := madnScale * mad * norm

	bright := m > 0.5
	p.Shadows, p.Highlights = 0, 1
	if madn != 0 {
		if bright {
			p.Highlights = clamp01(m - clipSigma*madn)
		} else {
			p.Shadows = clamp01(m + clipSigma*madn)
		}
	}
	if bright {
		p.Midtones = MTF(targetBackground, p.Highlights-m)
	} else {
		p.Midtones = MTF(m-p.Shadows, targetBackground)
	}
	return p
}

// Compute derives parameters for every channel of img concurrently.
func Compute(img *fits.DecodedImage) Parameters {
	params := Identity()
	var g errgroup.Group
	g.SetLimit(3)
	for c := 0; c < min(img.Channels, 3); c++ {
		g.Go(func() error {
			params[c] = ComputeChannel(img.Plane(c))
			return nil
		})
	}
	_ = g.Wait()
	return params
}

// Apply stretches img in place to [0,255]. hist[c], when present and
// non-empty, receives the bucket counts of channel c.
func Apply(img *fits.DecodedImage, params Parameters, hist [][]uint32) {
	var g errgroup.Group
	g.SetLimit(3)
	for c := 0; c < img.Channels; c++ {
		slot := min(c, 2)
		var h []uint32
		if slot < len(hist) {
			h = hist[slot]
		}
		g.Go(func() error {
			applyChannel(img.Plane(c), params[slot], h)
			return nil
		})
	}
	_ = g.Wait()
}

func applyChannel(plane []float32, p ChannelParameters, hist []uint32) {
	hs := p.Highlights * p.MaxInput
	ms := p.Midtones * p.MaxInput
	ss := p.Shadows * p.MaxInput

	clip := 1.0
	if d := hs - ss; math.Abs(d) > 0.0001 {
		clip = 1 / d
	}
	a1 := (ms - p.MaxInput) * maxOutput * clip
	a2 := ss * a1
	b1 := (2*ms - p.MaxInput) * clip
	b2 := ss*b1 + ms

	last := len(hist) - 1
	scale := float64(last) / maxOutput
	for i, s := range plane {
		x := float64(s)
		var v float64
		switch {
		case x < ss:
			v = 0
		case x > hs:
			v = maxOutput
		default:
			v = (x*a1 - a2) / (x*b1 - b2)
		}
		plane[i] = float32(v)

		if last >= 0 {
			b := math.Round(v * scale)
			switch {
			case !(b > 0):
				hist[0]++
			case b > float64(last):
				hist[last]++
			default:
				hist[int(b)]++
			}
		}
	}
}

// middle sorts s and returns its middle order statistic.
func middle(s []float32) float32 {
	slices.Sort(s)
	return s[len(s)/2]
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
