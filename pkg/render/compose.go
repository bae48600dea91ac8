package render

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"fitsrating/pkg/fits"
)

// ErrInvalidInput is returned for images the compositor cannot pack.
var ErrInvalidInput = errors.New("render: invalid input")

// Options control composition of a stretched frame.
type Options struct {
	// MonoColorOutline tints the border of mono frames taken through a
	// known filter.
	MonoColorOutline bool
	// Saturation multiplies the HSV saturation of color frames. Zero renders
	// gray, 1 leaves colors unchanged.
	Saturation float64
}

// DefaultOptions leaves colors unchanged and mono frames untinted.
func DefaultOptions() Options {
	return Options{Saturation: 1}
}

const (
	outlineLevel    = 200
	outlineDim      = 0.2
	outlineFraction = 50
	minOutline      = 2
)

// clamp8 converts a stretched sample to a byte. NaN maps to 0.
func clamp8(v float32) uint8 {
	if v != v {
		return 0
	}
	return uint8(min(max(v, 0), 255))
}

// Compose packs a stretched image into BGRA bytes, 4*Width*Height long. dst
// is reused when it has the capacity.
func Compose(img *fits.DecodedImage, filter fits.Filter, opts Options, dst []byte) ([]byte, error) {
	if img == nil || img.Width <= 0 || img.Height <= 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidInput)
	}
	if img.Channels != 1 && img.Channels != 3 {
		return nil, fmt.Errorf("%w: %d channels", ErrInvalidInput, img.Channels)
	}
	n := img.Width * img.Height
	if len(img.Pix) < n*img.Channels {
		return nil, fmt.Errorf("%w: %d samples for %s", ErrInvalidInput, len(img.Pix), img)
	}
	if cap(dst) >= 4*n {
		dst = dst[:4*n]
	} else {
		dst = make([]byte, 4*n)
	}

	if img.Channels == 1 {
		composeMono(img, filter, opts.MonoColorOutline, dst)
	} else {
		composeColor(img, opts.Saturation, dst)
	}
	return dst, nil
}

func composeMono(img *fits.DecodedImage, filter fits.Filter, outline bool, dst []byte) {
	w, h := img.Width, img.Height
	plane := img.Plane(0)
	border := max(minOutline, min(w/outlineFraction, h/outlineFraction))
	tint := outline && filter != fits.FilterOther

	for y := 0; y < h; y++ {
		edgeRow := y <= border || y >= h-1-border
		for x := 0; x < w; x++ {
			i := y*w + x
			v := clamp8(plane[i])
			px := dst[4*i : 4*i+4]
			px[0], px[1], px[2], px[3] = v, v, v, 255
			if !tint || !(edgeRow || x <= border || x >= w-1-border) {
				continue
			}
			dim := uint8(outlineDim * float64(v))
			switch filter {
			case fits.FilterL:
				px[0], px[1], px[2] = outlineLevel, outlineLevel, outlineLevel
			case fits.FilterR:
				px[0], px[1], px[2] = dim, dim, outlineLevel
			case fits.FilterG:
				px[0], px[1], px[2] = dim, outlineLevel, dim
			case fits.FilterB:
				px[0], px[1], px[2] = outlineLevel, dim, dim
			}
		}
	}
}

func composeColor(img *fits.DecodedImage, saturation float64, dst []byte) {
	r, g, b := img.Plane(0), img.Plane(1), img.Plane(2)
	adjust := saturation != 1
	for i := range r {
		rv, gv, bv := clamp8(r[i]), clamp8(g[i]), clamp8(b[i])
		if adjust {
			rv, gv, bv = saturate(rv, gv, bv, saturation)
		}
		px := dst[4*i : 4*i+4]
		px[0], px[1], px[2], px[3] = bv, gv, rv, 255
	}
}

// saturate scales the HSV saturation of an 8-bit color, clamping it to 1.
func saturate(r, g, b uint8, factor float64) (uint8, uint8, uint8) {
	c := colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}
	h, s, v := c.Hsv()
	s = math.Min(s*factor, 1)
	return colorful.Hsv(h, s, v).Clamped().RGB255()
}

// ToImage wraps packed BGRA bytes as an NRGBA image.
func ToImage(bgra []byte, width, height int) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 || len(bgra) < 4*width*height {
		return nil, fmt.Errorf("%w: %d bytes for %dx%d", ErrInvalidInput, len(bgra), width, height)
	}
	out := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		src := bgra[4*i : 4*i+4]
		px := out.Pix[4*i : 4*i+4]
		px[0], px[1], px[2], px[3] = src[2], src[1], src[0], src[3]
	}
	return out, nil
}
