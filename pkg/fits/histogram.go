package fits

import "math"

// fillHistogram bins the decoded samples. Float data is spread over its
// observed range; integer data over the full range of its storage type.
func fillHistogram(hist []uint32, pix []float32, dt DataType, shifted bool) {
	n := len(hist)
	if n == 0 || len(pix) == 0 {
		return
	}

	var lo, span float64
	if dt.Float {
		min, max := math.Inf(1), math.Inf(-1)
		for _, v := range pix {
			f := float64(v)
			if f < min {
				min = f
			}
			if f > max {
				max = f
			}
		}
		lo, span = min, max-min
	} else {
		bits := 8 * dt.Size
		if bits > 32 {
			bits = 32
		}
		span = math.Ldexp(1, bits)
		if dt.Signed && !shifted {
			lo = -math.Ldexp(1, 8*dt.Size-1)
		}
	}

	last := n - 1
	for _, v := range pix {
		bucket := 0
		if span > 0 {
			b := math.Floor((float64(v) - lo) * float64(last) / span)
			switch {
			case math.IsNaN(b):
			case b > float64(last):
				bucket = last
			case b > 0:
				bucket = int(b)
			}
		}
		hist[bucket]++
	}
}
