package stretch

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitsrating/pkg/fits"
)

func TestMTF(t *testing.T) {
	for _, m := range []float64{0.05, 0.25, 0.5, 0.8} {
		assert.Equal(t, 0.0, MTF(0, m))
		assert.Equal(t, 0.5, MTF(m, m))
		assert.Equal(t, 1.0, MTF(1, m))

		prev := MTF(0, m)
		for x := 0.01; x < 1; x += 0.01 {
			v := MTF(x, m)
			assert.Greater(t, v, prev, "m=%v x=%v", m, x)
			prev = v
		}
	}
}

func TestEstimateMaximum(t *testing.T) {
	assert.Equal(t, 1.0, EstimateMaximum(0.7))
	assert.Equal(t, 255.0, EstimateMaximum(200))
	assert.Equal(t, 65535.0, EstimateMaximum(4000))
}

func noisyPlane(n int, base, spread float32) []float32 {
	plane := make([]float32, n)
	for i := range plane {
		plane[i] = base + spread*float32(i%17-8)/8
	}
	return plane
}

func TestComputeChannel(t *testing.T) {
	t.Run("dark background", func(t *testing.T) {
		p := ComputeChannel(noisyPlane(10000, 1000, 50))
		assert.Equal(t, 65535.0, p.MaxInput)
		assert.Equal(t, 1.0, p.Highlights)
		assert.Greater(t, p.Shadows, 0.0)
		assert.Less(t, p.Shadows, 1000.0/65535)
		assert.Greater(t, p.Midtones, 0.0)
		assert.Less(t, p.Midtones, 0.5)
	})

	t.Run("bright background", func(t *testing.T) {
		p := ComputeChannel(noisyPlane(10000, 60000, 200))
		assert.Equal(t, 0.0, p.Shadows)
		assert.Less(t, p.Highlights, 1.0)
		assert.Greater(t, p.Highlights, 60000.0/65535)
	})

	t.Run("flat plane", func(t *testing.T) {
		plane := make([]float32, 100)
		for i := range plane {
			plane[i] = 120
		}
		p := ComputeChannel(plane)
		assert.Equal(t, 255.0, p.MaxInput)
		assert.Equal(t, 0.0, p.Shadows)
		assert.Equal(t, 1.0, p.Highlights)
	})

	t.Run("empty plane", func(t *testing.T) {
		assert.Equal(t, IdentityChannel(), ComputeChannel(nil))
	})
}

func TestApplyIdentityIsLinear(t *testing.T) {
	img := fits.NewDecodedImage(3, 1, 1)
	copy(img.Pix, []float32{0, 32767.5, 65535})
	Apply(img, Identity(), nil)
	assert.InDelta(t, 0, img.Pix[0], 1e-3)
	assert.InDelta(t, 127.5, img.Pix[1], 1e-3)
	assert.InDelta(t, 255, img.Pix[2], 1e-3)
}

func TestIdentityForNormalizedFrame(t *testing.T) {
	img := fits.NewDecodedImage(3, 1, 3)
	copy(img.Plane(0), []float32{0, 0.5, 1})
	copy(img.Plane(1), []float32{0, 100, 200})
	copy(img.Plane(2), []float32{0, 1000, 40000})

	params := IdentityFor(img)
	assert.Equal(t, []float64{1, 255, 65535}, []float64{params[0].MaxInput, params[1].MaxInput, params[2].MaxInput})
	for c := range params {
		assert.Equal(t, 0.0, params[c].Shadows)
		assert.Equal(t, 1.0, params[c].Highlights)
		assert.Equal(t, 0.5, params[c].Midtones)
	}

	Apply(img, params, nil)
	assert.InDelta(t, 127.5, img.Plane(0)[1], 1e-3)
	assert.InDelta(t, 255, img.Plane(0)[2], 1e-3)
	assert.InDelta(t, 100, img.Plane(1)[1], 1e-3)

	assert.Equal(t, Identity(), IdentityFor(fits.NewDecodedImage(0, 0, 1)))
}

func TestApplyClipsAndFillsHistogram(t *testing.T) {
	img := fits.NewDecodedImage(64, 64, 3)
	for c := 0; c < 3; c++ {
		copy(img.Plane(c), noisyPlane(64*64, float32(800+100*c), 40))
	}
	params := Compute(img)
	for c := 0; c < 3; c++ {
		assert.Greater(t, params[c].Shadows, 0.0, "channel %d", c)
	}

	hist := [][]uint32{make([]uint32, 256), make([]uint32, 256), make([]uint32, 256)}
	Apply(img, params, hist)

	for c, h := range hist {
		var total uint32
		for _, v := range h {
			total += v
		}
		assert.Equal(t, uint32(64*64), total, "channel %d", c)
	}
	for _, v := range img.Pix {
		require.False(t, math.IsNaN(float64(v)))
		assert.GreaterOrEqual(t, v, float32(0))
		assert.LessOrEqual(t, v, float32(255))
	}
}

func TestApplyMissingHistogramSlots(t *testing.T) {
	img := fits.NewDecodedImage(4, 4, 3)
	hist := [][]uint32{make([]uint32, 8)}
	Apply(img, Identity(), hist)

	var total uint32
	for _, v := range hist[0] {
		total += v
	}
	assert.Equal(t, uint32(16), total)
}
