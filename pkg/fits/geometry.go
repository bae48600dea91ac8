package fits

import "math"

// Dim is the size of an image. N is Width*Height*Channels.
type Dim struct {
	Width    int
	Height   int
	Channels int
	N        int
}

func newDim(w, h, c int) Dim {
	return Dim{Width: w, Height: h, Channels: c, N: w * h * c}
}

// Geometry describes how the input is reduced to the output.
type Geometry struct {
	In     Dim
	Out    Dim
	Radius float64 // fractional kernel radius, 0 for pass-through
	Size   int     // ceil(Radius)
	Stride int
	CFA    bool // 2x2 quadrants are demosaiced into one output pixel
}

// KernelDim is the width and height of the square kernel.
func (g Geometry) KernelDim() int { return 1 + 2*g.Size }

// ComputeGeometry picks the smallest kernel radius and stride so that the
// output fits inside maxW x maxH without skipping input rows or columns.
// A non-positive maximum leaves that axis unconstrained.
func ComputeGeometry(in Dim, cfa CFA, maxW, maxH int) Geometry {
	g := Geometry{In: in, Stride: 1}
	g.CFA = in.Channels == 1 && !cfa.Identity()

	width, height := in.Width, in.Height
	if g.CFA {
		width /= 2
		height /= 2
	}

	ratio := func(dim, max int) float64 {
		if max <= 0 {
			return 0
		}
		return float64(dim) / float64(max)
	}
	dx, dy := ratio(width, maxW), ratio(height, maxH)

	constrained := -1
	switch {
	case dx >= dy && dx > 1:
		g.Radius = float64(in.Width-maxW) / float64(2*(maxW+1))
		constrained = 0
	case dy > 1:
		g.Radius = float64(in.Height-maxH) / float64(2*(maxH+1))
		constrained = 1
	}
	if g.Radius < 0 {
		g.Radius = 0
	}
	g.Size = int(math.Ceil(g.Radius))

	g.Stride = 1 + 2*g.Size
	if g.Radius > 0 {
		switch constrained {
		case 0:
			g.Stride = int(math.Ceil(float64(width-2*g.Size) / float64(maxW)))
		case 1:
			g.Stride = int(math.Ceil(float64(height-2*g.Size) / float64(maxH)))
		}
	}
	if g.Stride < 1 {
		g.Stride = 1
	}

	channels := 3
	if in.Channels == 1 && cfa.Identity() {
		channels = 1
	}
	g.Out = newDim((width-2*g.Size)/g.Stride, (height-2*g.Size)/g.Stride, channels)
	return g
}

// gaussianWeights returns a normalized row-major kernel of KernelDim()^2
// weights with sigma = (stride-1)/6.
func gaussianWeights(size, stride int) []float32 {
	dim := 1 + 2*size
	weights := make([]float32, dim*dim)
	if dim == 1 {
		weights[0] = 1
		return weights
	}

	sigma := float64(stride-1) / 6
	s := 2 * sigma * sigma
	if s == 0 {
		// Degenerate stride: fall back to a box filter.
		for i := range weights {
			weights[i] = 1 / float32(len(weights))
		}
		return weights
	}

	var sum float64
	raw := make([]float64, len(weights))
	for y := -size; y <= size; y++ {
		for x := -size; x <= size; x++ {
			r2 := float64(x*x + y*y)
			v := math.Exp(-r2/s) / (math.Pi * s)
			raw[(y+size)*dim+x+size] = v
			sum += v
		}
	}
	for i, v := range raw {
		weights[i] = float32(v / sum)
	}
	return weights
}
