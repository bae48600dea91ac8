package extract

import (
	"context"
	"fmt"
	"image"
	"math"
	"sort"
)

// Flag bits set on objects and aperture measurements.
type Flag uint16

const (
	// FlagMerged marks an object that was split from a blended component.
	FlagMerged Flag = 1 << iota
	// FlagTruncated marks an object or aperture that touches the image edge.
	FlagTruncated
	// FlagSingular marks moments that needed the minimum-variance fix.
	FlagSingular
	// FlagNonPositive marks an aperture with no positive flux.
	FlagNonPositive
)

// Params configures detection on a background-subtracted image.
type Params struct {
	// Threshold is the detection level in units of Image.Noise.
	Threshold float64
	// MinArea is the minimum number of pixels per object.
	MinArea int
	// Filter is a row-major FilterWidth x FilterHeight kernel. It is
	// normalized before use. Nil selects DefaultFilter.
	Filter       []float32
	FilterWidth  int
	FilterHeight int
	// DeblendThresholds is the number of deblending levels (< 2 disables deblending).
	DeblendThresholds int
	// DeblendContrast is the minimum flux fraction of a branch to count as
	// a separate object.
	DeblendContrast float64
	Clean           bool
	CleanParameter  float64
	// DebugDir receives intermediate images when set.
	DebugDir string
}

// DefaultFilter is the 3x3 kernel used when Params.Filter is nil.
var DefaultFilter = []float32{1, 2, 1, 2, 4, 2, 1, 2, 1}

// Object is a detected source with its windowed moments.
type Object struct {
	Index int
	// Barycenter in zero-based pixel coordinates.
	X, Y float64
	// Second moments.
	X2, Y2, XY float64
	// Ellipse semi-axes and position angle in radians.
	A, B, Theta float64
	// Ellipse coefficients: CXX*dx² + CYY*dy² + CXY*dx*dy = 1 on the 1-sigma isophote.
	CXX, CYY, CXY float64
	Flux          float64
	Peak          float64
	NPix          int
	Bounds        image.Rectangle
	Flag          Flag
}

// Result holds the detected objects.
type Result struct {
	Objects []Object
	// Threshold is the absolute detection level on the filtered image.
	Threshold float64
	// Components counts connected regions before deblending and cleaning.
	Components int
}

// Extract detects objects on img, which must already have its background removed.
func Extract(ctx context.Context, img Image, p Params) (*Result, error) {
	if err := img.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDetection, err)
	}
	kernel, err := normalizedKernel(p)
	if err != nil {
		return nil, err
	}
	defer kernel.Close()

	maybeSaveText(p.DebugDir, "20-extract-params.txt",
		fmt.Sprintf("Params: Threshold=%f, Noise=%f, MinArea=%d, DeblendThresholds=%d, DeblendContrast=%f, Clean=%t, CleanParameter=%f",
			p.Threshold, img.Noise, p.MinArea, p.DeblendThresholds, p.DeblendContrast, p.Clean, p.CleanParameter))

	src := img.toMat()
	defer src.Close()
	filtered := NewMat()
	defer filtered.Close()
	filter2DConstant(src, &filtered, kernel)
	maybeSaveImage(filtered, p.DebugDir, "21-filtered.tif")

	d := &detector{
		img:       img,
		conv:      filtered.DataFloat32(),
		threshold: p.Threshold * img.Noise,
		p:         p,
	}

	components, err := d.label(ctx)
	if err != nil {
		return nil, err
	}

	result := &Result{Threshold: d.threshold, Components: len(components)}
	for _, pixels := range components {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		groups := [][]int{pixels}
		if p.DeblendThresholds > 1 {
			groups = d.deblend(pixels)
		}
		for _, g := range groups {
			obj, ok := d.measure(g)
			if !ok {
				continue
			}
			if len(groups) > 1 {
				obj.Flag |= FlagMerged
			}
			result.Objects = append(result.Objects, obj)
		}
	}

	if p.Clean && len(result.Objects) > 1 {
		result.Objects = clean(result.Objects, p.CleanParameter)
	}
	sort.SliceStable(result.Objects, func(i, j int) bool {
		a, b := result.Objects[i], result.Objects[j]
		if a.Bounds.Min.Y != b.Bounds.Min.Y {
			return a.Bounds.Min.Y < b.Bounds.Min.Y
		}
		return a.Bounds.Min.X < b.Bounds.Min.X
	})
	for i := range result.Objects {
		result.Objects[i].Index = i
	}

	maybeSaveText(p.DebugDir, "22-extract-result.txt",
		fmt.Sprintf("Threshold=%f, Components=%d, Objects=%d", result.Threshold, result.Components, len(result.Objects)))
	return result, nil
}

func normalizedKernel(p Params) (Mat, error) {
	data, w, h := p.Filter, p.FilterWidth, p.FilterHeight
	if data == nil {
		data, w, h = DefaultFilter, 3, 3
	}
	if w <= 0 || h <= 0 || len(data) != w*h {
		return Mat{}, fmt.Errorf("%w: filter has %d values for %dx%d", ErrDetection, len(data), w, h)
	}
	var sum float32
	for _, v := range data {
		sum += v
	}
	kernel := NewMatFromData(h, w, data)
	if sum != 0 {
		kd := kernel.DataFloat32()
		for i := range kd {
			kd[i] /= sum
		}
	}
	return kernel, nil
}

type detector struct {
	img       Image
	conv      []float32
	threshold float64
	p         Params
}

func (d *detector) above(i int) bool {
	return float64(d.conv[i]) > d.threshold
}

// label finds the 8-connected components of the thresholded filtered image.
func (d *detector) label(ctx context.Context) ([][]int, error) {
	width, height := d.img.Width, d.img.Height
	visited := make([]bool, width*height)
	var components [][]int
	stack := make([]int, 0, 1024)

	for y := 0; y < height; y++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for x := 0; x < width; x++ {
			start := y*width + x
			if visited[start] || !d.above(start) {
				continue
			}

			pixels := make([]int, 0, 64)
			visited[start] = true
			stack = append(stack[:0], start)
			for len(stack) > 0 {
				i := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				pixels = append(pixels, i)
				px, py := i%width, i/width
				for dy := -1; dy <= 1; dy++ {
					ny := py + dy
					if ny < 0 || ny >= height {
						continue
					}
					for dx := -1; dx <= 1; dx++ {
						nx := px + dx
						if nx < 0 || nx >= width {
							continue
						}
						j := ny*width + nx
						if !visited[j] && d.above(j) {
							visited[j] = true
							stack = append(stack, j)
						}
					}
				}
			}

			if len(pixels) >= d.p.MinArea {
				components = append(components, pixels)
			}
		}
	}
	return components, nil
}

// measure computes the barycenter, second moments and ellipse of a pixel
// group from the unfiltered image. Only positive pixels carry weight.
func (d *detector) measure(pixels []int) (Object, bool) {
	if len(pixels) == 0 || len(pixels) < d.p.MinArea {
		return Object{}, false
	}
	width := d.img.Width
	obj := Object{NPix: len(pixels)}
	first := pixels[0]
	bounds := image.Rect(first%width, first/width, first%width+1, first/width+1)

	var sum, sx, sy float64
	peak := math.Inf(-1)
	for _, i := range pixels {
		x, y := i%width, i/width
		bounds = bounds.Union(image.Rect(x, y, x+1, y+1))
		v := float64(d.img.Data[i])
		peak = math.Max(peak, v)
		if v <= 0 {
			continue
		}
		sum += v
		sx += v * float64(x)
		sy += v * float64(y)
	}
	if sum <= 0 {
		return Object{}, false
	}
	obj.Bounds = bounds
	obj.Flux = sum
	obj.Peak = peak
	obj.X = sx / sum
	obj.Y = sy / sum

	var x2, y2, xy float64
	for _, i := range pixels {
		v := float64(d.img.Data[i])
		if v <= 0 {
			continue
		}
		dx := float64(i%width) - obj.X
		dy := float64(i/width) - obj.Y
		x2 += v * dx * dx
		y2 += v * dy * dy
		xy += v * dx * dy
	}
	obj.X2, obj.Y2, obj.XY = x2/sum, y2/sum, xy/sum
	obj.Flag |= setEllipse(&obj)

	if bounds.Min.X == 0 || bounds.Min.Y == 0 || bounds.Max.X == width || bounds.Max.Y == d.img.Height {
		obj.Flag |= FlagTruncated
	}
	return obj, true
}

// Minimum variance of a pixel-sized object and the term added to
// singular moments.
const (
	singularDeterminant = 0.00694
	pixelVariance       = 0.0833333
)

func setEllipse(obj *Object) Flag {
	var flag Flag
	if obj.X2*obj.Y2-obj.XY*obj.XY < singularDeterminant {
		obj.X2 += pixelVariance
		obj.Y2 += pixelVariance
		flag |= FlagSingular
	}

	half := (obj.X2 + obj.Y2) / 2
	spread := math.Sqrt(math.Pow((obj.X2-obj.Y2)/2, 2) + obj.XY*obj.XY)
	obj.A = math.Sqrt(half + spread)
	obj.B = math.Sqrt(math.Max(half-spread, 0))

	if diff := obj.X2 - obj.Y2; math.Abs(diff) > 0 {
		obj.Theta = math.Atan2(2*obj.XY, diff) / 2
	} else {
		obj.Theta = math.Pi / 4
	}

	det := obj.X2*obj.Y2 - obj.XY*obj.XY
	obj.CXX = obj.Y2 / det
	obj.CYY = obj.X2 / det
	obj.CXY = -2 * obj.XY / det
	return flag
}
