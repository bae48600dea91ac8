//go:build !opencv || js

package extract

import (
	"math"
	"slices"
)

// Mat is a pure Go 2D float32 matrix.
type Mat struct {
	data []float32
	rows int
	cols int
}

func NewMat() Mat { return Mat{} }

func NewMatWithSize(rows, cols int) Mat {
	return Mat{data: make([]float32, rows*cols), rows: rows, cols: cols}
}

// NewMatFromData copies data into a new rows x cols matrix.
func NewMatFromData(rows, cols int, data []float32) Mat {
	mat := NewMatWithSize(rows, cols)
	copy(mat.data, data)
	return mat
}

func (m Mat) Rows() int   { return m.rows }
func (m Mat) Cols() int   { return m.cols }
func (m Mat) Empty() bool { return m.data == nil || m.rows == 0 || m.cols == 0 }

func (m Mat) Clone() Mat {
	return NewMatFromData(m.rows, m.cols, m.data)
}

func (m *Mat) Close() {
	m.data = nil
	m.rows = 0
	m.cols = 0
}

func (m Mat) DataFloat32() []float32 { return m.data }

func ensureSize(dst *Mat, rows, cols int) {
	if dst.rows != rows || dst.cols != cols || dst.data == nil {
		*dst = NewMatWithSize(rows, cols)
	}
}

// --- Pure Go CV operations ---

// filter2DConstant correlates src with kernel, treating pixels outside
// the image as zero.
func filter2DConstant(src Mat, dst *Mat, kernel Mat) {
	rows, cols := src.rows, src.cols
	kr, kc := kernel.rows, kernel.cols
	ay, ax := kr/2, kc/2
	sd, kd := src.data, kernel.data
	out := make([]float32, rows*cols)

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			var sum float32
			for i := 0; i < kr; i++ {
				rr := r + i - ay
				if rr < 0 || rr >= rows {
					continue
				}
				rowOff := rr * cols
				for j := 0; j < kc; j++ {
					cc := c + j - ax
					if cc < 0 || cc >= cols {
						continue
					}
					sum += sd[rowOff+cc] * kd[i*kc+j]
				}
			}
			out[r*cols+c] = sum
		}
	}
	ensureSize(dst, rows, cols)
	copy(dst.data, out)
}

// medianBlur replicates border pixels, like OpenCV does for float input.
func medianBlur(src Mat, dst *Mat, ksize int) {
	rows, cols := src.rows, src.cols
	sd := src.data
	half := ksize / 2
	out := make([]float32, rows*cols)
	neighbors := make([]float32, ksize*ksize)

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			idx := 0
			for dr := -half; dr <= half; dr++ {
				rr := min(max(r+dr, 0), rows-1)
				for dc := -half; dc <= half; dc++ {
					cc := min(max(c+dc, 0), cols-1)
					neighbors[idx] = sd[rr*cols+cc]
					idx++
				}
			}
			slices.Sort(neighbors[:idx])
			out[r*cols+c] = neighbors[idx/2]
		}
	}
	ensureSize(dst, rows, cols)
	copy(dst.data, out)
}

// resizeLinear uses the pixel-center mapping of OpenCV's INTER_LINEAR.
func resizeLinear(src Mat, dst *Mat, cols, rows int) {
	out := make([]float32, rows*cols)
	sx := float64(src.cols) / float64(cols)
	sy := float64(src.rows) / float64(rows)

	for r := 0; r < rows; r++ {
		fy := (float64(r)+0.5)*sy - 0.5
		y0 := int(math.Floor(fy))
		wy := float32(fy - float64(y0))
		if y0 < 0 {
			y0, wy = 0, 0
		}
		y1 := y0 + 1
		if y1 >= src.rows {
			y1 = src.rows - 1
			if y0 > y1 {
				y0 = y1
			}
		}
		for c := 0; c < cols; c++ {
			fx := (float64(c)+0.5)*sx - 0.5
			x0 := int(math.Floor(fx))
			wx := float32(fx - float64(x0))
			if x0 < 0 {
				x0, wx = 0, 0
			}
			x1 := x0 + 1
			if x1 >= src.cols {
				x1 = src.cols - 1
				if x0 > x1 {
					x0 = x1
				}
			}
			p00 := src.data[y0*src.cols+x0]
			p01 := src.data[y0*src.cols+x1]
			p10 := src.data[y1*src.cols+x0]
			p11 := src.data[y1*src.cols+x1]
			top := p00 + wx*(p01-p00)
			bottom := p10 + wx*(p11-p10)
			out[r*cols+c] = top + wy*(bottom-top)
		}
	}
	ensureSize(dst, rows, cols)
	copy(dst.data, out)
}

func absDiff(a, b Mat, dst *Mat) {
	ensureSize(dst, a.rows, a.cols)
	for i := range a.data {
		d := a.data[i] - b.data[i]
		if d < 0 {
			d = -d
		}
		dst.data[i] = d
	}
}

func thresholdBinary(src Mat, dst *Mat, thresh, maxval float32) {
	ensureSize(dst, src.rows, src.cols)
	for i, v := range src.data {
		if v > thresh {
			dst.data[i] = maxval
		} else {
			dst.data[i] = 0
		}
	}
}

func countNonZero(src Mat) int {
	count := 0
	for _, v := range src.data {
		if v != 0 {
			count++
		}
	}
	return count
}

func matMeanStdDev(src Mat) (float64, float64) {
	n := len(src.data)
	if n == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range src.data {
		sum += float64(v)
	}
	mean := sum / float64(n)
	var sse float64
	for _, v := range src.data {
		d := float64(v) - mean
		sse += d * d
	}
	return mean, math.Sqrt(sse / float64(n))
}

func matCopyToWithMask(src Mat, dst *Mat, mask Mat) {
	for i, m := range mask.data {
		if m != 0 {
			dst.data[i] = src.data[i]
		}
	}
}

func imWriteMat(_ string, _ Mat) {
	// No-op in pure Go build (debug image saving not supported)
}
