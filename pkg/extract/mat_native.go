//go:build opencv && !js

package extract

import (
	"image"

	"gocv.io/x/gocv"
)

// Mat wraps gocv.Mat for the native OpenCV backend.
type Mat struct {
	m gocv.Mat
}

func NewMat() Mat                      { return Mat{m: gocv.NewMat()} }
func NewMatWithSize(rows, cols int) Mat { return Mat{m: gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV32F)} }
func (mat Mat) Rows() int              { return mat.m.Rows() }
func (mat Mat) Cols() int              { return mat.m.Cols() }
func (mat Mat) Empty() bool            { return mat.m.Empty() }
func (mat Mat) Clone() Mat             { return Mat{m: mat.m.Clone()} }
func (mat *Mat) Close()                { mat.m.Close() }

func (mat Mat) DataFloat32() []float32 {
	data, _ := mat.m.DataPtrFloat32()
	return data
}

// NewMatFromData copies data into a new rows x cols matrix.
func NewMatFromData(rows, cols int, data []float32) Mat {
	mat := NewMatWithSize(rows, cols)
	copy(mat.DataFloat32(), data)
	return mat
}

// --- CV operations ---

// filter2DConstant correlates src with kernel, treating pixels outside
// the image as zero.
func filter2DConstant(src Mat, dst *Mat, kernel Mat) {
	gocv.Filter2D(src.m, &dst.m, gocv.MatTypeCV32F, kernel.m, image.Pt(-1, -1), 0, gocv.BorderConstant)
}

func medianBlur(src Mat, dst *Mat, ksize int) {
	gocv.MedianBlur(src.m, &dst.m, ksize)
}

func resizeLinear(src Mat, dst *Mat, cols, rows int) {
	gocv.Resize(src.m, &dst.m, image.Pt(cols, rows), 0, 0, gocv.InterpolationLinear)
}

func absDiff(a, b Mat, dst *Mat) {
	gocv.AbsDiff(a.m, b.m, &dst.m)
}

func thresholdBinary(src Mat, dst *Mat, thresh, maxval float32) {
	gocv.Threshold(src.m, &dst.m, thresh, maxval, gocv.ThresholdBinary)
}

func countNonZero(src Mat) int {
	return gocv.CountNonZero(src.m)
}

func matMeanStdDev(src Mat) (float64, float64) {
	meanMat := gocv.NewMat()
	defer meanMat.Close()
	stdMat := gocv.NewMat()
	defer stdMat.Close()
	gocv.MeanStdDev(src.m, &meanMat, &stdMat)
	return meanMat.GetDoubleAt(0, 0), stdMat.GetDoubleAt(0, 0)
}

func matCopyToWithMask(src Mat, dst *Mat, mask Mat) {
	mask8 := gocv.NewMat()
	defer mask8.Close()
	mask.m.ConvertTo(&mask8, gocv.MatTypeCV8U)
	src.m.CopyToWithMask(&dst.m, mask8)
}

func imWriteMat(path string, m Mat) {
	gocv.IMWrite(path, m.m)
}
