package extract

import (
	"fmt"
	"math"
	"slices"
)

// BackgroundParams configures the background mesh.
type BackgroundParams struct {
	// TileSize is the mesh cell size in pixels.
	TileSize int
	// FilterSize is the median filter size applied to the mesh (1 disables it).
	FilterSize int
	// FilterThreshold limits filtering to cells whose level differs from the
	// filtered level by more than this amount.
	FilterThreshold float64
	// DebugDir receives intermediate meshes when set.
	DebugDir string
}

const (
	tileClipSigma     = 3.0
	tileMaxIterations = 5
	tileAllowedError  = 0.0001
	// modeSkew bounds |mean-median|/sigma for the 2.5/1.5 mode estimate.
	modeSkew = 0.3
)

// Background is a smooth background level and noise model of an image.
type Background struct {
	width, height int
	meshW, meshH  int
	level         []float32
	rms           []float32
	global        float64
	globalRMS     float64
}

// NewBackground estimates the background of img on a mesh of tiles.
func NewBackground(img Image, p BackgroundParams) (*Background, error) {
	if err := img.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackground, err)
	}
	tile := p.TileSize
	if tile <= 0 {
		return nil, fmt.Errorf("%w: invalid tile size %d", ErrBackground, tile)
	}
	tile = min(tile, max(img.Width, img.Height))
	meshW := (img.Width + tile - 1) / tile
	meshH := (img.Height + tile - 1) / tile

	levelMesh := NewMatWithSize(meshH, meshW)
	defer levelMesh.Close()
	rmsMesh := NewMatWithSize(meshH, meshW)
	defer rmsMesh.Close()
	levels := levelMesh.DataFloat32()
	sigmas := rmsMesh.DataFloat32()

	valid := make([]bool, meshW*meshH)
	buf := make([]float32, 0, tile*tile)
	for my := 0; my < meshH; my++ {
		for mx := 0; mx < meshW; mx++ {
			buf = buf[:0]
			for y := my * tile; y < min((my+1)*tile, img.Height); y++ {
				row := img.Data[y*img.Width : (y+1)*img.Width]
				for _, v := range row[mx*tile : min((mx+1)*tile, img.Width)] {
					if !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0) {
						buf = append(buf, v)
					}
				}
			}
			mode, sigma, ok := tileStatistics(buf)
			if !ok {
				continue
			}
			i := my*meshW + mx
			levels[i], sigmas[i], valid[i] = float32(mode), float32(sigma), true
		}
	}
	if err := fillInvalidCells(levels, sigmas, valid); err != nil {
		return nil, err
	}
	maybeSaveImage(levelMesh, p.DebugDir, "10-background-mesh.tif")

	if p.FilterSize > 1 && meshW >= p.FilterSize && meshH >= p.FilterSize {
		filterMesh(&levelMesh, &rmsMesh, p.FilterSize, p.FilterThreshold)
		maybeSaveImage(levelMesh, p.DebugDir, "11-background-mesh-filtered.tif")
	}

	bkg := &Background{
		width:     img.Width,
		height:    img.Height,
		meshW:     meshW,
		meshH:     meshH,
		global:    float64(median32(levelMesh.DataFloat32())),
		globalRMS: float64(median32(rmsMesh.DataFloat32())),
	}

	full := NewMat()
	defer full.Close()
	resizeLinear(levelMesh, &full, img.Width, img.Height)
	bkg.level = slices.Clone(full.DataFloat32())
	resizeLinear(rmsMesh, &full, img.Width, img.Height)
	bkg.rms = slices.Clone(full.DataFloat32())

	mean, stddev := matMeanStdDev(levelMesh)
	maybeSaveText(p.DebugDir, "12-background.txt",
		fmt.Sprintf("Mesh %dx%d (tile %d): Global=%f, GlobalRMS=%f, MeshMean=%f, MeshStdDev=%f",
			meshW, meshH, tile, bkg.global, bkg.globalRMS, mean, stddev))
	return bkg, nil
}

// tileStatistics clips a tile at tileClipSigma around its mean until the
// deviation settles, then estimates the mode.
func tileStatistics(values []float32) (mode, sigma float64, ok bool) {
	if len(values) == 0 {
		return 0, 0, false
	}
	mean, sigma := meanStdDev(values)
	for i := 0; i < tileMaxIterations && sigma > 0; i++ {
		lo, hi := mean-tileClipSigma*sigma, mean+tileClipSigma*sigma
		kept := values[:0]
		for _, v := range values {
			if float64(v) >= lo && float64(v) <= hi {
				kept = append(kept, v)
			}
		}
		if len(kept) == 0 {
			break
		}
		values = kept
		lastSigma := sigma
		mean, sigma = meanStdDev(values)
		if math.Abs(sigma-lastSigma) <= tileAllowedError*lastSigma {
			break
		}
	}

	med := float64(median32(values))
	if sigma > 0 && math.Abs(mean-med)/sigma < modeSkew {
		return 2.5*med - 1.5*mean, sigma, true
	}
	return med, sigma, true
}

// fillInvalidCells replaces empty tiles with the mean of the valid ones.
func fillInvalidCells(levels, sigmas []float32, valid []bool) error {
	var sumLevel, sumSigma float64
	n := 0
	for i, ok := range valid {
		if ok {
			sumLevel += float64(levels[i])
			sumSigma += float64(sigmas[i])
			n++
		}
	}
	if n == 0 {
		return fmt.Errorf("%w: no finite pixels", ErrBackground)
	}
	for i, ok := range valid {
		if !ok {
			levels[i] = float32(sumLevel / float64(n))
			sigmas[i] = float32(sumSigma / float64(n))
		}
	}
	return nil
}

// filterMesh median filters both meshes, replacing only the cells whose
// level moved by more than threshold.
func filterMesh(levelMesh, rmsMesh *Mat, size int, threshold float64) {
	size = min(size|1, 5)

	filteredLevel := NewMat()
	defer filteredLevel.Close()
	filteredRMS := NewMat()
	defer filteredRMS.Close()
	diff := NewMat()
	defer diff.Close()
	mask := NewMat()
	defer mask.Close()

	medianBlur(*levelMesh, &filteredLevel, size)
	medianBlur(*rmsMesh, &filteredRMS, size)
	absDiff(*levelMesh, filteredLevel, &diff)
	thresholdBinary(diff, &mask, float32(threshold), 1.0)
	if countNonZero(mask) == 0 {
		return
	}
	matCopyToWithMask(filteredLevel, levelMesh, mask)
	matCopyToWithMask(filteredRMS, rmsMesh, mask)
}

// Global is the median background level.
func (b *Background) Global() float64 { return b.global }

// GlobalRMS is the median background noise.
func (b *Background) GlobalRMS() float64 { return b.globalRMS }

// MeshSize returns the number of tiles per axis.
func (b *Background) MeshSize() (int, int) { return b.meshW, b.meshH }

// Level returns the interpolated background at pixel (x, y).
func (b *Background) Level(x, y int) float32 { return b.level[y*b.width+x] }

// RMS returns the interpolated background noise at pixel (x, y).
func (b *Background) RMS(x, y int) float32 { return b.rms[y*b.width+x] }

// Subtract removes the background from data, which must have the
// dimensions the model was built for.
func (b *Background) Subtract(data []float32) error {
	if len(data) != b.width*b.height {
		return fmt.Errorf("%w: subtracting %d pixels from a %dx%d model", ErrBackground, len(data), b.width, b.height)
	}
	for i := range data {
		data[i] -= b.level[i]
	}
	return nil
}

func meanStdDev(values []float32) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += float64(v)
	}
	mean := sum / float64(len(values))
	var sse float64
	for _, v := range values {
		d := float64(v) - mean
		sse += d * d
	}
	return mean, math.Sqrt(sse / float64(len(values)))
}

// median32 returns the middle order statistic of a sorted copy of values.
func median32(values []float32) float32 {
	if len(values) == 0 {
		return 0
	}
	s := slices.Clone(values)
	slices.Sort(s)
	return s[len(s)/2]
}
