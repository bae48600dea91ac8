package extract

import "fmt"

// Image is a single-plane float image in row-major order. Noise is the
// per-pixel standard deviation used for relative thresholds and aperture
// errors.
type Image struct {
	Data   []float32
	Width  int
	Height int
	Noise  float64
}

func (img Image) validate() error {
	if img.Width <= 0 || img.Height <= 0 {
		return fmt.Errorf("invalid image size %dx%d", img.Width, img.Height)
	}
	if len(img.Data) < img.Width*img.Height {
		return fmt.Errorf("image data too short: %d < %d", len(img.Data), img.Width*img.Height)
	}
	return nil
}

func (img Image) at(x, y int) float32 {
	return img.Data[y*img.Width+x]
}

func (img Image) toMat() Mat {
	return NewMatFromData(img.Height, img.Width, img.Data)
}
