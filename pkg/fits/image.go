package fits

import "fmt"

// DecodedImage is a planar float image: all of channel 0, then channel 1...
type DecodedImage struct {
	Pix      []float32
	Width    int
	Height   int
	Channels int
}

// NewDecodedImage allocates a zeroed image.
func NewDecodedImage(width, height, channels int) *DecodedImage {
	return &DecodedImage{
		Pix:      make([]float32, width*height*channels),
		Width:    width,
		Height:   height,
		Channels: channels,
	}
}

// Plane returns the samples of channel c without copying.
func (img *DecodedImage) Plane(c int) []float32 {
	n := img.Width * img.Height
	return img.Pix[c*n : (c+1)*n]
}

func (img *DecodedImage) At(c, x, y int) float32 {
	return img.Pix[(c*img.Height+y)*img.Width+x]
}

func (img *DecodedImage) Set(c, x, y int, v float32) {
	img.Pix[(c*img.Height+y)*img.Width+x] = v
}

// Clone returns a deep copy, used as a working copy before an in-place stretch.
func (img *DecodedImage) Clone() *DecodedImage {
	out := *img
	out.Pix = make([]float32, len(img.Pix))
	copy(out.Pix, img.Pix)
	return &out
}

func (img *DecodedImage) String() string {
	return fmt.Sprintf("%dx%dx%d", img.Width, img.Height, img.Channels)
}
