package render

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"path/filepath"
	"strings"

	"github.com/nfnt/resize"
	"golang.org/x/image/bmp"
)

// Format is an output image encoding.
type Format int

const (
	FormatPNG Format = iota
	FormatJPEG
	FormatBMP
)

const jpegQuality = 90

func (f Format) String() string {
	switch f {
	case FormatPNG:
		return "png"
	case FormatJPEG:
		return "jpeg"
	case FormatBMP:
		return "bmp"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// FormatForPath picks the encoding from the file extension.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return FormatPNG, nil
	case ".jpg", ".jpeg":
		return FormatJPEG, nil
	case ".bmp":
		return FormatBMP, nil
	}
	return 0, fmt.Errorf("%w: unsupported output extension %q", ErrInvalidInput, filepath.Ext(path))
}

// Encode writes img to w.
func Encode(w io.Writer, img image.Image, format Format) error {
	var err error
	switch format {
	case FormatPNG:
		err = png.Encode(w, img)
	case FormatJPEG:
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: jpegQuality})
	case FormatBMP:
		err = bmp.Encode(w, img)
	default:
		return fmt.Errorf("%w: unknown format %v", ErrInvalidInput, format)
	}
	if err != nil {
		return fmt.Errorf("encode %v: %w", format, err)
	}
	return nil
}

// Thumbnail scales img down to fit maxWidth x maxHeight, keeping its aspect
// ratio. Images that already fit are returned unchanged.
func Thumbnail(img image.Image, maxWidth, maxHeight int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || maxHeight <= 0 || (b.Dx() <= maxWidth && b.Dy() <= maxHeight) {
		return img
	}
	return resize.Thumbnail(uint(maxWidth), uint(maxHeight), img, resize.Lanczos3)
}
