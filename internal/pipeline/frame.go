package pipeline

import (
	"context"
	"fmt"

	"fitsrating/pkg/fits"
	"fitsrating/pkg/photometry"
	"fitsrating/pkg/render"
	"fitsrating/pkg/stretch"
)

// HistogramBuckets is the size of the preview histograms.
const HistogramBuckets = 256

// Frame is an opened FITS frame. The decoded image is cached on first use.
// A Frame is not safe for concurrent use.
type Frame struct {
	Path string

	handle *fits.Handle
	image  *fits.DecodedImage
}

// Open opens the FITS file at path with the given decode limits.
func Open(path string, limits fits.Limits) (*Frame, error) {
	h, err := fits.Open(path, limits)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Frame{Path: path, handle: h}, nil
}

// NewFrame wraps an already opened handle.
func NewFrame(name string, h *fits.Handle) *Frame {
	return &Frame{Path: name, handle: h}
}

// Handle returns the underlying FITS handle.
func (f *Frame) Handle() *fits.Handle { return f.handle }

// Records returns the header records in file order.
func (f *Frame) Records() []fits.Record { return f.handle.Records() }

// Decode streams the image once and caches it.
func (f *Frame) Decode() (*fits.DecodedImage, error) {
	if f.image != nil {
		return f.image, nil
	}
	img, err := f.handle.Decode(fits.Options{})
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.Path, err)
	}
	f.image = img
	return img, nil
}

// Stretch computes auto stretch parameters for the decoded image.
func (f *Frame) Stretch() (stretch.Parameters, error) {
	img, err := f.Decode()
	if err != nil {
		return stretch.Parameters{}, err
	}
	return stretch.Compute(img), nil
}

// PreviewOptions control Preview.
type PreviewOptions struct {
	Render render.Options
	// Stretch, when set, is applied instead of computing parameters.
	Stretch *stretch.Parameters
	// Linear disables the auto stretch.
	Linear bool
	// Buffer is reused for the BGRA output when large enough.
	Buffer []byte
}

// Preview is a composited frame.
type Preview struct {
	BGRA       []byte
	Width      int
	Height     int
	Stretch    stretch.Parameters
	Histograms [3][]uint32
}

// Preview stretches a working copy of the decoded image and composites it.
// The cached image is left linear.
func (f *Frame) Preview(opts PreviewOptions) (*Preview, error) {
	img, err := f.Decode()
	if err != nil {
		return nil, err
	}

	var params stretch.Parameters
	switch {
	case opts.Linear:
		params = stretch.IdentityFor(img)
	case opts.Stretch != nil:
		params = *opts.Stretch
	default:
		params = stretch.Compute(img)
	}

	p := &Preview{Width: img.Width, Height: img.Height, Stretch: params}
	for c := range p.Histograms {
		p.Histograms[c] = make([]uint32, HistogramBuckets)
	}
	work := img.Clone()
	stretch.Apply(work, params, p.Histograms[:])

	p.BGRA, err = render.Compose(work, f.handle.Attributes.FilterType, opts.Render, opts.Buffer)
	if err != nil {
		return nil, fmt.Errorf("compose %s: %w", f.Path, err)
	}
	return p, nil
}

// Photometry measures the stars of the decoded image.
func (f *Frame) Photometry(ctx context.Context, engine *photometry.Engine) (*photometry.Catalog, error) {
	img, err := f.Decode()
	if err != nil {
		return nil, err
	}
	cat, err := engine.Extract(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("photometry %s: %w", f.Path, err)
	}
	return cat, nil
}

// Close releases the file and the cached image.
func (f *Frame) Close() error {
	f.image = nil
	return f.handle.Close()
}
