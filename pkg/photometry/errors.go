package photometry

import "errors"

var (
	// ErrExtraction wraps background or detection failures.
	ErrExtraction = errors.New("extraction failed")
	// ErrCancelled is returned when the context is done at a phase boundary.
	// It also wraps the context error.
	ErrCancelled = errors.New("photometry cancelled")
	// ErrFit is reported for a PSF fit that did not converge. It never
	// escapes Extract; the star is dropped instead.
	ErrFit = errors.New("psf fit failed")
	// ErrRange reports an out-of-bounds catalog access.
	ErrRange = errors.New("index out of range")
)
