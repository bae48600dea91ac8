package fits

import "errors"

var (
	// ErrInvalidInput is returned for unreadable paths, oversized images and
	// headers that do not describe a usable image.
	ErrInvalidInput = errors.New("fits: invalid input")

	// ErrDecode is returned when the pixel stream cannot be read or decoded.
	ErrDecode = errors.New("fits: decode failure")
)
