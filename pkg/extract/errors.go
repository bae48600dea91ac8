package extract

import "errors"

var (
	// ErrBackground reports a background model that could not be built.
	ErrBackground = errors.New("background estimation failed")
	// ErrDetection reports a failure while thresholding or segmenting objects.
	ErrDetection = errors.New("object detection failed")
)
