package photometry

import (
	"fmt"
	"slices"

	"fitsrating/pkg/extract"
)

// Catalog is the result of an extraction: the accepted stars, frame
// statistics and the intermediate background and detections.
type Catalog struct {
	Statistics Statistics
	Background *extract.Background
	Detections *extract.Result

	objects []Object
}

// Len returns the number of accepted stars.
func (c *Catalog) Len() int { return len(c.objects) }

// Objects copies n stars starting at start into dst. It fails without
// touching dst when the range is out of bounds or dst is too short.
func (c *Catalog) Objects(start, n int, dst []Object) error {
	if start < 0 || n < 0 || start+n > len(c.objects) {
		return fmt.Errorf("%w: objects [%d, %d) of %d", ErrRange, start, start+n, len(c.objects))
	}
	if len(dst) < n {
		return fmt.Errorf("%w: destination holds %d of %d objects", ErrRange, len(dst), n)
	}
	copy(dst, c.objects[start:start+n])
	return nil
}

// All returns a copy of every accepted star.
func (c *Catalog) All() []Object { return slices.Clone(c.objects) }

// Release drops the background model and detections.
func (c *Catalog) Release() {
	c.Background = nil
	c.Detections = nil
}
