package fits

import "strings"

// CFA maps a 2x2 raw quadrant (top-left, top-right, bottom-left,
// bottom-right) to R, G and B through a 3x4 row-major matrix.
// The zero value is the identity (no demosaicing).
type CFA struct {
	m      [12]float32
	mosaic bool
}

var cfaTable = map[string][12]float32{
	"rggb": {
		1, 0, 0, 0,
		0, 0.5, 0.5, 0,
		0, 0, 0, 1,
	},
	"bggr": {
		0, 0, 0, 1,
		0, 0.5, 0.5, 0,
		1, 0, 0, 0,
	},
	"gbrg": {
		0, 0, 1, 0,
		0.5, 0, 0, 0.5,
		0, 1, 0, 0,
	},
	"grbg": {
		0, 1, 0, 0,
		0.5, 0, 0, 0.5,
		0, 0, 1, 0,
	},
}

// LookupCFA returns the matrix for a bayer pattern name such as "RGGB".
// Unknown names yield the identity and false.
func LookupCFA(pattern string) (CFA, bool) {
	m, ok := cfaTable[strings.ToLower(strings.TrimSpace(pattern))]
	if !ok {
		return CFA{}, false
	}
	return CFA{m: m, mosaic: true}, true
}

func (c CFA) Identity() bool { return !c.mosaic }

func (c CFA) Matrix() [12]float32 { return c.m }

// WithOffset shifts the pattern for sensors whose bayer origin is offset by
// an odd number of pixels.
func (c CFA) WithOffset(x, y int) CFA {
	if !c.mosaic {
		return c
	}
	m := c.m
	if abs(x)%2 != 0 {
		for i := 0; i < 3; i++ {
			m[i*4+0], m[i*4+1] = m[i*4+1], m[i*4+0]
			m[i*4+2], m[i*4+3] = m[i*4+3], m[i*4+2]
		}
	}
	if abs(y)%2 != 0 {
		for i := 0; i < 3; i++ {
			m[i*4+0], m[i*4+2] = m[i*4+2], m[i*4+0]
			m[i*4+1], m[i*4+3] = m[i*4+3], m[i*4+1]
		}
	}
	return CFA{m: m, mosaic: true}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
