package extract

import (
	"image"
	"math"
)

// clean merges faint detections that are explained by the wings of a
// brighter neighbour. The wing model is peak*(1+r²)^-param with r² taken
// from the bright object's ellipse.
func clean(objects []Object, param float64) []Object {
	removed := make([]bool, len(objects))
	for j := range objects {
		faint := &objects[j]
		for i := range objects {
			bright := &objects[i]
			if i == j || removed[i] || bright.Peak <= faint.Peak {
				continue
			}
			zone := bright.Bounds.Inset(-2)
			if !image.Pt(int(faint.X), int(faint.Y)).In(zone) {
				continue
			}
			dx, dy := faint.X-bright.X, faint.Y-bright.Y
			rsq := bright.CXX*dx*dx + bright.CYY*dy*dy + bright.CXY*dx*dy
			if faint.Peak < bright.Peak*math.Pow(1+rsq, -param) {
				bright.Flux += faint.Flux
				bright.NPix += faint.NPix
				bright.Bounds = bright.Bounds.Union(faint.Bounds)
				bright.Flag |= FlagMerged
				removed[j] = true
				break
			}
		}
	}

	kept := objects[:0]
	for i, obj := range objects {
		if !removed[i] {
			kept = append(kept, obj)
		}
	}
	return kept
}
