package photometry

import (
	"math"
	"slices"

	"github.com/samber/lo"
)

const (
	fieldEdgeFraction = 0.25
	minStarsPerZone   = 3
)

// ZonePosition identifies a zone in the 3x3 field grid.
type ZonePosition int

const (
	ZoneTopLeft ZonePosition = iota
	ZoneTop
	ZoneTopRight
	ZoneLeft
	ZoneCenter
	ZoneRight
	ZoneBottomLeft
	ZoneBottom
	ZoneBottomRight
)

var zoneLabels = [...]string{"TL", "T", "TR", "L", "Center", "R", "BL", "B", "BR"}

// Corners lists the corner zones.
var Corners = []ZonePosition{ZoneTopLeft, ZoneTopRight, ZoneBottomLeft, ZoneBottomRight}

func (z ZonePosition) String() string {
	if z < 0 || int(z) >= len(zoneLabels) {
		return "?"
	}
	return zoneLabels[z]
}

// ZoneData holds the stars of one zone.
type ZoneData struct {
	Label      string  `json:"label"`
	Stars      int     `json:"stars"`
	MedianHFR  float64 `json:"median_hfr"`
	MedianFWHM float64 `json:"median_fwhm"`
}

// FieldAnalysis compares star sizes across a 3x3 grid of the frame.
type FieldAnalysis struct {
	Zones map[ZonePosition]ZoneData `json:"zones"`
	// TiltPct is the HFR spread of the corners relative to their mean.
	TiltPct float64 `json:"tilt_pct"`
	// OffAxisPct is the corner HFR excess over the center.
	OffAxisPct  float64 `json:"off_axis_pct"`
	BestCorner  string  `json:"best_corner,omitempty"`
	WorstCorner string  `json:"worst_corner,omitempty"`
	// Reliable is set when every corner and the center hold enough stars.
	Reliable bool `json:"reliable"`
}

// AnalyzeField buckets objects into a 3x3 grid split at 25% and 75% of the
// frame and compares the median HFR of the corners and the center. It
// returns nil without objects.
func AnalyzeField(objects []Object, width, height int) *FieldAnalysis {
	if len(objects) == 0 {
		return nil
	}

	xLo, xHi := float64(width)*fieldEdgeFraction, float64(width)*(1-fieldEdgeFraction)
	yLo, yHi := float64(height)*fieldEdgeFraction, float64(height)*(1-fieldEdgeFraction)
	groups := lo.GroupBy(objects, func(o Object) ZonePosition {
		return classifyZone(o.PSF.X, o.PSF.Y, xLo, xHi, yLo, yHi)
	})

	fa := &FieldAnalysis{Zones: make(map[ZonePosition]ZoneData, len(zoneLabels))}
	for pos := ZoneTopLeft; pos <= ZoneBottomRight; pos++ {
		fa.Zones[pos] = zoneData(pos, groups[pos])
	}

	center := fa.Zones[ZoneCenter]
	valid := lo.Filter(Corners, func(pos ZonePosition, _ int) bool {
		return fa.Zones[pos].Stars >= minStarsPerZone
	})
	if len(valid) >= 2 {
		best := lo.MinBy(valid, func(a, b ZonePosition) bool { return fa.Zones[a].MedianHFR < fa.Zones[b].MedianHFR })
		worst := lo.MaxBy(valid, func(a, b ZonePosition) bool { return fa.Zones[a].MedianHFR > fa.Zones[b].MedianHFR })
		mean := lo.SumBy(valid, func(pos ZonePosition) float64 { return fa.Zones[pos].MedianHFR }) / float64(len(valid))
		if mean > 0 {
			fa.TiltPct = (fa.Zones[worst].MedianHFR - fa.Zones[best].MedianHFR) / mean * 100
			fa.BestCorner, fa.WorstCorner = best.String(), worst.String()
		}
		if center.Stars >= minStarsPerZone && center.MedianHFR > 0 {
			fa.OffAxisPct = (mean - center.MedianHFR) / center.MedianHFR * 100
		}
	}

	fa.Reliable = len(valid) == len(Corners) && center.Stars >= minStarsPerZone
	return fa
}

func classifyZone(x, y, xLo, xHi, yLo, yHi float64) ZonePosition {
	band := func(v, lo, hi float64) int {
		switch {
		case v < lo:
			return 0
		case v < hi:
			return 1
		}
		return 2
	}
	return ZonePosition(band(y, yLo, yHi)*3 + band(x, xLo, xHi))
}

func zoneData(pos ZonePosition, objects []Object) ZoneData {
	zd := ZoneData{Label: pos.String(), Stars: len(objects)}
	if len(objects) == 0 {
		return zd
	}
	zd.MedianHFR = medianOf(lo.Map(objects, func(o Object, _ int) float64 { return o.HFR }))
	fwhm := lo.FilterMap(objects, func(o Object, _ int) (float64, bool) {
		return o.PSF.FWHM, o.PSF.FWHM > 0 && !math.IsNaN(o.PSF.FWHM)
	})
	zd.MedianFWHM = medianOf(fwhm)
	return zd
}

func medianOf(values []float64) float64 {
	s := slices.Clone(values)
	slices.Sort(s)
	return sortedMedian(s)
}
