package render

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"fitsrating/pkg/photometry"
)

const (
	fieldPanelWidth   = 800
	fieldPanelMinH    = 100
	fieldSummaryH     = 60
	fieldEdgeFraction = 0.25
	minMarkerRadius   = 4
	markerFWHMScale   = 1.5
)

var (
	gridColor    = color.RGBA{255, 255, 255, 180}
	textColor    = color.RGBA{255, 255, 255, 255}
	summaryColor = color.RGBA{220, 220, 220, 255}
	arrowColor   = color.RGBA{255, 80, 80, 255}
	emptyZone    = color.RGBA{40, 40, 40, 255}
	markerColor  = color.RGBA{80, 255, 80, 255}
	flaggedColor = color.RGBA{255, 200, 60, 255}
)

// RenderStarOverlay draws an ellipse and FWHM label over every star. Star
// coordinates are multiplied by scale to map them onto base.
func RenderStarOverlay(base image.Image, objects []photometry.Object, scale float64) *image.RGBA {
	b := base.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), base, b.Min, draw.Src)

	face := basicfont.Face7x13
	for _, o := range objects {
		cx, cy := o.PSF.X*scale, o.PSF.Y*scale
		a := math.Max(o.PSF.FWHM*scale*markerFWHMScale, minMarkerRadius)
		minor := a * math.Sqrt(math.Max(1-o.PSF.Eccentricity*o.PSF.Eccentricity, 0))
		c := markerColor
		if o.FluxFlag != 0 || o.HFRFlag != 0 {
			c = flaggedColor
		}
		drawEllipse(out, cx, cy, a, minor, o.PSF.Theta, c)
		label := fmt.Sprintf("%.1f", o.PSF.FWHM)
		drawText(out, face, label, int(cx+a)+2, int(cy)+4, c)
	}
	return out
}

// RenderFieldOverlay draws the 3x3 field analysis as a colored panel, scaled
// to a fixed width, with a summary line below it.
func RenderFieldOverlay(field *photometry.FieldAnalysis, width, height int) (*image.RGBA, error) {
	if field == nil {
		return nil, fmt.Errorf("%w: no field analysis", ErrInvalidInput)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: frame size %dx%d", ErrInvalidInput, width, height)
	}

	scale := float64(fieldPanelWidth) / float64(width)
	imgW := fieldPanelWidth
	imgH := max(int(float64(height)*scale), fieldPanelMinH)
	img := image.NewRGBA(image.Rect(0, 0, imgW, imgH+fieldSummaryH))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	xLo, xHi := int(float64(imgW)*fieldEdgeFraction), int(float64(imgW)*(1-fieldEdgeFraction))
	yLo, yHi := int(float64(imgH)*fieldEdgeFraction), int(float64(imgH)*(1-fieldEdgeFraction))
	xBounds := [3][2]int{{0, xLo}, {xLo, xHi}, {xHi, imgW}}
	yBounds := [3][2]int{{0, yLo}, {yLo, yHi}, {yHi, imgH}}
	cell := func(pos photometry.ZonePosition) image.Rectangle {
		row, col := int(pos)/3, int(pos)%3
		return image.Rect(xBounds[col][0], yBounds[row][0], xBounds[col][1], yBounds[row][1])
	}

	centerHFR := field.Zones[photometry.ZoneCenter].MedianHFR
	if centerHFR <= 0 {
		centerHFR = 1
	}

	face := basicfont.Face7x13
	for pos := photometry.ZoneTopLeft; pos <= photometry.ZoneBottomRight; pos++ {
		zone := field.Zones[pos]
		r := cell(pos)
		draw.Draw(img, r, image.NewUniform(hfrColor(zone.MedianHFR, centerHFR)), image.Point{}, draw.Src)

		cx, cy := (r.Min.X+r.Max.X)/2, (r.Min.Y+r.Max.Y)/2
		if zone.MedianHFR > 0 {
			radius := min(max(int(zone.MedianHFR*scale*3), 3), r.Dx()/3)
			drawEllipse(img, float64(cx), float64(cy), float64(radius), float64(radius), 0, color.RGBA{255, 255, 255, 200})
		}
		drawCenteredText(img, face, pos.String(), cx, cy-14, textColor)
		drawCenteredText(img, face, fmt.Sprintf("HFR: %.2f", zone.MedianHFR), cx, cy+2, textColor)
		drawCenteredText(img, face, fmt.Sprintf("n=%d", zone.Stars), cx, cy+16, textColor)
	}

	for x := 0; x < imgW; x++ {
		img.Set(x, yLo, gridColor)
		img.Set(x, yHi, gridColor)
	}
	for y := 0; y < imgH; y++ {
		img.Set(xLo, y, gridColor)
		img.Set(xHi, y, gridColor)
	}

	if best, ok := cornerByLabel(field.BestCorner); ok {
		if worst, ok := cornerByLabel(field.WorstCorner); ok {
			from, to := cell(best), cell(worst)
			x0, y0 := (from.Min.X+from.Max.X)/2, (from.Min.Y+from.Max.Y)/2
			x1, y1 := (to.Min.X+to.Max.X)/2, (to.Min.Y+to.Max.Y)/2
			drawLine(img, x0, y0, x1, y1, arrowColor)
			drawArrowHead(img, x0, y0, x1, y1, arrowColor)
		}
	}

	summary := fmt.Sprintf("Off-axis: %.1f%%", field.OffAxisPct)
	if !field.Reliable {
		summary += "  [LOW STAR COUNT - UNRELIABLE]"
	}
	drawText(img, face, fmt.Sprintf("Tilt: %.1f%%  (worst: %s, best: %s)", field.TiltPct, field.WorstCorner, field.BestCorner),
		10, imgH+15, summaryColor)
	drawText(img, face, summary, 10, imgH+33, summaryColor)
	return img, nil
}

func cornerByLabel(label string) (photometry.ZonePosition, bool) {
	for _, pos := range photometry.Corners {
		if pos.String() == label {
			return pos, true
		}
	}
	return 0, false
}

// hfrColor grades a zone from green through yellow to red by its HFR
// relative to the center.
func hfrColor(zoneHFR, centerHFR float64) color.RGBA {
	if zoneHFR <= 0 || centerHFR <= 0 {
		return emptyZone
	}
	ratio := zoneHFR / centerHFR
	switch {
	case ratio <= 1.1:
		t := ratio / 1.1
		return color.RGBA{uint8(t * 30), uint8(60 + t*40), 20, 255}
	case ratio <= 1.3:
		t := (ratio - 1.1) / 0.2
		return color.RGBA{uint8(30 + t*170), uint8(100 - t*20), 20, 255}
	}
	t := math.Min((ratio-1.3)/0.3, 1)
	return color.RGBA{uint8(200 + t*55), uint8(80 - t*60), uint8(20 - t*10), 255}
}

func drawText(img draw.Image, face font.Face, s string, x, y int, c color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func drawCenteredText(img draw.Image, face font.Face, s string, cx, cy int, c color.Color) {
	drawText(img, face, s, cx-font.MeasureString(face, s).Round()/2, cy, c)
}

// drawEllipse plots the outline of an ellipse with semi-axes a and b rotated
// by theta.
func drawEllipse(img draw.Image, cx, cy, a, b, theta float64, c color.Color) {
	steps := max(int(2*math.Pi*a), 16)
	sin, cos := math.Sincos(theta)
	for i := 0; i < steps; i++ {
		t := 2 * math.Pi * float64(i) / float64(steps)
		ex, ey := a*math.Cos(t), b*math.Sin(t)
		img.Set(int(math.Round(cx+ex*cos-ey*sin)), int(math.Round(cy+ex*sin+ey*cos)), c)
	}
}

// drawLine draws a 2px Bresenham line.
func drawLine(img draw.Image, x0, y0, x1, y1 int, c color.Color) {
	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		img.Set(x0, y0, c)
		img.Set(x0+1, y0, c)
		img.Set(x0, y0+1, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func drawArrowHead(img draw.Image, x0, y0, x1, y1 int, c color.Color) {
	dx, dy := float64(x1-x0), float64(y1-y0)
	length := math.Hypot(dx, dy)
	if length < 1 {
		return
	}
	dx, dy = dx/length, dy/length
	const size, spread = 15.0, 0.4
	px, py := float64(x1)-dx*size, float64(y1)-dy*size
	drawLine(img, x1, y1, int(px+dy*size*spread), int(py-dx*size*spread), c)
	drawLine(img, x1, y1, int(px-dy*size*spread), int(py+dx*size*spread), c)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
