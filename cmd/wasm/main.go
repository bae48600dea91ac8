//go:build js && wasm

package main

import (
	"bytes"
	"context"
	"syscall/js"

	"fitsrating/internal/pipeline"
	"fitsrating/pkg/fits"
	"fitsrating/pkg/photometry"
	"fitsrating/pkg/render"
)

var (
	lastField  *photometry.FieldAnalysis
	lastWidth  int
	lastHeight int
)

func main() {
	js.Global().Set("analyzeFITS", js.FuncOf(analyzeFITS))
	js.Global().Set("renderPreview", js.FuncOf(renderPreview))
	js.Global().Set("renderOverlay", js.FuncOf(renderOverlay))
	select {} // block forever
}

// openFrame copies the file bytes out of JS and opens them with the limits
// in options (maxWidth, maxHeight).
func openFrame(args []js.Value) (*pipeline.Frame, js.Value, error) {
	jsBytes := args[0]
	fileBytes := make([]byte, jsBytes.Get("length").Int())
	js.CopyBytesToGo(fileBytes, jsBytes)

	options := js.Undefined()
	if len(args) >= 2 && args[1].Type() == js.TypeObject {
		options = args[1]
	}
	limits := fits.DefaultLimits()
	limits.MaxWidth = intOption(options, "maxWidth", 0)
	limits.MaxHeight = intOption(options, "maxHeight", 0)

	h, err := fits.NewHandle(bytes.NewReader(fileBytes), limits)
	if err != nil {
		return nil, options, err
	}
	return pipeline.NewFrame("upload.fits", h), options, nil
}

// analyzeFITS(fileBytes, {psf, minSNR, threshold, maxWidth, maxHeight})
func analyzeFITS(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("usage: analyzeFITS(fileBytes, options)")
	}
	f, options, err := openFrame(args)
	if err != nil {
		return errorResult("FITS parse error: " + err.Error())
	}
	defer f.Close()

	params := photometry.DefaultParameters()
	params.PSFFit = boolOption(options, "psf", params.PSFFit)
	params.MinSNR = floatOption(options, "minSNR", params.MinSNR)
	params.ExtractThreshold = floatOption(options, "threshold", params.ExtractThreshold)
	if err := params.Validate(); err != nil {
		return errorResult(err.Error())
	}

	cat, err := f.Photometry(context.Background(), photometry.NewEngine(params, photometry.Options{}))
	if err != nil {
		return errorResult("Measurement error: " + err.Error())
	}
	img, _ := f.Decode()
	stars := cat.All()
	field := photometry.AnalyzeField(stars, img.Width, img.Height)
	lastField = field
	lastWidth = img.Width
	lastHeight = img.Height

	s := cat.Statistics
	jsResult := map[string]interface{}{
		"width":              img.Width,
		"height":             img.Height,
		"filter":             f.Handle().Attributes.Filter,
		"exposure":           f.Handle().Attributes.Exposure,
		"starCount":          s.Stars,
		"median":             s.Median,
		"medianMAD":          s.MedianMAD,
		"noise":              s.Noise,
		"noiseRatio":         s.NoiseRatio,
		"snrWeight":          s.SNRWeight(),
		"medianHFR":          s.HFR.Median,
		"medianHFD":          s.HFD().Median,
		"medianFWHM":         s.FWHM.Median,
		"medianEccentricity": s.Eccentricity.Median,
		"medianSNR":          s.SNR.Median,
	}

	jsStars := make([]interface{}, len(stars))
	for i, o := range stars {
		jsStars[i] = map[string]interface{}{
			"x":            o.PSF.X,
			"y":            o.PSF.Y,
			"flux":         o.Flux,
			"hfr":          o.HFR,
			"fwhm":         o.PSF.FWHM,
			"eccentricity": o.PSF.Eccentricity,
			"snr":          o.SNR,
		}
	}
	jsResult["stars"] = jsStars

	if field != nil {
		jsZones := make([]interface{}, 0, 9)
		for pos := photometry.ZoneTopLeft; pos <= photometry.ZoneBottomRight; pos++ {
			z := field.Zones[pos]
			jsZones = append(jsZones, map[string]interface{}{
				"label":      z.Label,
				"medianHFR":  z.MedianHFR,
				"starCount":  z.Stars,
				"medianFWHM": z.MedianFWHM,
			})
		}
		jsResult["field"] = map[string]interface{}{
			"zones":       jsZones,
			"tiltPct":     field.TiltPct,
			"offAxisPct":  field.OffAxisPct,
			"bestCorner":  field.BestCorner,
			"worstCorner": field.WorstCorner,
			"reliable":    field.Reliable,
		}
	}

	return js.ValueOf(jsResult)
}

// renderPreview(fileBytes, {linear, outline, saturation, maxWidth, maxHeight})
// returns {width, height, bgra}.
func renderPreview(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("usage: renderPreview(fileBytes, options)")
	}
	f, options, err := openFrame(args)
	if err != nil {
		return errorResult("FITS parse error: " + err.Error())
	}
	defer f.Close()

	p, err := f.Preview(pipeline.PreviewOptions{
		Render: render.Options{
			MonoColorOutline: boolOption(options, "outline", false),
			Saturation:       floatOption(options, "saturation", 1),
		},
		Linear: boolOption(options, "linear", false),
	})
	if err != nil {
		return errorResult("Preview error: " + err.Error())
	}

	pixels := js.Global().Get("Uint8Array").New(len(p.BGRA))
	js.CopyBytesToJS(pixels, p.BGRA)
	return js.ValueOf(map[string]interface{}{
		"width":  p.Width,
		"height": p.Height,
		"bgra":   pixels,
	})
}

func renderOverlay(this js.Value, args []js.Value) interface{} {
	if lastField == nil {
		return js.Null()
	}

	panel, err := render.RenderFieldOverlay(lastField, lastWidth, lastHeight)
	if err != nil {
		return js.Null()
	}
	var buf bytes.Buffer
	if err := render.Encode(&buf, panel, render.FormatJPEG); err != nil {
		return js.Null()
	}

	uint8Array := js.Global().Get("Uint8Array").New(buf.Len())
	js.CopyBytesToJS(uint8Array, buf.Bytes())
	return uint8Array
}

func errorResult(msg string) interface{} {
	return js.ValueOf(map[string]interface{}{
		"error": msg,
	})
}

func boolOption(options js.Value, key string, def bool) bool {
	if options.Type() != js.TypeObject {
		return def
	}
	if v := options.Get(key); v.Type() == js.TypeBoolean {
		return v.Bool()
	}
	return def
}

func floatOption(options js.Value, key string, def float64) float64 {
	if options.Type() != js.TypeObject {
		return def
	}
	if v := options.Get(key); v.Type() == js.TypeNumber {
		return v.Float()
	}
	return def
}

func intOption(options js.Value, key string, def int) int {
	if options.Type() != js.TypeObject {
		return def
	}
	if v := options.Get(key); v.Type() == js.TypeNumber {
		return v.Int()
	}
	return def
}
