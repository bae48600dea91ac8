package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"fitsrating/pkg/fits"
	"fitsrating/pkg/photometry"
)

func TestClamp8(t *testing.T) {
	tests := []struct {
		in   float32
		want uint8
	}{
		{float32(math.NaN()), 0},
		{-5, 0},
		{0, 0},
		{127.9, 127},
		{255, 255},
		{1e6, 255},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, clamp8(tt.in), "clamp8(%v)", tt.in)
	}
}

func monoFrame(w, h int, v float32) *fits.DecodedImage {
	img := fits.NewDecodedImage(w, h, 1)
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func TestComposeMono(t *testing.T) {
	img := monoFrame(4, 3, 100)
	img.Pix[5] = float32(math.NaN())

	out, err := Compose(img, fits.FilterR, Options{}, nil)
	require.NoError(t, err)
	require.Len(t, out, 4*12)
	assert.Equal(t, []byte{100, 100, 100, 255}, out[0:4])
	assert.Equal(t, []byte{0, 0, 0, 255}, out[20:24])
}

func TestComposeMonoOutline(t *testing.T) {
	const w, h = 200, 150
	img := monoFrame(w, h, 100)
	at := func(out []byte, x, y int) []byte { return out[4*(y*w+x) : 4*(y*w+x)+4] }

	tests := []struct {
		filter fits.Filter
		border []byte
	}{
		{fits.FilterL, []byte{200, 200, 200, 255}},
		{fits.FilterR, []byte{20, 20, 200, 255}},
		{fits.FilterG, []byte{20, 200, 20, 255}},
		{fits.FilterB, []byte{200, 20, 20, 255}},
		{fits.FilterOther, []byte{100, 100, 100, 255}},
	}
	for _, tt := range tests {
		t.Run(tt.filter.String(), func(t *testing.T) {
			out, err := Compose(img, tt.filter, Options{MonoColorOutline: true}, nil)
			require.NoError(t, err)
			// border = max(2, min(200/50, 150/50)) = 3
			assert.Equal(t, tt.border, at(out, 0, 0))
			assert.Equal(t, tt.border, at(out, 3, 50))
			assert.Equal(t, tt.border, at(out, 100, h-4))
			assert.Equal(t, []byte{100, 100, 100, 255}, at(out, 4, 4))
			assert.Equal(t, []byte{100, 100, 100, 255}, at(out, w-5, h-5))
		})
	}
}

func colorFrame(w, h int, r, g, b float32) *fits.DecodedImage {
	img := fits.NewDecodedImage(w, h, 3)
	for i := 0; i < w*h; i++ {
		img.Plane(0)[i] = r
		img.Plane(1)[i] = g
		img.Plane(2)[i] = b
	}
	return img
}

func TestComposeColor(t *testing.T) {
	img := colorFrame(2, 2, 200, 120, 40)

	out, err := Compose(img, fits.FilterOther, DefaultOptions(), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{40, 120, 200, 255}, out[0:4])

	// Zero saturation keeps only the value channel.
	for _, c := range [][3]float32{{200, 120, 40}, {200, 50, 20}, {10, 250, 90}} {
		out, err := Compose(colorFrame(2, 2, c[0], c[1], c[2]), fits.FilterOther, Options{Saturation: 0}, nil)
		require.NoError(t, err)
		for i := 0; i < len(out); i += 4 {
			assert.Equal(t, out[i], out[i+1], "pixel %d of %v", i/4, c)
			assert.Equal(t, out[i], out[i+2], "pixel %d of %v", i/4, c)
			assert.Equal(t, uint8(max(c[0], c[1], c[2])), out[i])
		}
	}

	out, err = Compose(img, fits.FilterOther, Options{Saturation: 0.5}, nil)
	require.NoError(t, err)
	// v stays at the max channel, the spread halves.
	assert.Equal(t, uint8(200), out[2])
	assert.InDelta(t, 120, int(out[0]), 1)

	out, err = Compose(img, fits.FilterOther, Options{Saturation: 10}, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 100, 200, 255}, out[0:4])
}

func TestComposeReusesBuffer(t *testing.T) {
	img := monoFrame(3, 3, 7)
	buf := make([]byte, 0, 64)
	out, err := Compose(img, fits.FilterL, Options{}, buf)
	require.NoError(t, err)
	assert.Len(t, out, 36)
	assert.Equal(t, &buf[:1][0], &out[0])
}

func TestComposeRejectsBadInput(t *testing.T) {
	_, err := Compose(nil, fits.FilterL, Options{}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = Compose(fits.NewDecodedImage(2, 2, 2), fits.FilterL, Options{}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = Compose(&fits.DecodedImage{Width: 2, Height: 2, Channels: 1}, fits.FilterL, Options{}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestToImageAndEncode(t *testing.T) {
	out, err := Compose(colorFrame(8, 4, 10, 20, 30), fits.FilterOther, DefaultOptions(), nil)
	require.NoError(t, err)
	img, err := ToImage(out, 8, 4)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{10, 20, 30, 255}, img.NRGBAAt(3, 2))

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, img, FormatPNG))
	decoded, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 4), decoded.Bounds())

	buf.Reset()
	require.NoError(t, Encode(&buf, img, FormatBMP))
	decoded, err = bmp.Decode(&buf)
	require.NoError(t, err)
	r, g, b, _ := decoded.At(0, 0).RGBA()
	assert.Equal(t, []uint32{10, 20, 30}, []uint32{r >> 8, g >> 8, b >> 8})

	buf.Reset()
	require.NoError(t, Encode(&buf, img, FormatJPEG))
	assert.NotZero(t, buf.Len())

	_, err = ToImage(out, 9, 4)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestFormatForPath(t *testing.T) {
	for path, want := range map[string]Format{"a.png": FormatPNG, "b.JPG": FormatJPEG, "c.jpeg": FormatJPEG, "d.bmp": FormatBMP} {
		got, err := FormatForPath(path)
		require.NoError(t, err)
		assert.Equal(t, want, got, path)
	}
	_, err := FormatForPath("e.tiff")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestThumbnail(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 400, 200))
	thumb := Thumbnail(img, 100, 100)
	assert.Equal(t, 100, thumb.Bounds().Dx())
	assert.Equal(t, 50, thumb.Bounds().Dy())

	assert.Same(t, img, Thumbnail(img, 800, 800))
}

func TestRenderStarOverlay(t *testing.T) {
	base := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	objects := []photometry.Object{{PSF: photometry.PSF{X: 16, Y: 16, FWHM: 3}}}
	out := RenderStarOverlay(base, objects, 2)
	require.Equal(t, base.Bounds(), out.Bounds())

	// FWHM 3 at scale 2 gives a 9px marker around (32, 32).
	assert.Equal(t, color.RGBA(markerColor), out.RGBAAt(41, 32))
	assert.Equal(t, color.RGBA{}, out.RGBAAt(32, 32))
}

func TestRenderFieldOverlay(t *testing.T) {
	objects := []photometry.Object{
		{HFR: 2, PSF: photometry.PSF{X: 10, Y: 10}},
		{HFR: 2, PSF: photometry.PSF{X: 500, Y: 500}},
	}
	field := photometry.AnalyzeField(objects, 1000, 800)
	img, err := RenderFieldOverlay(field, 1000, 800)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 800, 640+fieldSummaryH), img.Bounds())

	_, err = RenderFieldOverlay(nil, 1000, 800)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestHFRColor(t *testing.T) {
	assert.Equal(t, emptyZone, hfrColor(0, 2))
	green := hfrColor(2, 2)
	red := hfrColor(4, 2)
	assert.Greater(t, green.G, green.R)
	assert.Greater(t, red.R, red.G)
}
