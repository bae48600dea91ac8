package fits

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/astrogo/fitsio"
	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFITS builds a single-HDU file with astrogo/fitsio.
func writeFITS(t *testing.T, bitpix int, axes []int, cards []fitsio.Card, data interface{}) []byte {
	t.Helper()
	var buf bytes.Buffer
	f, err := fitsio.Create(&buf)
	require.NoError(t, err)
	img := fitsio.NewImage(bitpix, axes)
	if len(cards) > 0 {
		require.NoError(t, img.Header().Append(cards...))
	}
	require.NoError(t, img.Write(data))
	require.NoError(t, f.Write(img))
	require.NoError(t, f.Close())
	return buf.Bytes()
}

// card formats a fixed-format header record.
func card(key string, value interface{}) string {
	var v string
	switch x := value.(type) {
	case string:
		v = fmt.Sprintf("'%-8s'", strings.ReplaceAll(x, "'", "''"))
	case bool:
		v = fmt.Sprintf("%20s", map[bool]string{true: "T", false: "F"}[x])
	default:
		v = fmt.Sprintf("%20v", x)
	}
	return fmt.Sprintf("%-8s= %-70s", key, v)[:80]
}

// rawHDU assembles a header and data unit by hand, for layouts
// fitsio does not produce (empty primaries, unsigned BZERO data).
func rawHDU(cards []string, data []byte) []byte {
	var buf bytes.Buffer
	for _, c := range cards {
		buf.WriteString(c)
	}
	buf.WriteString(fmt.Sprintf("%-80s", "END"))
	for buf.Len()%blockSize != 0 {
		buf.WriteByte(' ')
	}
	buf.Write(data)
	for buf.Len()%blockSize != 0 {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func int16Bytes(values []int16) []byte {
	out := make([]byte, 2*len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}

func openBytes(t *testing.T, data []byte, limits Limits) *Handle {
	t.Helper()
	h, err := NewHandle(bytes.NewReader(data), limits)
	require.NoError(t, err)
	return h
}

func TestParseRecord(t *testing.T) {
	tests := []struct {
		card string
		want Record
	}{
		{card("EXPTIME", 120.5), Record{Keyword: "EXPTIME", Value: "120.5"}},
		{card("OBJECT", "M 31"), Record{Keyword: "OBJECT", Value: "'M 31    '"}},
		{"FILTER  = 'Ha / 7nm' / narrowband" + strings.Repeat(" ", 47), Record{Keyword: "FILTER", Value: "'Ha / 7nm'", Comment: "narrowband"}},
		{"COMMENT   written by the capture software" + strings.Repeat(" ", 40), Record{Keyword: "COMMENT", Comment: "written by the capture software"}},
		{"HIERARCH ESO DET GAIN = 1.5 / e-/ADU" + strings.Repeat(" ", 44), Record{Keyword: "ESO DET GAIN", Value: "1.5", Comment: "e-/ADU"}},
	}
	for _, tt := range tests {
		t.Run(tt.want.Keyword, func(t *testing.T) {
			got := parseRecord([]byte(tt.card))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("parseRecord mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHeaderLookup(t *testing.T) {
	h := newHeader()
	for _, c := range []string{
		card("EXPOSURE", 300),
		card("EXPTIME", 120),
		card("FOCALLEN", "530"),
		card("OBSERVER", "O'Brien"),
		card("EMPTY", ""),
		card("BIG", "1.5D3"),
		card("SIMPLE", true),
	} {
		h.add(parseRecord([]byte(c)))
	}

	v, ok := h.FirstFloat("EXPTIME", "EXPOSURE")
	require.True(t, ok)
	assert.Equal(t, 120.0, v)

	v, ok = h.FirstFloat("EXP", "exposure")
	require.True(t, ok)
	assert.Equal(t, 300.0, v)

	fl, ok := h.Float("FOCALLEN")
	require.True(t, ok)
	assert.Equal(t, 530.0, fl)

	s, ok := h.String("observer")
	require.True(t, ok)
	assert.Equal(t, "O'Brien", s)

	_, ok = h.String("EMPTY")
	assert.False(t, ok)

	_, ok = h.FirstString("EMPTY", "MISSING")
	assert.False(t, ok)

	big, ok := h.Float("BIG")
	require.True(t, ok)
	assert.Equal(t, 1500.0, big)

	b, ok := h.Bool("SIMPLE")
	require.True(t, ok)
	assert.True(t, b)

	r, ok := h.First("NOPE", "EXPTIME")
	require.True(t, ok)
	assert.Equal(t, "EXPTIME", r.Keyword)

	_, ok = h.Record(h.Len())
	assert.False(t, ok)
}

func TestParseFilter(t *testing.T) {
	tests := map[string]Filter{
		"L": FilterL, "lum": FilterL, "Luminance": FilterL,
		"R": FilterR, "red": FilterR,
		"g": FilterG, "Green": FilterG,
		"B": FilterB, "BLUE": FilterB,
		"Ha": FilterOther, "": FilterOther,
	}
	for name, want := range tests {
		assert.Equal(t, want, ParseFilter(name), name)
	}
}

func TestReadAttributes(t *testing.T) {
	tests := []struct {
		name   string
		cards  []string
		filter string
		ftype  Filter
	}{
		{"filter keyword", []string{card("FILTER", "Red")}, "red", FilterR},
		{"indexed filter", []string{card("FILT-0", "Lum")}, "lum", FilterL},
		{"single count", []string{card("FILTNUM", 1), card("FILTER1", "G")}, "g", FilterG},
		{"multiple filters", []string{card("FILTNUM", 2), card("FILT0", "R")}, "", FilterOther},
		{"none", nil, "", FilterOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHeader()
			for _, c := range tt.cards {
				h.add(parseRecord([]byte(c)))
			}
			a := readAttributes(h)
			assert.Equal(t, tt.filter, a.Filter)
			assert.Equal(t, tt.ftype, a.FilterType)
		})
	}

	h := newHeader()
	for _, c := range []string{
		card("COLORTYP", "GRBG"),
		card("XBAYROFF", 1),
		card("EXPTIME", 60),
		card("FOCALLENGTH", 400),
		card("DATE-OBS", "2023-09-14T21:04:05.250"),
	} {
		h.add(parseRecord([]byte(c)))
	}
	a := readAttributes(h)
	assert.Equal(t, "grbg", a.BayerPattern)
	assert.False(t, a.CFA.Identity())
	assert.Equal(t, 1, a.BayerOffsetX)
	assert.Equal(t, 60.0, a.Exposure)
	assert.Equal(t, 400.0, a.FocalLength)
	assert.True(t, a.Date.HasTime)
	assert.Equal(t, 2023, a.Date.Year)
	assert.Equal(t, 21, a.Date.Hour)
	assert.InDelta(t, 5.25, a.Date.Second, 1e-9)
}

func TestParseDate(t *testing.T) {
	d, ok := parseDate("2021-03-04")
	require.True(t, ok)
	assert.False(t, d.HasTime)
	assert.Equal(t, "2021-03-04", d.String())

	d, ok = parseDate("04/03/98")
	require.True(t, ok)
	assert.Equal(t, 1998, d.Year)
	assert.Equal(t, 3, d.Month)

	_, ok = parseDate("yesterday")
	assert.False(t, ok)
}

func TestCFAWithOffset(t *testing.T) {
	rggb, ok := LookupCFA("RGGB")
	require.True(t, ok)
	grbg, _ := LookupCFA("grbg")
	gbrg, _ := LookupCFA("gbrg")
	bggr, _ := LookupCFA("bggr")

	assert.Equal(t, grbg.Matrix(), rggb.WithOffset(1, 0).Matrix())
	assert.Equal(t, gbrg.Matrix(), rggb.WithOffset(0, 1).Matrix())
	assert.Equal(t, bggr.Matrix(), rggb.WithOffset(1, 1).Matrix())
	assert.Equal(t, rggb.Matrix(), rggb.WithOffset(2, -2).Matrix())

	unknown, ok := LookupCFA("cmyg")
	assert.False(t, ok)
	assert.True(t, unknown.Identity())
	assert.True(t, unknown.WithOffset(1, 1).Identity())
}

func TestComputeGeometry(t *testing.T) {
	t.Run("unconstrained", func(t *testing.T) {
		g := ComputeGeometry(newDim(640, 480, 1), CFA{}, 0, 0)
		assert.Equal(t, 0.0, g.Radius)
		assert.Equal(t, 1, g.Stride)
		assert.Equal(t, newDim(640, 480, 1), g.Out)
	})

	t.Run("width constrained", func(t *testing.T) {
		g := ComputeGeometry(newDim(4000, 3000, 1), CFA{}, 1000, 1000)
		assert.InDelta(t, 3000.0/2002.0, g.Radius, 1e-12)
		assert.Equal(t, 2, g.Size)
		assert.Equal(t, 4, g.Stride)
		assert.Equal(t, 999, g.Out.Width)
		assert.Equal(t, 749, g.Out.Height)
		assert.LessOrEqual(t, g.Out.Width, 1000)
	})

	t.Run("height constrained", func(t *testing.T) {
		g := ComputeGeometry(newDim(300, 3000, 1), CFA{}, 1000, 1000)
		assert.Greater(t, g.Radius, 0.0)
		assert.LessOrEqual(t, g.Out.Height, 1000)
	})

	t.Run("bayer halves", func(t *testing.T) {
		rggb, _ := LookupCFA("rggb")
		g := ComputeGeometry(newDim(800, 600, 1), rggb, 0, 0)
		assert.True(t, g.CFA)
		assert.Equal(t, newDim(400, 300, 3), g.Out)
	})

	t.Run("rgb cube", func(t *testing.T) {
		g := ComputeGeometry(newDim(80, 60, 3), CFA{}, 0, 0)
		assert.False(t, g.CFA)
		assert.Equal(t, 3, g.Out.Channels)
	})
}

func TestGaussianWeights(t *testing.T) {
	assert.Equal(t, []float32{1}, gaussianWeights(0, 1))

	w := gaussianWeights(2, 4)
	require.Len(t, w, 25)
	var sum float64
	for _, v := range w {
		sum += float64(v)
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
	assert.Greater(t, w[12], w[0])
	assert.Equal(t, w[0], w[24])
}

func TestDecodeRadiusZeroIsExact(t *testing.T) {
	const w, h = 7, 5
	data := make([]float32, w*h)
	for i := range data {
		data[i] = float32(i)*1.25 - 3
	}
	file := writeFITS(t, -32, []int{w, h}, nil, data)

	handle := openBytes(t, file, DefaultLimits())
	defer handle.Close()
	assert.Equal(t, newDim(w, h, 1), handle.OutDim)

	img, err := handle.Decode(Options{})
	require.NoError(t, err)
	assert.Equal(t, data, img.Pix)
}

func TestDecodeRGGBQuadrant(t *testing.T) {
	data := []float32{
		10, 20, 11, 21,
		30, 40, 31, 41,
		12, 22, 13, 23,
		32, 42, 33, 43,
	}
	file := writeFITS(t, -32, []int{4, 4}, []fitsio.Card{{Name: "BAYERPAT", Value: "RGGB"}}, data)

	handle := openBytes(t, file, DefaultLimits())
	require.True(t, handle.Debayer)
	assert.Equal(t, newDim(2, 2, 3), handle.OutDim)

	img, err := handle.Decode(Options{})
	require.NoError(t, err)
	assert.Equal(t, float32(10), img.At(0, 0, 0))
	assert.Equal(t, float32(25), img.At(1, 0, 0))
	assert.Equal(t, float32(40), img.At(2, 0, 0))
	assert.Equal(t, float32(13), img.At(0, 1, 1))
	assert.Equal(t, float32(28), img.At(1, 1, 1))
	assert.Equal(t, float32(43), img.At(2, 1, 1))
}

func TestDecodeBayerOffset(t *testing.T) {
	data := []float32{
		10, 20,
		30, 40,
	}
	cards := []fitsio.Card{
		{Name: "BAYERPAT", Value: "RGGB"},
		{Name: "XBAYROFF", Value: 1},
	}
	file := writeFITS(t, -32, []int{2, 2}, cards, data)
	img, err := openBytes(t, file, DefaultLimits()).Decode(Options{})
	require.NoError(t, err)
	// Shifted by one column the quadrant reads as GRBG.
	assert.Equal(t, []float32{20, 25, 30}, img.Pix)
}

func TestDecodeRGBCube(t *testing.T) {
	const w, h = 3, 2
	data := make([]int16, w*h*3)
	for i := range data {
		data[i] = int16(100 + i)
	}
	file := writeFITS(t, 16, []int{w, h, 3}, []fitsio.Card{{Name: "BAYERPAT", Value: "RGGB"}}, data)
	handle := openBytes(t, file, DefaultLimits())
	assert.False(t, handle.Debayer)
	assert.Equal(t, newDim(w, h, 3), handle.OutDim)

	img, err := handle.Decode(Options{})
	require.NoError(t, err)
	for i, v := range data {
		assert.Equal(t, float32(v), img.Pix[i])
	}
}

func TestDecodeSignedOffset(t *testing.T) {
	t.Run("no negatives keeps values", func(t *testing.T) {
		data := []int16{0, 100, 200, 32767}
		file := writeFITS(t, 16, []int{2, 2}, nil, data)
		handle := openBytes(t, file, DefaultLimits())
		assert.True(t, handle.DataType.Signed)
		img, err := handle.Decode(Options{})
		require.NoError(t, err)
		assert.Equal(t, []float32{0, 100, 200, 32767}, img.Pix)
	})

	t.Run("negatives are shifted", func(t *testing.T) {
		data := []int16{-32768, -1, 0, 1}
		file := writeFITS(t, 16, []int{2, 2}, nil, data)
		img, err := openBytes(t, file, DefaultLimits()).Decode(Options{})
		require.NoError(t, err)
		assert.Equal(t, []float32{0, 32767, 32768, 32769}, img.Pix)
	})

	t.Run("bzero marks unsigned", func(t *testing.T) {
		raw := int16Bytes([]int16{-32768, 0, 32767, 1})
		file := rawHDU([]string{
			card("SIMPLE", true),
			card("BITPIX", 16),
			card("NAXIS", 2),
			card("NAXIS1", 2),
			card("NAXIS2", 2),
			card("BZERO", 32768),
			card("BSCALE", 1),
		}, raw)
		handle := openBytes(t, file, DefaultLimits())
		assert.False(t, handle.DataType.Signed)
		assert.Equal(t, "uint16", handle.DataType.String())
		img, err := handle.Decode(Options{})
		require.NoError(t, err)
		assert.Equal(t, []float32{0, 32768, 65535, 32769}, img.Pix)
	})
}

func TestDataTypeFor(t *testing.T) {
	tests := []struct {
		bitpix        int
		bzero, bscale float64
		want          string
	}{
		{8, 0, 1, "uint8"},
		{8, -128, 1, "int8"},
		{16, 0, 1, "int16"},
		{16, 32768, 1, "uint16"},
		{32, 0, 1, "int32"},
		{32, 2147483648, 1, "uint32"},
		{64, 0, 1, "int64"},
		{-32, 0, 1, "float32"},
		{-64, 0, 1, "float64"},
		{16, 0, 0.5, "float32"},
	}
	for _, tt := range tests {
		dt, err := dataTypeFor(tt.bitpix, tt.bzero, tt.bscale)
		require.NoError(t, err)
		assert.Equal(t, tt.want, dt.String(), "BITPIX %d BZERO %v", tt.bitpix, tt.bzero)
	}

	_, err := dataTypeFor(12, 0, 1)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDecodeDownsampledConstant(t *testing.T) {
	const w, h = 60, 40
	data := make([]float32, w*h)
	for i := range data {
		data[i] = 1234
	}
	file := writeFITS(t, -32, []int{w, h}, nil, data)

	handle := openBytes(t, file, Limits{MaxBytes: 1 << 20, MaxWidth: 15, MaxHeight: 15})
	g := handle.Geometry
	assert.Greater(t, g.Radius, 0.0)
	assert.LessOrEqual(t, handle.OutDim.Width, 15)
	assert.LessOrEqual(t, handle.OutDim.Height, 15)

	img, err := handle.Decode(Options{})
	require.NoError(t, err)
	require.Len(t, img.Pix, handle.OutDim.N)
	for _, v := range img.Pix {
		assert.InDelta(t, 1234, v, 0.05)
	}
}

func TestDecodeHistogram(t *testing.T) {
	data := make([]float32, 64)
	for i := range data {
		data[i] = float32(i)
	}
	file := writeFITS(t, -32, []int{8, 8}, nil, data)
	hist := make([]uint32, 16)
	_, err := openBytes(t, file, DefaultLimits()).Decode(Options{Histogram: hist})
	require.NoError(t, err)

	var total uint32
	for _, c := range hist {
		total += c
	}
	assert.Equal(t, uint32(64), total)
	assert.Equal(t, uint32(1), hist[15])
}

func TestDecodeCompressed(t *testing.T) {
	data := make([]int16, 12)
	for i := range data {
		data[i] = int16(i * 3)
	}
	plain := writeFITS(t, 16, []int{4, 3}, nil, data)

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, err := zw.Write(plain)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	var zs bytes.Buffer
	enc, err := zstd.NewWriter(&zs)
	require.NoError(t, err)
	_, err = enc.Write(plain)
	require.NoError(t, err)
	require.NoError(t, enc.Close())

	for name, tc := range map[Compression][]byte{CompressionGzip: gz.Bytes(), CompressionZstd: zs.Bytes()} {
		t.Run(name.String(), func(t *testing.T) {
			handle := openBytes(t, tc, DefaultLimits())
			assert.Equal(t, name, handle.Compression)
			img, err := handle.Decode(Options{})
			require.NoError(t, err)
			for i, v := range data {
				assert.Equal(t, float32(v), img.Pix[i])
			}
			// Decoding twice rewinds the source.
			again, err := handle.Decode(Options{})
			require.NoError(t, err)
			assert.Equal(t, img.Pix, again.Pix)
		})
	}
}

func TestOpenRejects(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Open("/nonexistent/frame.fits", DefaultLimits())
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("degenerate axes", func(t *testing.T) {
		file := rawHDU([]string{
			card("SIMPLE", true),
			card("BITPIX", 16),
			card("NAXIS", 1),
			card("NAXIS1", 8),
		}, make([]byte, 16))
		_, err := NewHandle(bytes.NewReader(file), DefaultLimits())
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("not fits", func(t *testing.T) {
		_, err := NewHandle(bytes.NewReader(bytes.Repeat([]byte("x"), blockSize)), DefaultLimits())
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("byte cap", func(t *testing.T) {
		file := writeFITS(t, 16, []int{4, 4}, nil, make([]int16, 16))
		handle := openBytes(t, file, Limits{MaxBytes: 31})
		_, err := handle.Decode(Options{})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("truncated data", func(t *testing.T) {
		file := rawHDU([]string{
			card("SIMPLE", true),
			card("BITPIX", 16),
			card("NAXIS", 2),
			card("NAXIS1", 4),
			card("NAXIS2", 4),
		}, nil)
		handle := openBytes(t, file[:blockSize], DefaultLimits())
		_, err := handle.Decode(Options{})
		assert.ErrorIs(t, err, ErrDecode)
	})
}

func TestImageExtensionAfterEmptyPrimary(t *testing.T) {
	primary := rawHDU([]string{
		card("SIMPLE", true),
		card("BITPIX", 8),
		card("NAXIS", 0),
		card("EXTEND", true),
	}, nil)
	table := rawHDU([]string{
		card("XTENSION", "BINTABLE"),
		card("BITPIX", 8),
		card("NAXIS", 2),
		card("NAXIS1", 4),
		card("NAXIS2", 2),
		card("PCOUNT", 0),
		card("GCOUNT", 1),
	}, make([]byte, 8))
	image := rawHDU([]string{
		card("XTENSION", "IMAGE"),
		card("BITPIX", -32),
		card("NAXIS", 2),
		card("NAXIS1", 2),
		card("NAXIS2", 1),
		card("PCOUNT", 0),
		card("GCOUNT", 1),
		card("FILTER", "Blue"),
	}, func() []byte {
		b := make([]byte, 8)
		binary.BigEndian.PutUint32(b, math.Float32bits(1.5))
		binary.BigEndian.PutUint32(b[4:], math.Float32bits(-2.5))
		return b
	}())

	file := append(append(primary, table...), image...)
	handle := openBytes(t, file, DefaultLimits())
	assert.Equal(t, FilterB, handle.Attributes.FilterType)

	img, err := handle.Decode(Options{})
	require.NoError(t, err)
	assert.Equal(t, []float32{1.5, -2.5}, img.Pix)
}
