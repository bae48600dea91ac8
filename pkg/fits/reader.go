package fits

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Compression identifies the container wrapping the FITS byte stream.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionZstd
)

func (c Compression) String() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	}
	return "none"
}

// openStream sniffs the magic bytes of r and returns a reader over the
// decompressed FITS stream. The returned close func releases decoder state.
func openStream(r io.Reader) (io.Reader, Compression, func(), error) {
	br := bufio.NewReaderSize(r, blockSize)
	magic, err := br.Peek(4)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, CompressionNone, nil, err
	}

	switch {
	case bytes.HasPrefix(magic, gzipMagic):
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, CompressionGzip, nil, err
		}
		return zr, CompressionGzip, func() { zr.Close() }, nil
	case bytes.HasPrefix(magic, zstdMagic):
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, CompressionZstd, nil, err
		}
		return zr, CompressionZstd, zr.Close, nil
	}
	return br, CompressionNone, func() {}, nil
}

// countingReader tracks the offset into the decompressed stream.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// hdu is the image header data unit selected for decoding.
type hdu struct {
	header     *Header
	dataOffset int64
	dataType   DataType
	in         Dim
}

// readHeader reads one header unit up to and including its END block.
func readHeader(r io.Reader) (*Header, error) {
	h := newHeader()
	block := make([]byte, blockSize)
	for {
		if _, err := io.ReadFull(r, block); err != nil {
			return nil, err
		}
		for i := 0; i < recordsPerBlock; i++ {
			card := block[i*recordSize : (i+1)*recordSize]
			rec := parseRecord(card)
			if rec.Keyword == "END" && rec.Value == "" {
				return h, nil
			}
			if rec.Keyword == "" && rec.Comment == "" {
				continue
			}
			h.add(rec)
		}
	}
}

// dataSize returns the padded size of the data unit described by h.
func dataSize(h *Header) (int64, error) {
	bitpix, ok := h.Int("BITPIX")
	if !ok || bitpix == 0 {
		return 0, fmt.Errorf("%w: missing BITPIX", ErrInvalidInput)
	}
	naxis, _ := h.Int("NAXIS")
	if naxis == 0 {
		return 0, nil
	}
	n := int64(1)
	for i := 1; i <= naxis; i++ {
		v, ok := h.Int(fmt.Sprintf("NAXIS%d", i))
		if !ok || v < 0 {
			return 0, fmt.Errorf("%w: missing NAXIS%d", ErrInvalidInput, i)
		}
		n *= int64(v)
	}
	pcount, _ := h.Int("PCOUNT")
	gcount, ok := h.Int("GCOUNT")
	if !ok {
		gcount = 1
	}
	if bitpix < 0 {
		bitpix = -bitpix
	}
	size := int64(bitpix/8) * int64(gcount) * (int64(pcount) + n)
	if rem := size % blockSize; rem != 0 {
		size += blockSize - rem
	}
	return size, nil
}

// scanHDUs walks the stream until it finds the first image HDU with data.
// Empty primaries and non-image extensions are skipped.
func scanHDUs(r io.Reader) (*hdu, error) {
	cr := &countingReader{r: r}
	for index := 0; ; index++ {
		h, err := readHeader(cr)
		if err != nil {
			if index > 0 && (errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)) {
				return nil, fmt.Errorf("%w: no image data found", ErrInvalidInput)
			}
			return nil, fmt.Errorf("%w: reading header: %v", ErrInvalidInput, err)
		}
		if index == 0 {
			if simple, ok := h.Bool("SIMPLE"); !ok || !simple {
				return nil, fmt.Errorf("%w: not a FITS file", ErrInvalidInput)
			}
		}

		size, err := dataSize(h)
		if err != nil {
			return nil, err
		}

		isImage := index == 0
		if x, ok := h.String("XTENSION"); ok {
			isImage = strings.EqualFold(strings.TrimSpace(x), "IMAGE")
		}
		naxis, _ := h.Int("NAXIS")

		if !isImage || naxis == 0 {
			if _, err := io.CopyN(io.Discard, cr, size); err != nil {
				return nil, fmt.Errorf("%w: skipping HDU %d: %v", ErrInvalidInput, index, err)
			}
			continue
		}
		if naxis < 2 {
			return nil, fmt.Errorf("%w: degenerate image with NAXIS=%d", ErrInvalidInput, naxis)
		}

		nx, _ := h.Int("NAXIS1")
		ny, _ := h.Int("NAXIS2")
		if nx <= 0 || ny <= 0 {
			return nil, fmt.Errorf("%w: empty image %dx%d", ErrInvalidInput, nx, ny)
		}
		nc := 1
		if naxis >= 3 {
			if n3, _ := h.Int("NAXIS3"); n3 >= 3 {
				nc = 3
			}
		}

		bitpix, _ := h.Int("BITPIX")
		bzero, ok := h.Float("BZERO")
		if !ok {
			bzero = 0
		}
		bscale, ok := h.Float("BSCALE")
		if !ok {
			bscale = 1
		}
		dt, err := dataTypeFor(bitpix, bzero, bscale)
		if err != nil {
			return nil, err
		}

		return &hdu{
			header:     h,
			dataOffset: cr.n,
			dataType:   dt,
			in:         newDim(nx, ny, nc),
		}, nil
	}
}
