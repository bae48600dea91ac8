package fits

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// Limits bound what a Handle is willing to decode.
type Limits struct {
	MaxBytes  int64 // cap on InDim.N * DataType.Size
	MaxWidth  int   // output width cap, 0 for unlimited
	MaxHeight int   // output height cap, 0 for unlimited
}

// DefaultLimits allows up to 2 GiB of samples and no downsampling.
func DefaultLimits() Limits {
	return Limits{MaxBytes: 2 << 30}
}

// Handle is an opened FITS source. It is not safe for concurrent use.
type Handle struct {
	src    io.ReadSeeker
	closer io.Closer

	header     *Header
	dataOffset int64

	Compression Compression
	DataType    DataType
	Geometry    Geometry
	InDim       Dim
	OutDim      Dim
	Debayer     bool
	Attributes  Attributes

	limits Limits
}

// Open opens the FITS file at path. Gzip and zstd compressed files are
// recognized by their magic bytes.
func Open(path string, limits Limits) (*Handle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	h, err := NewHandle(f, limits)
	if err != nil {
		f.Close()
		return nil, err
	}
	h.closer = f
	return h, nil
}

// NewHandle reads the header from r and prepares the decode geometry.
// r is rewound on every Decode call.
func NewHandle(r io.ReadSeeker, limits Limits) (*Handle, error) {
	stream, compression, release, err := openStream(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	defer release()

	unit, err := scanHDUs(stream)
	if err != nil {
		return nil, err
	}

	attrs := readAttributes(unit.header)
	if unit.in.Channels == 3 {
		attrs.CFA = CFA{}
	} else {
		attrs.CFA = attrs.CFA.WithOffset(attrs.BayerOffsetX, attrs.BayerOffsetY)
	}

	g := ComputeGeometry(unit.in, attrs.CFA, limits.MaxWidth, limits.MaxHeight)
	if g.Out.Width <= 0 || g.Out.Height <= 0 {
		return nil, fmt.Errorf("%w: image %dx%d too small to decode", ErrInvalidInput, unit.in.Width, unit.in.Height)
	}

	return &Handle{
		src:         r,
		header:      unit.header,
		dataOffset:  unit.dataOffset,
		Compression: compression,
		DataType:    unit.dataType,
		Geometry:    g,
		InDim:       unit.in,
		OutDim:      g.Out,
		Debayer:     g.CFA,
		Attributes:  attrs,
		limits:      limits,
	}, nil
}

// Header returns the parsed header of the decoded HDU.
func (h *Handle) Header() *Header { return h.header }

// Records returns every header record in file order.
func (h *Handle) Records() []Record { return h.header.Records() }

// Record returns the i-th header record.
func (h *Handle) Record(i int) (Record, bool) { return h.header.Record(i) }

// Options control a Decode call.
type Options struct {
	// Histogram, when non-empty, receives counts of the unprocessed samples.
	Histogram []uint32
}

// Decode streams the data unit once and returns the downsampled image.
func (h *Handle) Decode(opts Options) (*DecodedImage, error) {
	if h.src == nil {
		return nil, fmt.Errorf("%w: handle is closed", ErrInvalidInput)
	}
	if int64(h.InDim.N)*int64(h.DataType.Size) > h.limits.MaxBytes && h.limits.MaxBytes > 0 {
		return nil, fmt.Errorf("%w: %d samples of %s exceed %d bytes",
			ErrInvalidInput, h.InDim.N, h.DataType, h.limits.MaxBytes)
	}

	if _, err := h.src.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: rewinding: %v", ErrDecode, err)
	}
	stream, _, release, err := openStream(h.src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer release()
	if _, err := io.CopyN(io.Discard, stream, h.dataOffset); err != nil {
		return nil, fmt.Errorf("%w: seeking to data: %v", ErrDecode, err)
	}

	img := NewDecodedImage(h.OutDim.Width, h.OutDim.Height, h.OutDim.Channels)
	dec := newStreamDecoder(h.Geometry, h.Attributes.CFA, img.Pix)

	rowBytes := make([]byte, h.InDim.Width*h.DataType.diskSize())
	row := make([]float32, h.InDim.Width)
	rows := h.InDim.Height * h.InDim.Channels
	for y := 0; y < rows && !dec.done(); y++ {
		if _, err := io.ReadFull(stream, rowBytes); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("%w: data unit truncated at row %d", ErrDecode, y)
			}
			return nil, fmt.Errorf("%w: reading row %d: %v", ErrDecode, y, err)
		}
		h.DataType.decodeSamples(rowBytes, row)
		dec.push(row)
	}

	// Signed storage without negative samples was most likely unsigned data
	// written without BZERO, so only shift when the signed range is in use.
	shifted := false
	if off := h.DataType.signedOffset(); off != 0 && dec.negative {
		for i := range img.Pix {
			img.Pix[i] += off
		}
		shifted = true
	}

	fillHistogram(opts.Histogram, img.Pix, h.DataType, shifted)
	return img, nil
}

// Close releases the underlying file, if any.
func (h *Handle) Close() error {
	h.src = nil
	if h.closer == nil {
		return nil
	}
	err := h.closer.Close()
	h.closer = nil
	return err
}
