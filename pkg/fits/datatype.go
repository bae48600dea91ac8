package fits

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DataType describes how samples are stored on disk and held in memory.
type DataType struct {
	Bitpix int     // on-disk BITPIX
	Size   int     // in-memory bytes per sample
	Signed bool    // integer samples interpreted as signed
	Float  bool    // floating point (BITPIX < 0 or scaled integers)
	BZero  float64 // physical = raw*BScale + BZero
	BScale float64
}

// dataTypeFor derives the in-memory type from BITPIX, BZERO and BSCALE.
func dataTypeFor(bitpix int, bzero, bscale float64) (DataType, error) {
	dt := DataType{Bitpix: bitpix, BZero: bzero, BScale: bscale}
	switch bitpix {
	case 8:
		dt.Size = 1
		dt.Signed = bzero == -128
	case 16:
		dt.Size = 2
		dt.Signed = bzero != 32768
	case 32:
		dt.Size = 4
		dt.Signed = bzero != 2147483648
	case 64:
		dt.Size = 8
		dt.Signed = bzero != 9223372036854775808
	case -32:
		dt.Size, dt.Float = 4, true
	case -64:
		dt.Size, dt.Float = 8, true
	default:
		return DataType{}, fmt.Errorf("%w: unsupported BITPIX %d", ErrInvalidInput, bitpix)
	}
	if bitpix > 0 && bscale != 1 {
		dt.Size, dt.Float, dt.Signed = 4, true, false
	}
	return dt, nil
}

// diskSize is the number of bytes per sample in the data unit.
func (dt DataType) diskSize() int {
	if dt.Bitpix < 0 {
		return -dt.Bitpix / 8
	}
	return dt.Bitpix / 8
}

// signedOffset is the shift that maps the signed range onto the unsigned one.
func (dt DataType) signedOffset() float32 {
	if !dt.Signed || dt.Float {
		return 0
	}
	return float32(math.Ldexp(1, 8*dt.Size-1))
}

func (dt DataType) String() string {
	switch {
	case dt.Float && dt.Size == 8:
		return "float64"
	case dt.Float:
		return "float32"
	case dt.Signed:
		return fmt.Sprintf("int%d", 8*dt.Size)
	}
	return fmt.Sprintf("uint%d", 8*dt.Size)
}

// decodeSamples converts big-endian raw samples into physical values.
func (dt DataType) decodeSamples(raw []byte, dst []float32) {
	n := dt.diskSize()
	scaled := dt.BScale != 1 || dt.BZero != 0
	for i := range dst {
		b := raw[i*n : i*n+n]
		var v float64
		switch dt.Bitpix {
		case 8:
			v = float64(b[0])
		case 16:
			v = float64(int16(binary.BigEndian.Uint16(b)))
		case 32:
			v = float64(int32(binary.BigEndian.Uint32(b)))
		case 64:
			v = float64(int64(binary.BigEndian.Uint64(b)))
		case -32:
			v = float64(math.Float32frombits(binary.BigEndian.Uint32(b)))
		case -64:
			v = math.Float64frombits(binary.BigEndian.Uint64(b))
		}
		if scaled {
			v = v*dt.BScale + dt.BZero
		}
		dst[i] = float32(v)
	}
}
