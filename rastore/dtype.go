package rastore

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DType names the on-disk element type of an array. Values travel through
// the pipeline as float64 regardless of storage type; DType only controls
// the flat binary encoding.
type DType string

const (
	UInt8   DType = "uint8"
	Int16   DType = "int16"
	UInt16  DType = "uint16"
	Int32   DType = "int32"
	Float32 DType = "float32"
	Float64 DType = "float64"
)

func ParseDType(s string) (DType, error) {
	switch DType(s) {
	case UInt8, Int16, UInt16, Int32, Float32, Float64:
		return DType(s), nil
	}
	return "", fmt.Errorf("rastore: unrecognized dtype %q", s)
}

// Size returns the element width in bytes.
func (d DType) Size() int {
	switch d {
	case UInt8:
		return 1
	case Int16, UInt16:
		return 2
	case Int32, Float32:
		return 4
	default:
		return 8
	}
}

// Encode packs values into the flat binary layout for external writers.
func Encode(vals []float64, dt DType) []byte { return encode(vals, dt) }

// Decode is the inverse of Encode.
func Decode(buf []byte, dt DType) ([]float64, error) { return decode(buf, dt) }

// encode packs values into the headerless row-major layout used for every
// intermediate and output file. Little-endian, matching the flat binary
// blobs the rest of the toolchain memory-maps.
func encode(vals []float64, dt DType) []byte {
	buf := make([]byte, len(vals)*dt.Size())
	switch dt {
	case UInt8:
		for i, v := range vals {
			buf[i] = uint8(v)
		}
	case Int16:
		for i, v := range vals {
			binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(v)))
		}
	case UInt16:
		for i, v := range vals {
			binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
		}
	case Int32:
		for i, v := range vals {
			binary.LittleEndian.PutUint32(buf[i*4:], uint32(int32(v)))
		}
	case Float32:
		for i, v := range vals {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(v)))
		}
	default:
		for i, v := range vals {
			binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
		}
	}
	return buf
}

func decode(buf []byte, dt DType) ([]float64, error) {
	if len(buf)%dt.Size() != 0 {
		return nil, fmt.Errorf("rastore: %d bytes is not a whole number of %s elements", len(buf), dt)
	}
	vals := make([]float64, len(buf)/dt.Size())
	switch dt {
	case UInt8:
		for i := range vals {
			vals[i] = float64(buf[i])
		}
	case Int16:
		for i := range vals {
			vals[i] = float64(int16(binary.LittleEndian.Uint16(buf[i*2:])))
		}
	case UInt16:
		for i := range vals {
			vals[i] = float64(binary.LittleEndian.Uint16(buf[i*2:]))
		}
	case Int32:
		for i := range vals {
			vals[i] = float64(int32(binary.LittleEndian.Uint32(buf[i*4:])))
		}
	case Float32:
		for i := range vals {
			vals[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:])))
		}
	default:
		for i := range vals {
			vals[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
		}
	}
	return vals, nil
}
