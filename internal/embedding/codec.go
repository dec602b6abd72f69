package embedding

import (
	"encoding/binary"
	"fmt"
	"math"
)

// FloatSize is the encoded width of one vector element.
const FloatSize = 4

// Encode converts a float32 vector to its stored blob: each element as an
// IEEE-754 single, little-endian, in vector order, no header.
func Encode(v []float32) []byte {
	buf := make([]byte, len(v)*FloatSize)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*FloatSize:], math.Float32bits(f))
	}
	return buf
}

// Decode is the inverse of Encode.
func Decode(b []byte) ([]float32, error) {
	if len(b)%FloatSize != 0 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrBlobLength, len(b))
	}
	v := make([]float32, len(b)/FloatSize)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*FloatSize:]))
	}
	return v, nil
}

// DecodeDims decodes b and checks it holds exactly dims elements.
func DecodeDims(b []byte, dims int) ([]float32, error) {
	v, err := Decode(b)
	if err != nil {
		return nil, err
	}
	if len(v) != dims {
		return nil, fmt.Errorf("embedding: blob holds %d values, want %d", len(v), dims)
	}
	return v, nil
}
