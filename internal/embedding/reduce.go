package embedding

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Reduce collapses a [frame][dim] feature matrix into one vector by taking
// the mean of each column. Sums are accumulated in float64 so long tracks
// don't lose precision.
func Reduce(m [][]float32) ([]float32, error) {
	if len(m) == 0 {
		return nil, ErrEmptyMatrix
	}
	dims := len(m[0])
	sum := make([]float64, dims)
	row := make([]float64, dims)
	for i, frame := range m {
		if len(frame) != dims {
			return nil, fmt.Errorf("%w: frame %d has %d values, frame 0 has %d", ErrRaggedMatrix, i, len(frame), dims)
		}
		for j, x := range frame {
			row[j] = float64(x)
		}
		floats.Add(sum, row)
	}
	floats.Scale(1/float64(len(m)), sum)

	out := make([]float32, dims)
	for j, x := range sum {
		out[j] = float32(x)
	}
	return out, nil
}
