package vectorstore

import (
	"fmt"
	"math"
)

// Normalize returns v scaled to unit L2 norm. The input is not modified.
// A zero vector gives ErrZeroVector; NaN or Inf components give
// ErrInvalidVector.
func Normalize(v []float32) ([]float32, error) {
	var sum float64
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: component %d", ErrInvalidVector, i)
		}
		sum += f * f
	}
	if sum == 0 {
		return nil, ErrZeroVector
	}
	norm := math.Sqrt(sum)
	if math.IsInf(norm, 0) {
		return nil, fmt.Errorf("%w: norm overflows", ErrInvalidVector)
	}

	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, nil
}
