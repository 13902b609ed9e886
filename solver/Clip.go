package solver

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	G "gorgonia.org/gorgonia"
)

// ClipNorm rescales the gradients of the model in place so that their
// global L2 norm does not exceed maxNorm. Gradients are left untouched
// when their norm is already within the threshold. The norm before
// clipping is returned.
func ClipNorm(model []G.ValueGrad, maxNorm float64) (float64, error) {
	if maxNorm <= 0 {
		return 0, fmt.Errorf("clipnorm: threshold must be positive "+
			"\n\twant(>0) \n\thave(%v)", maxNorm)
	}

	grads := make([][]float64, 0, len(model))
	squaredNorm := 0.0
	for _, valueGrad := range model {
		_, grad, err := extract(valueGrad)
		if err != nil {
			return 0, fmt.Errorf("clipnorm: %v", err)
		}
		squaredNorm += floats.Dot(grad, grad)
		grads = append(grads, grad)
	}

	norm := math.Sqrt(squaredNorm)
	if norm > maxNorm {
		scale := maxNorm / norm
		for _, grad := range grads {
			floats.Scale(scale, grad)
		}
	}
	return norm, nil
}
