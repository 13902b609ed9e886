package solver

import (
	"fmt"
	"math"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// AdamConfig describes a configuration of the Adam solver
type AdamConfig struct {
	StepSize float64
	Epsilon  float64 // Smoothing factor
	Beta1    float64
	Beta2    float64
}

// NewDefaultAdam returns a new Adam Solver with default hyperparameters
func NewDefaultAdam(stepSize float64) (*Solver, error) {
	return NewAdam(stepSize, 1e-5, 0.9, 0.999)
}

// NewAdam returns a new Adam Solver
func NewAdam(stepSize, epsilon, beta1, beta2 float64) (*Solver, error) {
	adam := AdamConfig{
		StepSize: stepSize,
		Epsilon:  epsilon,
		Beta1:    beta1,
		Beta2:    beta2,
	}

	return newSolver(Adam, adam)
}

// Create returns a new Adam Stepper as described by the AdamConfig
func (a AdamConfig) Create() Stepper {
	return &adam{
		eta:   a.StepSize,
		eps:   a.Epsilon,
		beta1: a.Beta1,
		beta2: a.Beta2,
	}
}

// ValidType returns if the given Solver type is a valid type to be
// created with this config.
func (a AdamConfig) ValidType(t Type) bool {
	return t == Adam
}

// adam implements the Adam update rule with bias-corrected first and
// second moment estimates. Moment buffers are allocated lazily on the
// first step and indexed by the model's parameter order, which must
// stay fixed across calls.
type adam struct {
	eta   float64
	eps   float64
	beta1 float64
	beta2 float64

	iteration int
	m         [][]float64 // first moment per parameter tensor
	v         [][]float64 // second moment per parameter tensor
}

// Step performs a single Adam gradient step on the model
func (a *adam) Step(model []G.ValueGrad) error {
	if a.m == nil {
		a.m = make([][]float64, len(model))
		a.v = make([][]float64, len(model))
	}
	if len(model) != len(a.m) {
		return fmt.Errorf("step: model size changed between steps "+
			"\n\twant(%v)\n\thave(%v)", len(a.m), len(model))
	}

	a.iteration++
	correction1 := 1 - math.Pow(a.beta1, float64(a.iteration))
	correction2 := 1 - math.Pow(a.beta2, float64(a.iteration))

	for i, valueGrad := range model {
		weights, grad, err := extract(valueGrad)
		if err != nil {
			return fmt.Errorf("step: %v", err)
		}

		if a.m[i] == nil {
			a.m[i] = make([]float64, len(weights))
			a.v[i] = make([]float64, len(weights))
		}

		m, v := a.m[i], a.v[i]
		for j := range weights {
			g := grad[j]
			m[j] = a.beta1*m[j] + (1-a.beta1)*g
			v[j] = a.beta2*v[j] + (1-a.beta2)*g*g

			mHat := m[j] / correction1
			vHat := v[j] / correction2
			weights[j] -= a.eta * mHat / (math.Sqrt(vHat) + a.eps)
		}
	}
	return nil
}

// SetLearnRate changes the learning rate used by subsequent steps
func (a *adam) SetLearnRate(eta float64) {
	a.eta = eta
}

// LearnRate returns the current learning rate
func (a *adam) LearnRate() float64 {
	return a.eta
}

// extract returns the flat weight and gradient data of a ValueGrad.
// Weights are returned as the live backing slice, so writes to the
// returned slice update the model in place.
func extract(valueGrad G.ValueGrad) ([]float64, []float64, error) {
	weightTensor, ok := valueGrad.Value().(*tensor.Dense)
	if !ok {
		return nil, nil, fmt.Errorf("extract: expected dense weights, "+
			"got %T", valueGrad.Value())
	}
	weights, ok := weightTensor.Data().([]float64)
	if !ok {
		return nil, nil, fmt.Errorf("extract: expected float64 weights, "+
			"got %T", weightTensor.Data())
	}

	gradValue, err := valueGrad.Grad()
	if err != nil {
		return nil, nil, fmt.Errorf("extract: could not get gradient: %v", err)
	}
	gradTensor, ok := gradValue.(*tensor.Dense)
	if !ok {
		return nil, nil, fmt.Errorf("extract: expected dense gradient, "+
			"got %T", gradValue)
	}
	grad, ok := gradTensor.Data().([]float64)
	if !ok {
		return nil, nil, fmt.Errorf("extract: expected float64 gradient, "+
			"got %T", gradTensor.Data())
	}

	if len(weights) != len(grad) {
		return nil, nil, fmt.Errorf("extract: weight and gradient sizes "+
			"differ \n\twant(%v)\n\thave(%v)", len(weights), len(grad))
	}
	return weights, grad, nil
}
