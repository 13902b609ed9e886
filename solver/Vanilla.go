package solver

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// VanillaConfig describes a configuration of the vanilla gradient
// descent solver.
type VanillaConfig struct {
	StepSize float64
	Momentum float64 // 0 for plain gradient descent
}

// NewVanilla returns a new Vanilla Solver
func NewVanilla(stepSize float64) (*Solver, error) {
	return NewMomentum(stepSize, 0.0)
}

// NewMomentum returns a new Vanilla Solver with classical momentum
func NewMomentum(stepSize, momentum float64) (*Solver, error) {
	vanilla := VanillaConfig{
		StepSize: stepSize,
		Momentum: momentum,
	}

	return newSolver(Vanilla, vanilla)
}

// Create returns a new Vanilla Stepper as described by the
// VanillaConfig
func (v VanillaConfig) Create() Stepper {
	return &vanilla{
		eta:      v.StepSize,
		momentum: v.Momentum,
	}
}

// ValidType returns if the given Solver type is a valid type to be
// created with this config.
func (v VanillaConfig) ValidType(t Type) bool {
	return t == Vanilla
}

// vanilla implements gradient descent with optional classical momentum
type vanilla struct {
	eta      float64
	momentum float64

	velocity [][]float64
}

// Step performs a single gradient descent step on the model
func (v *vanilla) Step(model []G.ValueGrad) error {
	if v.velocity == nil {
		v.velocity = make([][]float64, len(model))
	}
	if len(model) != len(v.velocity) {
		return fmt.Errorf("step: model size changed between steps "+
			"\n\twant(%v)\n\thave(%v)", len(v.velocity), len(model))
	}

	for i, valueGrad := range model {
		weights, grad, err := extract(valueGrad)
		if err != nil {
			return fmt.Errorf("step: %v", err)
		}

		if v.momentum == 0.0 {
			for j := range weights {
				weights[j] -= v.eta * grad[j]
			}
			continue
		}

		if v.velocity[i] == nil {
			v.velocity[i] = make([]float64, len(weights))
		}
		velocity := v.velocity[i]
		for j := range weights {
			velocity[j] = v.momentum*velocity[j] - v.eta*grad[j]
			weights[j] += velocity[j]
		}
	}
	return nil
}

// SetLearnRate changes the learning rate used by subsequent steps
func (v *vanilla) SetLearnRate(eta float64) {
	v.eta = eta
}

// LearnRate returns the current learning rate
func (v *vanilla) LearnRate() float64 {
	return v.eta
}
