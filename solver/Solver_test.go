package solver

import (
	"encoding/json"
	"math"
	"testing"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

const tolerance float64 = 1e-10

// newQuadraticModel builds a tiny graph whose cost is the mean squared
// weight, runs it once, and returns the weight node with its gradient
// bound. Each gradient component is 2w/n.
func newQuadraticModel(t *testing.T, init float64,
	size int) ([]G.ValueGrad, func()) {
	t.Helper()

	g := G.NewGraph()
	w := G.NewVector(g, tensor.Float64, G.WithShape(size), G.WithName("w"),
		G.WithInit(G.ValuesOf(init)))
	cost := G.Must(G.Mean(G.Must(G.Square(w))))

	if _, err := G.Grad(cost, w); err != nil {
		t.Fatalf("could not compute gradient: %v", err)
	}

	vm := G.NewTapeMachine(g, G.BindDualValues(w))
	if err := vm.RunAll(); err != nil {
		t.Fatalf("could not run graph: %v", err)
	}

	return []G.ValueGrad{w}, func() { vm.Close() }
}

// TestVanillaStep checks a plain gradient descent step against a hand
// computed update
func TestVanillaStep(t *testing.T) {
	const init, size, stepSize = 2.0, 3, 0.5

	model, cleanup := newQuadraticModel(t, init, size)
	defer cleanup()

	sol, err := NewVanilla(stepSize)
	if err != nil {
		t.Fatalf("could not create solver: %v", err)
	}
	if err := sol.Step(model); err != nil {
		t.Fatalf("could not step: %v", err)
	}

	// w ← w - η·2w/n = 2 - 0.5·(4/3)
	want := init - stepSize*2*init/float64(size)
	weights := model[0].Value().(*tensor.Dense).Data().([]float64)
	for i, weight := range weights {
		if math.Abs(weight-want) > tolerance {
			t.Errorf("unexpected weight %v \n\twant(%v)\n\thave(%v)", i, want,
				weight)
		}
	}
}

// TestAdamStep checks a single Adam step. On the first iteration the
// bias corrections cancel the moment decay, so the update is
// η·g/(|g| + ε) per component.
func TestAdamStep(t *testing.T) {
	const init, size, stepSize, epsilon = 2.0, 3, 0.1, 1e-5

	model, cleanup := newQuadraticModel(t, init, size)
	defer cleanup()

	sol, err := NewAdam(stepSize, epsilon, 0.9, 0.999)
	if err != nil {
		t.Fatalf("could not create solver: %v", err)
	}
	if err := sol.Step(model); err != nil {
		t.Fatalf("could not step: %v", err)
	}

	grad := 2 * init / float64(size)
	want := init - stepSize*grad/(math.Sqrt(grad*grad)+epsilon)
	weights := model[0].Value().(*tensor.Dense).Data().([]float64)
	for i, weight := range weights {
		if math.Abs(weight-want) > tolerance {
			t.Errorf("unexpected weight %v \n\twant(%v)\n\thave(%v)", i, want,
				weight)
		}
	}
}

// TestClipNorm checks that gradients are rescaled to the threshold
// norm when they exceed it and left alone otherwise
func TestClipNorm(t *testing.T) {
	const init, size = 2.0, 3

	model, cleanup := newQuadraticModel(t, init, size)
	defer cleanup()

	grad := 2 * init / float64(size)
	normBefore := math.Sqrt(float64(size) * grad * grad)

	// Threshold above the norm leaves gradients untouched
	norm, err := ClipNorm(model, normBefore+1)
	if err != nil {
		t.Fatalf("could not clip: %v", err)
	}
	if math.Abs(norm-normBefore) > tolerance {
		t.Errorf("unexpected norm \n\twant(%v)\n\thave(%v)", normBefore, norm)
	}

	const maxNorm = 1.0
	if _, err := ClipNorm(model, maxNorm); err != nil {
		t.Fatalf("could not clip: %v", err)
	}

	_, clipped, err := extract(model[0])
	if err != nil {
		t.Fatalf("could not extract gradient: %v", err)
	}
	squaredNorm := 0.0
	for _, g := range clipped {
		squaredNorm += g * g
	}
	if normAfter := math.Sqrt(squaredNorm); math.Abs(normAfter-maxNorm) >
		tolerance {
		t.Errorf("unexpected clipped norm \n\twant(%v)\n\thave(%v)", maxNorm,
			normAfter)
	}

	if _, err := ClipNorm(model, 0); err == nil {
		t.Error("non-positive threshold accepted")
	}
}

// TestLinearSchedule checks the endpoints and midpoint of a linear
// learning rate schedule
func TestLinearSchedule(t *testing.T) {
	const stepSize, totalIters = 0.5, 10

	schedule, err := NewLinear(stepSize, 1.0, 0.0, totalIters)
	if err != nil {
		t.Fatalf("could not create schedule: %v", err)
	}

	if lr := schedule.LearnRate(); math.Abs(lr-stepSize) > tolerance {
		t.Errorf("unexpected initial learning rate \n\twant(%v)\n\thave(%v)",
			stepSize, lr)
	}

	for i := 0; i < totalIters/2; i++ {
		schedule.Step()
	}
	if lr := schedule.LearnRate(); math.Abs(lr-stepSize/2) > tolerance {
		t.Errorf("unexpected midpoint learning rate \n\twant(%v)\n\thave(%v)",
			stepSize/2, lr)
	}

	for i := 0; i < totalIters; i++ {
		schedule.Step()
	}
	if lr := schedule.LearnRate(); math.Abs(lr) > tolerance {
		t.Errorf("learning rate should anneal to zero, have %v", lr)
	}
}

// TestConstantSchedule checks that a constant schedule never changes
// its learning rate
func TestConstantSchedule(t *testing.T) {
	const stepSize = 0.25

	schedule, err := NewConstant(stepSize)
	if err != nil {
		t.Fatalf("could not create schedule: %v", err)
	}

	for i := 0; i < 100; i++ {
		if lr := schedule.Step(); lr != stepSize {
			t.Fatalf("learning rate changed at iteration %v \n\twant(%v)"+
				"\n\thave(%v)", i, stepSize, lr)
		}
	}
}

// TestSolverJSON checks that a solver round-trips through JSON with
// its concrete configuration intact
func TestSolverJSON(t *testing.T) {
	sol, err := NewAdam(0.001, 1e-5, 0.9, 0.999)
	if err != nil {
		t.Fatalf("could not create solver: %v", err)
	}

	data, err := json.Marshal(sol)
	if err != nil {
		t.Fatalf("could not marshal solver: %v", err)
	}

	var decoded Solver
	if err := decoded.UnmarshalJSON(data); err != nil {
		t.Fatalf("could not unmarshal solver: %v", err)
	}

	if decoded.Type != Adam {
		t.Errorf("unexpected solver type \n\twant(%v)\n\thave(%v)", Adam,
			decoded.Type)
	}
	config, ok := decoded.Config.(AdamConfig)
	if !ok {
		t.Fatalf("unexpected config type %T", decoded.Config)
	}
	if config.StepSize != 0.001 {
		t.Errorf("unexpected step size \n\twant(%v)\n\thave(%v)", 0.001,
			config.StepSize)
	}
	if decoded.Stepper == nil {
		t.Error("decoded solver has no stepper")
	}
}
