package cartpole

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// fixedStarter always starts episodes from the same state
type fixedStarter struct {
	state []float64
}

func (f fixedStarter) Start() mat.Vector {
	return mat.NewVecDense(len(f.state), f.state)
}

func TestCartpoleStep(t *testing.T) {
	task := NewBalance(fixedStarter{[]float64{0, 0, 0, 0}}, 500, FailAngle)
	env, firstStep := New(task, 0.99)

	if !firstStep.First() {
		t.Error("first step not marked First")
	}

	// Pushing right from rest accelerates the cart rightward and tips
	// the pole leftward
	step, done := env.Step(2)
	if done {
		t.Error("episode ended after one step from rest")
	}
	if step.Reward != 1.0 {
		t.Errorf("unexpected reward while balanced \n\twant(%v)\n\thave(%v)",
			1.0, step.Reward)
	}
	if xDot := step.Observation.AtVec(1); xDot <= 0 {
		t.Errorf("cart should accelerate rightward, speed is %v", xDot)
	}

	// Doing nothing from rest leaves the state unchanged
	env.Reset()
	step, _ = env.Step(1)
	for i := 0; i < ObservationDims; i++ {
		if step.Observation.AtVec(i) != 0 {
			t.Errorf("state changed without force or deflection: feature "+
				"%v is %v", i, step.Observation.AtVec(i))
		}
	}
}

func TestCartpoleFailAngleEndsEpisode(t *testing.T) {
	// Start just inside the fail angle with a large angular velocity,
	// so the next step tips the pole past the threshold
	start := []float64{0, 0, FailAngle * 0.99, 10.0}
	task := NewBalance(fixedStarter{start}, 500, FailAngle)
	env, _ := New(task, 0.99)

	step, done := env.Step(1)
	if !done {
		t.Fatal("episode did not end after pole fell")
	}
	if !step.Last() {
		t.Error("final step not marked Last")
	}
	if step.Reward != -1.0 {
		t.Errorf("unexpected reward for fallen pole \n\twant(%v)"+
			"\n\thave(%v)", -1.0, step.Reward)
	}
	if math.Abs(step.Observation.AtVec(2)) < FailAngle {
		t.Error("pole angle still within the fail angle")
	}
}

func TestCartpoleStepLimitEndsEpisode(t *testing.T) {
	const episodeSteps = 3

	task := NewBalance(fixedStarter{[]float64{0, 0, 0, 0}}, episodeSteps,
		FailAngle)
	env, _ := New(task, 0.99)

	for i := 0; i < episodeSteps-1; i++ {
		if _, done := env.Step(1); done {
			t.Fatalf("episode ended early at step %v", i+1)
		}
	}
	if _, done := env.Step(1); !done {
		t.Fatal("episode did not end at the step limit")
	}
}
