package timestep

import "gonum.org/v1/gonum/mat"

// Transition packages together a single (S, A, R, S', A') transition
// of the agent-environment interaction. Actions are discrete action
// indices. The NextAction field is only meaningful for algorithms that
// condition on the successor action.
type Transition struct {
	State      mat.Vector
	Action     int
	Reward     float64
	Discount   float64
	NextState  mat.Vector
	NextAction int

	// End indicates whether NextState is a terminal state, in which
	// case no value should be bootstrapped from it
	End bool
}

// NewTransition packages two sequential timesteps and their associated
// actions into a Transition
func NewTransition(step TimeStep, action int, nextStep TimeStep,
	nextAction int) Transition {
	return Transition{
		State:      step.Observation,
		Action:     action,
		Reward:     nextStep.Reward,
		Discount:   nextStep.Discount,
		NextState:  nextStep.Observation,
		NextAction: nextAction,
		End:        nextStep.Last(),
	}
}
