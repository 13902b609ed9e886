// Package agent outlines the interfaces of reinforcement learning
// agents with discrete action spaces
package agent

import "github.com/sunwuzhou03/xuance/timestep"

// Agent determines the implementation details of an agent or algorithm
type Agent interface {
	Learner
	Policy
}

// Closer is an Agent that must clean up resources, such as compiled
// computational graphs, after learning has finished
type Closer interface {
	Agent
	Close() error
}

// Learner implements the algorithm that learns from environmental
// interaction
type Learner interface {
	// Step performs a single learning update
	Step() error

	// Observe records the action taken in the last observed state and
	// the timestep the environment transitioned to
	Observe(action int, nextObs timestep.TimeStep) error

	// ObserveFirst records the first timestep of an episode
	ObserveFirst(t timestep.TimeStep) error

	// EndEpisode performs any cleanup needed between episodes
	EndEpisode()
}

// Policy chooses actions from environmental states
type Policy interface {
	// SelectAction returns an action at the given timestep
	SelectAction(t timestep.TimeStep) int

	// Eval sets the policy to evaluation mode, where exploration is
	// disabled
	Eval()

	// Train sets the policy to training mode
	Train()

	// IsEval returns whether the policy is in evaluation mode
	IsEval() bool
}
