package agent

import (
	"github.com/sunwuzhou03/xuance/environment"
)

// Config represents a configuration for creating an agent
type Config interface {
	// CreateAgent creates the agent that the config describes on the
	// given environment
	CreateAgent(env environment.Environment, seed uint64) (Agent, error)

	// ValidAgent returns whether the argument agent is valid for the
	// Config. E.g. a DQN config should only be valid for DQN agents.
	ValidAgent(a Agent) bool

	// Validate returns an error describing whether or not the
	// configuration is valid
	Validate() error

	// Type returns the type of agent which the configuration describes
	Type() Type
}
