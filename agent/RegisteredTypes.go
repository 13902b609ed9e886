package agent

import "reflect"

// Type denotes an agent type registered with the package. Each agent
// implementation registers the concrete type of its Config so that
// configurations can be constructed from their type names, for example
// when deserializing configuration files.
type Type string

const (
	EGreedyDQN     Type = "EGreedyDQN-MLP"
	PrioritizedDQN Type = "PrioritizedDQN-MLP"
	RecurrentDQN   Type = "RecurrentDQN-RNN"
)

var registeredTypes map[Type]reflect.Type = make(map[Type]reflect.Type)

// Register registers the concrete type of config under agentType
func Register(agentType Type, config Config) {
	registeredTypes[agentType] = reflect.TypeOf(config)
}

// ConfigType returns the concrete configuration type registered under
// agentType and whether any such type has been registered
func ConfigType(agentType Type) (reflect.Type, bool) {
	t, ok := registeredTypes[agentType]
	return t, ok
}
