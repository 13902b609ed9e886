package dqn

import (
	"fmt"

	"github.com/sunwuzhou03/xuance/agent"
	"github.com/sunwuzhou03/xuance/environment"
	"github.com/sunwuzhou03/xuance/expreplay"
	"github.com/sunwuzhou03/xuance/initwfn"
	"github.com/sunwuzhou03/xuance/learner"
	"github.com/sunwuzhou03/xuance/network"
	"github.com/sunwuzhou03/xuance/policy"
	"github.com/sunwuzhou03/xuance/sample"
	"github.com/sunwuzhou03/xuance/solver"
)

func init() {
	agent.Register(agent.EGreedyDQN, Config{})
	agent.Register(agent.PrioritizedDQN, Config{
		ExpReplay: expreplay.Config{Type: expreplay.Prioritized},
	})
	agent.Register(agent.RecurrentDQN, RecurrentConfig{})
}

// Config implements a configuration for a DQN agent with a feedforward
// value network. The replay buffer type chooses the update rule: a
// uniform buffer trains with the double deep Q update, a prioritized
// buffer with the prioritized update.
type Config struct {
	// PolicyLayers determines the number of hidden layers and the
	// number of hidden units in each layer of the value network
	PolicyLayers []int

	// Biases determines whether each layer of the value network has a
	// bias unit
	Biases []bool

	// Activations is the activation of each hidden layer
	Activations []*network.Activation

	// InitWFn is the weight initialization of the value network
	InitWFn *initwfn.InitWFn

	Solver   *solver.Solver
	Schedule *solver.Schedule

	// Epsilon is the exploration rate of the behaviour policy during
	// training
	Epsilon float64

	Gamma         float64
	SyncFrequency int
	UseGradClip   bool
	GradClipNorm  float64

	// Distributed trains this agent as one worker of a data-parallel
	// group of WorldSize workers. The worker's rank is read from the
	// RANK environment variable when the agent is created. Only
	// prioritized replay supports distributed training.
	Distributed bool
	WorldSize   int

	ExpReplay expreplay.Config
}

// BatchSize returns the batch size of the agent constructed using this
// Config
func (c Config) BatchSize() int {
	return c.ExpReplay.BatchSize
}

// Type returns the type of the agent constructed using this Config
func (c Config) Type() agent.Type {
	if c.ExpReplay.Type == expreplay.Prioritized {
		return agent.PrioritizedDQN
	}
	return agent.EGreedyDQN
}

// ValidAgent returns whether the argument agent can be constructed
// from this Config
func (c Config) ValidAgent(a agent.Agent) bool {
	_, ok := a.(*DQN)
	return ok
}

// Validate returns an error describing whether or not the
// configuration is valid
func (c Config) Validate() error {
	if len(c.PolicyLayers) != len(c.Biases) {
		return fmt.Errorf("validate: policy requires a bias flag per "+
			"layer \n\twant(%v) \n\thave(%v)", len(c.PolicyLayers),
			len(c.Biases))
	}
	if len(c.PolicyLayers) != len(c.Activations) {
		return fmt.Errorf("validate: policy requires an activation per "+
			"layer \n\twant(%v) \n\thave(%v)", len(c.PolicyLayers),
			len(c.Activations))
	}
	if c.InitWFn == nil {
		return fmt.Errorf("validate: no weight initializer given")
	}
	if c.Epsilon < 0 || c.Epsilon > 1 {
		return fmt.Errorf("validate: epsilon out of range \n\twant(∈[0,1]) "+
			"\n\thave(%v)", c.Epsilon)
	}
	if c.Distributed && c.ExpReplay.Type != expreplay.Prioritized {
		return fmt.Errorf("validate: distributed training requires " +
			"prioritized replay")
	}
	return c.learnerConfig(0).Validate()
}

// learnerConfig assembles the update rule configuration of this agent
// for the worker with the given rank
func (c Config) learnerConfig(rank int) learner.Config {
	return learner.Config{
		Gamma:         c.Gamma,
		SyncFrequency: c.SyncFrequency,
		UseGradClip:   c.UseGradClip,
		GradClipNorm:  c.GradClipNorm,
		Distributed:   c.Distributed,
		Rank:          rank,
		WorldSize:     c.WorldSize,
		Solver:        c.Solver,
		Schedule:      c.Schedule,
	}
}

// CreateAgent creates the agent that the config describes on the given
// environment
func (c Config) CreateAgent(env environment.Environment,
	seed uint64) (agent.Agent, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("createagent: %v", err)
	}

	features, numActions, err := envDims(env)
	if err != nil {
		return nil, fmt.Errorf("createagent: %v", err)
	}

	rank := 0
	netBatch := c.ExpReplay.BatchSize
	if c.Distributed {
		if rank, err = learner.RankFromEnv(); err != nil {
			return nil, fmt.Errorf("createagent: %v", err)
		}
		start, end := sample.ShardRange(c.ExpReplay.BatchSize, rank,
			c.WorldSize)
		netBatch = end - start
	}

	pol, err := policy.NewEGreedyQPolicy(c.Epsilon, features, numActions,
		netBatch, c.PolicyLayers, c.Biases, c.Activations,
		c.InitWFn.InitWFn(), int64(seed))
	if err != nil {
		return nil, fmt.Errorf("createagent: could not create policy: %v",
			err)
	}

	replay, err := c.ExpReplay.Create(features, int64(seed))
	if err != nil {
		return nil, fmt.Errorf("createagent: could not create replay "+
			"buffer: %v", err)
	}

	return New(pol, replay, c.learnerConfig(rank))
}

// envDims returns the observation vector size and the number of
// available actions of an environment with discrete actions enumerated
// from 0
func envDims(env environment.Environment) (features, numActions int,
	err error) {
	actionSpec := env.ActionSpec()
	if actionSpec.Cardinality != environment.Discrete {
		return 0, 0, fmt.Errorf("envdims: actions must be discrete")
	}
	if actionSpec.Shape.Len() != 1 {
		return 0, 0, fmt.Errorf("envdims: actions must be 1-dimensional "+
			"\n\thave(%v)", actionSpec.Shape.Len())
	}
	if actionSpec.LowerBound.AtVec(0) != 0 {
		return 0, 0, fmt.Errorf("envdims: actions must be enumerated "+
			"starting from 0 \n\thave(%v)", actionSpec.LowerBound.AtVec(0))
	}

	features = env.ObservationSpec().Shape.Len()
	numActions = int(actionSpec.UpperBound.AtVec(0)) + 1
	return features, numActions, nil
}
