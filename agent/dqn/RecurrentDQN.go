package dqn

import (
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/sunwuzhou03/xuance/agent"
	"github.com/sunwuzhou03/xuance/environment"
	"github.com/sunwuzhou03/xuance/expreplay"
	"github.com/sunwuzhou03/xuance/initwfn"
	"github.com/sunwuzhou03/xuance/learner"
	"github.com/sunwuzhou03/xuance/policy"
	"github.com/sunwuzhou03/xuance/solver"
	ts "github.com/sunwuzhou03/xuance/timestep"
)

// RecurrentConfig implements a configuration for a DQN agent with a
// recurrent value network. The agent learns from an episode replay
// buffer, unrolling its network over contiguous observation windows of
// SeqLen steps.
type RecurrentConfig struct {
	// HiddenSize is the size of the recurrent state of the value
	// network
	HiddenSize int

	// SeqLen is the number of steps each sampled observation window
	// holds and the number of steps the network unrolls over
	SeqLen int

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

	// MinEpisodes and MaxEpisodes bound the episode replay buffer and
	// BatchSize is the number of windows sampled per learning update
	MinEpisodes int
	MaxEpisodes int
	BatchSize   int
}

// Type returns the type of the agent constructed using this
// RecurrentConfig
func (c RecurrentConfig) Type() agent.Type {
	return agent.RecurrentDQN
}

// ValidAgent returns whether the argument agent can be constructed
// from this RecurrentConfig
func (c RecurrentConfig) ValidAgent(a agent.Agent) bool {
	_, ok := a.(*Recurrent)
	return ok
}

// Validate returns an error describing whether or not the
// configuration is valid
func (c RecurrentConfig) Validate() error {
	if c.HiddenSize < 1 {
		return fmt.Errorf("validate: non-positive recurrent state size %v",
			c.HiddenSize)
	}
	if c.SeqLen < 1 {
		return fmt.Errorf("validate: non-positive sequence length %v",
			c.SeqLen)
	}
	if c.InitWFn == nil {
		return fmt.Errorf("validate: no weight initializer given")
	}
	if c.Epsilon < 0 || c.Epsilon > 1 {
		return fmt.Errorf("validate: epsilon out of range \n\twant(∈[0,1]) "+
			"\n\thave(%v)", c.Epsilon)
	}
	return c.learnerConfig().Validate()
}

func (c RecurrentConfig) learnerConfig() learner.Config {
	return learner.Config{
		Gamma:         c.Gamma,
		SyncFrequency: c.SyncFrequency,
		UseGradClip:   c.UseGradClip,
		GradClipNorm:  c.GradClipNorm,
		Solver:        c.Solver,
		Schedule:      c.Schedule,
	}
}

// CreateAgent creates the agent that the config describes on the given
// environment
func (c RecurrentConfig) CreateAgent(env environment.Environment,
	seed uint64) (agent.Agent, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("createagent: %v", err)
	}

	features, numActions, err := envDims(env)
	if err != nil {
		return nil, fmt.Errorf("createagent: %v", err)
	}

	pol, err := policy.NewRecurrentQPolicy(c.Epsilon, features, numActions,
		c.BatchSize, c.SeqLen, c.HiddenSize, c.InitWFn.InitWFn(),
		int64(seed))
	if err != nil {
		return nil, fmt.Errorf("createagent: could not create policy: %v",
			err)
	}

	replay, err := expreplay.NewEpisode(c.MinEpisodes, c.MaxEpisodes,
		c.BatchSize, c.SeqLen, features, int64(seed))
	if err != nil {
		return nil, fmt.Errorf("createagent: could not create replay "+
			"buffer: %v", err)
	}

	return NewRecurrent(pol, replay, c.learnerConfig())
}

// Recurrent implements a deep Q learning agent with a recurrent value
// network. The behaviour policy carries its recurrent state from one
// environment step to the next within an episode; learning updates
// unroll the network over observation windows sampled from whole
// stored episodes.
type Recurrent struct {
	policy  *policy.RecurrentQPolicy
	replay  expreplay.SequenceReplayer
	learner *learner.RecurrentDQN

	prevStep   ts.TimeStep
	prevAction int
	nextStep   ts.TimeStep

	trainEpsilon float64
	eval         bool

	lastStats map[string]float64
}

// NewRecurrent creates and returns a new recurrent DQN agent that
// selects actions with pol and learns from observation windows sampled
// from replay
func NewRecurrent(pol *policy.RecurrentQPolicy,
	replay expreplay.SequenceReplayer,
	config learner.Config) (*Recurrent, error) {
	l, err := learner.NewRecurrentDQN(pol, config)
	if err != nil {
		return nil, fmt.Errorf("newrecurrent: could not create update "+
			"rule: %v", err)
	}

	return &Recurrent{
		policy:       pol,
		replay:       replay,
		learner:      l,
		trainEpsilon: pol.Epsilon(),
	}, nil
}

// ObserveFirst observes and records the first episodic timestep,
// zeroing the recurrent state of the behaviour policy
func (r *Recurrent) ObserveFirst(t ts.TimeStep) error {
	if !t.First() {
		fmt.Fprintf(os.Stderr, "warning: observefirst called on %v "+
			"timestep\n", t.StepType)
	}
	r.policy.ResetHidden()
	r.prevStep = t
	r.nextStep = t
	return nil
}

// Observe records the action taken in the last observed state and the
// timestep the environment transitioned to
func (r *Recurrent) Observe(action int, nextStep ts.TimeStep) error {
	r.prevStep = r.nextStep
	r.prevAction = action
	r.nextStep = nextStep

	transition := ts.NewTransition(r.prevStep, r.prevAction, r.nextStep, 0)
	if err := r.replay.Add(transition); err != nil {
		return fmt.Errorf("observe: could not add to replay buffer: %v", err)
	}
	return nil
}

// Step performs a single learning update. Until the replay buffer has
// accumulated enough episodes, Step is a no-op.
func (r *Recurrent) Step() error {
	batch, err := r.replay.Sample()
	if expreplay.IsEmptyBuffer(err) || expreplay.IsInsufficientSamples(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("step: could not sample replay buffer: %v", err)
	}

	stats, err := r.learner.Update(batch)
	if err != nil {
		return fmt.Errorf("step: could not update weights: %v", err)
	}
	r.lastStats = stats
	return nil
}

// SelectAction runs the policy in the state observed on the last
// Observe or ObserveFirst call, advancing the policy's recurrent
// state, and returns the selected action
func (r *Recurrent) SelectAction(t ts.TimeStep) int {
	obs := make([]float64, t.Observation.Len())
	mat.Col(obs, 0, t.Observation)

	action, _ := r.policy.SelectAction(obs)
	return action
}

// EndEpisode performs cleanup at the end of an episode
func (r *Recurrent) EndEpisode() {
	r.policy.ResetHidden()
}

// Eval sets the agent into evaluation mode, where actions are selected
// greedily
func (r *Recurrent) Eval() {
	r.eval = true
	r.policy.SetEpsilon(0)
}

// Train sets the agent into training mode, where actions are selected
// epsilon-greedily
func (r *Recurrent) Train() {
	r.eval = false
	r.policy.SetEpsilon(r.trainEpsilon)
}

// IsEval returns whether the agent is in evaluation mode
func (r *Recurrent) IsEval() bool {
	return r.eval
}

// TrainStats returns the training statistics of the last learning
// update
func (r *Recurrent) TrainStats() map[string]float64 {
	return r.lastStats
}

// Close releases the agent's compiled computational graphs
func (r *Recurrent) Close() error {
	if err := r.learner.Close(); err != nil {
		return err
	}
	return r.policy.Close()
}
