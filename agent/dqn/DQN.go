// Package dqn implements deep Q learning agents. Agents pair an
// epsilon-greedy action-value policy with an experience replay buffer
// and an update rule chosen by the buffer: double deep Q learning for
// uniform replay, prioritized deep Q learning for prioritized replay,
// and recurrent deep Q learning for episode replay.
package dqn

import (
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/sunwuzhou03/xuance/expreplay"
	"github.com/sunwuzhou03/xuance/learner"
	"github.com/sunwuzhou03/xuance/policy"
	ts "github.com/sunwuzhou03/xuance/timestep"
)

// DQN implements a deep Q learning agent with a feedforward value
// network. Depending on the replay buffer the agent learns with, it
// trains with either the double deep Q update rule or the prioritized
// update rule.
type DQN struct {
	policy *policy.EGreedyQPolicy
	replay expreplay.Replayer

	doubleLearner *learner.DoubleDQN
	perLearner    *learner.PrioritizedDQN
	learnerConfig learner.Config

	prevStep   ts.TimeStep
	prevAction int
	nextStep   ts.TimeStep

	trainEpsilon float64
	eval         bool

	lastStats map[string]float64
}

// New creates and returns a new DQN agent that selects actions with
// pol and learns from batches sampled from replay. A prioritized
// replay buffer trains with the prioritized update rule and has its
// priorities refreshed after every gradient step; any other buffer
// trains with the double deep Q update rule.
func New(pol *policy.EGreedyQPolicy, replay expreplay.Replayer,
	config learner.Config) (*DQN, error) {
	d := &DQN{
		policy:        pol,
		replay:        replay,
		learnerConfig: config,
		trainEpsilon:  pol.Epsilon(),
	}

	var err error
	if _, prioritized := replay.(expreplay.PrioritizedReplayer); prioritized {
		d.perLearner, err = learner.NewPrioritizedDQN(pol, config)
	} else {
		if config.Distributed {
			return nil, fmt.Errorf("new: distributed training requires " +
				"prioritized replay")
		}
		d.doubleLearner, err = learner.NewDoubleDQN(pol, config)
	}
	if err != nil {
		return nil, fmt.Errorf("new: could not create update rule: %v", err)
	}
	return d, nil
}

// ObserveFirst observes and records the first episodic timestep
func (d *DQN) ObserveFirst(t ts.TimeStep) error {
	if !t.First() {
		fmt.Fprintf(os.Stderr, "warning: observefirst called on %v "+
			"timestep\n", t.StepType)
	}
	d.prevStep = t
	d.nextStep = t
	return nil
}

// Observe records the action taken in the last observed state and the
// timestep the environment transitioned to
func (d *DQN) Observe(action int, nextStep ts.TimeStep) error {
	d.prevStep = d.nextStep
	d.prevAction = action
	d.nextStep = nextStep

	transition := ts.NewTransition(d.prevStep, d.prevAction, d.nextStep, 0)
	if err := d.replay.Add(transition); err != nil {
		return fmt.Errorf("observe: could not add to replay buffer: %v", err)
	}
	return nil
}

// Step performs a single learning update. Until the replay buffer has
// accumulated enough samples, Step is a no-op.
func (d *DQN) Step() error {
	batch, err := d.replay.Sample()
	if expreplay.IsEmptyBuffer(err) || expreplay.IsInsufficientSamples(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("step: could not sample replay buffer: %v", err)
	}

	if d.perLearner != nil {
		tdErrors, stats, err := d.perLearner.Update(batch)
		if err != nil {
			return fmt.Errorf("step: could not update weights: %v", err)
		}
		d.lastStats = stats

		local := batch
		if d.learnerConfig.Distributed {
			local = batch.Shard(d.learnerConfig.Rank,
				d.learnerConfig.WorldSize)
		}
		per := d.replay.(expreplay.PrioritizedReplayer)
		if err := per.UpdatePriorities(local.Indices, tdErrors); err != nil {
			return fmt.Errorf("step: could not update priorities: %v", err)
		}
		return nil
	}

	stats, err := d.doubleLearner.Update(batch)
	if err != nil {
		return fmt.Errorf("step: could not update weights: %v", err)
	}
	d.lastStats = stats
	return nil
}

// SelectAction runs the policy in the state observed on the last
// Observe or ObserveFirst call and returns the selected action
func (d *DQN) SelectAction(t ts.TimeStep) int {
	obs := make([]float64, t.Observation.Len())
	mat.Col(obs, 0, t.Observation)

	action, _ := d.policy.SelectAction(obs)
	return action
}

// EndEpisode performs cleanup at the end of an episode
func (d *DQN) EndEpisode() {}

// Eval sets the agent into evaluation mode, where actions are selected
// greedily
func (d *DQN) Eval() {
	d.eval = true
	d.policy.SetEpsilon(0)
}

// Train sets the agent into training mode, where actions are selected
// epsilon-greedily
func (d *DQN) Train() {
	d.eval = false
	d.policy.SetEpsilon(d.trainEpsilon)
}

// IsEval returns whether the agent is in evaluation mode
func (d *DQN) IsEval() bool {
	return d.eval
}

// TrainStats returns the training statistics of the last learning
// update
func (d *DQN) TrainStats() map[string]float64 {
	return d.lastStats
}

// Close releases the agent's compiled computational graphs
func (d *DQN) Close() error {
	var err error
	if d.perLearner != nil {
		err = d.perLearner.Close()
	} else {
		err = d.doubleLearner.Close()
	}
	if err != nil {
		return err
	}
	return d.policy.Close()
}
