// Package policy implements action-value policies using function
// approximation with Gorgonia. A policy owns three copies of one
// network architecture: a training network whose graph learners attach
// their loss to, a target network providing frozen bootstrap values
// between hard synchronizations, and a single-sample behaviour network
// for selecting actions in an environment.
package policy

import (
	"fmt"
	"math/rand"

	G "gorgonia.org/gorgonia"

	"github.com/sunwuzhou03/xuance/network"
	"github.com/sunwuzhou03/xuance/utils/floatutils"
)

// EGreedyQPolicy implements an epsilon-greedy policy over the action
// values predicted by a feedforward neural network. Given an
// environment with N actions, the network produces N outputs, each
// predicting the value of a distinct action.
//
// The training network populates a graph but has no VM of its own: a
// learner compiles that graph together with its loss. The target and
// behaviour networks live on private graphs with private VMs and are
// only ever run forward.
type EGreedyQPolicy struct {
	trainNet network.NeuralNet

	targetNet network.NeuralNet
	targetVM  G.VM

	behaviourNet network.NeuralNet
	behaviourVM  G.VM

	epsilon    float64
	numActions int
	rng        *rand.Rand
}

// NewEGreedyQPolicy creates and returns a new EGreedyQPolicy. The
// training and target networks take batch-sized inputs; the behaviour
// network takes single observations. All three networks start with
// identical weights, so the initial state satisfies online == target.
func NewEGreedyQPolicy(epsilon float64, features, numActions,
	batch int, hiddenSizes []int, biases []bool,
	activations []*network.Activation, init G.InitWFn,
	seed int64) (*EGreedyQPolicy, error) {
	if numActions < 1 {
		return nil, fmt.Errorf("newegreedyqpolicy: non-positive number of "+
			"actions %v", numActions)
	}

	g := G.NewGraph()
	trainNet, err := network.NewMultiHeadMLP(features, batch, numActions, g,
		hiddenSizes, biases, init, activations)
	if err != nil {
		return nil, fmt.Errorf("newegreedyqpolicy: could not create "+
			"training network: %v", err)
	}

	targetNet, err := trainNet.Clone()
	if err != nil {
		return nil, fmt.Errorf("newegreedyqpolicy: could not create target "+
			"network: %v", err)
	}

	behaviourNet, err := trainNet.CloneWithBatch(1)
	if err != nil {
		return nil, fmt.Errorf("newegreedyqpolicy: could not create "+
			"behaviour network: %v", err)
	}

	return &EGreedyQPolicy{
		trainNet:     trainNet,
		targetNet:    targetNet,
		targetVM:     G.NewTapeMachine(targetNet.Graph()),
		behaviourNet: behaviourNet,
		behaviourVM:  G.NewTapeMachine(behaviourNet.Graph()),
		epsilon:      epsilon,
		numActions:   numActions,
		rng:          rand.New(rand.NewSource(seed)),
	}, nil
}

// Network returns the training network. Learners attach their loss to
// this network's graph and adapt its weights.
func (e *EGreedyQPolicy) Network() network.NeuralNet {
	return e.trainNet
}

// NumActions returns the number of actions the policy chooses between
func (e *EGreedyQPolicy) NumActions() int {
	return e.numActions
}

// TargetValues runs the target network forward on a batch of
// observations and returns the predicted action values as a flat
// (batch, numActions) row-major slice together with the index of the
// greedy action in each row. Ties resolve to the lowest action index.
func (e *EGreedyQPolicy) TargetValues(obs []float64) ([]float64, []int,
	error) {
	if err := e.targetNet.SetInput(obs); err != nil {
		return nil, nil, fmt.Errorf("targetvalues: could not set target "+
			"network input: %v", err)
	}
	if err := e.targetVM.RunAll(); err != nil {
		return nil, nil, fmt.Errorf("targetvalues: could not run target "+
			"network: %v", err)
	}

	output := e.targetNet.Output().Data().([]float64)
	values := make([]float64, len(output))
	copy(values, output)
	e.targetVM.Reset()

	return values, greedyActions(values, e.numActions), nil
}

// SelectAction selects an action epsilon-greedily with respect to the
// behaviour network's action values in the given state, returning the
// action and its predicted value.
func (e *EGreedyQPolicy) SelectAction(obs []float64) (int, float64) {
	if err := e.behaviourNet.SetInput(obs); err != nil {
		panic(fmt.Sprintf("selectaction: could not set input: %v", err))
	}
	if err := e.behaviourVM.RunAll(); err != nil {
		panic(fmt.Sprintf("selectaction: could not run behaviour "+
			"network: %v", err))
	}

	actionValues := e.behaviourNet.Output().Data().([]float64)
	var action int
	if e.rng.Float64() < e.epsilon {
		action = e.rng.Intn(e.numActions)
	} else {
		action = greedyActions(actionValues, e.numActions)[0]
	}
	value := actionValues[action]
	e.behaviourVM.Reset()

	return action, value
}

// SetEpsilon sets the value of epsilon for the epsilon-greedy policy
func (e *EGreedyQPolicy) SetEpsilon(epsilon float64) {
	e.epsilon = epsilon
}

// Epsilon gets the value of epsilon for the policy
func (e *EGreedyQPolicy) Epsilon() float64 {
	return e.epsilon
}

// SyncTarget hard-copies the training network's weights into the
// target network
func (e *EGreedyQPolicy) SyncTarget() error {
	return e.targetNet.Set(e.trainNet)
}

// SyncBehaviour hard-copies the training network's weights into the
// behaviour network so that newly learned values drive action
// selection
func (e *EGreedyQPolicy) SyncBehaviour() error {
	return e.behaviourNet.Set(e.trainNet)
}

// Close releases the policy's virtual machines
func (e *EGreedyQPolicy) Close() error {
	if err := e.targetVM.Close(); err != nil {
		return err
	}
	return e.behaviourVM.Close()
}

// greedyActions returns the index of the maximum-valued action of each
// row of a flat (rows, numActions) row-major action-value matrix. Ties
// resolve to the lowest action index.
func greedyActions(values []float64, numActions int) []int {
	rows := len(values) / numActions
	actions := make([]int, rows)
	for i := 0; i < rows; i++ {
		_, indices := floatutils.MaxSlice(values[i*numActions : (i+1)*
			numActions])
		actions[i] = indices[0]
	}
	return actions
}

// OneHot expands action indices into a flat (len(actions), numActions)
// row-major indicator matrix, used to mask per-action value matrices.
func OneHot(actions []int, numActions int) []float64 {
	mask := make([]float64, len(actions)*numActions)
	for i, action := range actions {
		mask[i*numActions+action] = 1.0
	}
	return mask
}
