package policy

import (
	"fmt"
	"math/rand"

	G "gorgonia.org/gorgonia"

	"github.com/sunwuzhou03/xuance/network"
)

// RecurrentQPolicy implements an epsilon-greedy policy over the action
// values of a recurrent Q network. The training and target networks
// are unrolled over a fixed window for learning; the behaviour network
// is a single-step clone that carries its hidden state from one
// environment step to the next, with the state reset between episodes.
type RecurrentQPolicy struct {
	trainNet *network.RecurrentQNet

	targetNet *network.RecurrentQNet
	targetVM  G.VM

	behaviourNet *network.RecurrentQNet
	behaviourVM  G.VM

	// Hidden state carried across SelectAction calls
	hidden []float64

	epsilon    float64
	numActions int
	rng        *rand.Rand
}

// NewRecurrentQPolicy creates and returns a new RecurrentQPolicy whose
// training and target networks are unrolled over seqLen steps with
// batch-sized inputs. All networks start with identical weights.
func NewRecurrentQPolicy(epsilon float64, features, numActions, batch,
	seqLen, hiddenSize int, init G.InitWFn,
	seed int64) (*RecurrentQPolicy, error) {
	if numActions < 1 {
		return nil, fmt.Errorf("newrecurrentqpolicy: non-positive number "+
			"of actions %v", numActions)
	}

	g := G.NewGraph()
	trainNet, err := network.NewRecurrentQNet(features, batch, seqLen,
		hiddenSize, numActions, g, init)
	if err != nil {
		return nil, fmt.Errorf("newrecurrentqpolicy: could not create "+
			"training network: %v", err)
	}

	targetNet, err := trainNet.CloneWithShape(batch, seqLen)
	if err != nil {
		return nil, fmt.Errorf("newrecurrentqpolicy: could not create "+
			"target network: %v", err)
	}

	behaviourNet, err := trainNet.CloneWithShape(1, 1)
	if err != nil {
		return nil, fmt.Errorf("newrecurrentqpolicy: could not create "+
			"behaviour network: %v", err)
	}

	return &RecurrentQPolicy{
		trainNet:     trainNet,
		targetNet:    targetNet,
		targetVM:     G.NewTapeMachine(targetNet.Graph()),
		behaviourNet: behaviourNet,
		behaviourVM:  G.NewTapeMachine(behaviourNet.Graph()),
		hidden:       make([]float64, hiddenSize),
		epsilon:      epsilon,
		numActions:   numActions,
		rng:          rand.New(rand.NewSource(seed)),
	}, nil
}

// Network returns the training network. Learners attach their loss to
// this network's graph and adapt its weights.
func (r *RecurrentQPolicy) Network() *network.RecurrentQNet {
	return r.trainNet
}

// NumActions returns the number of actions the policy chooses between
func (r *RecurrentQPolicy) NumActions() int {
	return r.numActions
}

// InitHidden returns the initial recurrent state for a batch: the zero
// state. Every learning update starts from this state; hidden states
// never carry over between updates.
func (r *RecurrentQPolicy) InitHidden(batch int) []float64 {
	return make([]float64, batch*r.trainNet.HiddenSize())
}

// TargetValues runs the target network forward on a window of
// observations, starting from the zero hidden state, and returns the
// per-step action values as a flat step-major
// (batch*seqLen, numActions) row-major slice together with the index
// of the greedy action in each row.
func (r *RecurrentQPolicy) TargetValues(obs []float64) ([]float64, []int,
	error) {
	if err := r.targetNet.SetInput(obs); err != nil {
		return nil, nil, fmt.Errorf("targetvalues: could not set target "+
			"network input: %v", err)
	}
	if err := r.targetNet.SetInitialHidden(
		r.InitHidden(r.targetNet.BatchSize())); err != nil {
		return nil, nil, fmt.Errorf("targetvalues: could not set initial "+
			"state: %v", err)
	}
	if err := r.targetVM.RunAll(); err != nil {
		return nil, nil, fmt.Errorf("targetvalues: could not run target "+
			"network: %v", err)
	}

	output := r.targetNet.Output().Data().([]float64)
	values := make([]float64, len(output))
	copy(values, output)
	r.targetVM.Reset()

	return values, greedyActions(values, r.numActions), nil
}

// SelectAction selects an action epsilon-greedily with respect to the
// behaviour network's action values in the given state, advancing the
// carried hidden state. The action and its predicted value are
// returned.
func (r *RecurrentQPolicy) SelectAction(obs []float64) (int, float64) {
	if err := r.behaviourNet.SetInput(obs); err != nil {
		panic(fmt.Sprintf("selectaction: could not set input: %v", err))
	}
	if err := r.behaviourNet.SetInitialHidden(r.hidden); err != nil {
		panic(fmt.Sprintf("selectaction: could not set hidden state: %v",
			err))
	}
	if err := r.behaviourVM.RunAll(); err != nil {
		panic(fmt.Sprintf("selectaction: could not run behaviour "+
			"network: %v", err))
	}

	actionValues := r.behaviourNet.Output().Data().([]float64)
	var action int
	if r.rng.Float64() < r.epsilon {
		action = r.rng.Intn(r.numActions)
	} else {
		action = greedyActions(actionValues, r.numActions)[0]
	}
	value := actionValues[action]

	// Carry the hidden state to the next environment step
	finalHidden := r.behaviourNet.FinalHidden().Data().([]float64)
	r.hidden = make([]float64, len(finalHidden))
	copy(r.hidden, finalHidden)

	r.behaviourVM.Reset()
	return action, value
}

// ResetHidden zeroes the carried hidden state. It should be called at
// the start of every episode.
func (r *RecurrentQPolicy) ResetHidden() {
	r.hidden = r.InitHidden(1)
}

// SetEpsilon sets the value of epsilon for the epsilon-greedy policy
func (r *RecurrentQPolicy) SetEpsilon(epsilon float64) {
	r.epsilon = epsilon
}

// Epsilon gets the value of epsilon for the policy
func (r *RecurrentQPolicy) Epsilon() float64 {
	return r.epsilon
}

// SyncTarget hard-copies the training network's weights into the
// target network
func (r *RecurrentQPolicy) SyncTarget() error {
	return r.targetNet.Set(r.trainNet)
}

// SyncBehaviour hard-copies the training network's weights into the
// behaviour network
func (r *RecurrentQPolicy) SyncBehaviour() error {
	return r.behaviourNet.Set(r.trainNet)
}

// Close releases the policy's virtual machines
func (r *RecurrentQPolicy) Close() error {
	if err := r.targetVM.Close(); err != nil {
		return err
	}
	return r.behaviourVM.Close()
}
