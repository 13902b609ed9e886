package learner

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/sunwuzhou03/xuance/policy"
	"github.com/sunwuzhou03/xuance/sample"
)

// DoubleDQN implements the double deep Q learning update rule. The
// bootstrap action for each next state is selected greedily and its
// value is read off through a one-hot mask, decoupling action
// selection from value estimation in the graph. Both the selection and
// the evaluation use the target network, so selection and evaluation
// only decouple structurally, not across networks.
//
// The temporal difference target for a transition (s, a, r, s') is
//
//	y = r + γ·(1-terminal)·Q'(s', argmax_a' Q'(s', a'))
//
// and the cost is the mean squared error between y and Q(s, a) over
// the batch.
type DoubleDQN struct {
	qLearner
	policy *policy.EGreedyQPolicy
	vm     G.VM

	selectedActions *G.Node
	targetSelection *G.Node
	nextQ           *G.Node
	rewards         *G.Node
	discounts       *G.Node

	tdVal      G.Value
	predictVal G.Value
	costVal    G.Value

	batchSize  int
	numActions int
}

// NewDoubleDQN creates and returns a new DoubleDQN learner that adapts
// the weights of pol's training network. The learner compiles the
// policy's training graph together with its loss, so pol must not be
// shared with another learner.
func NewDoubleDQN(pol *policy.EGreedyQPolicy, config Config) (*DoubleDQN,
	error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("newdoubledqn: %v", err)
	}

	net := pol.Network()
	g := net.Graph()
	batchSize := net.BatchSize()
	numActions := net.Outputs()

	d := &DoubleDQN{
		qLearner:   qLearner{config: config},
		policy:     pol,
		batchSize:  batchSize,
		numActions: numActions,
	}

	d.selectedActions = G.NewMatrix(g, tensor.Float64,
		G.WithShape(batchSize, numActions), G.WithName("selectedActions"),
		G.WithInit(G.Zeroes()))
	d.targetSelection = G.NewMatrix(g, tensor.Float64,
		G.WithShape(batchSize, numActions), G.WithName("targetSelection"),
		G.WithInit(G.Zeroes()))
	d.nextQ = G.NewMatrix(g, tensor.Float64,
		G.WithShape(batchSize, numActions),
		G.WithName("nextStateActionValues"), G.WithInit(G.Zeroes()))
	d.rewards = G.NewVector(g, tensor.Float64, G.WithShape(batchSize),
		G.WithName("rewards"), G.WithInit(G.Zeroes()))
	d.discounts = G.NewVector(g, tensor.Float64, G.WithShape(batchSize),
		G.WithName("discounts"), G.WithInit(G.Zeroes()))

	bootstrap := G.Must(G.Sum(
		G.Must(G.HadamardProd(d.nextQ, d.targetSelection)), 1))
	target := G.Must(G.Add(
		G.Must(G.HadamardProd(bootstrap, d.discounts)), d.rewards))

	predict := G.Must(G.Sum(
		G.Must(G.HadamardProd(net.Prediction(), d.selectedActions)), 1))
	G.Read(G.Must(G.Mean(predict)), &d.predictVal)

	diff := G.Must(G.Sub(target, predict))
	G.Read(diff, &d.tdVal)

	cost := G.Must(G.Mean(G.Must(G.Square(diff))))
	G.Read(cost, &d.costVal)

	if _, err := G.Grad(cost, net.Learnables()...); err != nil {
		return nil, fmt.Errorf("newdoubledqn: could not compute gradient: %v",
			err)
	}
	d.vm = G.NewTapeMachine(g, G.BindDualValues(net.Learnables()...))

	return d, nil
}

// Update performs one gradient step on the policy's training network
// using a batch of transitions, returning training statistics.
func (d *DoubleDQN) Update(batch *sample.Transitions) (map[string]float64,
	error) {
	net := d.policy.Network()
	if batch.BatchSize != d.batchSize {
		return nil, fmt.Errorf("update: invalid batch size \n\twant(%v)"+
			"\n\thave(%v)", d.batchSize, batch.BatchSize)
	}
	if batch.Features != net.Features() {
		return nil, fmt.Errorf("update: invalid observation size "+
			"\n\twant(%v)\n\thave(%v)", net.Features(), batch.Features)
	}

	nextValues, greedy, err := d.policy.TargetValues(batch.ObsNext)
	if err != nil {
		return nil, fmt.Errorf("update: could not predict bootstrap "+
			"values: %v", err)
	}

	if err := letMatrix(d.nextQ, nextValues, d.batchSize,
		d.numActions); err != nil {
		return nil, fmt.Errorf("update: could not set bootstrap values: %v",
			err)
	}
	if err := letMatrix(d.targetSelection, policy.OneHot(greedy,
		d.numActions), d.batchSize, d.numActions); err != nil {
		return nil, fmt.Errorf("update: could not set bootstrap actions: %v",
			err)
	}
	if err := letMatrix(d.selectedActions, policy.OneHot(batch.Actions,
		d.numActions), d.batchSize, d.numActions); err != nil {
		return nil, fmt.Errorf("update: could not set taken actions: %v", err)
	}
	if err := letVector(d.rewards, batch.Rewards); err != nil {
		return nil, fmt.Errorf("update: could not set rewards: %v", err)
	}
	if err := letVector(d.discounts, discounts(d.config.Gamma,
		batch.Terminals)); err != nil {
		return nil, fmt.Errorf("update: could not set discounts: %v", err)
	}
	if err := net.SetInput(batch.Obs); err != nil {
		return nil, fmt.Errorf("update: could not set observations: %v", err)
	}

	if err := d.vm.RunAll(); err != nil {
		return nil, fmt.Errorf("update: could not run training step: %v", err)
	}

	learnRate, err := d.step(net.Model())
	if err != nil {
		return nil, fmt.Errorf("update: could not perform gradient step: %v",
			err)
	}
	d.vm.Reset()

	if err := d.policy.SyncBehaviour(); err != nil {
		return nil, fmt.Errorf("update: could not sync behaviour "+
			"network: %v", err)
	}
	if d.shouldSync() {
		if err := d.policy.SyncTarget(); err != nil {
			return nil, fmt.Errorf("update: could not sync target "+
				"network: %v", err)
		}
	}

	return map[string]float64{
		d.statKey(StatLoss):      d.costVal.Data().(float64),
		d.statKey(StatLearnRate): learnRate,
		d.statKey(StatPredictQ):  d.predictVal.Data().(float64),
	}, nil
}

// TDErrors returns the per-sample temporal difference errors of the
// last Update
func (d *DoubleDQN) TDErrors() []float64 {
	if d.tdVal == nil {
		return nil
	}
	diff := d.tdVal.Data().([]float64)
	out := make([]float64, len(diff))
	copy(out, diff)
	return out
}

// Iterations returns the number of gradient steps taken so far
func (d *DoubleDQN) Iterations() int {
	return d.iterations
}

// Close releases the learner's virtual machine
func (d *DoubleDQN) Close() error {
	return d.vm.Close()
}
