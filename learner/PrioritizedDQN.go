package learner

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/sunwuzhou03/xuance/policy"
	"github.com/sunwuzhou03/xuance/sample"
)

// PrioritizedDQN implements the deep Q learning update rule for
// prioritized experience replay. Bootstrap values take the plain
// maximum over the target network's next-state predictions, and Update
// returns the absolute temporal difference error of every sample so
// that the replay buffer can refresh its priorities.
//
// When the learner is one worker of a distributed group, Update
// receives the full global batch and trains on the contiguous shard
// owned by the learner's rank. The returned TD errors cover only that
// shard and align with the shard's buffer indices.
type PrioritizedDQN struct {
	qLearner
	policy *policy.EGreedyQPolicy
	vm     G.VM

	selectedActions *G.Node
	nextQ           *G.Node
	rewards         *G.Node
	discounts       *G.Node

	tdVal      G.Value
	predictVal G.Value
	costVal    G.Value

	localBatchSize int
	numActions     int
}

// NewPrioritizedDQN creates and returns a new PrioritizedDQN learner
// that adapts the weights of pol's training network. The network's
// batch size must equal the size of this worker's shard of the global
// batch: batchSize/worldSize, plus the division remainder on the last
// rank. The learner compiles the policy's training graph together with
// its loss, so pol must not be shared with another learner.
func NewPrioritizedDQN(pol *policy.EGreedyQPolicy,
	config Config) (*PrioritizedDQN, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("newprioritizeddqn: %v", err)
	}

	net := pol.Network()
	g := net.Graph()
	localBatchSize := net.BatchSize()
	numActions := net.Outputs()

	p := &PrioritizedDQN{
		qLearner:       qLearner{config: config},
		policy:         pol,
		localBatchSize: localBatchSize,
		numActions:     numActions,
	}

	p.selectedActions = G.NewMatrix(g, tensor.Float64,
		G.WithShape(localBatchSize, numActions),
		G.WithName("selectedActions"), G.WithInit(G.Zeroes()))
	p.nextQ = G.NewMatrix(g, tensor.Float64,
		G.WithShape(localBatchSize, numActions),
		G.WithName("nextStateActionValues"), G.WithInit(G.Zeroes()))
	p.rewards = G.NewVector(g, tensor.Float64, G.WithShape(localBatchSize),
		G.WithName("rewards"), G.WithInit(G.Zeroes()))
	p.discounts = G.NewVector(g, tensor.Float64, G.WithShape(localBatchSize),
		G.WithName("discounts"), G.WithInit(G.Zeroes()))

	bootstrap := G.Must(G.Max(p.nextQ, 1))
	target := G.Must(G.Add(
		G.Must(G.HadamardProd(bootstrap, p.discounts)), p.rewards))

	predict := G.Must(G.Sum(
		G.Must(G.HadamardProd(net.Prediction(), p.selectedActions)), 1))
	G.Read(G.Must(G.Mean(predict)), &p.predictVal)

	diff := G.Must(G.Sub(target, predict))
	G.Read(diff, &p.tdVal)

	cost := G.Must(G.Mean(G.Must(G.Square(diff))))
	G.Read(cost, &p.costVal)

	if _, err := G.Grad(cost, net.Learnables()...); err != nil {
		return nil, fmt.Errorf("newprioritizeddqn: could not compute "+
			"gradient: %v", err)
	}
	p.vm = G.NewTapeMachine(g, G.BindDualValues(net.Learnables()...))

	return p, nil
}

// shard returns the portion of the global batch this learner trains on
func (p *PrioritizedDQN) shard(batch *sample.Transitions) *sample.Transitions {
	if !p.config.Distributed {
		return batch
	}
	return batch.Shard(p.config.Rank, p.config.WorldSize)
}

// Update performs one gradient step on the policy's training network
// using this worker's shard of a global batch of transitions. The
// absolute temporal difference error of each shard sample is returned
// together with training statistics.
func (p *PrioritizedDQN) Update(batch *sample.Transitions) ([]float64,
	map[string]float64, error) {
	net := p.policy.Network()
	local := p.shard(batch)
	if local.BatchSize != p.localBatchSize {
		return nil, nil, fmt.Errorf("update: invalid shard size \n\twant(%v)"+
			"\n\thave(%v)", p.localBatchSize, local.BatchSize)
	}
	if local.Features != net.Features() {
		return nil, nil, fmt.Errorf("update: invalid observation size "+
			"\n\twant(%v)\n\thave(%v)", net.Features(), local.Features)
	}

	nextValues, _, err := p.policy.TargetValues(local.ObsNext)
	if err != nil {
		return nil, nil, fmt.Errorf("update: could not predict bootstrap "+
			"values: %v", err)
	}

	if err := letMatrix(p.nextQ, nextValues, p.localBatchSize,
		p.numActions); err != nil {
		return nil, nil, fmt.Errorf("update: could not set bootstrap "+
			"values: %v", err)
	}
	if err := letMatrix(p.selectedActions, policy.OneHot(local.Actions,
		p.numActions), p.localBatchSize, p.numActions); err != nil {
		return nil, nil, fmt.Errorf("update: could not set taken "+
			"actions: %v", err)
	}
	if err := letVector(p.rewards, local.Rewards); err != nil {
		return nil, nil, fmt.Errorf("update: could not set rewards: %v", err)
	}
	if err := letVector(p.discounts, discounts(p.config.Gamma,
		local.Terminals)); err != nil {
		return nil, nil, fmt.Errorf("update: could not set discounts: %v",
			err)
	}
	if err := net.SetInput(local.Obs); err != nil {
		return nil, nil, fmt.Errorf("update: could not set observations: %v",
			err)
	}

	if err := p.vm.RunAll(); err != nil {
		return nil, nil, fmt.Errorf("update: could not run training "+
			"step: %v", err)
	}

	tdErrors := abs(p.tdVal.Data().([]float64))

	learnRate, err := p.step(net.Model())
	if err != nil {
		return nil, nil, fmt.Errorf("update: could not perform gradient "+
			"step: %v", err)
	}
	p.vm.Reset()

	if err := p.policy.SyncBehaviour(); err != nil {
		return nil, nil, fmt.Errorf("update: could not sync behaviour "+
			"network: %v", err)
	}
	if p.shouldSync() {
		if err := p.policy.SyncTarget(); err != nil {
			return nil, nil, fmt.Errorf("update: could not sync target "+
				"network: %v", err)
		}
	}

	stats := map[string]float64{
		p.statKey(StatLoss):      p.costVal.Data().(float64),
		p.statKey(StatLearnRate): learnRate,
		p.statKey(StatPredictQ):  p.predictVal.Data().(float64),
	}
	return tdErrors, stats, nil
}

// Iterations returns the number of gradient steps taken so far
func (p *PrioritizedDQN) Iterations() int {
	return p.iterations
}

// Close releases the learner's virtual machine
func (p *PrioritizedDQN) Close() error {
	return p.vm.Close()
}
