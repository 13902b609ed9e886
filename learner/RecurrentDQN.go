package learner

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/sunwuzhou03/xuance/policy"
	"github.com/sunwuzhou03/xuance/sample"
)

// RecurrentDQN implements the double deep Q learning update rule over
// a recurrent network. Batches hold contiguous observation windows of
// seqLen+1 steps per sample: the training network is unrolled over the
// first seqLen observations of each window and the target network over
// the last seqLen, so every unrolled step has a bootstrap value one
// step ahead of it. Both networks start each update from the zero
// hidden state.
//
// The per-step targets and cost are those of DoubleDQN, averaged over
// every step of every sequence in the batch.
type RecurrentDQN struct {
	qLearner
	policy *policy.RecurrentQPolicy
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
	seqLen     int
	numActions int
}

// NewRecurrentDQN creates and returns a new RecurrentDQN learner that
// adapts the weights of pol's training network. The learner compiles
// the policy's training graph together with its loss, so pol must not
// be shared with another learner.
func NewRecurrentDQN(pol *policy.RecurrentQPolicy,
	config Config) (*RecurrentDQN, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("newrecurrentdqn: %v", err)
	}

	net := pol.Network()
	g := net.Graph()
	batchSize := net.BatchSize()
	seqLen := net.SeqLen()
	numActions := net.Outputs()

	// The network's predictions are step-major (batchSize*seqLen,
	// numActions); every loss input follows that layout.
	rows := batchSize * seqLen

	r := &RecurrentDQN{
		qLearner:   qLearner{config: config},
		policy:     pol,
		batchSize:  batchSize,
		seqLen:     seqLen,
		numActions: numActions,
	}

	r.selectedActions = G.NewMatrix(g, tensor.Float64,
		G.WithShape(rows, numActions), G.WithName("selectedActions"),
		G.WithInit(G.Zeroes()))
	r.targetSelection = G.NewMatrix(g, tensor.Float64,
		G.WithShape(rows, numActions), G.WithName("targetSelection"),
		G.WithInit(G.Zeroes()))
	r.nextQ = G.NewMatrix(g, tensor.Float64, G.WithShape(rows, numActions),
		G.WithName("nextStateActionValues"), G.WithInit(G.Zeroes()))
	r.rewards = G.NewVector(g, tensor.Float64, G.WithShape(rows),
		G.WithName("rewards"), G.WithInit(G.Zeroes()))
	r.discounts = G.NewVector(g, tensor.Float64, G.WithShape(rows),
		G.WithName("discounts"), G.WithInit(G.Zeroes()))

	bootstrap := G.Must(G.Sum(
		G.Must(G.HadamardProd(r.nextQ, r.targetSelection)), 1))
	target := G.Must(G.Add(
		G.Must(G.HadamardProd(bootstrap, r.discounts)), r.rewards))

	predict := G.Must(G.Sum(
		G.Must(G.HadamardProd(net.Prediction(), r.selectedActions)), 1))
	G.Read(G.Must(G.Mean(predict)), &r.predictVal)

	diff := G.Must(G.Sub(target, predict))
	G.Read(diff, &r.tdVal)

	cost := G.Must(G.Mean(G.Must(G.Square(diff))))
	G.Read(cost, &r.costVal)

	if _, err := G.Grad(cost, net.Learnables()...); err != nil {
		return nil, fmt.Errorf("newrecurrentdqn: could not compute "+
			"gradient: %v", err)
	}
	r.vm = G.NewTapeMachine(g, G.BindDualValues(net.Learnables()...))

	return r, nil
}

// Update performs one gradient step on the policy's training network
// using a batch of observation sequences, returning training
// statistics.
func (r *RecurrentDQN) Update(batch *sample.Sequences) (map[string]float64,
	error) {
	net := r.policy.Network()
	if batch.BatchSize != r.batchSize || batch.SeqLen != r.seqLen {
		return nil, fmt.Errorf("update: invalid batch shape \n\twant(%v "+
			"sequences of %v steps)\n\thave(%v sequences of %v steps)",
			r.batchSize, r.seqLen, batch.BatchSize, batch.SeqLen)
	}
	if batch.Features != net.Features() {
		return nil, fmt.Errorf("update: invalid observation size "+
			"\n\twant(%v)\n\thave(%v)", net.Features(), batch.Features)
	}

	nextValues, greedy, err := r.policy.TargetValues(
		r.windowObs(batch, 1))
	if err != nil {
		return nil, fmt.Errorf("update: could not predict bootstrap "+
			"values: %v", err)
	}

	rows := r.batchSize * r.seqLen
	if err := letMatrix(r.nextQ, nextValues, rows, r.numActions); err != nil {
		return nil, fmt.Errorf("update: could not set bootstrap values: %v",
			err)
	}
	if err := letMatrix(r.targetSelection, policy.OneHot(greedy,
		r.numActions), rows, r.numActions); err != nil {
		return nil, fmt.Errorf("update: could not set bootstrap actions: %v",
			err)
	}
	if err := letMatrix(r.selectedActions,
		policy.OneHot(r.stepMajorInts(batch.Actions), r.numActions), rows,
		r.numActions); err != nil {
		return nil, fmt.Errorf("update: could not set taken actions: %v", err)
	}
	if err := letVector(r.rewards,
		r.stepMajor(batch.Rewards)); err != nil {
		return nil, fmt.Errorf("update: could not set rewards: %v", err)
	}
	if err := letVector(r.discounts, discounts(r.config.Gamma,
		r.stepMajor(batch.Terminals))); err != nil {
		return nil, fmt.Errorf("update: could not set discounts: %v", err)
	}

	if err := net.SetInput(r.windowObs(batch, 0)); err != nil {
		return nil, fmt.Errorf("update: could not set observations: %v", err)
	}
	if err := net.SetInitialHidden(r.policy.InitHidden(r.batchSize)); err != nil {
		return nil, fmt.Errorf("update: could not set initial state: %v", err)
	}

	if err := r.vm.RunAll(); err != nil {
		return nil, fmt.Errorf("update: could not run training step: %v", err)
	}

	learnRate, err := r.step(net.Model())
	if err != nil {
		return nil, fmt.Errorf("update: could not perform gradient step: %v",
			err)
	}
	r.vm.Reset()

	if err := r.policy.SyncBehaviour(); err != nil {
		return nil, fmt.Errorf("update: could not sync behaviour "+
			"network: %v", err)
	}
	if r.shouldSync() {
		if err := r.policy.SyncTarget(); err != nil {
			return nil, fmt.Errorf("update: could not sync target "+
				"network: %v", err)
		}
	}

	return map[string]float64{
		r.statKey(StatLoss):      r.costVal.Data().(float64),
		r.statKey(StatLearnRate): learnRate,
		r.statKey(StatPredictQ):  r.predictVal.Data().(float64),
	}, nil
}

// windowObs slices the seqLen-step observation window starting at
// offset out of each sample's seqLen+1 observations, keeping the flat
// (batch, step, feature) layout the networks take as input. Offset 0
// yields the current-step window and offset 1 the next-step window.
func (r *RecurrentDQN) windowObs(batch *sample.Sequences,
	offset int) []float64 {
	features := batch.Features
	srcStride := (r.seqLen + 1) * features
	dstStride := r.seqLen * features

	out := make([]float64, r.batchSize*dstStride)
	for b := 0; b < r.batchSize; b++ {
		src := b*srcStride + offset*features
		copy(out[b*dstStride:(b+1)*dstStride], batch.Obs[src:src+dstStride])
	}
	return out
}

// stepMajor reorders a flat (batch, step) slice into the step-major
// (step, batch) order of the network's concatenated predictions
func (r *RecurrentDQN) stepMajor(data []float64) []float64 {
	out := make([]float64, len(data))
	for b := 0; b < r.batchSize; b++ {
		for t := 0; t < r.seqLen; t++ {
			out[t*r.batchSize+b] = data[b*r.seqLen+t]
		}
	}
	return out
}

// stepMajorInts reorders a flat (batch, step) slice into step-major
// (step, batch) order
func (r *RecurrentDQN) stepMajorInts(data []int) []int {
	out := make([]int, len(data))
	for b := 0; b < r.batchSize; b++ {
		for t := 0; t < r.seqLen; t++ {
			out[t*r.batchSize+b] = data[b*r.seqLen+t]
		}
	}
	return out
}

// TDErrors returns the per-step temporal difference errors of the last
// Update in step-major order
func (r *RecurrentDQN) TDErrors() []float64 {
	if r.tdVal == nil {
		return nil
	}
	diff := r.tdVal.Data().([]float64)
	out := make([]float64, len(diff))
	copy(out, diff)
	return out
}

// Iterations returns the number of gradient steps taken so far
func (r *RecurrentDQN) Iterations() int {
	return r.iterations
}

// Close releases the learner's virtual machine
func (r *RecurrentDQN) Close() error {
	return r.vm.Close()
}
