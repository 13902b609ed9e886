package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// RecurrentQNet implements a recurrent action-value network. An Elman
// recurrent cell is unrolled over a fixed window of seqLen steps, with
// the cell weights shared across steps, and a linear output head maps
// each step's hidden state to one action value per discrete action:
//
//	h_t = tanh(x_t·Wx + h_{t-1}·Wh + b_h)
//	q_t = h_t·Wo + b_o
//
// The initial hidden state h_0 is an input node and must be set before
// every VM run. Per-step predictions are concatenated along the batch
// axis in step-major order, so Prediction() is a
// (batchSize*seqLen, outputs) matrix whose first batchSize rows hold
// step 0, the next batchSize rows step 1, and so on. The hidden state
// of the last step can be read with FinalHidden after a VM run, which
// lets a seqLen-1 network carry its state across environment steps
// when selecting actions.
type RecurrentQNet struct {
	g *G.ExprGraph

	wx *G.Node // input to hidden
	wh *G.Node // hidden to hidden
	bh *G.Node // hidden bias
	wo *G.Node // hidden to output
	bo *G.Node // output bias

	inputs  []*G.Node // per-step (batchSize, features) inputs
	hidden0 *G.Node   // (batchSize, hiddenSize) initial state

	numOutputs int
	numInputs  int
	hiddenSize int
	batchSize  int
	seqLen     int

	learnables G.Nodes
	model      []G.ValueGrad

	prediction *G.Node
	predVal    G.Value
	hiddenVal  G.Value
}

// NewRecurrentQNet creates and returns a new recurrent Q network on
// graph g, unrolled over seqLen steps. The init parameter determines
// the weight initialization scheme.
func NewRecurrentQNet(features, batch, seqLen, hiddenSize, outputs int,
	g *G.ExprGraph, init G.InitWFn) (*RecurrentQNet, error) {
	if seqLen < 1 {
		return nil, fmt.Errorf("newrecurrentqnet: sequence length must be "+
			"positive \n\twant(>0) \n\thave(%v)", seqLen)
	}
	if hiddenSize < 1 {
		return nil, fmt.Errorf("newrecurrentqnet: hidden size must be "+
			"positive \n\twant(>0) \n\thave(%v)", hiddenSize)
	}

	wx := G.NewMatrix(g, tensor.Float64, G.WithShape(features, hiddenSize),
		G.WithName("RnnWx"), G.WithInit(init))
	wh := G.NewMatrix(g, tensor.Float64, G.WithShape(hiddenSize, hiddenSize),
		G.WithName("RnnWh"), G.WithInit(init))
	bh := G.NewVector(g, tensor.Float64, G.WithShape(hiddenSize),
		G.WithName("RnnBh"), G.WithInit(init))
	wo := G.NewMatrix(g, tensor.Float64, G.WithShape(hiddenSize, outputs),
		G.WithName("RnnWo"), G.WithInit(init))
	bo := G.NewVector(g, tensor.Float64, G.WithShape(outputs),
		G.WithName("RnnBo"), G.WithInit(init))

	inputs := make([]*G.Node, seqLen)
	for t := range inputs {
		inputs[t] = G.NewMatrix(g, tensor.Float64,
			G.WithShape(batch, features),
			G.WithName(fmt.Sprintf("input%d", t)), G.WithInit(G.Zeroes()))
	}
	hidden0 := G.NewMatrix(g, tensor.Float64,
		G.WithShape(batch, hiddenSize), G.WithName("hidden0"),
		G.WithInit(G.Zeroes()))

	net := &RecurrentQNet{
		g:          g,
		wx:         wx,
		wh:         wh,
		bh:         bh,
		wo:         wo,
		bo:         bo,
		inputs:     inputs,
		hidden0:    hidden0,
		numOutputs: outputs,
		numInputs:  features,
		hiddenSize: hiddenSize,
		batchSize:  batch,
		seqLen:     seqLen,
	}
	if err := net.fwd(); err != nil {
		msg := "newrecurrentqnet: could not compute forward pass: %v"
		return nil, fmt.Errorf(msg, err)
	}

	return net, nil
}

// fwd unrolls the recurrent cell over the input window
func (r *RecurrentQNet) fwd() error {
	h := r.hidden0
	preds := make([]*G.Node, r.seqLen)
	for t := 0; t < r.seqLen; t++ {
		xw := G.Must(G.Mul(r.inputs[t], r.wx))
		hw := G.Must(G.Mul(h, r.wh))
		pre := G.Must(G.Add(xw, hw))
		pre = G.Must(G.BroadcastAdd(pre, r.bh, nil, []byte{0}))
		h = G.Must(G.Tanh(pre))

		q := G.Must(G.Mul(h, r.wo))
		preds[t] = G.Must(G.BroadcastAdd(q, r.bo, nil, []byte{0}))
	}

	if r.seqLen > 1 {
		r.prediction = G.Must(G.Concat(0, preds...))
	} else {
		r.prediction = preds[0]
	}
	G.Read(r.prediction, &r.predVal)
	G.Read(h, &r.hiddenVal)

	return nil
}

// Graph returns the computational graph of the RecurrentQNet
func (r *RecurrentQNet) Graph() *G.ExprGraph {
	return r.g
}

// Clone clones a RecurrentQNet onto a fresh graph, copying weights
func (r *RecurrentQNet) Clone() (NeuralNet, error) {
	return r.CloneWithBatch(r.batchSize)
}

// CloneWithBatch clones a RecurrentQNet onto a fresh graph with a new
// input batch size, keeping the unroll length and copying weights.
func (r *RecurrentQNet) CloneWithBatch(batch int) (NeuralNet, error) {
	return r.CloneWithShape(batch, r.seqLen)
}

// CloneWithShape clones a RecurrentQNet onto a fresh graph with a new
// batch size and unroll length, copying weights. A (batch=1, seqLen=1)
// clone of a training network is used for action selection.
func (r *RecurrentQNet) CloneWithShape(batch, seqLen int) (*RecurrentQNet,
	error) {
	graph := G.NewGraph()

	clone, err := NewRecurrentQNet(r.numInputs, batch, seqLen, r.hiddenSize,
		r.numOutputs, graph, G.Zeroes())
	if err != nil {
		return nil, fmt.Errorf("clonewithshape: %v", err)
	}
	if err := clone.Set(r); err != nil {
		return nil, fmt.Errorf("clonewithshape: could not copy weights: %v",
			err)
	}

	return clone, nil
}

// BatchSize returns the batch size of inputs to the network
func (r *RecurrentQNet) BatchSize() int {
	return r.batchSize
}

// Features returns the number of features in a single observation
// vector that the network takes as input at each step.
func (r *RecurrentQNet) Features() int {
	return r.numInputs
}

// Outputs returns the number of action values predicted per step
func (r *RecurrentQNet) Outputs() int {
	return r.numOutputs
}

// SeqLen returns the number of steps the network is unrolled over
func (r *RecurrentQNet) SeqLen() int {
	return r.seqLen
}

// HiddenSize returns the size of the recurrent hidden state
func (r *RecurrentQNet) HiddenSize() int {
	return r.hiddenSize
}

// SetInput sets the value of the per-step input nodes before running
// the forward pass. Input is given flat in row-major
// (batch, step, feature) order.
func (r *RecurrentQNet) SetInput(input []float64) error {
	if len(input) != r.batchSize*r.seqLen*r.numInputs {
		msg := fmt.Sprintf("setinput: invalid number of inputs\n\twant(%v)"+
			"\n\thave(%v)", r.batchSize*r.seqLen*r.numInputs, len(input))
		panic(msg)
	}

	stride := r.seqLen * r.numInputs
	for t := 0; t < r.seqLen; t++ {
		stepInput := make([]float64, r.batchSize*r.numInputs)
		for b := 0; b < r.batchSize; b++ {
			src := b*stride + t*r.numInputs
			copy(stepInput[b*r.numInputs:(b+1)*r.numInputs],
				input[src:src+r.numInputs])
		}

		inputTensor := tensor.New(
			tensor.WithBacking(stepInput),
			tensor.WithShape(r.batchSize, r.numInputs),
		)
		if err := G.Let(r.inputs[t], inputTensor); err != nil {
			return fmt.Errorf("setinput: could not set step %v input: %v", t,
				err)
		}
	}
	return nil
}

// SetInitialHidden sets the initial recurrent state h_0 for the next
// VM run. A nil argument sets the zero state.
func (r *RecurrentQNet) SetInitialHidden(h []float64) error {
	if h == nil {
		h = make([]float64, r.batchSize*r.hiddenSize)
	}
	if len(h) != r.batchSize*r.hiddenSize {
		return fmt.Errorf("setinitialhidden: invalid state size\n\twant(%v)"+
			"\n\thave(%v)", r.batchSize*r.hiddenSize, len(h))
	}

	hiddenTensor := tensor.New(
		tensor.WithBacking(h),
		tensor.WithShape(r.batchSize, r.hiddenSize),
	)
	return G.Let(r.hidden0, hiddenTensor)
}

// FinalHidden returns the hidden state of the last unrolled step after
// a VM run
func (r *RecurrentQNet) FinalHidden() G.Value {
	return r.hiddenVal
}

// Set sets the weights of a RecurrentQNet to be equal to the weights
// of another NeuralNet of the same architecture
func (r *RecurrentQNet) Set(source NeuralNet) error {
	return setWeights(r, source)
}

// Polyak sets the weights of a RecurrentQNet to be a Polyak average
// between its existing weights and the weights of another NeuralNet
// of the same architecture
func (r *RecurrentQNet) Polyak(source NeuralNet, tau float64) error {
	sourceNodes := source.Learnables()
	nodes := r.Learnables()
	for i := range nodes {
		weights := nodes[i].Value().(*tensor.Dense)
		sourceWeights := sourceNodes[i].Value().(*tensor.Dense)

		weights, err := weights.MulScalar(1-tau, true)
		if err != nil {
			return err
		}

		sourceWeights, err = sourceWeights.MulScalar(tau, true)
		if err != nil {
			return err
		}

		var newWeights *tensor.Dense
		newWeights, err = weights.Add(sourceWeights)
		if err != nil {
			return err
		}

		err = G.Let(nodes[i], newWeights)
		if err != nil {
			return err
		}
	}
	return nil
}

// Learnables returns the learnable nodes in a RecurrentQNet
func (r *RecurrentQNet) Learnables() G.Nodes {
	if r.learnables == nil {
		r.learnables = G.Nodes{r.wx, r.wh, r.bh, r.wo, r.bo}
	}
	return r.learnables
}

// Model returns the learnable nodes with their gradients
func (r *RecurrentQNet) Model() []G.ValueGrad {
	if r.model == nil {
		model := make([]G.ValueGrad, 0, 5)
		for _, node := range r.Learnables() {
			model = append(model, node)
		}
		r.model = model
	}
	return r.model
}

// Output returns the per-step action values after a VM run, as a
// (batchSize*seqLen, outputs) step-major matrix
func (r *RecurrentQNet) Output() G.Value {
	return r.predVal
}

// Prediction returns the node of the computational graph that stores
// the step-major per-step action values
func (r *RecurrentQNet) Prediction() *G.Node {
	return r.prediction
}
