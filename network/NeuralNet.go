// Package network implements neural network function approximators
// backed by Gorgonia computational graphs. Networks only populate
// graphs; they hold no virtual machine of their own. Callers compile
// a network's graph into a VM, set the network's input, run the VM,
// and then read the network's output.
package network

import (
	G "gorgonia.org/gorgonia"
)

// NeuralNet implements a neural network on a Gorgonia graph.
type NeuralNet interface {
	// Graph returns the computational graph the network populates
	Graph() *G.ExprGraph

	// Clone clones the network onto a fresh graph, copying weights
	Clone() (NeuralNet, error)

	// CloneWithBatch clones the network onto a fresh graph with a new
	// input batch size, copying weights
	CloneWithBatch(int) (NeuralNet, error)

	// BatchSize returns the number of samples in one network input
	BatchSize() int

	// Features returns the length of a single observation vector
	Features() int

	// Outputs returns the number of values predicted per sample
	Outputs() int

	// SetInput sets the value of the input node(s) before a VM run.
	// Input is given flat in row-major (batch, ...) order.
	SetInput([]float64) error

	// Set hard-copies the learnable weights of another network of the
	// same architecture into the receiver
	Set(NeuralNet) error

	// Polyak sets the receiver's weights to a Polyak average between
	// its current weights and another network's weights
	Polyak(NeuralNet, float64) error

	// Learnables returns the nodes holding learnable weights
	Learnables() G.Nodes

	// Model returns the learnable nodes with their gradients
	Model() []G.ValueGrad

	// Output returns the value of the prediction node after a VM run
	Output() G.Value

	// Prediction returns the node holding the network's prediction
	Prediction() *G.Node
}

// setWeights hard-copies the learnable weights of src into dest. The
// two networks must share an architecture so that their learnables
// line up index by index.
func setWeights(dest, src NeuralNet) error {
	srcNodes := src.Learnables()
	destNodes := dest.Learnables()
	for i, destLearnable := range destNodes {
		srcLearnable := srcNodes[i].Clone()
		err := G.Let(destLearnable, srcLearnable.(*G.Node).Value())
		if err != nil {
			return err
		}
	}
	return nil
}
