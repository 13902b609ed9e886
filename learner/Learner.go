// Package learner implements the gradient-based update rules of deep Q
// learning agents. A learner owns the loss portion of a policy's
// training graph: it attaches temporal difference targets and a mean
// squared error cost to the policy network's predictions, compiles the
// combined graph into a virtual machine, and performs one gradient
// step per call to Update.
//
// Bootstrap values always come from the policy's target network, which
// the learner hard-synchronizes with the training network every
// SyncFrequency gradient steps. Discounting is folded into a
// per-sample discount input of γ·(1-terminal), so terminal transitions
// bootstrap from a value of exactly zero and their targets reduce to
// the observed reward.
package learner

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/sunwuzhou03/xuance/solver"
)

// Statistics keys reported by every learner's Update
const (
	StatLoss      string = "Qloss"
	StatLearnRate string = "learning_rate"
	StatPredictQ  string = "predictQ"
)

// qLearner holds the bookkeeping shared by all Q learner update rules
type qLearner struct {
	config     Config
	iterations int
}

// step clips and applies the gradients held by the model, then anneals
// the learning rate for the next gradient step. The annealed learning
// rate is returned.
func (q *qLearner) step(model []G.ValueGrad) (float64, error) {
	if q.config.UseGradClip {
		if _, err := solver.ClipNorm(model, q.config.GradClipNorm); err != nil {
			return 0, err
		}
	}

	if err := q.config.Solver.Step(model); err != nil {
		return 0, err
	}
	learnRate := q.config.Schedule.Step()
	q.config.Solver.SetLearnRate(learnRate)

	return learnRate, nil
}

// shouldSync advances the gradient step counter and reports whether
// the target network is due for a hard synchronization
func (q *qLearner) shouldSync() bool {
	q.iterations++
	return q.iterations%q.config.SyncFrequency == 0
}

// statKey suffixes a statistics key with the worker rank when training
// is distributed, keeping per-worker series separate in trackers.
func (q *qLearner) statKey(key string) string {
	if q.config.Distributed {
		return fmt.Sprintf("%v/rank_%d", key, q.config.Rank)
	}
	return key
}

// letMatrix sets a (rows, cols) input node from a flat row-major slice
func letMatrix(node *G.Node, data []float64, rows, cols int) error {
	return G.Let(node, tensor.New(
		tensor.WithBacking(data),
		tensor.WithShape(rows, cols),
	))
}

// letVector sets a vector input node from a slice
func letVector(node *G.Node, data []float64) error {
	return G.Let(node, tensor.New(
		tensor.WithBacking(data),
		tensor.WithShape(len(data)),
	))
}

// discounts returns the per-sample discount γ·(1-terminal), the factor
// applied to each sample's bootstrapped value
func discounts(gamma float64, terminals []float64) []float64 {
	out := make([]float64, len(terminals))
	for i, terminal := range terminals {
		out[i] = gamma * (1.0 - terminal)
	}
	return out
}

// abs returns the element-wise absolute values of diff
func abs(diff []float64) []float64 {
	out := make([]float64, len(diff))
	for i, d := range diff {
		if d < 0 {
			out[i] = -d
		} else {
			out[i] = d
		}
	}
	return out
}
