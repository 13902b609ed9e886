package sample

import "fmt"

// Sequences is a batch of contiguous observation sequences for
// recurrent learners. Each sample holds SeqLen+1 observations; the
// first SeqLen form the current-step slice and the last SeqLen form
// the next-step slice, so current and next observations are drawn
// from one contiguous window rather than stored separately.
//
// Observations are stored flat in (batch, step, feature) row-major
// order. Actions, rewards, and terminals have SeqLen entries per
// sample in (batch, step) order.
type Sequences struct {
	Obs       []float64
	Actions   []int
	Rewards   []float64
	Terminals []float64

	BatchSize int
	SeqLen    int
	Features  int
}

// NewSequences validates and returns a batch of observation sequences.
// The seqLen parameter counts decision steps: each sample must carry
// seqLen+1 observations and seqLen actions, rewards, and terminals.
func NewSequences(obs []float64, actions []int, rewards,
	terminals []float64, batchSize, seqLen, features int) (*Sequences, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("newsequences: non-positive batch size %v",
			batchSize)
	}
	if seqLen <= 0 {
		return nil, fmt.Errorf("newsequences: non-positive sequence length %v",
			seqLen)
	}
	if features <= 0 {
		return nil, fmt.Errorf("newsequences: non-positive feature count %v",
			features)
	}
	if len(obs) != batchSize*(seqLen+1)*features {
		return nil, fmt.Errorf("newsequences: invalid obs length "+
			"\n\twant(%v)\n\thave(%v)", batchSize*(seqLen+1)*features, len(obs))
	}
	if len(actions) != batchSize*seqLen {
		return nil, fmt.Errorf("newsequences: invalid actions length "+
			"\n\twant(%v)\n\thave(%v)", batchSize*seqLen, len(actions))
	}
	if len(rewards) != batchSize*seqLen {
		return nil, fmt.Errorf("newsequences: invalid rewards length "+
			"\n\twant(%v)\n\thave(%v)", batchSize*seqLen, len(rewards))
	}
	if len(terminals) != batchSize*seqLen {
		return nil, fmt.Errorf("newsequences: invalid terminals length "+
			"\n\twant(%v)\n\thave(%v)", batchSize*seqLen, len(terminals))
	}
	for i, terminal := range terminals {
		if terminal != 0.0 && terminal != 1.0 {
			return nil, fmt.Errorf("newsequences: terminal flag %v of "+
				"step %v is not 0 or 1", terminal, i)
		}
	}

	return &Sequences{
		Obs:       obs,
		Actions:   actions,
		Rewards:   rewards,
		Terminals: terminals,
		BatchSize: batchSize,
		SeqLen:    seqLen,
		Features:  features,
	}, nil
}

// StepObs gathers the observations of a single step across the batch,
// returning a (BatchSize, Features) matrix in flat row-major form.
// Valid steps range over 0..SeqLen inclusive.
func (s *Sequences) StepObs(step int) []float64 {
	out := make([]float64, s.BatchSize*s.Features)
	stride := (s.SeqLen + 1) * s.Features
	for b := 0; b < s.BatchSize; b++ {
		src := b*stride + step*s.Features
		copy(out[b*s.Features:(b+1)*s.Features], s.Obs[src:src+s.Features])
	}
	return out
}
