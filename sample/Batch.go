// Package sample implements the batches of experience that learners
// consume. Batches are explicit, validated structs rather than loose
// bundles of named arrays: every field is checked for a consistent
// leading (batch) dimension at construction time so that shape errors
// surface before any tensor computation begins.
package sample

import "fmt"

// Transitions is a batch of one-step transitions sampled from a replay
// buffer. Observations are stored flat in row-major order, so that
// Obs[i*Features : (i+1)*Features] is the observation of sample i.
//
// Weights and Indices are only set by prioritized replay buffers:
// Weights holds the importance-sampling weight of each sample and
// Indices the position of each sample in the buffer, needed to update
// priorities after the learner returns TD errors. Neither influences
// the gradient computation itself.
type Transitions struct {
	Obs       []float64
	ObsNext   []float64
	Actions   []int
	Rewards   []float64
	Terminals []float64

	Weights []float64
	Indices []int

	BatchSize int
	Features  int
}

// NewTransitions validates and returns a batch of one-step transitions.
func NewTransitions(obs, obsNext []float64, actions []int, rewards,
	terminals []float64, batchSize, features int) (*Transitions, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("newtransitions: non-positive batch size %v",
			batchSize)
	}
	if features <= 0 {
		return nil, fmt.Errorf("newtransitions: non-positive feature count %v",
			features)
	}
	if len(obs) != batchSize*features {
		return nil, fmt.Errorf("newtransitions: invalid obs length "+
			"\n\twant(%v)\n\thave(%v)", batchSize*features, len(obs))
	}
	if len(obsNext) != batchSize*features {
		return nil, fmt.Errorf("newtransitions: invalid obsNext length "+
			"\n\twant(%v)\n\thave(%v)", batchSize*features, len(obsNext))
	}
	if len(actions) != batchSize {
		return nil, fmt.Errorf("newtransitions: invalid actions length "+
			"\n\twant(%v)\n\thave(%v)", batchSize, len(actions))
	}
	if len(rewards) != batchSize {
		return nil, fmt.Errorf("newtransitions: invalid rewards length "+
			"\n\twant(%v)\n\thave(%v)", batchSize, len(rewards))
	}
	if len(terminals) != batchSize {
		return nil, fmt.Errorf("newtransitions: invalid terminals length "+
			"\n\twant(%v)\n\thave(%v)", batchSize, len(terminals))
	}
	for i, terminal := range terminals {
		if terminal != 0.0 && terminal != 1.0 {
			return nil, fmt.Errorf("newtransitions: terminal flag %v of "+
				"sample %v is not 0 or 1", terminal, i)
		}
	}

	return &Transitions{
		Obs:       obs,
		ObsNext:   obsNext,
		Actions:   actions,
		Rewards:   rewards,
		Terminals: terminals,
		BatchSize: batchSize,
		Features:  features,
	}, nil
}

// ShardRange computes the contiguous half-open index range [start, end)
// of the batch that a distributed worker is responsible for. Each of
// worldSize workers gets batchSize/worldSize samples; the last worker
// absorbs the remainder of the integer division, so the union of all
// ranges reconstructs [0, batchSize) with no overlap and no gap.
func ShardRange(batchSize, rank, worldSize int) (start, end int) {
	local := batchSize / worldSize
	start = rank * local
	if rank < worldSize-1 {
		end = start + local
	} else {
		end = batchSize
	}
	return start, end
}

// Shard returns the contiguous slice of the batch owned by the worker
// with the given rank. The returned batch aliases the receiver's
// backing slices. A world size of one returns the receiver unchanged.
func (t *Transitions) Shard(rank, worldSize int) *Transitions {
	if worldSize <= 1 {
		return t
	}

	start, end := ShardRange(t.BatchSize, rank, worldSize)
	shard := &Transitions{
		Obs:       t.Obs[start*t.Features : end*t.Features],
		ObsNext:   t.ObsNext[start*t.Features : end*t.Features],
		Actions:   t.Actions[start:end],
		Rewards:   t.Rewards[start:end],
		Terminals: t.Terminals[start:end],
		BatchSize: end - start,
		Features:  t.Features,
	}
	if t.Weights != nil {
		shard.Weights = t.Weights[start:end]
	}
	if t.Indices != nil {
		shard.Indices = t.Indices[start:end]
	}
	return shard
}
