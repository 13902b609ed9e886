package expreplay

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/sunwuzhou03/xuance/sample"
	"github.com/sunwuzhou03/xuance/timestep"
)

// uniformBuffer implements a Replayer where transitions are overwritten
// oldest-first once the buffer is full and batches are drawn uniformly
// randomly. This is the most common use of experience replay.
type uniformBuffer struct {
	obsCache      []float64
	nextObsCache  []float64
	actionCache   []int
	rewardCache   []float64
	terminalCache []float64

	currentPos int
	isFull     bool

	rng *rand.Rand

	minCapacity int
	maxCapacity int
	batchSize   int
	featureSize int
}

// NewUniform creates and returns a new uniformly sampled replay buffer
func NewUniform(minCapacity, maxCapacity, batchSize,
	featureSize int, seed int64) (Replayer, error) {
	return newUniformBuffer(minCapacity, maxCapacity, batchSize, featureSize,
		seed)
}

func newUniformBuffer(minCapacity, maxCapacity, batchSize, featureSize int,
	seed int64) (*uniformBuffer, error) {
	if minCapacity <= 0 {
		return nil, fmt.Errorf("newuniformbuffer: minCapacity must be > 0")
	}
	if maxCapacity < minCapacity {
		return nil, fmt.Errorf("newuniformbuffer: cannot have minCapacity"+
			"(%v) > maxCapacity(%v)", minCapacity, maxCapacity)
	}
	if batchSize > maxCapacity {
		return nil, fmt.Errorf("newuniformbuffer: cannot have batch size"+
			"(%v) > max buffer capacity(%v)", batchSize, maxCapacity)
	}

	return &uniformBuffer{
		obsCache:      make([]float64, maxCapacity*featureSize),
		nextObsCache:  make([]float64, maxCapacity*featureSize),
		actionCache:   make([]int, maxCapacity),
		rewardCache:   make([]float64, maxCapacity),
		terminalCache: make([]float64, maxCapacity),

		rng: rand.New(rand.NewSource(uint64(seed))),

		minCapacity: minCapacity,
		maxCapacity: maxCapacity,
		batchSize:   batchSize,
		featureSize: featureSize,
	}, nil
}

// Add adds a transition to the buffer, overwriting the oldest
// transition when the buffer is full
func (u *uniformBuffer) Add(t timestep.Transition) error {
	if t.State.Len() != u.featureSize || t.NextState.Len() != u.featureSize {
		return fmt.Errorf("add: invalid feature size \n\twant(%v)"+
			"\n\thave(%v)", u.featureSize, t.State.Len())
	}

	index := u.currentPos
	obsInd := index * u.featureSize
	mat.Col(u.obsCache[obsInd:obsInd+u.featureSize], 0, t.State)
	mat.Col(u.nextObsCache[obsInd:obsInd+u.featureSize], 0, t.NextState)

	u.actionCache[index] = t.Action
	u.rewardCache[index] = t.Reward
	u.terminalCache[index] = 0.0
	if t.End {
		u.terminalCache[index] = 1.0
	}

	u.currentPos = (u.currentPos + 1) % u.maxCapacity
	if u.currentPos == 0 {
		u.isFull = true
	}
	return nil
}

// Sample samples and returns a batch of transitions from the buffer
func (u *uniformBuffer) Sample() (*sample.Transitions, error) {
	if u.Capacity() == 0 {
		return nil, &ExpReplayError{Op: "sample", Err: errEmptyBuffer}
	}
	if u.Capacity() < u.minCapacity {
		return nil, &ExpReplayError{Op: "sample", Err: errInsufficientSamples}
	}

	indices := make([]int, u.batchSize)
	for i := range indices {
		indices[i] = u.rng.Intn(u.Capacity())
	}
	return u.gather(indices)
}

// gather copies the transitions at the given buffer positions into a
// fresh batch
func (u *uniformBuffer) gather(indices []int) (*sample.Transitions, error) {
	obs := make([]float64, u.batchSize*u.featureSize)
	nextObs := make([]float64, u.batchSize*u.featureSize)
	actions := make([]int, u.batchSize)
	rewards := make([]float64, u.batchSize)
	terminals := make([]float64, u.batchSize)

	for i, index := range indices {
		batchInd := i * u.featureSize
		expInd := index * u.featureSize
		copy(obs[batchInd:batchInd+u.featureSize],
			u.obsCache[expInd:expInd+u.featureSize])
		copy(nextObs[batchInd:batchInd+u.featureSize],
			u.nextObsCache[expInd:expInd+u.featureSize])

		actions[i] = u.actionCache[index]
		rewards[i] = u.rewardCache[index]
		terminals[i] = u.terminalCache[index]
	}

	batch, err := sample.NewTransitions(obs, nextObs, actions, rewards,
		terminals, u.batchSize, u.featureSize)
	if err != nil {
		return nil, fmt.Errorf("gather: could not build batch: %v", err)
	}
	batch.Indices = indices
	return batch, nil
}

// Capacity returns the current number of samples in the buffer
func (u *uniformBuffer) Capacity() int {
	if u.isFull {
		return u.maxCapacity
	}
	return u.currentPos
}

// MaxCapacity returns the maximum allowable samples in the buffer
func (u *uniformBuffer) MaxCapacity() int {
	return u.maxCapacity
}

// MinCapacity returns the number of samples required to be in the
// buffer before the buffer can be sampled
func (u *uniformBuffer) MinCapacity() int {
	return u.minCapacity
}

// BatchSize returns the number of samples returned by Sample()
func (u *uniformBuffer) BatchSize() int {
	return u.batchSize
}
