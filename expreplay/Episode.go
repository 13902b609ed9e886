package expreplay

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/sunwuzhou03/xuance/sample"
	"github.com/sunwuzhou03/xuance/timestep"
)

// episode is a completed episode of the agent-environment interaction.
// It holds one more observation than decision steps, so any contiguous
// window of steps carries both its current and next observations.
type episode struct {
	obs       []float64
	actions   []int
	rewards   []float64
	terminals []float64
}

// steps returns the number of decision steps in the episode
func (e *episode) steps() int {
	return len(e.actions)
}

// episodeBuffer implements a SequenceReplayer. Complete episodes are
// stored whole, overwriting the oldest episode once the buffer is
// full. Sampling draws a random episode and a random in-episode offset
// for each batch entry, returning contiguous windows of seqLen
// decision steps. Episodes shorter than seqLen are discarded on
// completion since no full window fits inside them.
type episodeBuffer struct {
	episodes []*episode
	building *episode

	currentPos int
	isFull     bool

	rng *rand.Rand

	minCapacity int
	maxCapacity int
	batchSize   int
	seqLen      int
	featureSize int
}

// NewEpisode creates and returns a new episode replay buffer whose
// batches hold windows of seqLen decision steps
func NewEpisode(minCapacity, maxCapacity, batchSize, seqLen,
	featureSize int, seed int64) (SequenceReplayer, error) {
	if minCapacity <= 0 {
		return nil, fmt.Errorf("newepisode: minCapacity must be > 0")
	}
	if maxCapacity < minCapacity {
		return nil, fmt.Errorf("newepisode: cannot have minCapacity(%v) > "+
			"maxCapacity(%v)", minCapacity, maxCapacity)
	}
	if seqLen < 1 {
		return nil, fmt.Errorf("newepisode: sequence length must be "+
			"positive \n\twant(>0) \n\thave(%v)", seqLen)
	}

	return &episodeBuffer{
		episodes: make([]*episode, maxCapacity),
		rng:      rand.New(rand.NewSource(uint64(seed))),

		minCapacity: minCapacity,
		maxCapacity: maxCapacity,
		batchSize:   batchSize,
		seqLen:      seqLen,
		featureSize: featureSize,
	}, nil
}

// Add adds a transition to the episode under construction. A
// transition whose End flag is set closes the episode and stores it.
func (e *episodeBuffer) Add(t timestep.Transition) error {
	if t.State.Len() != e.featureSize || t.NextState.Len() != e.featureSize {
		return fmt.Errorf("add: invalid feature size \n\twant(%v)"+
			"\n\thave(%v)", e.featureSize, t.State.Len())
	}

	buf := make([]float64, e.featureSize)
	if e.building == nil {
		e.building = &episode{}
		mat.Col(buf, 0, t.State)
		e.building.obs = append(e.building.obs, buf...)
	}

	mat.Col(buf, 0, t.NextState)
	e.building.obs = append(e.building.obs, buf...)
	e.building.actions = append(e.building.actions, t.Action)
	e.building.rewards = append(e.building.rewards, t.Reward)
	terminal := 0.0
	if t.End {
		terminal = 1.0
	}
	e.building.terminals = append(e.building.terminals, terminal)

	if t.End {
		e.store(e.building)
		e.building = nil
	}
	return nil
}

// store places a completed episode into the ring, dropping episodes
// too short to hold a full sampling window
func (e *episodeBuffer) store(ep *episode) {
	if ep.steps() < e.seqLen {
		return
	}

	e.episodes[e.currentPos] = ep
	e.currentPos = (e.currentPos + 1) % e.maxCapacity
	if e.currentPos == 0 {
		e.isFull = true
	}
}

// Sample samples and returns a batch of contiguous observation windows
// from the stored episodes
func (e *episodeBuffer) Sample() (*sample.Sequences, error) {
	capacity := e.Capacity()
	if capacity == 0 {
		return nil, &ExpReplayError{Op: "sample", Err: errEmptyBuffer}
	}
	if capacity < e.minCapacity {
		return nil, &ExpReplayError{Op: "sample", Err: errInsufficientSamples}
	}

	obs := make([]float64, e.batchSize*(e.seqLen+1)*e.featureSize)
	actions := make([]int, e.batchSize*e.seqLen)
	rewards := make([]float64, e.batchSize*e.seqLen)
	terminals := make([]float64, e.batchSize*e.seqLen)

	for b := 0; b < e.batchSize; b++ {
		ep := e.episodes[e.rng.Intn(capacity)]
		start := e.rng.Intn(ep.steps() - e.seqLen + 1)

		obsStart := start * e.featureSize
		obsLen := (e.seqLen + 1) * e.featureSize
		copy(obs[b*obsLen:(b+1)*obsLen], ep.obs[obsStart:obsStart+obsLen])

		copy(actions[b*e.seqLen:(b+1)*e.seqLen],
			ep.actions[start:start+e.seqLen])
		copy(rewards[b*e.seqLen:(b+1)*e.seqLen],
			ep.rewards[start:start+e.seqLen])
		copy(terminals[b*e.seqLen:(b+1)*e.seqLen],
			ep.terminals[start:start+e.seqLen])
	}

	batch, err := sample.NewSequences(obs, actions, rewards, terminals,
		e.batchSize, e.seqLen, e.featureSize)
	if err != nil {
		return nil, fmt.Errorf("sample: could not build batch: %v", err)
	}
	return batch, nil
}

// Capacity returns the current number of stored episodes
func (e *episodeBuffer) Capacity() int {
	if e.isFull {
		return e.maxCapacity
	}
	return e.currentPos
}

// MaxCapacity returns the maximum number of stored episodes
func (e *episodeBuffer) MaxCapacity() int {
	return e.maxCapacity
}

// MinCapacity returns the number of episodes required to be in the
// buffer before the buffer can be sampled
func (e *episodeBuffer) MinCapacity() int {
	return e.minCapacity
}

// BatchSize returns the number of windows returned by Sample()
func (e *episodeBuffer) BatchSize() int {
	return e.batchSize
}
