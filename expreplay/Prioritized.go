package expreplay

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/sampleuv"

	"github.com/sunwuzhou03/xuance/sample"
	"github.com/sunwuzhou03/xuance/timestep"
)

// priorityFloor keeps every stored transition sampleable, even after
// its TD error anneals to zero
const priorityFloor float64 = 1e-6

// prioritizedBuffer implements a PrioritizedReplayer with proportional
// prioritization. Each transition's priority is the absolute temporal
// difference error last reported for it, and batches are drawn without
// replacement with probability proportional to priority^alpha. Sampled
// batches carry importance sampling weights (N·P(i))^-beta, normalized
// by their maximum, and the buffer positions needed to refresh
// priorities after the next update.
//
// New transitions enter the buffer at the maximum priority seen so
// far, so every transition is sampled at least once before its
// priority is annealed by updates.
type prioritizedBuffer struct {
	*uniformBuffer

	priorities  []float64
	maxPriority float64
	alpha       float64
	beta        float64

	src rand.Source
}

// NewPrioritized creates and returns a new prioritized replay buffer
func NewPrioritized(minCapacity, maxCapacity, batchSize, featureSize int,
	alpha, beta float64, seed int64) (PrioritizedReplayer, error) {
	return newPrioritizedBuffer(minCapacity, maxCapacity, batchSize,
		featureSize, alpha, beta, seed)
}

func newPrioritizedBuffer(minCapacity, maxCapacity, batchSize,
	featureSize int, alpha, beta float64,
	seed int64) (*prioritizedBuffer, error) {
	if alpha < 0 {
		return nil, fmt.Errorf("newprioritizedbuffer: negative priority "+
			"exponent %v", alpha)
	}
	if beta < 0 {
		return nil, fmt.Errorf("newprioritizedbuffer: negative importance "+
			"sampling exponent %v", beta)
	}
	if minCapacity < batchSize {
		return nil, fmt.Errorf("newprioritizedbuffer: cannot have "+
			"minCapacity(%v) < batch size(%v): batches are sampled without "+
			"replacement", minCapacity, batchSize)
	}

	buffer, err := newUniformBuffer(minCapacity, maxCapacity, batchSize,
		featureSize, seed)
	if err != nil {
		return nil, fmt.Errorf("newprioritizedbuffer: %v", err)
	}

	return &prioritizedBuffer{
		uniformBuffer: buffer,
		priorities:    make([]float64, maxCapacity),
		maxPriority:   1.0,
		alpha:         alpha,
		beta:          beta,
		src:           rand.NewSource(uint64(seed)),
	}, nil
}

// Add adds a transition to the buffer at the maximum priority seen so
// far, overwriting the oldest transition when the buffer is full
func (p *prioritizedBuffer) Add(t timestep.Transition) error {
	index := p.currentPos
	if err := p.uniformBuffer.Add(t); err != nil {
		return err
	}

	p.priorities[index] = p.maxPriority
	return nil
}

// Sample samples and returns a batch of transitions drawn
// proportionally to priority, with importance sampling weights and
// buffer positions attached
func (p *prioritizedBuffer) Sample() (*sample.Transitions, error) {
	capacity := p.Capacity()
	if capacity == 0 {
		return nil, &ExpReplayError{Op: "sample", Err: errEmptyBuffer}
	}
	if capacity < p.minCapacity {
		return nil, &ExpReplayError{Op: "sample", Err: errInsufficientSamples}
	}

	weights := make([]float64, capacity)
	totalWeight := 0.0
	for i := 0; i < capacity; i++ {
		weights[i] = math.Pow(p.priorities[i], p.alpha)
		totalWeight += weights[i]
	}

	sampler := sampleuv.NewWeighted(weights, p.src)
	indices := make([]int, p.batchSize)
	for i := range indices {
		index, ok := sampler.Take()
		if !ok {
			return nil, fmt.Errorf("sample: could not draw sample %v of %v",
				i, p.batchSize)
		}
		indices[i] = index
	}

	batch, err := p.gather(indices)
	if err != nil {
		return nil, fmt.Errorf("sample: %v", err)
	}

	// Importance sampling weights (N·P(i))^-beta, normalized so the
	// largest weight in the batch is 1
	isWeights := make([]float64, p.batchSize)
	maxWeight := 0.0
	for i, index := range indices {
		probability := weights[index] / totalWeight
		isWeights[i] = math.Pow(float64(capacity)*probability, -p.beta)
		if isWeights[i] > maxWeight {
			maxWeight = isWeights[i]
		}
	}
	for i := range isWeights {
		isWeights[i] /= maxWeight
	}
	batch.Weights = isWeights

	return batch, nil
}

// UpdatePriorities refreshes the priority of the samples at the given
// buffer positions with the absolute temporal difference errors a
// learner reported for them
func (p *prioritizedBuffer) UpdatePriorities(indices []int,
	tdErrors []float64) error {
	if len(indices) != len(tdErrors) {
		return fmt.Errorf("updatepriorities: size mismatch \n\twant(%v)"+
			"\n\thave(%v)", len(indices), len(tdErrors))
	}

	for i, index := range indices {
		if index < 0 || index >= p.Capacity() {
			return fmt.Errorf("updatepriorities: index %v out of range [0, "+
				"%v)", index, p.Capacity())
		}
		if tdErrors[i] < 0 {
			return fmt.Errorf("updatepriorities: negative TD error %v",
				tdErrors[i])
		}

		priority := tdErrors[i] + priorityFloor
		p.priorities[index] = priority
		if priority > p.maxPriority {
			p.maxPriority = priority
		}
	}
	return nil
}
