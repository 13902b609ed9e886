// Package expreplay implements experience replay buffers. Buffers
// accumulate transitions of the agent-environment interaction and
// return batches of decorrelated experience for learning.
//
// Three buffers are implemented. The uniform buffer overwrites its
// oldest transition once full and samples uniformly. The prioritized
// buffer samples transitions proportionally to their last known
// temporal difference error and reports importance sampling weights
// alongside each batch. The episode buffer stores whole episodes and
// samples contiguous observation windows for recurrent learners.
package expreplay

import (
	"errors"
	"fmt"

	"github.com/sunwuzhou03/xuance/sample"
	"github.com/sunwuzhou03/xuance/timestep"
)

// Replayer implements an experience replay buffer of one-step
// transitions
type Replayer interface {
	// Add adds a transition to the buffer
	Add(t timestep.Transition) error

	// Sample samples a batch of transitions from the buffer
	Sample() (*sample.Transitions, error)

	// Capacity returns the current number of samples in the buffer
	Capacity() int

	// MaxCapacity returns the maximum allowable samples in the buffer
	MaxCapacity() int

	// MinCapacity returns the number of samples required to be in
	// the buffer before the buffer can be sampled
	MinCapacity() int

	// BatchSize returns the number of samples returned by Sample()
	BatchSize() int
}

// PrioritizedReplayer is a Replayer whose sampling distribution can be
// refreshed with the temporal difference errors a learner reports
type PrioritizedReplayer interface {
	Replayer

	// UpdatePriorities refreshes the priority of the samples at the
	// given buffer positions, as returned in a sampled batch's Indices
	UpdatePriorities(indices []int, tdErrors []float64) error
}

// SequenceReplayer implements an experience replay buffer of whole
// episodes that samples batches of contiguous observation windows
type SequenceReplayer interface {
	// Add adds a transition to the episode under construction. A
	// transition whose End flag is set closes the episode.
	Add(t timestep.Transition) error

	// Sample samples a batch of observation windows from the buffer
	Sample() (*sample.Sequences, error)

	// Capacity returns the current number of stored episodes
	Capacity() int

	// MaxCapacity returns the maximum number of stored episodes
	MaxCapacity() int

	// MinCapacity returns the number of episodes required to be in the
	// buffer before the buffer can be sampled
	MinCapacity() int

	// BatchSize returns the number of windows returned by Sample()
	BatchSize() int
}

// Type describes different types of replay buffers that are available
type Type string

// Available replay buffer types
const (
	Uniform     Type = "Uniform"
	Prioritized Type = "Prioritized"
)

// Config implements a specific configuration of a replay buffer
type Config struct {
	Type              Type
	MinReplayCapacity int
	MaxReplayCapacity int
	BatchSize         int

	// Prioritized replay only
	Alpha float64 // priority exponent
	Beta  float64 // importance sampling exponent
}

// Create creates and returns the Replayer with the specified Config.
// The featureSize parameter defines the size of observation vectors.
func (c Config) Create(featureSize int, seed int64) (Replayer, error) {
	switch c.Type {
	case Uniform:
		return newUniformBuffer(c.MinReplayCapacity, c.MaxReplayCapacity,
			c.BatchSize, featureSize, seed)

	case Prioritized:
		return newPrioritizedBuffer(c.MinReplayCapacity, c.MaxReplayCapacity,
			c.BatchSize, featureSize, c.Alpha, c.Beta, seed)
	}
	return nil, fmt.Errorf("create: no such buffer type %q", c.Type)
}

var errEmptyBuffer = errors.New("buffer is empty")
var errInsufficientSamples = errors.New("insufficient samples in buffer")

// ExpReplayError is an error returned by replay buffer operations
type ExpReplayError struct {
	Op  string
	Err error
}

// Error implements the error interface
func (e *ExpReplayError) Error() string {
	return "expreplay: " + e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying error of an ExpReplayError
func (e *ExpReplayError) Unwrap() error {
	return e.Err
}

// IsEmptyBuffer returns whether err was caused by sampling an empty
// buffer
func IsEmptyBuffer(err error) bool {
	return errors.Is(err, errEmptyBuffer)
}

// IsInsufficientSamples returns whether err was caused by sampling a
// buffer that has not reached its minimum capacity
func IsInsufficientSamples(err error) bool {
	return errors.Is(err, errInsufficientSamples)
}
