package learner

import (
	"fmt"
	"os"
	"strconv"

	"github.com/sunwuzhou03/xuance/solver"
)

// Config implements the configuration settings shared by all Q
// learners. The same struct configures single-process and distributed
// training: when Distributed is false, Rank and WorldSize are ignored.
//
// Rank and WorldSize are explicit fields rather than something a
// learner discovers for itself at update time. A learner's placement
// in the world is fixed at construction and never changes, so update
// calls stay free of environment inspection.
type Config struct {
	// Gamma is the discount factor applied to bootstrapped values
	Gamma float64

	// SyncFrequency is the number of gradient steps between hard
	// synchronizations of the target network
	SyncFrequency int

	// UseGradClip determines whether gradients are rescaled to a
	// maximum global L2 norm of GradClipNorm before each step
	UseGradClip  bool
	GradClipNorm float64

	// Distributed marks this learner as one worker of a data-parallel
	// group of WorldSize workers, of which it is worker Rank
	Distributed bool
	Rank        int
	WorldSize   int

	// Solver adapts the network weights and Schedule anneals the
	// solver's learning rate once per gradient step
	Solver   *solver.Solver
	Schedule *solver.Schedule
}

// Validate ensures that the Config is valid
func (c Config) Validate() error {
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("validate: discount factor out of range "+
			"\n\twant(∈[0,1]) \n\thave(%v)", c.Gamma)
	}
	if c.SyncFrequency < 1 {
		return fmt.Errorf("validate: sync frequency must be positive "+
			"\n\twant(>0) \n\thave(%v)", c.SyncFrequency)
	}
	if c.UseGradClip && c.GradClipNorm <= 0 {
		return fmt.Errorf("validate: gradient clipping threshold must be "+
			"positive \n\twant(>0) \n\thave(%v)", c.GradClipNorm)
	}
	if c.Solver == nil {
		return fmt.Errorf("validate: no solver given")
	}
	if c.Schedule == nil {
		return fmt.Errorf("validate: no learning rate schedule given")
	}
	if c.Distributed {
		if c.WorldSize < 1 {
			return fmt.Errorf("validate: non-positive world size %v",
				c.WorldSize)
		}
		if c.Rank < 0 || c.Rank >= c.WorldSize {
			return fmt.Errorf("validate: rank out of range \n\twant(∈[0, "+
				"%v)) \n\thave(%v)", c.WorldSize, c.Rank)
		}
	}
	return nil
}

// RankFromEnv reads the worker rank from the RANK environment
// variable, as set by distributed launchers. An unset variable means
// rank 0.
func RankFromEnv() (int, error) {
	value, ok := os.LookupEnv("RANK")
	if !ok {
		return 0, nil
	}

	rank, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("rankfromenv: could not parse RANK=%q: %v",
			value, err)
	}
	return rank, nil
}
