// Package floatutils provides utilities for working with floats
package floatutils

import (
	"math"

	"gonum.org/v1/gonum/spatial/r1"
)

// Clip clips value to the range [min, max]
func Clip(value, min, max float64) float64 {
	return math.Max(math.Min(value, max), min)
}

// ClipInterval clips value to an r1.Interval
func ClipInterval(value float64, interval r1.Interval) float64 {
	return Clip(value, interval.Min, interval.Max)
}

// MaxSlice returns the maximum value in a non-empty slice together
// with the indices of every element attaining it, in increasing order
func MaxSlice(values []float64) (max float64, indices []int) {
	max = values[0]
	for _, value := range values[1:] {
		if value > max {
			max = value
		}
	}

	for i, value := range values {
		if value == max {
			indices = append(indices, i)
		}
	}
	return max, indices
}
