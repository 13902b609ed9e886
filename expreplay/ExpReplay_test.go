package expreplay

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/sunwuzhou03/xuance/timestep"
)

// transition builds a single-feature transition for buffer tests. The
// observation values double as sample identifiers.
func transition(state, nextState, reward float64, action int,
	end bool) timestep.Transition {
	return timestep.Transition{
		State:     mat.NewVecDense(1, []float64{state}),
		Action:    action,
		Reward:    reward,
		Discount:  1.0,
		NextState: mat.NewVecDense(1, []float64{nextState}),
		End:       end,
	}
}

func TestUniformBufferSample(t *testing.T) {
	const minCapacity, maxCapacity, batchSize = 3, 5, 2

	buffer, err := NewUniform(minCapacity, maxCapacity, batchSize, 1, 14)
	if err != nil {
		t.Fatalf("could not create buffer: %v", err)
	}

	if _, err := buffer.Sample(); !IsEmptyBuffer(err) {
		t.Errorf("expected empty buffer error, got %v", err)
	}

	if err := buffer.Add(transition(0, 1, 1, 0, false)); err != nil {
		t.Fatalf("could not add transition: %v", err)
	}
	if _, err := buffer.Sample(); !IsInsufficientSamples(err) {
		t.Errorf("expected insufficient samples error, got %v", err)
	}

	for i := 1; i < minCapacity; i++ {
		state := float64(i)
		if err := buffer.Add(transition(state, state+1, 1, i%2,
			false)); err != nil {
			t.Fatalf("could not add transition: %v", err)
		}
	}

	batch, err := buffer.Sample()
	if err != nil {
		t.Fatalf("could not sample: %v", err)
	}
	if batch.BatchSize != batchSize {
		t.Errorf("unexpected batch size \n\twant(%v)\n\thave(%v)", batchSize,
			batch.BatchSize)
	}
	for i := 0; i < batchSize; i++ {
		// Next observations always follow current observations by one
		if batch.ObsNext[i] != batch.Obs[i]+1 {
			t.Errorf("sample %v does not hold a stored transition: obs %v "+
				"next %v", i, batch.Obs[i], batch.ObsNext[i])
		}
	}
}

func TestUniformBufferOverwritesOldest(t *testing.T) {
	const maxCapacity = 3

	buffer, err := NewUniform(1, maxCapacity, 1, 1, 14)
	if err != nil {
		t.Fatalf("could not create buffer: %v", err)
	}

	for i := 0; i < maxCapacity+2; i++ {
		state := float64(i)
		if err := buffer.Add(transition(state, state+1, state, 0,
			false)); err != nil {
			t.Fatalf("could not add transition: %v", err)
		}
	}

	if buffer.Capacity() != maxCapacity {
		t.Fatalf("unexpected capacity \n\twant(%v)\n\thave(%v)", maxCapacity,
			buffer.Capacity())
	}

	// Transitions 0 and 1 were overwritten, so every sampled
	// observation belongs to transitions 2 through 4
	for trial := 0; trial < 20; trial++ {
		batch, err := buffer.Sample()
		if err != nil {
			t.Fatalf("could not sample: %v", err)
		}
		if batch.Obs[0] < 2 {
			t.Fatalf("sampled overwritten transition with obs %v",
				batch.Obs[0])
		}
	}
}

func TestPrioritizedBufferWeightsAndIndices(t *testing.T) {
	const minCapacity, maxCapacity, batchSize = 4, 8, 4

	buffer, err := NewPrioritized(minCapacity, maxCapacity, batchSize, 1,
		0.6, 0.4, 14)
	if err != nil {
		t.Fatalf("could not create buffer: %v", err)
	}

	for i := 0; i < maxCapacity; i++ {
		state := float64(i)
		if err := buffer.Add(transition(state, state+1, state, 0,
			false)); err != nil {
			t.Fatalf("could not add transition: %v", err)
		}
	}

	batch, err := buffer.Sample()
	if err != nil {
		t.Fatalf("could not sample: %v", err)
	}

	if len(batch.Weights) != batchSize {
		t.Fatalf("wrong number of importance weights \n\twant(%v)"+
			"\n\thave(%v)", batchSize, len(batch.Weights))
	}
	if len(batch.Indices) != batchSize {
		t.Fatalf("wrong number of buffer indices \n\twant(%v)\n\thave(%v)",
			batchSize, len(batch.Indices))
	}

	maxWeight := 0.0
	for i, weight := range batch.Weights {
		if weight <= 0 || weight > 1 {
			t.Errorf("importance weight %v of sample %v out of (0, 1]",
				weight, i)
		}
		if weight > maxWeight {
			maxWeight = weight
		}
	}
	if maxWeight != 1.0 {
		t.Errorf("importance weights not normalized by their maximum, "+
			"largest is %v", maxWeight)
	}

	// Batches are drawn without replacement
	seen := make(map[int]bool)
	for _, index := range batch.Indices {
		if seen[index] {
			t.Errorf("buffer index %v sampled twice in one batch", index)
		}
		seen[index] = true
	}
}

func TestPrioritizedBufferFollowsPriorities(t *testing.T) {
	const capacity, batchSize = 8, 2

	buffer, err := NewPrioritized(batchSize, capacity, batchSize, 1, 1.0,
		0.4, 14)
	if err != nil {
		t.Fatalf("could not create buffer: %v", err)
	}

	for i := 0; i < capacity; i++ {
		state := float64(i)
		if err := buffer.Add(transition(state, state+1, state, 0,
			false)); err != nil {
			t.Fatalf("could not add transition: %v", err)
		}
	}

	// Crush every priority except transition 3's
	indices := make([]int, capacity)
	tdErrors := make([]float64, capacity)
	for i := range indices {
		indices[i] = i
	}
	tdErrors[3] = 1e6
	if err := buffer.UpdatePriorities(indices, tdErrors); err != nil {
		t.Fatalf("could not update priorities: %v", err)
	}

	for trial := 0; trial < 10; trial++ {
		batch, err := buffer.Sample()
		if err != nil {
			t.Fatalf("could not sample: %v", err)
		}

		found := false
		for _, index := range batch.Indices {
			if index == 3 {
				found = true
			}
		}
		if !found {
			t.Fatalf("dominant priority not sampled in trial %v", trial)
		}
	}

	if err := buffer.UpdatePriorities([]int{0}, []float64{1,
		2}); err == nil {
		t.Error("mismatched priority update accepted")
	}
	if err := buffer.UpdatePriorities([]int{0},
		[]float64{-1}); err == nil {
		t.Error("negative priority accepted")
	}
}

func TestEpisodeBufferWindows(t *testing.T) {
	const minCapacity, maxCapacity, batchSize, seqLen = 1, 4, 3, 2

	buffer, err := NewEpisode(minCapacity, maxCapacity, batchSize, seqLen,
		1, 14)
	if err != nil {
		t.Fatalf("could not create buffer: %v", err)
	}

	if _, err := buffer.Sample(); !IsEmptyBuffer(err) {
		t.Errorf("expected empty buffer error, got %v", err)
	}

	// A one-step episode is too short for a two-step window
	if err := buffer.Add(transition(100, 101, 0, 0, true)); err != nil {
		t.Fatalf("could not add transition: %v", err)
	}
	if buffer.Capacity() != 0 {
		t.Errorf("short episode stored")
	}

	// One five-step episode with observations 0..5, where each step's
	// reward equals its current observation
	for i := 0; i < 5; i++ {
		state := float64(i)
		if err := buffer.Add(transition(state, state+1, state, i%2,
			i == 4)); err != nil {
			t.Fatalf("could not add transition: %v", err)
		}
	}
	if buffer.Capacity() != 1 {
		t.Fatalf("unexpected capacity \n\twant(%v)\n\thave(%v)", 1,
			buffer.Capacity())
	}

	batch, err := buffer.Sample()
	if err != nil {
		t.Fatalf("could not sample: %v", err)
	}
	if batch.BatchSize != batchSize || batch.SeqLen != seqLen {
		t.Fatalf("unexpected batch shape \n\twant(%v, %v)\n\thave(%v, %v)",
			batchSize, seqLen, batch.BatchSize, batch.SeqLen)
	}

	for b := 0; b < batchSize; b++ {
		// Windows are contiguous, so observations increase by one and
		// each step's reward matches its current observation
		first := batch.Obs[b*(seqLen+1)]
		for step := 0; step <= seqLen; step++ {
			if have := batch.Obs[b*(seqLen+1)+step]; have != first+
				float64(step) {
				t.Errorf("window %v not contiguous at step %v: %v", b, step,
					have)
			}
		}
		for step := 0; step < seqLen; step++ {
			obs := batch.Obs[b*(seqLen+1)+step]
			if reward := batch.Rewards[b*seqLen+step]; reward != obs {
				t.Errorf("window %v reward misaligned at step %v "+
					"\n\twant(%v)\n\thave(%v)", b, step, obs, reward)
			}
		}
	}
}
