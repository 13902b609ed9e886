package learner

import (
	"math"
	"testing"

	G "gorgonia.org/gorgonia"

	"github.com/sunwuzhou03/xuance/sample"
)

// TestPrioritizedDQNTDErrors checks that the update reports one
// non-negative TD error per sample. On a zero network each sample's
// target is its reward, so the TD errors are the absolute rewards.
func TestPrioritizedDQNTDErrors(t *testing.T) {
	const features, numActions, batch = 3, 2, 4

	pol := newQPolicy(t, features, numActions, batch, G.Zeroes())
	defer pol.Close()

	p, err := NewPrioritizedDQN(pol, frozenConfig(t, 0.9, 100))
	if err != nil {
		t.Fatalf("could not create learner: %v", err)
	}
	defer p.Close()

	rewards := []float64{-1, 0, 0.5, 2}
	batchData, err := sample.NewTransitions(
		make([]float64, batch*features),
		make([]float64, batch*features),
		[]int{0, 1, 0, 1},
		rewards,
		[]float64{0, 0, 1, 0},
		batch, features,
	)
	if err != nil {
		t.Fatalf("could not create batch: %v", err)
	}

	tdErrors, stats, err := p.Update(batchData)
	if err != nil {
		t.Fatalf("could not update: %v", err)
	}

	if len(tdErrors) != batch {
		t.Fatalf("wrong number of TD errors \n\twant(%v)\n\thave(%v)", batch,
			len(tdErrors))
	}
	for i, tdError := range tdErrors {
		if tdError < 0 {
			t.Errorf("negative TD error %v for sample %v", tdError, i)
		}
		if want := math.Abs(rewards[i]); math.Abs(tdError-want) > tolerance {
			t.Errorf("unexpected TD error of sample %v \n\twant(%v)"+
				"\n\thave(%v)", i, want, tdError)
		}
	}

	// mean([-1, 0, 0.5, 2]²) = 5.25/4
	if loss := stats[StatLoss]; math.Abs(loss-1.3125) > tolerance {
		t.Errorf("unexpected loss \n\twant(%v)\n\thave(%v)", 1.3125, loss)
	}
}

// TestPrioritizedDQNDistributedShard checks that a distributed learner
// trains on its own contiguous shard of the global batch and reports
// rank-suffixed statistics. The last rank absorbs the remainder of
// dividing the batch across the world.
func TestPrioritizedDQNDistributedShard(t *testing.T) {
	const features, numActions = 2, 2
	const globalBatch, rank, worldSize = 5, 1, 2

	start, end := sample.ShardRange(globalBatch, rank, worldSize)
	localBatch := end - start
	if localBatch != 3 {
		t.Fatalf("unexpected shard size \n\twant(%v)\n\thave(%v)", 3,
			localBatch)
	}

	pol := newQPolicy(t, features, numActions, localBatch, G.Zeroes())
	defer pol.Close()

	config := frozenConfig(t, 0.9, 100)
	config.Distributed = true
	config.Rank = rank
	config.WorldSize = worldSize

	p, err := NewPrioritizedDQN(pol, config)
	if err != nil {
		t.Fatalf("could not create learner: %v", err)
	}
	defer p.Close()

	rewards := []float64{1, 2, 3, 4, 5}
	batchData, err := sample.NewTransitions(
		make([]float64, globalBatch*features),
		make([]float64, globalBatch*features),
		[]int{0, 1, 0, 1, 0},
		rewards,
		[]float64{0, 0, 0, 1, 0},
		globalBatch, features,
	)
	if err != nil {
		t.Fatalf("could not create batch: %v", err)
	}

	tdErrors, stats, err := p.Update(batchData)
	if err != nil {
		t.Fatalf("could not update: %v", err)
	}

	if len(tdErrors) != localBatch {
		t.Fatalf("wrong number of TD errors \n\twant(%v)\n\thave(%v)",
			localBatch, len(tdErrors))
	}
	for i, tdError := range tdErrors {
		if want := rewards[start+i]; math.Abs(tdError-want) > tolerance {
			t.Errorf("unexpected TD error of shard sample %v \n\twant(%v)"+
				"\n\thave(%v)", i, want, tdError)
		}
	}

	if _, ok := stats["Qloss/rank_1"]; !ok {
		t.Errorf("missing rank-suffixed loss statistic, have %v", stats)
	}
	if _, ok := stats["Qloss"]; ok {
		t.Errorf("distributed statistics should not use unsuffixed keys")
	}
}
