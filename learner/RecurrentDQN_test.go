package learner

import (
	"math"
	"testing"

	G "gorgonia.org/gorgonia"

	"github.com/sunwuzhou03/xuance/policy"
	"github.com/sunwuzhou03/xuance/sample"
)

// newRecurrentPolicy returns a recurrent policy for sequence updates
func newRecurrentPolicy(t *testing.T, features, numActions, batch, seqLen,
	hiddenSize int, init G.InitWFn) *policy.RecurrentQPolicy {
	t.Helper()

	pol, err := policy.NewRecurrentQPolicy(0.1, features, numActions, batch,
		seqLen, hiddenSize, init, 14)
	if err != nil {
		t.Fatalf("could not create policy: %v", err)
	}
	return pol
}

// TestRecurrentDQNZeroNetworkTargets checks the sequence update on a
// network whose weights are all zero. Hidden states and action values
// stay zero through the unroll, so each step's target collapses to its
// reward and the reported TD errors are the step-major rewards.
func TestRecurrentDQNZeroNetworkTargets(t *testing.T) {
	const features, numActions = 1, 2
	const batch, seqLen, hiddenSize = 2, 2, 3

	pol := newRecurrentPolicy(t, features, numActions, batch, seqLen,
		hiddenSize, G.Zeroes())
	defer pol.Close()

	r, err := NewRecurrentDQN(pol, frozenConfig(t, 0.9, 100))
	if err != nil {
		t.Fatalf("could not create learner: %v", err)
	}
	defer r.Close()

	// Each sample holds seqLen+1 observations; actions, rewards, and
	// terminals are per decision step in (batch, step) order
	obs := []float64{
		0.1, 0.2, 0.3,
		0.4, 0.5, 0.6,
	}
	actions := []int{0, 1, 1, 0}
	rewards := []float64{1, 2, 3, 4}
	terminals := []float64{0, 0, 1, 0}

	batchData, err := sample.NewSequences(obs, actions, rewards, terminals,
		batch, seqLen, features)
	if err != nil {
		t.Fatalf("could not create batch: %v", err)
	}

	stats, err := r.Update(batchData)
	if err != nil {
		t.Fatalf("could not update: %v", err)
	}

	// mean([1, 2, 3, 4]²) = 30/4
	if loss := stats[StatLoss]; math.Abs(loss-7.5) > tolerance {
		t.Errorf("unexpected loss \n\twant(%v)\n\thave(%v)", 7.5, loss)
	}
	if predictQ := stats[StatPredictQ]; math.Abs(predictQ) > tolerance {
		t.Errorf("unexpected mean prediction \n\twant(%v)\n\thave(%v)", 0.0,
			predictQ)
	}

	// Batch-major rewards (1, 2), (3, 4) reorder to step-major 1, 3, 2, 4
	wantTD := []float64{1, 3, 2, 4}
	tdErrors := r.TDErrors()
	if len(tdErrors) != batch*seqLen {
		t.Fatalf("wrong number of TD errors \n\twant(%v)\n\thave(%v)",
			batch*seqLen, len(tdErrors))
	}
	for i, want := range wantTD {
		if math.Abs(tdErrors[i]-want) > tolerance {
			t.Errorf("unexpected TD error of step %v \n\twant(%v)"+
				"\n\thave(%v)", i, want, tdErrors[i])
		}
	}
}

// TestRecurrentDQNTargets checks the sequence update's TD errors
// against a manual computation on a randomly initialized network. The
// training network predicts on each sample's first seqLen observations
// and the target network bootstraps on the last seqLen.
func TestRecurrentDQNTargets(t *testing.T) {
	const features, numActions = 2, 2
	const batch, seqLen, hiddenSize = 2, 2, 3
	const gamma = 0.9

	pol := newRecurrentPolicy(t, features, numActions, batch, seqLen,
		hiddenSize, G.GlorotU(1.0))
	defer pol.Close()

	r, err := NewRecurrentDQN(pol, frozenConfig(t, gamma, 100))
	if err != nil {
		t.Fatalf("could not create learner: %v", err)
	}
	defer r.Close()

	obs := []float64{
		0.1, -0.2, 0.3, 0.4, -0.5, 0.6,
		0.7, 0.1, -0.3, 0.2, 0.5, -0.1,
	}
	actions := []int{0, 1, 1, 0}
	rewards := []float64{1, 2, 3, 4}
	terminals := []float64{0, 0, 1, 0}

	batchData, err := sample.NewSequences(obs, actions, rewards, terminals,
		batch, seqLen, features)
	if err != nil {
		t.Fatalf("could not create batch: %v", err)
	}

	// Gather the current-step and next-step observation windows of each
	// sample in flat (batch, step, feature) order
	stride := (seqLen + 1) * features
	window := func(offset int) []float64 {
		out := make([]float64, batch*seqLen*features)
		for b := 0; b < batch; b++ {
			src := b*stride + offset*features
			copy(out[b*seqLen*features:(b+1)*seqLen*features],
				obs[src:src+seqLen*features])
		}
		return out
	}

	// Target and training networks hold identical weights until the
	// first sync, so both predictions can be read off the target net.
	// TargetValues returns step-major rows.
	qNext, greedy, err := pol.TargetValues(window(1))
	if err != nil {
		t.Fatalf("could not predict next step values: %v", err)
	}
	qCurrent, _, err := pol.TargetValues(window(0))
	if err != nil {
		t.Fatalf("could not predict current step values: %v", err)
	}

	if _, err := r.Update(batchData); err != nil {
		t.Fatalf("could not update: %v", err)
	}

	tdErrors := r.TDErrors()
	for step := 0; step < seqLen; step++ {
		for b := 0; b < batch; b++ {
			row := step*batch + b
			bootstrap := qNext[row*numActions+greedy[row]]
			target := rewards[b*seqLen+step] +
				gamma*(1-terminals[b*seqLen+step])*bootstrap
			predict := qCurrent[row*numActions+actions[b*seqLen+step]]

			want := target - predict
			if math.Abs(tdErrors[row]-want) > tolerance {
				t.Errorf("unexpected TD error of sample %v step %v "+
					"\n\twant(%v)\n\thave(%v)", b, step, want, tdErrors[row])
			}
		}
	}
}
