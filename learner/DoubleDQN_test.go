package learner

import (
	"math"
	"testing"

	G "gorgonia.org/gorgonia"

	"github.com/sunwuzhou03/xuance/network"
	"github.com/sunwuzhou03/xuance/policy"
	"github.com/sunwuzhou03/xuance/sample"
	"github.com/sunwuzhou03/xuance/solver"
)

const tolerance float64 = 1e-10

// frozenConfig returns a Config whose solver never changes any weights,
// so that network outputs stay deterministic across updates.
func frozenConfig(t *testing.T, gamma float64, syncFrequency int) Config {
	t.Helper()

	sol, err := solver.NewVanilla(0.0)
	if err != nil {
		t.Fatalf("could not create solver: %v", err)
	}
	schedule, err := solver.NewConstant(0.0)
	if err != nil {
		t.Fatalf("could not create schedule: %v", err)
	}

	return Config{
		Gamma:         gamma,
		SyncFrequency: syncFrequency,
		Solver:        sol,
		Schedule:      schedule,
	}
}

// learningConfig returns a Config that takes real gradient steps
func learningConfig(t *testing.T, gamma float64, syncFrequency int) Config {
	t.Helper()

	sol, err := solver.NewVanilla(0.1)
	if err != nil {
		t.Fatalf("could not create solver: %v", err)
	}
	schedule, err := solver.NewConstant(0.1)
	if err != nil {
		t.Fatalf("could not create schedule: %v", err)
	}

	return Config{
		Gamma:         gamma,
		SyncFrequency: syncFrequency,
		Solver:        sol,
		Schedule:      schedule,
	}
}

// newQPolicy returns a policy over a single-hidden-layer network
func newQPolicy(t *testing.T, features, numActions, batch int,
	init G.InitWFn) *policy.EGreedyQPolicy {
	t.Helper()

	pol, err := policy.NewEGreedyQPolicy(0.1, features, numActions, batch,
		[]int{2}, []bool{true}, []*network.Activation{network.ReLU()}, init,
		14)
	if err != nil {
		t.Fatalf("could not create policy: %v", err)
	}
	return pol
}

// TestDoubleDQNZeroNetworkTargets checks the update on a network whose
// weights are all zero. Every action value is zero, so each sample's
// target collapses to its reward and the cost is the mean squared
// reward.
func TestDoubleDQNZeroNetworkTargets(t *testing.T) {
	const features, numActions, batch = 3, 2, 4

	pol := newQPolicy(t, features, numActions, batch, G.Zeroes())
	defer pol.Close()

	d, err := NewDoubleDQN(pol, frozenConfig(t, 0.9, 100))
	if err != nil {
		t.Fatalf("could not create learner: %v", err)
	}
	defer d.Close()

	batchData, err := sample.NewTransitions(
		make([]float64, batch*features),
		make([]float64, batch*features),
		[]int{0, 1, 0, 1},
		[]float64{1, 0, 0, 2},
		[]float64{0, 0, 1, 0},
		batch, features,
	)
	if err != nil {
		t.Fatalf("could not create batch: %v", err)
	}

	stats, err := d.Update(batchData)
	if err != nil {
		t.Fatalf("could not update: %v", err)
	}

	// mean([1, 0, 0, 2]²) = 5/4
	if loss := stats[StatLoss]; math.Abs(loss-1.25) > tolerance {
		t.Errorf("unexpected loss \n\twant(%v)\n\thave(%v)", 1.25, loss)
	}
	if predictQ := stats[StatPredictQ]; math.Abs(predictQ) > tolerance {
		t.Errorf("unexpected mean prediction \n\twant(%v)\n\thave(%v)", 0.0,
			predictQ)
	}

	tdErrors := d.TDErrors()
	for i, want := range batchData.Rewards {
		if math.Abs(tdErrors[i]-want) > tolerance {
			t.Errorf("TD error of sample %v should equal its reward "+
				"\n\twant(%v)\n\thave(%v)", i, want, tdErrors[i])
		}
	}
}

// TestDoubleDQNTargets checks the update's TD errors against a manual
// computation of r + γ·(1-terminal)·Q'(s', argmax Q'(s', ·)) - Q(s, a)
// on a randomly initialized network.
func TestDoubleDQNTargets(t *testing.T) {
	const features, numActions, batch = 3, 2, 4
	const gamma = 0.9

	pol := newQPolicy(t, features, numActions, batch, G.GlorotU(1.0))
	defer pol.Close()

	d, err := NewDoubleDQN(pol, frozenConfig(t, gamma, 100))
	if err != nil {
		t.Fatalf("could not create learner: %v", err)
	}
	defer d.Close()

	obs := []float64{
		0.1, -0.2, 0.3,
		0.5, 0.1, -0.4,
		-0.3, 0.2, 0.6,
		0.7, -0.5, 0.2,
	}
	obsNext := []float64{
		0.2, 0.1, -0.1,
		-0.6, 0.3, 0.2,
		0.4, -0.2, 0.5,
		0.1, 0.6, -0.3,
	}
	actions := []int{0, 1, 1, 0}
	rewards := []float64{1, 0, 0, 2}
	terminals := []float64{0, 0, 1, 0}

	batchData, err := sample.NewTransitions(obs, obsNext, actions, rewards,
		terminals, batch, features)
	if err != nil {
		t.Fatalf("could not create batch: %v", err)
	}

	// Target and training networks hold identical weights until the
	// first sync, so both predictions can be read off the target net.
	qNext, greedy, err := pol.TargetValues(obsNext)
	if err != nil {
		t.Fatalf("could not predict next state values: %v", err)
	}
	qCurrent, _, err := pol.TargetValues(obs)
	if err != nil {
		t.Fatalf("could not predict current state values: %v", err)
	}

	if _, err := d.Update(batchData); err != nil {
		t.Fatalf("could not update: %v", err)
	}

	tdErrors := d.TDErrors()
	for i := 0; i < batch; i++ {
		bootstrap := qNext[i*numActions+greedy[i]]
		target := rewards[i] + gamma*(1-terminals[i])*bootstrap
		predict := qCurrent[i*numActions+actions[i]]

		if want := target - predict; math.Abs(tdErrors[i]-want) > tolerance {
			t.Errorf("unexpected TD error of sample %v \n\twant(%v)"+
				"\n\thave(%v)", i, want, tdErrors[i])
		}
	}

	// Sample 2 is terminal, so nothing is bootstrapped and its target
	// is exactly its reward
	terminalPredict := qCurrent[2*numActions+actions[2]]
	if want := rewards[2] - terminalPredict; math.Abs(tdErrors[2]-want) >
		tolerance {
		t.Errorf("terminal transition should not bootstrap \n\twant(%v)"+
			"\n\thave(%v)", want, tdErrors[2])
	}
}

// TestDoubleDQNSyncFrequency checks that the target network only picks
// up the training network's weights every SyncFrequency updates.
func TestDoubleDQNSyncFrequency(t *testing.T) {
	const features, numActions, batch = 2, 2, 4
	const syncFrequency = 3

	pol := newQPolicy(t, features, numActions, batch, G.Zeroes())
	defer pol.Close()

	d, err := NewDoubleDQN(pol, learningConfig(t, 0.9, syncFrequency))
	if err != nil {
		t.Fatalf("could not create learner: %v", err)
	}
	defer d.Close()

	obs := make([]float64, batch*features)
	obsNext := make([]float64, batch*features)
	batchData, err := sample.NewTransitions(obs, obsNext,
		[]int{0, 0, 1, 1}, []float64{1, 1, 2, 2}, []float64{0, 0, 0, 0},
		batch, features)
	if err != nil {
		t.Fatalf("could not create batch: %v", err)
	}

	targetChanged := func() bool {
		values, _, err := pol.TargetValues(obsNext)
		if err != nil {
			t.Fatalf("could not predict target values: %v", err)
		}
		for _, value := range values {
			if value != 0 {
				return true
			}
		}
		return false
	}

	for update := 1; update <= 2*syncFrequency; update++ {
		if _, err := d.Update(batchData); err != nil {
			t.Fatalf("could not perform update %v: %v", update, err)
		}

		changed := targetChanged()
		if update < syncFrequency && changed {
			t.Fatalf("target network changed before sync at update %v",
				update)
		}
		if update >= syncFrequency && !changed {
			t.Fatalf("target network not synced at update %v", update)
		}
	}
}

// TestDoubleDQNLearningRateAnnealing checks that each update anneals
// the learning rate along the schedule and reports the annealed rate
// in its statistics.
func TestDoubleDQNLearningRateAnnealing(t *testing.T) {
	const features, numActions, batch = 2, 2, 4
	const stepSize = 0.2

	sol, err := solver.NewVanilla(stepSize)
	if err != nil {
		t.Fatalf("could not create solver: %v", err)
	}
	schedule, err := solver.NewLinear(stepSize, 1.0, 0.0, 4)
	if err != nil {
		t.Fatalf("could not create schedule: %v", err)
	}

	pol := newQPolicy(t, features, numActions, batch, G.Zeroes())
	defer pol.Close()

	d, err := NewDoubleDQN(pol, Config{
		Gamma:         0.9,
		SyncFrequency: 100,
		Solver:        sol,
		Schedule:      schedule,
	})
	if err != nil {
		t.Fatalf("could not create learner: %v", err)
	}
	defer d.Close()

	// Zero rewards on a zero network give zero gradients, so updates
	// change nothing but the learning rate
	batchData, err := sample.NewTransitions(
		make([]float64, batch*features),
		make([]float64, batch*features),
		[]int{0, 1, 0, 1},
		make([]float64, batch),
		make([]float64, batch),
		batch, features,
	)
	if err != nil {
		t.Fatalf("could not create batch: %v", err)
	}

	// Linear anneal of 0.2 to 0 over 4 steps
	for update, want := range []float64{0.15, 0.10, 0.05, 0.0, 0.0} {
		stats, err := d.Update(batchData)
		if err != nil {
			t.Fatalf("could not perform update %v: %v", update+1, err)
		}

		learnRate := stats[StatLearnRate]
		if math.Abs(learnRate-want) > tolerance {
			t.Errorf("unexpected learning rate after update %v \n\twant(%v)"+
				"\n\thave(%v)", update+1, want, learnRate)
		}
		if solverRate := sol.LearnRate(); solverRate != learnRate {
			t.Errorf("solver learning rate differs from reported rate "+
				"after update %v \n\twant(%v)\n\thave(%v)", update+1,
				learnRate, solverRate)
		}
	}
}

// TestDoubleDQNConfigValidation checks that invalid configurations are
// rejected at construction time
func TestDoubleDQNConfigValidation(t *testing.T) {
	const features, numActions, batch = 2, 2, 4

	invalid := []func(Config) Config{
		func(c Config) Config { c.Gamma = 1.5; return c },
		func(c Config) Config { c.Gamma = -0.1; return c },
		func(c Config) Config { c.SyncFrequency = 0; return c },
		func(c Config) Config { c.UseGradClip = true; return c },
		func(c Config) Config { c.Solver = nil; return c },
		func(c Config) Config { c.Schedule = nil; return c },
		func(c Config) Config {
			c.Distributed = true
			c.Rank = 2
			c.WorldSize = 2
			return c
		},
	}

	for i, corrupt := range invalid {
		pol := newQPolicy(t, features, numActions, batch, G.Zeroes())

		config := corrupt(frozenConfig(t, 0.9, 100))
		if _, err := NewDoubleDQN(pol, config); err == nil {
			t.Errorf("invalid configuration %v accepted", i)
		}
		pol.Close()
	}
}

func BenchmarkDoubleDQNUpdate(b *testing.B) {
	const features, numActions, batch = 4, 3, 32

	pol, err := policy.NewEGreedyQPolicy(0.1, features, numActions, batch,
		[]int{64}, []bool{true}, []*network.Activation{network.ReLU()},
		G.GlorotU(1.0), 14)
	if err != nil {
		b.Fatalf("could not create policy: %v", err)
	}
	defer pol.Close()

	sol, err := solver.NewDefaultAdam(0.001)
	if err != nil {
		b.Fatalf("could not create solver: %v", err)
	}
	schedule, err := solver.NewConstant(0.001)
	if err != nil {
		b.Fatalf("could not create schedule: %v", err)
	}

	d, err := NewDoubleDQN(pol, Config{
		Gamma:         0.99,
		SyncFrequency: 100,
		Solver:        sol,
		Schedule:      schedule,
	})
	if err != nil {
		b.Fatalf("could not create learner: %v", err)
	}
	defer d.Close()

	actions := make([]int, batch)
	for i := range actions {
		actions[i] = i % numActions
	}
	batchData, err := sample.NewTransitions(
		make([]float64, batch*features),
		make([]float64, batch*features),
		actions,
		make([]float64, batch),
		make([]float64, batch),
		batch, features,
	)
	if err != nil {
		b.Fatalf("could not create batch: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := d.Update(batchData); err != nil {
			b.Fatal(err)
		}
	}
}
