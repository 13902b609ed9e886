package main

import (
	"fmt"
	"log"

	"gonum.org/v1/gonum/spatial/r1"

	"github.com/sunwuzhou03/xuance/agent/dqn"
	"github.com/sunwuzhou03/xuance/environment"
	"github.com/sunwuzhou03/xuance/environment/classiccontrol/cartpole"
	"github.com/sunwuzhou03/xuance/experiment"
	"github.com/sunwuzhou03/xuance/experiment/tracker"
	"github.com/sunwuzhou03/xuance/expreplay"
	"github.com/sunwuzhou03/xuance/initwfn"
	"github.com/sunwuzhou03/xuance/network"
	"github.com/sunwuzhou03/xuance/solver"
)

func main() {
	var seed uint64 = 192382

	// Create the environment
	bounds := r1.Interval{Min: -0.05, Max: 0.05}

	s := environment.NewUniformStarter([]r1.Interval{bounds, bounds, bounds,
		bounds}, seed)
	task := cartpole.NewBalance(s, 500, cartpole.FailAngle)
	env, _ := cartpole.New(task, 0.99)

	// Create the learning algorithm
	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		log.Fatalf("could not create weight initializer: %v", err)
	}
	adam, err := solver.NewDefaultAdam(0.001)
	if err != nil {
		log.Fatalf("could not create solver: %v", err)
	}
	schedule, err := solver.NewConstant(0.001)
	if err != nil {
		log.Fatalf("could not create learning rate schedule: %v", err)
	}

	config := dqn.Config{
		PolicyLayers: []int{64, 64},
		Biases:       []bool{true, true},
		Activations: []*network.Activation{network.ReLU(),
			network.ReLU()},
		InitWFn:  init,
		Solver:   adam,
		Schedule: schedule,
		Epsilon:  0.1,

		Gamma:         0.99,
		SyncFrequency: 100,

		ExpReplay: expreplay.Config{
			Type:              expreplay.Uniform,
			MinReplayCapacity: 100,
			MaxReplayCapacity: 10_000,
			BatchSize:         32,
		},
	}

	agent, err := config.CreateAgent(env, seed)
	if err != nil {
		log.Fatalf("could not create agent: %v", err)
	}

	// Experiment
	returns := tracker.NewReturn("./data.bin")
	e := experiment.NewOnline(env, agent, 100_000, returns)
	e.Run()
	e.Save()

	data := tracker.LoadData("./data.bin")
	fmt.Println(data[len(data)-10:])
}
