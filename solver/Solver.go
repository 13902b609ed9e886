// Package solver implements gradient-based optimizers for adapting
// network weights, wrapped so that they can be JSON serialized into
// configuration files.
//
// The optimizers implemented here follow Gorgonia's solver contract of
// performing a single gradient step on a slice of ValueGrads, but
// additionally allow their learning rate to be changed between steps.
// Gorgonia's stock solvers fix the learning rate at construction,
// which rules out per-step learning rate schedules.
package solver

import (
	"encoding/json"
	"fmt"
	"reflect"

	G "gorgonia.org/gorgonia"
)

// Type describes different types of solvers that are available
type Type string

// Available solver types
const (
	Adam    Type = "Adam"
	Vanilla Type = "Vanilla"
)

// Stepper performs gradient steps on a model. Implementations mutate
// the model's weight values in place and are not safe for concurrent
// use.
type Stepper interface {
	// Step performs a single gradient step on the model
	Step(model []G.ValueGrad) error

	// SetLearnRate changes the learning rate used by subsequent calls
	// to Step
	SetLearnRate(float64)

	// LearnRate returns the current learning rate
	LearnRate() float64
}

// Solver wraps Steppers so that they can be JSON marshalled and
// unmarshalled.
type Solver struct {
	Stepper `json:"-"`
	Type
	Config
}

// newSolver returns a new solver with the given type and configuration.
func newSolver(t Type, c Config) (*Solver, error) {
	if !c.ValidType(t) {
		return nil, fmt.Errorf("newsolver: invalid solver type %v for "+
			"configuration %T", t, c)
	}
	solver := Solver{Type: t, Config: c}
	solver.Stepper = solver.Config.Create()

	return &solver, nil
}

// UnmarshalJSON implements the json.Unmarshaller interface
func (s *Solver) UnmarshalJSON(data []byte) error {
	config, typeName, err := unmarshalConfig(
		data,
		"Type",
		"Config",
		map[string]reflect.Type{
			string(Vanilla): reflect.TypeOf(VanillaConfig{}),
			string(Adam):    reflect.TypeOf(AdamConfig{}),
		})
	if err != nil {
		return err
	}

	s.Type = typeName
	s.Config = config
	s.Stepper = s.Config.Create()

	return nil
}

// unmarshalConfig uses reflection to unmarshal a Config into its
// concrete type. Both the Config and its Type are returned.
func unmarshalConfig(data []byte, typeJsonField, valueJsonField string,
	customTypes map[string]reflect.Type) (Config, Type, error) {
	m := map[string]interface{}{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, "", err
	}

	typeName := m[typeJsonField].(string)
	var value Config
	if ty, found := customTypes[typeName]; found {
		value = reflect.New(ty).Interface().(Config)
	}

	valueBytes, err := json.Marshal(m[valueJsonField])
	if err != nil {
		return nil, "", err
	}

	if err = json.Unmarshal(valueBytes, &value); err != nil {
		return nil, "", err
	}
	concreteValue := reflect.ValueOf(value).Elem().Interface().(Config)

	return concreteValue, Type(typeName), nil
}

// Config implements a solver configuration and can be used to create
// the Stepper it describes.
type Config interface {
	Create() Stepper

	// ValidType returns whether a specific Solver type can be created
	// with the Config
	ValidType(Type) bool
}
