package solver

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// ScheduleType describes different types of learning rate schedules
// that are available
type ScheduleType string

// Available schedule types
const (
	Linear   ScheduleType = "Linear"
	Constant ScheduleType = "Constant"
)

// Annealer computes the learning rate for each training iteration.
// Annealers are stepped once per gradient step; the resulting learning
// rate is pushed into a Stepper with SetLearnRate.
type Annealer interface {
	// Step advances the schedule by one iteration and returns the
	// learning rate to use for the next gradient step
	Step() float64

	// LearnRate returns the learning rate at the current iteration
	// without advancing the schedule
	LearnRate() float64
}

// Schedule wraps Annealers so that they can be JSON marshalled and
// unmarshalled.
type Schedule struct {
	Annealer `json:"-"`
	ScheduleType
	ScheduleConfig
}

// newSchedule returns a new schedule with the given type and
// configuration.
func newSchedule(t ScheduleType, c ScheduleConfig) (*Schedule, error) {
	if t != c.Type() {
		return nil, fmt.Errorf("newschedule: invalid schedule type %v for "+
			"configuration %T", t, c)
	}
	schedule := Schedule{ScheduleType: t, ScheduleConfig: c}
	schedule.Annealer = schedule.ScheduleConfig.Create()

	return &schedule, nil
}

// UnmarshalJSON implements the json.Unmarshaller interface
func (s *Schedule) UnmarshalJSON(data []byte) error {
	m := map[string]interface{}{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}

	typeName := m["ScheduleType"].(string)
	customTypes := map[string]reflect.Type{
		string(Linear):   reflect.TypeOf(LinearConfig{}),
		string(Constant): reflect.TypeOf(ConstantConfig{}),
	}
	var config ScheduleConfig
	if ty, found := customTypes[typeName]; found {
		config = reflect.New(ty).Interface().(ScheduleConfig)
	}

	valueBytes, err := json.Marshal(m["ScheduleConfig"])
	if err != nil {
		return err
	}
	if err = json.Unmarshal(valueBytes, &config); err != nil {
		return err
	}

	s.ScheduleType = ScheduleType(typeName)
	s.ScheduleConfig = reflect.ValueOf(config).Elem().Interface().(ScheduleConfig)
	s.Annealer = s.ScheduleConfig.Create()

	return nil
}

// ScheduleConfig implements a learning rate schedule configuration and
// can be used to create the Annealer it describes.
type ScheduleConfig interface {
	Create() Annealer

	// Type returns the type of Schedule the Config creates
	Type() ScheduleType
}

// LinearConfig describes a schedule that linearly interpolates the
// learning rate from StepSize*StartFactor to StepSize*EndFactor over
// TotalIters gradient steps, staying at the end value afterwards.
type LinearConfig struct {
	StepSize    float64
	StartFactor float64
	EndFactor   float64
	TotalIters  int
}

// NewLinear returns a new linear learning rate Schedule. A schedule
// decaying from the full step size to zero over the total number of
// training iterations is obtained with start factor 1 and end
// factor 0.
func NewLinear(stepSize, startFactor, endFactor float64,
	totalIters int) (*Schedule, error) {
	if totalIters < 1 {
		return nil, fmt.Errorf("newlinear: schedule must last a positive "+
			"number of iterations \n\twant(>0) \n\thave(%v)", totalIters)
	}
	config := LinearConfig{
		StepSize:    stepSize,
		StartFactor: startFactor,
		EndFactor:   endFactor,
		TotalIters:  totalIters,
	}

	return newSchedule(Linear, config)
}

// Type returns the type of Schedule the Config creates
func (l LinearConfig) Type() ScheduleType {
	return Linear
}

// Create returns a new linear Annealer as described by the
// LinearConfig
func (l LinearConfig) Create() Annealer {
	return &linear{LinearConfig: l}
}

// linear implements linear learning rate interpolation
type linear struct {
	LinearConfig
	iteration int
}

// Step advances the schedule by one iteration
func (l *linear) Step() float64 {
	if l.iteration < l.TotalIters {
		l.iteration++
	}
	return l.LearnRate()
}

// LearnRate returns the learning rate at the current iteration
func (l *linear) LearnRate() float64 {
	progress := float64(l.iteration) / float64(l.TotalIters)
	factor := l.StartFactor + (l.EndFactor-l.StartFactor)*progress
	return l.StepSize * factor
}

// ConstantConfig describes a schedule that keeps the learning rate
// fixed at StepSize.
type ConstantConfig struct {
	StepSize float64
}

// NewConstant returns a new constant learning rate Schedule
func NewConstant(stepSize float64) (*Schedule, error) {
	return newSchedule(Constant, ConstantConfig{StepSize: stepSize})
}

// Type returns the type of Schedule the Config creates
func (c ConstantConfig) Type() ScheduleType {
	return Constant
}

// Create returns a new constant Annealer as described by the
// ConstantConfig
func (c ConstantConfig) Create() Annealer {
	return &constant{ConstantConfig: c}
}

// constant implements a fixed learning rate
type constant struct {
	ConstantConfig
}

// Step advances the schedule by one iteration
func (c *constant) Step() float64 {
	return c.StepSize
}

// LearnRate returns the learning rate at the current iteration
func (c *constant) LearnRate() float64 {
	return c.StepSize
}
