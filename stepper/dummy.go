package stepper

import (
	"errors"
	"sync"
	"time"

	"github.com/nasa-jpl/frog/bus"
	"github.com/nasa-jpl/frog/device"
	"github.com/nasa-jpl/frog/motion"
	"github.com/nasa-jpl/frog/util"
)

// ErrBadSteps is generated when steps_per_rotation is not positive
var ErrBadSteps = errors.New("steps per rotation must be greater than zero")

// DummyInfo describes the simulated stepper motor
var DummyInfo = device.TypeInfo{
	ClassName:   "stepper_motor.dummy.DummyStepperMotor",
	Description: "Dummy stepper motor",
	Parameters: map[string]device.Parameter{
		"steps_per_rotation": {
			Description: "Number of steps in a full rotation",
			Type:        device.TypeInt,
			Default:     3600,
		},
		"move_duration": {
			Description: "Time taken by a move, in seconds",
			Type:        device.TypeFloat,
			Default:     1.,
		},
	},
}

// DummyConfig holds the parameters of a Dummy
type DummyConfig struct {
	StepsPerRotation int     `mapstructure:"steps_per_rotation"`
	MoveDuration     float64 `mapstructure:"move_duration"`
}

// Dummy is a simulated stepper motor.  A move takes a fixed time, after
// which the new position is committed and MoveEnd is sent.
type Dummy struct {
	*device.Base

	steps    int
	duration time.Duration

	mu      sync.Mutex
	step    int
	newStep int
	timer   *time.Timer
	moving  bool
	gen     int // incremented by each move, so stale timers are ignored
}

// NewDummy returns a new, open, Dummy stepper motor at step zero
func NewDummy(b *bus.Broker, cfg DummyConfig) (*Dummy, error) {
	if cfg.StepsPerRotation <= 0 {
		return nil, ErrBadSteps
	}
	base, err := device.NewBase(b, BaseType, DummyInfo.ClassName, "")
	if err != nil {
		return nil, err
	}
	d := &Dummy{
		Base:     base,
		steps:    cfg.StepsPerRotation,
		duration: util.SecsToDuration(cfg.MoveDuration),
	}
	Bind(base, d)
	d.SignalOpened()
	return d, nil
}

// NewDummyDevice is the registry factory for Dummy
func NewDummyDevice(b *bus.Broker, name string, params map[string]interface{}) (device.Device, error) {
	cfg := DummyConfig{}
	if err := device.DecodeParams(params, &cfg); err != nil {
		return nil, err
	}
	return NewDummy(b, cfg)
}

// StepsPerRotation returns the resolution of the motor
func (d *Dummy) StepsPerRotation() int {
	return d.steps
}

// Step returns the committed position; a move in progress is not reflected
// until it completes
func (d *Dummy) Step() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.step
}

// Angle returns the committed position in degrees
func (d *Dummy) Angle() float64 {
	return motion.AngleFor(d.Step(), d.steps)
}

// IsMoving returns true while a move is in progress
func (d *Dummy) IsMoving() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.moving
}

// MoveTo starts a move to target
func (d *Dummy) MoveTo(target motion.Angle) error {
	step, err := motion.StepFor(target, d.steps)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.newStep = step
	d.moving = true
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.duration, func() { d.moveEnd(gen) })
	return nil
}

// Stop halts the motor where the current move was headed and reports the
// move as finished.  Stopping an idle motor is a no-op.
func (d *Dummy) Stop() error {
	d.mu.Lock()
	if !d.moving {
		d.mu.Unlock()
		return nil
	}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	gen := d.gen
	d.mu.Unlock()
	d.moveEnd(gen)
	return nil
}

func (d *Dummy) moveEnd(gen int) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.gen++
	d.step = d.newStep
	d.moving = false
	d.timer = nil
	angle := motion.AngleFor(d.step, d.steps)
	d.mu.Unlock()
	d.Send("move.end", MoveEnd{MovedTo: angle})
}

// Close stops any move in progress and releases the device
func (d *Dummy) Close() error {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	d.mu.Unlock()
	return d.Base.Close()
}
