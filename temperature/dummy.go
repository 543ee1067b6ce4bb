package temperature

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/nasa-jpl/frog/bus"
	"github.com/nasa-jpl/frog/device"
	"github.com/nasa-jpl/frog/util"
)

// ErrBelowAbsoluteZero is generated for a set point colder than 0 K
var ErrBelowAbsoluteZero = errors.New("set point is below absolute zero")

// DummyInfo describes the simulated temperature controller
var DummyInfo = device.TypeInfo{
	ClassName:   "temperature_controller.dummy.DummyTemperatureController",
	Description: "Dummy temperature controller",
	Parameters: map[string]device.Parameter{
		"set_point": {
			Description: "Initial set point, in degrees C",
			Type:        device.TypeFloat,
			Default:     70.,
		},
		"poll_interval": {
			Description: "Interval between readings, in seconds",
			Type:        device.TypeFloat,
			Default:     2.,
		},
	},
}

// DummyConfig holds the parameters of a Dummy
type DummyConfig struct {
	SetPoint     float64 `mapstructure:"set_point"`
	PollInterval float64 `mapstructure:"poll_interval"`
}

// ambient is the temperature a dummy starts at
const ambient Celsius = 20

// Dummy is a simulated black body which closes half of the gap to its set
// point on every tick
type Dummy struct {
	*device.Base

	ticker *time.Ticker
	stop   chan struct{}
	done   chan struct{}

	mu       sync.Mutex
	temp     Celsius
	setPoint Celsius
}

// NewDummy returns a new, open, Dummy controller called name
func NewDummy(b *bus.Broker, name string, cfg DummyConfig) (*Dummy, error) {
	if cfg.PollInterval <= 0 {
		return nil, device.ErrBadParameter
	}
	base, err := device.NewBase(b, BaseType, DummyInfo.ClassName, name)
	if err != nil {
		return nil, err
	}
	d := &Dummy{
		Base:     base,
		ticker:   time.NewTicker(util.SecsToDuration(cfg.PollInterval)),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		temp:     ambient,
		setPoint: Celsius(cfg.SetPoint),
	}
	Bind(base, d)
	d.SignalOpened()
	go d.runner()
	return d, nil
}

// NewDummyDevice is the registry factory for Dummy
func NewDummyDevice(b *bus.Broker, name string, params map[string]interface{}) (device.Device, error) {
	cfg := DummyConfig{}
	if err := device.DecodeParams(params, &cfg); err != nil {
		return nil, err
	}
	return NewDummy(b, name, cfg)
}

func (d *Dummy) runner() {
	defer close(d.done)
	for {
		select {
		case t := <-d.ticker.C:
			d.Send("data", d.Tick(t))
		case <-d.stop:
			return
		}
	}
}

// Tick advances the simulation by one step and returns the new reading
func (d *Dummy) Tick(t time.Time) Reading {
	d.mu.Lock()
	defer d.mu.Unlock()
	gap := d.setPoint - d.temp
	d.temp += gap / 2
	power := math.Min(100, math.Abs(float64(gap)))
	return Reading{Temperature: d.temp, Power: power, SetPoint: d.setPoint, Time: t}
}

// Temperature returns the current temperature
func (d *Dummy) Temperature() Celsius {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.temp
}

// SetPoint returns the set point
func (d *Dummy) SetPoint() Celsius {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setPoint
}

// ChangeSetPoint changes the set point
func (d *Dummy) ChangeSetPoint(c Celsius) error {
	if C2K(c) < 0 {
		return ErrBelowAbsoluteZero
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setPoint = c
	return nil
}

// Close stops the readings and releases the device
func (d *Dummy) Close() error {
	d.ticker.Stop()
	select {
	case <-d.done:
	default:
		close(d.stop)
		<-d.done
	}
	return d.Base.Close()
}
