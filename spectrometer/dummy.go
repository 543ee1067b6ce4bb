package spectrometer

import (
	"sync"
	"time"

	"github.com/nasa-jpl/frog/bus"
	"github.com/nasa-jpl/frog/device"
	"github.com/nasa-jpl/frog/util"
)

// DummyInfo describes the simulated spectrometer
var DummyInfo = device.TypeInfo{
	ClassName:   "spectrometer.dummy.DummySpectrometer",
	Description: "Dummy spectrometer",
	Parameters: map[string]device.Parameter{
		"measure_duration": {
			Description: "Time taken by a measurement, in seconds",
			Type:        device.TypeFloat,
			Default:     1.,
		},
	},
}

// DummyConfig holds the parameters of a Dummy
type DummyConfig struct {
	MeasureDuration float64 `mapstructure:"measure_duration"`
}

// Dummy is a simulated spectrometer.  It is connected as soon as it is
// open, and each measurement takes a fixed time.
type Dummy struct {
	*device.Base

	duration time.Duration

	mu     sync.Mutex
	status Status
	timer  *time.Timer
	gen    int
}

// NewDummy returns a new, open, connected Dummy spectrometer
func NewDummy(b *bus.Broker, cfg DummyConfig) (*Dummy, error) {
	base, err := device.NewBase(b, BaseType, DummyInfo.ClassName, "")
	if err != nil {
		return nil, err
	}
	d := &Dummy{
		Base:     base,
		duration: util.SecsToDuration(cfg.MeasureDuration),
	}
	Bind(base, d)
	d.SignalOpened()
	d.setStatus(Connected)
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

// Status returns the current status
func (d *Dummy) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

func (d *Dummy) setStatus(s Status) {
	d.mu.Lock()
	d.status = s
	d.mu.Unlock()
	d.Send("status."+s.String(), StatusMessage{Status: s})
}

// Connect reports the current status again; the dummy is always connected
func (d *Dummy) Connect() error {
	d.setStatus(d.Status())
	return nil
}

// StartMeasuring begins a measurement
func (d *Dummy) StartMeasuring() error {
	d.mu.Lock()
	if d.status != Connected {
		d.mu.Unlock()
		return ErrNotConnected
	}
	d.status = Measuring
	d.gen++
	gen := d.gen
	d.mu.Unlock()
	d.Send("status."+Measuring.String(), StatusMessage{Status: Measuring})

	// the timer starts after the measuring message so that connected is
	// always published second
	d.mu.Lock()
	if gen == d.gen {
		d.timer = time.AfterFunc(d.duration, func() { d.finish(gen) })
	}
	d.mu.Unlock()
	return nil
}

func (d *Dummy) finish(gen int) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.gen++
	d.timer = nil
	d.mu.Unlock()
	d.setStatus(Connected)
}

// StopMeasuring cancels a measurement in progress
func (d *Dummy) StopMeasuring() error {
	d.mu.Lock()
	if d.status != Measuring {
		d.mu.Unlock()
		return nil
	}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	d.mu.Unlock()
	d.setStatus(Connected)
	return nil
}

// Close cancels any measurement and releases the device
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
