package sensors

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/nasa-jpl/frog/bus"
	"github.com/nasa-jpl/frog/device"
	"github.com/nasa-jpl/frog/util"
)

// DummyInfo describes the simulated EM27 housekeeping sensors
var DummyInfo = device.TypeInfo{
	ClassName:   "sensors.dummy.DummyEM27Sensors",
	Description: "Dummy EM27 sensors",
	Parameters: map[string]device.Parameter{
		"poll_interval": {
			Description: "Interval between readings, in seconds",
			Type:        device.TypeFloat,
			Default:     2.,
		},
	},
}

// DummyConfig holds the parameters of a Dummy
type DummyConfig struct {
	PollInterval float64 `mapstructure:"poll_interval"`
}

// dummyTable is what the simulated sensors read at rest; every value wanders
// by Swing around Value
var dummyTable = []struct {
	Reading
	Swing float64
}{
	{Reading{Name: "Voltage", Value: 24.1, Unit: "V"}, 0.1},
	{Reading{Name: "Current", Value: 1.35, Unit: "A"}, 0.05},
	{Reading{Name: "Temperature board", Value: 31.5, Unit: "deg C"}, 0.5},
	{Reading{Name: "Temperature scanner", Value: 28.2, Unit: "deg C"}, 0.5},
	{Reading{Name: "Pressure", Value: 1013.2, Unit: "hPa"}, 1},
	{Reading{Name: "Humidity", Value: 12, Unit: "%"}, 2},
	{Reading{Name: "Laser intensity", Value: 86, Unit: "%"}, 1},
}

// Dummy is a simulated set of EM27 housekeeping sensors.  Readings are
// produced on the device's worker, on a ticker and on request.
type Dummy struct {
	*device.Base

	worker *device.Worker
	ticker *time.Ticker
	stop   chan struct{}
	done   chan struct{}

	mu    sync.Mutex
	count int
}

// NewDummy returns a new, open, Dummy which sends its first readings at once
func NewDummy(b *bus.Broker, cfg DummyConfig) (*Dummy, error) {
	if cfg.PollInterval <= 0 {
		return nil, device.ErrBadParameter
	}
	base, err := device.NewBase(b, BaseType, DummyInfo.ClassName, "")
	if err != nil {
		return nil, err
	}
	d := &Dummy{
		Base:   base,
		worker: device.NewWorker(base, 4),
		ticker: time.NewTicker(util.SecsToDuration(cfg.PollInterval)),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	Bind(base, d)
	d.SignalOpened()
	d.RequestReadings()
	go d.poll()
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

func (d *Dummy) poll() {
	defer close(d.done)
	for {
		select {
		case <-d.ticker.C:
			d.RequestReadings()
		case <-d.stop:
			return
		}
	}
}

// RequestReadings queues a read of every sensor on the worker; the result
// is sent on the data topic
func (d *Dummy) RequestReadings() {
	d.worker.Submit(func(ctx context.Context) error {
		d.Send("data", d.Sample())
		return nil
	})
}

// Sample reads every sensor
func (d *Dummy) Sample() []Reading {
	d.mu.Lock()
	n := d.count
	d.count++
	d.mu.Unlock()
	out := make([]Reading, len(dummyTable))
	for i, row := range dummyTable {
		out[i] = row.Reading
		out[i].Value += row.Swing * math.Sin(float64(n+i)/10)
	}
	return out
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
	d.worker.Stop()
	return d.Base.Close()
}
