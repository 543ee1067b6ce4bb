/*Package sensors contains the housekeeping sensor device family and a
recorder for the readings it publishes.

There is one sensors device, with no name.  It sends a []Reading on
device.sensors.data at its poll interval, and again whenever a message
arrives on device.sensors.request_readings.
*/
package sensors

import (
	"fmt"

	"github.com/nasa-jpl/frog/bus"
	"github.com/nasa-jpl/frog/device"
)

// BaseType describes the sensors family
var BaseType = device.BaseTypeInfo{
	Name:        "sensors",
	Description: "Sensors",
}

// Topic is the root topic of the sensors device
var Topic = device.TopicRoot + "." + BaseType.Name

// TopicData carries the readings of every sensor
var TopicData = Topic + ".data"

// TopicRequestReadings asks the device to send its readings now
var TopicRequestReadings = Topic + ".request_readings"

// Ref returns the instance reference of the sensors device
func Ref() device.InstanceRef {
	return device.InstanceRef{BaseType: BaseType.Name}
}

// Reading is the value of one sensor
type Reading struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// ValueString formats the value with its unit
func (r Reading) ValueString() string {
	return fmt.Sprintf("%f %s", r.Value, r.Unit)
}

func (r Reading) String() string {
	return r.Name + " = " + r.ValueString()
}

// Source is a device that can be asked for its readings
type Source interface {
	RequestReadings()
}

// Bind subscribes s to the request topics of base
func Bind(base *device.Base, s Source) {
	base.Subscribe("request_readings", func(bus.Message) error {
		s.RequestReadings()
		return nil
	})
}

// Register adds the sensors family and its device types to r
func Register(r *device.Registry) error {
	if err := r.RegisterBaseType(BaseType); err != nil {
		return err
	}
	return r.Register(BaseType.Name, DummyInfo, NewDummyDevice)
}
