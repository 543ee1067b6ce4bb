/*Package temperature contains the black body temperature controller device
family and a recorder for the readings they publish.

There are two controllers, hot_bb and cold_bb.  Each sends a Reading on
device.temperature_controller.<name>.data at its poll interval and accepts
a new set point on device.temperature_controller.<name>.change_set_point
with {"f64": degrees C}.
*/
package temperature

import (
	"fmt"
	"time"

	"github.com/nasa-jpl/frog/bus"
	"github.com/nasa-jpl/frog/device"
	"github.com/nasa-jpl/frog/generichttp"
)

type (
	// Celsius is a temperature in C
	Celsius float64

	// Kelvin is a temperature in K
	Kelvin float64
)

// C2K converts a temp in Celsius to Kelvin
func C2K(c Celsius) Kelvin {
	return Kelvin(c + 273.15)
}

// K2C converts a temp in Kelvin to Celsius
func K2C(k Kelvin) Celsius {
	return Celsius(k - 273.15)
}

// BaseType describes the temperature controller family
var BaseType = device.BaseTypeInfo{
	Name:        "temperature_controller",
	Description: "Temperature controller",
	NamesShort:  []string{"hot_bb", "cold_bb"},
	NamesLong:   []string{"Hot black body", "Cold black body"},
}

// Topic is the root topic of all temperature controllers
var Topic = device.TopicRoot + "." + BaseType.Name

// Ref returns the instance reference of the controller called name
func Ref(name string) device.InstanceRef {
	return device.InstanceRef{BaseType: BaseType.Name, Name: name}
}

// Reading is the payload of the data topic
type Reading struct {
	Temperature Celsius   `json:"temperature"`
	Power       float64   `json:"power"`
	SetPoint    Celsius   `json:"set_point"`
	Time        time.Time `json:"time"`
}

// Controller is a device that regulates a black body to a set point
type Controller interface {
	SetPoint() Celsius
	ChangeSetPoint(Celsius) error
}

// Bind subscribes c to the request topics of base
func Bind(base *device.Base, c Controller) {
	base.Subscribe("change_set_point", func(m bus.Message) error {
		var f float64
		switch v := m.Data.(type) {
		case generichttp.FloatT:
			f = v.F64
		case float64:
			f = v
		case Celsius:
			f = float64(v)
		default:
			return fmt.Errorf("malformed set point: %v", m.Data)
		}
		return c.ChangeSetPoint(Celsius(f))
	})
}

// Register adds the temperature controller family and its device types to r
func Register(r *device.Registry) error {
	if err := r.RegisterBaseType(BaseType); err != nil {
		return err
	}
	return r.Register(BaseType.Name, DummyInfo, NewDummyDevice)
}
