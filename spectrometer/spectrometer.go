/*Package spectrometer contains the spectrometer device family, which captures
the measurements a measure script requests.

Requests arrive on device.spectrometer.connect, .start_measuring and
.stop_measuring.  Every change of status is reported on
device.spectrometer.status.<status> with a StatusMessage, so listeners may
subscribe to exactly the transition they care about.
*/
package spectrometer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nasa-jpl/frog/bus"
	"github.com/nasa-jpl/frog/device"
)

// Status is the state of a spectrometer
type Status int

const (
	// Undefined is the status before anything is known
	Undefined Status = iota

	// Idle is a spectrometer that is not connected
	Idle

	// Connecting is a spectrometer establishing its link
	Connecting

	// Connected is a spectrometer ready to measure
	Connected

	// Measuring is a spectrometer capturing a measurement
	Measuring

	// Finishing is a spectrometer storing a measurement
	Finishing

	// Cancelling is a spectrometer abandoning a measurement
	Cancelling
)

var statusNames = []string{"undefined", "idle", "connecting", "connected", "measuring", "finishing", "cancelling"}

// ErrUnknownStatus is generated when a status name is not recognized
var ErrUnknownStatus = errors.New("unknown spectrometer status")

// ErrNotConnected is generated when a measurement is requested of a
// spectrometer that is not ready
var ErrNotConnected = errors.New("spectrometer is not connected")

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// MarshalText encodes the status as its name
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name
func (s *Status) UnmarshalText(b []byte) error {
	str := strings.ToLower(string(b))
	for i, n := range statusNames {
		if n == str {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownStatus, str)
}

// BaseType describes the spectrometer family
var BaseType = device.BaseTypeInfo{
	Name:        "spectrometer",
	Description: "Spectrometer",
}

// Ref is the instance reference of the (only) spectrometer
var Ref = device.InstanceRef{BaseType: BaseType.Name}

// topics
var (
	Topic               = Ref.Topic()
	TopicConnect        = Topic + ".connect"
	TopicStartMeasuring = Topic + ".start_measuring"
	TopicStopMeasuring  = Topic + ".stop_measuring"
	TopicError          = Ref.ErrorTopic()
)

// TopicStatus returns the topic a change to s is reported on
func TopicStatus(s Status) string {
	return Topic + ".status." + s.String()
}

// StatusMessage is the payload of the status topics
type StatusMessage struct {
	Status Status `json:"status"`
}

// Spectrometer is a device which captures spectra
type Spectrometer interface {
	Connect() error
	StartMeasuring() error
	StopMeasuring() error
}

// Bind subscribes s to the spectrometer request topics of base
func Bind(base *device.Base, s Spectrometer) {
	base.Subscribe("connect", func(bus.Message) error { return s.Connect() })
	base.Subscribe("start_measuring", func(bus.Message) error { return s.StartMeasuring() })
	base.Subscribe("stop_measuring", func(bus.Message) error { return s.StopMeasuring() })
}

// Register adds the spectrometer family and its device types to r
func Register(r *device.Registry) error {
	if err := r.RegisterBaseType(BaseType); err != nil {
		return err
	}
	return r.Register(BaseType.Name, DummyInfo, NewDummyDevice)
}
