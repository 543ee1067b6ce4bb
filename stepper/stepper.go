/*Package stepper contains the stepper motor device family, which rotates the
mirror between the angles a measure script visits.

Requests arrive on device.stepper_motor.move.begin (MoveBegin) and
device.stepper_motor.stop.  When a move completes the motor sends MoveEnd on
device.stepper_motor.move.end.
*/
package stepper

import (
	"fmt"

	"github.com/nasa-jpl/frog/bus"
	"github.com/nasa-jpl/frog/device"
	"github.com/nasa-jpl/frog/motion"
)

// BaseType describes the stepper motor family
var BaseType = device.BaseTypeInfo{
	Name:        "stepper_motor",
	Description: "Stepper motor",
}

// Ref is the instance reference of the (only) stepper motor
var Ref = device.InstanceRef{BaseType: BaseType.Name}

// topics
var (
	// Topic is the root topic of the stepper motor
	Topic = Ref.Topic()

	// TopicMoveBegin requests a move, with MoveBegin
	TopicMoveBegin = Topic + ".move.begin"

	// TopicMoveEnd is sent when a move completes, with MoveEnd
	TopicMoveEnd = Topic + ".move.end"

	// TopicStop requests that motion stop immediately
	TopicStop = Topic + ".stop"

	// TopicError carries errors from the stepper motor
	TopicError = Ref.ErrorTopic()
)

// MoveBegin is the payload of TopicMoveBegin
type MoveBegin struct {
	Target motion.Angle `json:"target"`
}

// MoveEnd is the payload of TopicMoveEnd
type MoveEnd struct {
	// MovedTo is the angle reached, in degrees
	MovedTo float64 `json:"moved_to"`
}

// Motor is a stepper motor driving the mirror
type Motor interface {
	// MoveTo starts a move to target.  Completion is reported by sending
	// MoveEnd, not by returning.
	MoveTo(target motion.Angle) error

	// Stop halts any move in progress
	Stop() error
}

// Bind subscribes m to the stepper motor request topics of base
func Bind(base *device.Base, m Motor) {
	base.Subscribe("move.begin", func(msg bus.Message) error {
		req, ok := msg.Data.(MoveBegin)
		if !ok {
			return fmt.Errorf("malformed move request: %v", msg.Data)
		}
		return m.MoveTo(req.Target)
	})
	base.Subscribe("stop", func(bus.Message) error {
		return m.Stop()
	})
}

// Register adds the stepper motor family and its device types to r
func Register(r *device.Registry) error {
	if err := r.RegisterBaseType(BaseType); err != nil {
		return err
	}
	if err := r.Register(BaseType.Name, DummyInfo, NewDummyDevice); err != nil {
		return err
	}
	return r.Register(BaseType.Name, RemoteInfo, NewRemoteDevice)
}
