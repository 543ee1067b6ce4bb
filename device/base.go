package device

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/nasa-jpl/frog/bus"
)

type pending struct {
	topic string
	fn    bus.Handler
}

// Base holds the state common to every device and is embedded by concrete
// device types.  Bases must be created with NewBase.
type Base struct {
	broker    *bus.Broker
	info      BaseTypeInfo
	className string
	ref       InstanceRef

	mu     sync.Mutex
	isOpen bool
	wanted []pending
	subs   []*bus.Subscription
}

// NewBase validates name against the base type and returns a new Base.
// className is the registered class name of the concrete type.
func NewBase(b *bus.Broker, info BaseTypeInfo, className, name string) (*Base, error) {
	if len(info.NamesShort) == 0 {
		if name != "" {
			return nil, fmt.Errorf("%w: %s", ErrNameNotAllowed, name)
		}
	} else {
		found := false
		for _, n := range info.NamesShort {
			if n == name {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %q for %s", ErrInvalidName, name, info.Name)
		}
	}
	return &Base{
		broker:    b,
		info:      info,
		className: className,
		ref:       InstanceRef{BaseType: info.Name, Name: name},
	}, nil
}

// Ref returns the instance reference of the device
func (d *Base) Ref() InstanceRef {
	return d.ref
}

// Topic returns the root topic of the device, device.<instance>
func (d *Base) Topic() string {
	return d.ref.Topic()
}

// ClassName returns the registered class name of the device
func (d *Base) ClassName() string {
	return d.className
}

// Broker returns the broker the device communicates on
func (d *Base) Broker() *bus.Broker {
	return d.broker
}

// IsOpen returns true once SignalOpened has been called
func (d *Base) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isOpen
}

// SignalOpened marks the device as ready for use.  Subscriptions made before
// now become live, and the opened messages are sent.  Opening twice is a bug
// in the caller and panics.
func (d *Base) SignalOpened() {
	d.mu.Lock()
	if d.isOpen {
		d.mu.Unlock()
		panic(fmt.Sprintf("device %s is already open", d.ref))
	}
	d.isOpen = true
	for _, p := range d.wanted {
		d.subs = append(d.subs, d.broker.Subscribe(p.topic, p.fn))
	}
	d.wanted = nil
	d.mu.Unlock()

	short := d.className
	if idx := strings.LastIndexByte(short, '.'); idx >= 0 {
		short = short[idx+1:]
	}
	log.Printf("Opened device %s: %s\n", d.ref, short)

	// listeners to after_opening must always see the device before other
	// consumers react to it
	d.broker.Publish(TopicAfterOpening+"."+d.ref.String(), Opened{Instance: d.ref, ClassName: d.className})
	d.broker.Publish(TopicOpened+"."+d.ref.String(), nil)
}

func (d *Base) add(topic string, fn bus.Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.isOpen {
		d.wanted = append(d.wanted, pending{topic: topic, fn: fn})
		return
	}
	d.subs = append(d.subs, d.broker.Subscribe(topic, fn))
}

// guard runs fn, converting an error or panic into an error message
func (d *Base) guard(fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			d.SendError(fmt.Errorf("panic: %v", r))
		}
	}()
	if err := fn(); err != nil {
		d.SendError(err)
	}
}

// Subscribe calls fn for messages on <topic>.<suffix>.  Errors returned by fn
// are sent as error messages for this device.  Until the device is open the
// subscription is deferred.
func (d *Base) Subscribe(suffix string, fn func(bus.Message) error) {
	d.add(d.Topic()+"."+suffix, func(m bus.Message) {
		d.guard(func() error { return fn(m) })
	})
}

// SubscribeResult is like Subscribe, but on success the value returned by fn
// is sent on <topic>.<successSuffix>
func (d *Base) SubscribeResult(suffix, successSuffix string, fn func(bus.Message) (interface{}, error)) {
	d.add(d.Topic()+"."+suffix, func(m bus.Message) {
		d.guard(func() error {
			v, err := fn(m)
			if err != nil {
				return err
			}
			d.Send(successSuffix, v)
			return nil
		})
	})
}

// Send publishes data on <topic>.<suffix>
func (d *Base) Send(suffix string, data interface{}) {
	d.broker.Publish(d.Topic()+"."+suffix, data)
}

// SendError logs err and publishes it on device.error.<instance>
func (d *Base) SendError(err error) {
	log.Printf("Error with device %s: %v\n", d.Topic(), err)
	d.broker.Publish(d.ref.ErrorTopic(), ErrorMessage{Instance: d.ref, Err: err})
}

// Close revokes all of the device's subscriptions
func (d *Base) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.subs {
		s.Unsubscribe()
	}
	d.subs = nil
	d.wanted = nil
	return nil
}
