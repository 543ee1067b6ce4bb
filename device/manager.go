package device

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/nasa-jpl/frog/bus"
	"go.uber.org/multierr"
)

// ConnectionStatus is the state of a device held by a Manager
type ConnectionStatus int

const (
	// Disconnected devices are not open
	Disconnected ConnectionStatus = iota

	// Connecting devices have been constructed but have not signalled open
	Connecting

	// Connected devices are open and usable
	Connected
)

func (c ConnectionStatus) String() string {
	switch c {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// MarshalText renders the status as its name
func (c ConnectionStatus) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// ErrNotOpen is generated when closing a device that is not held by the Manager
var ErrNotOpen = errors.New("device is not open")

// ActiveDevice is a summary of a device held by a Manager
type ActiveDevice struct {
	Instance  InstanceRef      `json:"instance"`
	ClassName string           `json:"class_name"`
	Status    ConnectionStatus `json:"status"`
}

type held struct {
	dev       Device
	className string
	status    ConnectionStatus
}

// Manager opens and closes devices in response to bus requests and tracks
// their connection status.  A device that reports an error is closed.
type Manager struct {
	broker   *bus.Broker
	registry *Registry

	mu      sync.Mutex
	devices map[InstanceRef]*held
	subs    []*bus.Subscription
}

// NewManager returns a Manager listening on b for open and close requests
func NewManager(b *bus.Broker, r *Registry) *Manager {
	m := &Manager{
		broker:   b,
		registry: r,
		devices:  make(map[InstanceRef]*held),
	}
	m.subs = []*bus.Subscription{
		b.Subscribe(TopicOpen, m.onOpen),
		b.Subscribe(TopicClose, m.onClose),
		b.Subscribe(TopicAfterOpening, m.onAfterOpening),
		b.Subscribe(TopicError, m.onError),
	}
	return m
}

func (m *Manager) onOpen(msg bus.Message) {
	req, ok := msg.Data.(OpenRequest)
	if !ok {
		log.Printf("ignoring malformed open request %v\n", msg.Data)
		return
	}
	if err := m.Open(req); err != nil {
		log.Printf("failed to open %s: %v\n", req.Instance, err)
	}
}

func (m *Manager) onClose(msg bus.Message) {
	req, ok := msg.Data.(CloseRequest)
	if !ok {
		log.Printf("ignoring malformed close request %v\n", msg.Data)
		return
	}
	if err := m.Close(req.Instance); err != nil {
		log.Printf("failed to close %s: %v\n", req.Instance, err)
	}
}

func (m *Manager) onAfterOpening(msg bus.Message) {
	o, ok := msg.Data.(Opened)
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.devices[o.Instance]; ok {
		h.status = Connected
	}
}

func (m *Manager) onError(msg bus.Message) {
	e, ok := msg.Data.(ErrorMessage)
	if !ok {
		return
	}
	m.mu.Lock()
	_, ok = m.devices[e.Instance]
	m.mu.Unlock()
	if !ok {
		return
	}
	log.Printf("closing %s after error\n", e.Instance)
	if err := m.Close(e.Instance); err != nil {
		log.Printf("failed to close %s: %v\n", e.Instance, err)
	}
}

// Open constructs the device described by req.  A device already open on the
// same instance is closed first.  Construction failures are reported on the
// device's error topic and leave nothing behind.
func (m *Manager) Open(req OpenRequest) error {
	m.mu.Lock()
	_, exists := m.devices[req.Instance]
	m.mu.Unlock()
	if exists {
		if err := m.Close(req.Instance); err != nil {
			return err
		}
	}

	_, base, ok := m.registry.Lookup(req.ClassName)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownType, req.ClassName)
		m.broker.Publish(req.Instance.ErrorTopic(), ErrorMessage{Instance: req.Instance, Err: err})
		return err
	}
	if base != req.Instance.BaseType {
		err := fmt.Errorf("%w: %s is not a %s", ErrUnknownType, req.ClassName, req.Instance.BaseType)
		m.broker.Publish(req.Instance.ErrorTopic(), ErrorMessage{Instance: req.Instance, Err: err})
		return err
	}

	m.broker.Publish(TopicBeforeOpening+"."+req.Instance.String(), Opened{Instance: req.Instance, ClassName: req.ClassName})
	m.mu.Lock()
	h := &held{className: req.ClassName, status: Connecting}
	m.devices[req.Instance] = h
	m.mu.Unlock()

	dev, err := m.registry.Open(m.broker, req.ClassName, req.Instance.Name, req.Params)
	if err != nil {
		m.mu.Lock()
		delete(m.devices, req.Instance)
		m.mu.Unlock()
		log.Printf("Failed to open %s device: %v\n", req.Instance, err)
		m.broker.Publish(req.Instance.ErrorTopic(), ErrorMessage{Instance: req.Instance, Err: err})
		return err
	}
	m.mu.Lock()
	h.dev = dev
	m.mu.Unlock()
	return nil
}

// Close closes the device on ref and publishes device.closed.<ref>
func (m *Manager) Close(ref InstanceRef) error {
	m.mu.Lock()
	h, ok := m.devices[ref]
	if ok {
		delete(m.devices, ref)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotOpen, ref)
	}
	var err error
	if h.dev != nil {
		err = h.dev.Close()
	}
	log.Printf("Closed device %s\n", ref)
	m.broker.Publish(TopicClosed+"."+ref.String(), CloseRequest{Instance: ref})
	return err
}

// CloseAll closes every device, returning all of the errors encountered
func (m *Manager) CloseAll() error {
	var err error
	for _, d := range m.Devices() {
		err = multierr.Append(err, m.Close(d.Instance))
	}
	return err
}

// Status returns the connection status of the device on ref
func (m *Manager) Status(ref InstanceRef) ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.devices[ref]; ok {
		return h.status
	}
	return Disconnected
}

// Device returns the device held on ref, if any
func (m *Manager) Device(ref InstanceRef) (Device, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.devices[ref]
	if !ok || h.dev == nil {
		return nil, false
	}
	return h.dev, true
}

// Devices lists the devices held, sorted by instance
func (m *Manager) Devices() []ActiveDevice {
	m.mu.Lock()
	out := make([]ActiveDevice, 0, len(m.devices))
	for ref, h := range m.devices {
		out = append(out, ActiveDevice{Instance: ref, ClassName: h.className, Status: h.status})
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].Instance.String() < out[j].Instance.String()
	})
	return out
}

// Stop releases the manager's subscriptions.  Devices are left open.
func (m *Manager) Stop() {
	for _, s := range m.subs {
		s.Unsubscribe()
	}
}
