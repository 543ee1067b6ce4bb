/*Package device provides the lifecycle shared by all hardware endpoints.

Every device is addressed on the bus by an InstanceRef: the name of its base
type (e.g. "stepper_motor") and, for base types with more than one possible
instance, a short name (e.g. "hot_bb").  Concrete devices embed a Base, which
handles deferred subscriptions, the opened handshake, and translation of
handler errors into messages on "device.error.<instance>".

Device types are made known to a Registry with explicit calls at startup,
and are opened and closed on request by a Manager.
*/
package device

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// topics used by the device lifecycle
const (
	// TopicRoot prefixes all device topics
	TopicRoot = "device"

	// TopicOpen requests that a device be opened, with an OpenRequest
	TopicOpen = "device.open"

	// TopicClose requests that a device be closed, with a CloseRequest
	TopicClose = "device.close"

	// TopicBeforeOpening is sent by the Manager before a device is constructed
	TopicBeforeOpening = "device.before_opening"

	// TopicAfterOpening is sent by a device once it has opened, with Opened
	TopicAfterOpening = "device.after_opening"

	// TopicOpened is sent after TopicAfterOpening for general consumers
	TopicOpened = "device.opened"

	// TopicClosed is sent by the Manager once a device has been closed
	TopicClosed = "device.closed"

	// TopicError carries ErrorMessages
	TopicError = "device.error"
)

var (
	// ErrNameNotAllowed is generated when a name is given for a base type
	// which has only one instance
	ErrNameNotAllowed = errors.New("name provided for device which cannot accept names")

	// ErrInvalidName is generated when a name is missing or not in the base
	// type's list of short names
	ErrInvalidName = errors.New("invalid name given for device")

	// ErrBadInstance is generated when an instance string cannot be parsed
	ErrBadInstance = errors.New("malformed device instance reference")
)

// InstanceRef identifies a single device
type InstanceRef struct {
	// BaseType is the name of the device's base type, e.g. stepper_motor
	BaseType string `json:"base_type" yaml:"base_type"`

	// Name distinguishes devices sharing a base type, may be empty
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// ParseInstanceRef converts "base" or "base.name" into an InstanceRef
func ParseInstanceRef(s string) (InstanceRef, error) {
	base, name := s, ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		base, name = s[:idx], s[idx+1:]
		if name == "" {
			return InstanceRef{}, fmt.Errorf("%w: %q", ErrBadInstance, s)
		}
	}
	if base == "" {
		return InstanceRef{}, fmt.Errorf("%w: %q", ErrBadInstance, s)
	}
	return InstanceRef{BaseType: base, Name: name}, nil
}

// String returns "base" or "base.name"
func (r InstanceRef) String() string {
	if r.Name == "" {
		return r.BaseType
	}
	return r.BaseType + "." + r.Name
}

// Topic is the root topic for messages to and from the device
func (r InstanceRef) Topic() string {
	return TopicRoot + "." + r.String()
}

// ErrorTopic is the topic errors from the device are sent on
func (r InstanceRef) ErrorTopic() string {
	return TopicError + "." + r.String()
}

// MarshalText satisfies encoding.TextMarshaler, so refs can key JSON maps
func (r InstanceRef) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText is the inverse of MarshalText
func (r *InstanceRef) UnmarshalText(b []byte) error {
	ref, err := ParseInstanceRef(string(b))
	if err != nil {
		return err
	}
	*r = ref
	return nil
}

// BaseTypeInfo describes a family of devices, e.g. stepper motors
type BaseTypeInfo struct {
	// Name is used in topics
	Name string `json:"name"`

	// Description is human readable
	Description string `json:"description"`

	// NamesShort are the permitted instance names.  If empty, the base type
	// has a single unnamed instance.
	NamesShort []string `json:"names_short,omitempty"`

	// NamesLong are human readable versions of NamesShort
	NamesLong []string `json:"names_long,omitempty"`
}

// Device is anything the Manager can hold open
type Device interface {
	// Ref returns the device's instance reference
	Ref() InstanceRef

	// Close releases the device
	Close() error
}

// OpenRequest is the payload of TopicOpen
type OpenRequest struct {
	ClassName string                 `json:"class_name"`
	Instance  InstanceRef            `json:"instance"`
	Params    map[string]interface{} `json:"params,omitempty"`
}

// CloseRequest is the payload of TopicClose
type CloseRequest struct {
	Instance InstanceRef `json:"instance"`
}

// Opened is the payload of TopicAfterOpening and TopicBeforeOpening
type Opened struct {
	Instance  InstanceRef `json:"instance"`
	ClassName string      `json:"class_name"`
}

// ErrorMessage is the payload of TopicError
type ErrorMessage struct {
	Instance InstanceRef
	Err      error
}

// Error satisfies the error interface
func (e ErrorMessage) Error() string {
	return fmt.Sprintf("%s: %v", e.Instance, e.Err)
}

// Unwrap returns the underlying error
func (e ErrorMessage) Unwrap() error {
	return e.Err
}

// MarshalJSON renders the error as its string
func (e ErrorMessage) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(struct {
		Instance InstanceRef `json:"instance"`
		Error    string      `json:"error"`
	}{e.Instance, msg})
}
