// Package motion provides an HTTP interface to the stepper motor which
// rotates the mirror.  Requests are forwarded to the motor over the bus;
// the reported position is tracked from its move.end messages.
package motion

import (
	"encoding/json"
	"errors"
	"go/types"
	"net/http"
	"sync"

	"github.com/nasa-jpl/frog/bus"
	"github.com/nasa-jpl/frog/generichttp"
	ang "github.com/nasa-jpl/frog/motion"
	"github.com/nasa-jpl/frog/stepper"
)

var (
	errPositionUnknown = errors.New("mirror position is not yet known")
	errNoTarget        = errors.New("request must contain f64 (degrees) or str (preset name)")
)

// Tracker follows the stepper motor's messages to know where the mirror is
type Tracker struct {
	mu     sync.Mutex
	angle  float64
	known  bool
	moving bool
	target ang.Angle
	subs   []*bus.Subscription
}

// NewTracker returns a Tracker listening on b
func NewTracker(b *bus.Broker) *Tracker {
	t := &Tracker{}
	t.subs = []*bus.Subscription{
		b.Subscribe(stepper.TopicMoveBegin, func(m bus.Message) {
			if req, ok := m.Data.(stepper.MoveBegin); ok {
				t.mu.Lock()
				t.moving = true
				t.target = req.Target
				t.mu.Unlock()
			}
		}),
		b.Subscribe(stepper.TopicMoveEnd, func(m bus.Message) {
			if end, ok := m.Data.(stepper.MoveEnd); ok {
				t.mu.Lock()
				t.moving = false
				t.known = true
				t.angle = end.MovedTo
				t.mu.Unlock()
			}
		}),
	}
	return t
}

// Angle returns the last reported angle of the mirror
func (t *Tracker) Angle() (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.known {
		return 0, errPositionUnknown
	}
	return t.angle, nil
}

// Moving returns true between a move request and its completion
func (t *Tracker) Moving() (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.moving, nil
}

// Target returns the target of the latest move request
func (t *Tracker) Target() ang.Angle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.target
}

// Stop releases the tracker's subscriptions
func (t *Tracker) Stop() {
	for _, s := range t.subs {
		s.Unsubscribe()
	}
}

// targetT is the body of a move request, either {"f64": degrees} or
// {"str": "preset"}
type targetT struct {
	F64 *float64 `json:"f64"`
	Str string   `json:"str"`
}

func (t targetT) angle() (ang.Angle, error) {
	switch {
	case t.Str != "":
		return ang.Preset(t.Str), nil
	case t.F64 != nil:
		return ang.Degrees(*t.F64), nil
	default:
		return ang.Angle{}, errNoTarget
	}
}

func decodeTarget(r *http.Request) (ang.Angle, error) {
	t := targetT{}
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		return ang.Angle{}, err
	}
	a, err := t.angle()
	if err != nil {
		return a, err
	}
	return a, a.Validate()
}

// HTTPStepper wraps the stepper motor with HTTP
type HTTPStepper struct {
	broker  *bus.Broker
	tracker *Tracker

	RouteTable generichttp.RouteTable
}

// NewHTTPStepper returns a new HTTP wrapper with the route table pre-configured
func NewHTTPStepper(b *bus.Broker, t *Tracker) HTTPStepper {
	h := HTTPStepper{broker: b, tracker: t}
	h.RouteTable = generichttp.RouteTable{
		{Method: http.MethodGet, Path: "/angle"}:   generichttp.GetFloat(t.Angle),
		{Method: http.MethodPost, Path: "/angle"}:  h.SetAngle,
		{Method: http.MethodGet, Path: "/moving"}:  generichttp.GetBool(t.Moving),
		{Method: http.MethodPost, Path: "/stop"}:   h.Stop,
		{Method: http.MethodGet, Path: "/presets"}: Presets,
		{Method: http.MethodGet, Path: "/target"}:  h.GetTarget,
	}
	return h
}

// RT satisfies the HTTPer interface
func (h HTTPStepper) RT() generichttp.RouteTable {
	return h.RouteTable
}

// SetAngle requests a move to the angle in the body
func (h HTTPStepper) SetAngle(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	a, err := decodeTarget(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.broker.Publish(stepper.TopicMoveBegin, stepper.MoveBegin{Target: a})
	w.WriteHeader(http.StatusOK)
}

// Stop requests that the motor stop
func (h HTTPStepper) Stop(w http.ResponseWriter, r *http.Request) {
	h.broker.Publish(stepper.TopicStop, nil)
	w.WriteHeader(http.StatusOK)
}

// Presets returns the table of preset angles
func Presets(w http.ResponseWriter, r *http.Request) {
	generichttp.RespondJSON(w, ang.Presets)
}

// GetTarget returns the target of the last move, as {"str": preset} or {"f64": degrees}
func (h HTTPStepper) GetTarget(w http.ResponseWriter, r *http.Request) {
	a := h.tracker.Target()
	hp := generichttp.HumanPayload{T: types.String, String: a.Name()}
	if !a.IsPreset() {
		deg, _ := a.Resolve()
		hp = generichttp.HumanPayload{T: types.Float64, Float: deg}
	}
	hp.EncodeAndRespond(w, r)
}
