package script

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/nasa-jpl/frog/bus"
	"github.com/nasa-jpl/frog/device"
	"github.com/nasa-jpl/frog/motion"
	"github.com/nasa-jpl/frog/spectrometer"
	"github.com/nasa-jpl/frog/stepper"
)

// topics of the measure script
const (
	TopicRoot           = "measure_script"
	TopicBegin          = TopicRoot + ".begin"
	TopicStartMoving    = TopicRoot + ".start_moving"
	TopicStartMeasuring = TopicRoot + ".start_measuring"
	TopicEnd            = TopicRoot + ".end"
	TopicError          = TopicRoot + ".error"
	TopicAbort          = TopicRoot + ".abort"
	TopicPause          = TopicRoot + ".pause"
	TopicUnpause        = TopicRoot + ".unpause"
)

// ErrInvalidTransition is generated when an event is fired from a state it
// does not leave
var ErrInvalidTransition = errors.New("invalid measure script transition")

// ErrorMessage is the payload of TopicError, shown to the operator
type ErrorMessage struct {
	Message string `json:"message"`
}

// State is the state of a Runner
type State int

const (
	// NotRunning is the state before a script starts and after it ends
	NotRunning State = iota

	// Moving is the mirror travelling to the angle of the current measurement
	Moving

	// WaitingToMove is a move held back by a pause
	WaitingToMove

	// WaitingToMeasure is a measurement not yet started by the spectrometer,
	// or held back by a pause
	WaitingToMeasure

	// Measuring is the spectrometer recording
	Measuring
)

var stateNames = []string{"not_running", "moving", "waiting_to_move", "waiting_to_measure", "measuring"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText encodes the state as its name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Event is a transition of a Runner
type Event string

// events
const (
	initial                Event = "__initial__"
	StartMoving            Event = "start_moving"
	FinishMoving           Event = "finish_moving"
	FinishWaitingForMove   Event = "finish_waiting_for_move"
	CancelMove             Event = "cancel_move"
	StartMeasuring         Event = "start_measuring"
	RepeatMeasuring        Event = "repeat_measuring"
	CancelMeasuring        Event = "cancel_measuring"
	StartNextMove          Event = "start_next_move"
	Finish                 Event = "finish"
	CancelWaitingToMove    Event = "cancel_waiting_to_move"
	CancelWaitingToMeasure Event = "cancel_waiting_to_measure"
)

type transition struct {
	from, to State
}

var transitions = map[Event]transition{
	StartMoving:            {NotRunning, Moving},
	FinishMoving:           {Moving, WaitingToMeasure},
	FinishWaitingForMove:   {WaitingToMove, Moving},
	CancelMove:             {Moving, NotRunning},
	StartMeasuring:         {WaitingToMeasure, Measuring},
	RepeatMeasuring:        {Measuring, WaitingToMeasure},
	CancelMeasuring:        {Measuring, NotRunning},
	StartNextMove:          {Measuring, WaitingToMove},
	Finish:                 {Moving, NotRunning},
	CancelWaitingToMove:    {WaitingToMove, NotRunning},
	CancelWaitingToMeasure: {WaitingToMeasure, NotRunning},
}

// cancels maps each active state to the event which aborts it
var cancels = map[State]Event{
	Moving:           CancelMove,
	Measuring:        CancelMeasuring,
	WaitingToMeasure: CancelWaitingToMeasure,
	WaitingToMove:    CancelWaitingToMove,
}

// Status is a snapshot of a Runner
type Status struct {
	State         State         `json:"state"`
	Paused        bool          `json:"paused"`
	Path          string        `json:"path,omitempty"`
	Angle         *motion.Angle `json:"angle,omitempty"`
	Measurement   int           `json:"measurement"`
	Measurements  int           `json:"measurements"`
	CurrentRepeat int           `json:"current_repeat"`
	Repeats       int           `json:"repeats"`
}

// Runner runs a measure script.  It moves the mirror to each angle of the
// script in turn, then asks the spectrometer for the required number of
// measurements.  All communication with the devices is through the broker.
//
// Events fired while a transition is being made are queued and processed
// once it completes, so every transition runs to completion.
type Runner struct {
	broker *bus.Broker
	script *Script

	mu       sync.Mutex
	state    State
	paused   bool
	iter     *Iterator
	current  Measurement
	count    int
	queue    []Event
	firing   bool
	done     chan struct{}
	control  []*bus.Subscription
	devices  []*bus.Subscription
	statusOn *bus.Subscription
}

// NewRunner returns a runner for s in the not_running state.  The runner
// listens for the abort, pause and unpause topics until it finishes.
func NewRunner(b *bus.Broker, s *Script) *Runner {
	r := &Runner{
		broker: b,
		script: s,
		iter:   s.Iter(),
		done:   make(chan struct{}),
	}
	r.control = []*bus.Subscription{
		b.Subscribe(TopicAbort, func(bus.Message) { r.Abort() }),
		b.Subscribe(TopicPause, func(bus.Message) { r.Pause() }),
		b.Subscribe(TopicUnpause, func(bus.Message) { r.Unpause() }),
	}
	r.mu.Lock()
	r.enter(NotRunning, initial)
	r.mu.Unlock()
	return r
}

// Start starts the script.  A runner cannot be started again once it has
// finished; make a new one.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.Running() {
		return fmt.Errorf("%w: %s has already finished", ErrInvalidTransition, r.script.name())
	}
	return r.fire(StartMoving)
}

// fire makes the transition for ev, then any transitions queued by entry
// and exit actions.  The error is that of ev alone.  r.mu must be held.
func (r *Runner) fire(ev Event) error {
	if r.firing {
		r.queue = append(r.queue, ev)
		return nil
	}
	r.firing = true
	defer func() { r.firing = false }()
	err := r.step(ev)
	for len(r.queue) > 0 {
		next := r.queue[0]
		r.queue = r.queue[1:]
		r.step(next)
	}
	return err
}

func (r *Runner) step(ev Event) error {
	tr, ok := transitions[ev]
	if !ok || tr.from != r.state {
		err := fmt.Errorf("%w: %s from %s", ErrInvalidTransition, ev, r.state)
		log.Println(err)
		return err
	}
	if ev == StartMoving {
		r.broker.Publish(TopicBegin, r)
	}
	r.exit(r.state)
	r.state = tr.to
	log.Printf("Measure script: Entering state %s (event: %s)\n", r.state, ev)
	r.enter(r.state, ev)
	return nil
}

func (r *Runner) exit(s State) {
	switch s {
	case NotRunning:
		r.devices = []*bus.Subscription{
			r.broker.Subscribe(stepper.TopicMoveEnd, r.guarded(func(bus.Message) { r.fire(FinishMoving) })),
			r.broker.Subscribe(stepper.TopicError, r.guarded(r.onStepperError)),
			r.broker.Subscribe(spectrometer.TopicError, r.guarded(r.onSpectrometerError)),
		}
	case WaitingToMeasure, Measuring:
		r.dropStatus()
	}
}

func (r *Runner) enter(s State, ev Event) {
	switch s {
	case NotRunning:
		if ev == initial {
			return
		}
		for _, sub := range r.devices {
			sub.Unsubscribe()
		}
		r.devices = nil
		r.dropStatus()
		r.broker.Publish(stepper.TopicMoveBegin, stepper.MoveBegin{Target: motion.Preset(motion.Rest)})
		r.broker.Publish(TopicEnd, nil)
		for _, sub := range r.control {
			sub.Unsubscribe()
		}
		r.control = nil
		close(r.done)
	case Moving:
		m, ok := r.iter.Next()
		if !ok {
			r.fire(Finish)
			return
		}
		r.current = m
		r.count = 0
		r.broker.Publish(TopicStartMoving, r)
		r.broker.Publish(stepper.TopicMoveBegin, stepper.MoveBegin{Target: m.Angle})
	case WaitingToMeasure:
		r.statusOn = r.broker.Subscribe(spectrometer.TopicStatus(spectrometer.Measuring), r.guarded(r.onMeasuring))
		if !r.paused {
			r.requestMeasurement()
		}
	case WaitingToMove:
		if !r.paused {
			r.fire(FinishWaitingForMove)
		}
	}
}

// guarded wraps a device message handler so it runs with r.mu held
func (r *Runner) guarded(fn func(bus.Message)) bus.Handler {
	return func(m bus.Message) {
		r.mu.Lock()
		defer r.mu.Unlock()
		fn(m)
	}
}

func (r *Runner) dropStatus() {
	if r.statusOn != nil {
		r.statusOn.Unsubscribe()
		r.statusOn = nil
	}
}

func (r *Runner) requestMeasurement() {
	r.broker.Publish(TopicStartMeasuring, r)
	r.broker.Publish(spectrometer.TopicStartMeasuring, nil)
}

// onMeasuring is called when the spectrometer starts the measurement
func (r *Runner) onMeasuring(bus.Message) {
	r.dropStatus()
	r.fire(StartMeasuring)
	if r.state == Measuring {
		r.statusOn = r.broker.Subscribe(spectrometer.TopicStatus(spectrometer.Connected), r.guarded(r.onConnected))
	}
}

// onConnected is called when the spectrometer finishes a measurement
func (r *Runner) onConnected(bus.Message) {
	r.count++
	if r.count == r.current.Measurements {
		r.fire(StartNextMove)
	} else {
		r.fire(RepeatMeasuring)
	}
}

func (r *Runner) onStepperError(m bus.Message) {
	r.abort()
}

func (r *Runner) onSpectrometerError(m bus.Message) {
	r.abort()
	var err interface{} = m.Data
	if e, ok := m.Data.(device.ErrorMessage); ok {
		err = e.Err
	}
	msg := fmt.Sprintf("Error occurred with spectrometer. The measure script will stop running.\n\n%v", err)
	r.broker.Publish(TopicError, ErrorMessage{Message: msg})
}

// Abort stops the script.  It does nothing if the script is not running.
func (r *Runner) Abort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.abort()
}

func (r *Runner) abort() {
	if ev, ok := cancels[r.state]; ok {
		r.fire(ev)
	}
	log.Println("Aborting measure script")
}

// Pause holds the script at the next wait for a move or measurement
func (r *Runner) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = true
}

// Unpause resumes a paused script
func (r *Runner) Unpause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = false
	switch r.state {
	case WaitingToMove:
		r.fire(FinishWaitingForMove)
	case WaitingToMeasure:
		r.requestMeasurement()
	}
}

// State returns the current state
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Paused returns true if the script is paused
func (r *Runner) Paused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paused
}

// Running returns true until the script has finished or been aborted
func (r *Runner) Running() bool {
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// Done is closed when the script finishes or is aborted
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Script returns the script being run
func (r *Runner) Script() *Script {
	return r.script
}

// Status returns a snapshot of the progress of the script
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := Status{
		State:         r.state,
		Paused:        r.paused,
		Path:          r.script.Path,
		Measurement:   r.count,
		CurrentRepeat: r.iter.CurrentRepeat(),
		Repeats:       r.script.Repeats,
	}
	if r.state != NotRunning {
		a := r.current.Angle
		st.Angle = &a
		st.Measurements = r.current.Measurements
	}
	return st
}

// MarshalJSON encodes the status of the runner
func (r *Runner) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Status())
}
