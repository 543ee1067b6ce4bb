// Package runner provides an HTTP interface for loading and running measure
// scripts.  Control requests are published on the measure_script topics so
// they reach the runner the same way they would from any other client.
package runner

import (
	"errors"
	"net/http"
	"sync"

	"github.com/nasa-jpl/frog/bus"
	"github.com/nasa-jpl/frog/generichttp"
	"github.com/nasa-jpl/frog/script"
)

var errNoScript = errors.New("no measure script has been loaded")

// HTTPRunner holds the loaded measure script and runs it on request
type HTTPRunner struct {
	broker *bus.Broker

	mu     sync.Mutex
	script *script.Script

	RouteTable generichttp.RouteTable
}

// NewHTTPRunner returns a new HTTP wrapper with the route table pre-configured
func NewHTTPRunner(b *bus.Broker) *HTTPRunner {
	h := &HTTPRunner{broker: b}
	h.RouteTable = generichttp.RouteTable{
		{Method: http.MethodPost, Path: "/script"}:  h.LoadScript,
		{Method: http.MethodGet, Path: "/script"}:   h.GetScript,
		{Method: http.MethodPost, Path: "/run"}:     h.Run,
		{Method: http.MethodPost, Path: "/pause"}:   h.publish(script.TopicPause),
		{Method: http.MethodPost, Path: "/unpause"}: h.publish(script.TopicUnpause),
		{Method: http.MethodPost, Path: "/abort"}:   h.publish(script.TopicAbort),
		{Method: http.MethodGet, Path: "/status"}:   h.Status,
	}
	return h
}

// RT satisfies the HTTPer interface
func (h *HTTPRunner) RT() generichttp.RouteTable {
	return h.RouteTable
}

// Script returns the loaded script, or nil
func (h *HTTPRunner) Script() *script.Script {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.script
}

// SetScript replaces the loaded script
func (h *HTTPRunner) SetScript(s *script.Script) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.script = s
}

// LoadScript parses a YAML measure script from the request body
func (h *HTTPRunner) LoadScript(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	s, err := script.Parse(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.mu.Lock()
	if h.running() {
		h.mu.Unlock()
		http.Error(w, script.ErrAlreadyRunning.Error(), http.StatusConflict)
		return
	}
	h.script = s
	h.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

// running reports whether the loaded script is being run.  h.mu must be held.
func (h *HTTPRunner) running() bool {
	if h.script == nil {
		return false
	}
	run := h.script.Runner()
	return run != nil && run.Running()
}

// GetScript returns the loaded script as JSON
func (h *HTTPRunner) GetScript(w http.ResponseWriter, r *http.Request) {
	s := h.Script()
	if s == nil {
		http.Error(w, errNoScript.Error(), http.StatusNotFound)
		return
	}
	generichttp.RespondJSON(w, s)
}

// Run starts the loaded script.  Loading is held off until the run has
// started.
func (h *HTTPRunner) Run(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	s := h.script
	if s == nil {
		h.mu.Unlock()
		http.Error(w, errNoScript.Error(), http.StatusBadRequest)
		return
	}
	_, err := s.Run(h.broker)
	h.mu.Unlock()
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, script.ErrAlreadyRunning) {
			code = http.StatusConflict
		}
		http.Error(w, err.Error(), code)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *HTTPRunner) publish(topic string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.broker.Publish(topic, nil)
		w.WriteHeader(http.StatusOK)
	}
}

// Status returns the status of the latest run, or a not_running status if
// there has been none
func (h *HTTPRunner) Status(w http.ResponseWriter, r *http.Request) {
	st := script.Status{State: script.NotRunning}
	if s := h.Script(); s != nil {
		st.Path = s.Path
		st.Repeats = s.Repeats
		if run := s.Runner(); run != nil {
			st = run.Status()
		}
	}
	generichttp.RespondJSON(w, st)
}
