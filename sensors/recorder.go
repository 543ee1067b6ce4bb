package sensors

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/nasa-jpl/frog/bus"
	"github.com/nasa-jpl/frog/generichttp"
)

// Point is one recorded value of a sensor
type Point struct {
	Value float64
	Time  time.Time
}

// Recorder keeps the most recent values of every sensor and can serve them
// over HTTP
type Recorder struct {
	capacity int

	mu      sync.Mutex
	history map[string][]Point
	units   map[string]string
	latest  []Reading
	sub     *bus.Subscription
}

type recording struct {
	Unit  string    `json:"unit"`
	Value []float64 `json:"value"`
	Time  []string  `json:"timestamp"`
}

// NewRecorder returns a recorder holding up to capacity values per sensor,
// listening on b
func NewRecorder(b *bus.Broker, capacity int) *Recorder {
	if capacity < 1 {
		capacity = 1
	}
	r := &Recorder{
		capacity: capacity,
		history:  make(map[string][]Point),
		units:    make(map[string]string),
	}
	r.sub = b.Subscribe(TopicData, r.record)
	return r
}

func (r *Recorder) record(m bus.Message) {
	rs, ok := m.Data.([]Reading)
	if !ok || m.Topic != TopicData {
		return
	}
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latest = append([]Reading(nil), rs...)
	for _, rd := range rs {
		h := append(r.history[rd.Name], Point{Value: rd.Value, Time: now})
		if len(h) > r.capacity {
			h = h[len(h)-r.capacity:]
		}
		r.history[rd.Name] = h
		r.units[rd.Name] = rd.Unit
	}
}

// Latest returns the most recent readings, in the order the device sent them
func (r *Recorder) Latest() []Reading {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Reading, len(r.latest))
	copy(out, r.latest)
	return out
}

// Points returns a copy of the history of the sensor called name, oldest
// first
func (r *Recorder) Points(name string) []Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Point, len(r.history[name]))
	copy(out, r.history[name])
	return out
}

// Names returns the sensors that have been read, sorted
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.history))
	for k := range r.history {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Stop stops recording.  The history is kept.
func (r *Recorder) Stop() {
	r.sub.Unsubscribe()
}

// HTTPYield returns an object over HTTP which contains the unit and arrays
// of values and timestamps for each sensor
func (r *Recorder) HTTPYield(w http.ResponseWriter, req *http.Request) {
	out := make(map[string]recording)
	for _, name := range r.Names() {
		ps := r.Points(name)
		r.mu.Lock()
		rec := recording{
			Unit:  r.units[name],
			Value: make([]float64, len(ps)),
			Time:  make([]string, len(ps)),
		}
		r.mu.Unlock()
		for i, p := range ps {
			rec.Value[i] = p.Value
			rec.Time[i] = p.Time.Format("2006-01-02T15:04:05.000Z07:00")
		}
		out[name] = rec
	}
	generichttp.RespondJSON(w, out)
}
