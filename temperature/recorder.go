package temperature

import (
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/nasa-jpl/frog/bus"
	"github.com/nasa-jpl/frog/generichttp"
)

// Recorder keeps the most recent readings of every temperature controller
// and can serve them over HTTP
type Recorder struct {
	capacity int

	mu      sync.Mutex
	history map[string][]Reading
	sub     *bus.Subscription
}

type recording struct {
	Temperature []Celsius `json:"temperature"`
	Power       []float64 `json:"power"`
	SetPoint    []Celsius `json:"set_point"`
	Time        []string  `json:"timestamp"`
}

// NewRecorder returns a recorder holding up to capacity readings per
// controller, listening on b
func NewRecorder(b *bus.Broker, capacity int) *Recorder {
	if capacity < 1 {
		capacity = 1
	}
	r := &Recorder{capacity: capacity, history: make(map[string][]Reading)}
	r.sub = b.Subscribe(Topic, r.record)
	return r
}

func (r *Recorder) record(m bus.Message) {
	rd, ok := m.Data.(Reading)
	if !ok || !strings.HasSuffix(m.Topic, ".data") {
		return
	}
	name := strings.TrimSuffix(strings.TrimPrefix(m.Topic, Topic+"."), ".data")
	r.mu.Lock()
	defer r.mu.Unlock()
	h := append(r.history[name], rd)
	if len(h) > r.capacity {
		h = h[len(h)-r.capacity:]
	}
	r.history[name] = h
}

// Readings returns a copy of the history of the controller called name,
// oldest first
func (r *Recorder) Readings(name string) []Reading {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Reading, len(r.history[name]))
	copy(out, r.history[name])
	return out
}

// Names returns the controllers that have sent readings, sorted
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

// HTTPYield returns an object over HTTP which contains arrays of temperature,
// power, set point, and timestamps for each controller
func (r *Recorder) HTTPYield(w http.ResponseWriter, req *http.Request) {
	out := make(map[string]recording)
	for _, name := range r.Names() {
		rs := r.Readings(name)
		rec := recording{
			Temperature: make([]Celsius, len(rs)),
			Power:       make([]float64, len(rs)),
			SetPoint:    make([]Celsius, len(rs)),
			Time:        make([]string, len(rs)),
		}
		for i, rd := range rs {
			rec.Temperature[i] = rd.Temperature
			rec.Power[i] = rd.Power
			rec.SetPoint[i] = rd.SetPoint
			rec.Time[i] = rd.Time.Format("2006-01-02T15:04:05.000Z07:00")
		}
		out[name] = rec
	}
	generichttp.RespondJSON(w, out)
}
