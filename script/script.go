/*Package script contains the measure scripts which drive the mirror and
spectrometer through a sequence of angles, and the Runner which executes them.

A measure script is a YAML document:

	version: 1
	repeats: 2
	sequence:
	  - angle: zenith
	    measurements: 3
	  - angle: 90.0
	    measurements: 1

Scripts without a version were written before it was introduced and are read
as version 1.
*/
package script

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"sync"

	"github.com/nasa-jpl/frog/bus"
	"github.com/nasa-jpl/frog/motion"
	"gopkg.in/yaml.v2"
)

// CurrentVersion is the version of the script format written by this package
const CurrentVersion = 1

var (
	// ErrParse is generated when a script is malformed or breaks the format
	ErrParse = errors.New("error parsing measure script")

	// ErrAlreadyRunning is generated when running a script which is already running
	ErrAlreadyRunning = errors.New("measure script is already running")
)

// Measurement is one step of a script: an angle to move the mirror to and
// the number of measurements to record there
type Measurement struct {
	Angle        motion.Angle `json:"angle" yaml:"angle"`
	Measurements int          `json:"measurements" yaml:"measurements"`
}

// Script is a measure script
type Script struct {
	// Path is the file the script was loaded from, if any
	Path string `json:"path,omitempty" yaml:"-"`

	// Repeats is the number of times the sequence is performed
	Repeats int `json:"repeats" yaml:"repeats"`

	// Sequence is the list of steps
	Sequence []Measurement `json:"sequence" yaml:"sequence"`

	mu     sync.Mutex
	runner *Runner
}

// document is the on-disk form of a Script
type document struct {
	Version  int           `yaml:"version"`
	Repeats  int           `yaml:"repeats"`
	Sequence []Measurement `yaml:"sequence"`
}

func parseErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrParse, fmt.Sprintf(format, args...))
}

// asInt returns v as an int if it is an integer.  Floats and bools are not
// integers, even 1.0 and true.
func asInt(v interface{}) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), int64(int(x)) == x
	case uint64:
		return int(x), x <= uint64(^uint(0)>>1)
	default:
		return 0, false
	}
}

func checkKeys(m map[interface{}]interface{}, where string, allowed ...string) error {
	for k := range m {
		ks, ok := k.(string)
		found := false
		if ok {
			for _, a := range allowed {
				if ks == a {
					found = true
					break
				}
			}
		}
		if !found {
			return parseErr("unexpected key %v in %s", k, where)
		}
	}
	return nil
}

// ParseBytes parses a script from YAML
func ParseBytes(b []byte) (*Script, error) {
	var raw interface{}
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	top, ok := raw.(map[interface{}]interface{})
	if !ok {
		return nil, parseErr("document is not a mapping")
	}
	if err := checkKeys(top, "script", "version", "repeats", "sequence"); err != nil {
		return nil, err
	}

	if v, ok := top["version"]; ok {
		ver, isInt := asInt(v)
		if !isInt || ver != CurrentVersion {
			return nil, parseErr("current script version number must be %d, got %v", CurrentVersion, v)
		}
	}

	repeats, ok := asInt(top["repeats"])
	if !ok || repeats < 1 {
		return nil, parseErr("repeats must be an integer greater than zero, got %v", top["repeats"])
	}

	seq, ok := top["sequence"].([]interface{})
	if !ok || len(seq) == 0 {
		return nil, parseErr("sequence must be a non-empty list")
	}
	s := &Script{Repeats: repeats, Sequence: make([]Measurement, 0, len(seq))}
	for i, item := range seq {
		m, err := parseMeasurement(item)
		if err != nil {
			return nil, fmt.Errorf("%w (sequence item %d)", err, i)
		}
		s.Sequence = append(s.Sequence, m)
	}
	return s, nil
}

func parseMeasurement(item interface{}) (Measurement, error) {
	m, ok := item.(map[interface{}]interface{})
	if !ok {
		return Measurement{}, parseErr("sequence items must be mappings")
	}
	if err := checkKeys(m, "sequence item", "angle", "measurements"); err != nil {
		return Measurement{}, err
	}
	a, err := motion.FromValue(m["angle"])
	if err != nil {
		return Measurement{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if err := a.Validate(); err != nil {
		return Measurement{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	n, ok := asInt(m["measurements"])
	if !ok || n < 1 {
		return Measurement{}, parseErr("measurements must be an integer greater than zero, got %v", m["measurements"])
	}
	return Measurement{Angle: a, Measurements: n}, nil
}

// Parse parses a script from a reader of YAML
func Parse(r io.Reader) (*Script, error) {
	b, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ParseBytes(b)
}

// Load reads and parses the script at path
func Load(path string) (*Script, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := ParseBytes(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.Path = path
	return s, nil
}

// Marshal encodes the script as YAML at the current version
func (s *Script) Marshal() ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := yaml.NewEncoder(buf)
	err := enc.Encode(document{Version: CurrentVersion, Repeats: s.Repeats, Sequence: s.Sequence})
	if err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes the script to path and records it as the script's Path
func (s *Script) Save(path string) error {
	b, err := s.Marshal()
	if err != nil {
		return err
	}
	if err := ioutil.WriteFile(path, b, 0644); err != nil {
		return err
	}
	s.Path = path
	return nil
}

// Iter returns a new iterator over the measurements of the script
func (s *Script) Iter() *Iterator {
	return &Iterator{script: s}
}

// Captures returns the total number of measurements the script records
func (s *Script) Captures() int {
	n := 0
	for _, m := range s.Sequence {
		n += m.Measurements
	}
	return n * s.Repeats
}

// Run starts running the script, with the devices reached through b.  Only
// one run of a script may be active at a time.
func (s *Script) Run(b *bus.Broker) (*Runner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runner != nil && s.runner.Running() {
		return nil, ErrAlreadyRunning
	}
	log.Printf("Running %s\n", s.name())
	r := NewRunner(b, s)
	s.runner = r
	if err := r.Start(); err != nil {
		return nil, err
	}
	return r, nil
}

// Runner returns the runner of the latest run, or nil
func (s *Script) Runner() *Runner {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runner
}

func (s *Script) name() string {
	if s.Path == "" {
		return "measure script"
	}
	return s.Path
}

// Iterator steps through the measurements of a script, repeating the
// sequence as many times as the script asks.  Iterators cannot be restarted;
// make a new one with Script.Iter.
type Iterator struct {
	script *Script
	idx    int
	repeat int
}

// Next returns the next measurement, or false once the script is exhausted
func (it *Iterator) Next() (Measurement, bool) {
	if len(it.script.Sequence) == 0 {
		it.repeat = it.script.Repeats
	}
	if it.repeat >= it.script.Repeats {
		return Measurement{}, false
	}
	if it.idx == len(it.script.Sequence) {
		it.repeat++
		if it.repeat >= it.script.Repeats {
			return Measurement{}, false
		}
		it.idx = 0
	}
	m := it.script.Sequence[it.idx]
	it.idx++
	return m, true
}

// CurrentRepeat returns the index of the pass the last measurement returned
// by Next belongs to.  Once the iterator is exhausted it equals Repeats.
func (it *Iterator) CurrentRepeat() int {
	return it.repeat
}
