package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"

	"github.com/nasa-jpl/frog/bus"
	"github.com/nasa-jpl/frog/device"
	"github.com/nasa-jpl/frog/generichttp"
	"github.com/nasa-jpl/frog/generichttp/hardware"
	"github.com/nasa-jpl/frog/generichttp/motion"
	"github.com/nasa-jpl/frog/generichttp/runner"
	"github.com/nasa-jpl/frog/generichttp/thermal"
	"github.com/nasa-jpl/frog/hardwareset"
	"github.com/nasa-jpl/frog/script"
	"github.com/nasa-jpl/frog/sensors"
	"github.com/nasa-jpl/frog/server"
	"github.com/nasa-jpl/frog/server/middleware/locker"
	"github.com/nasa-jpl/frog/spectrometer"
	"github.com/nasa-jpl/frog/stepper"
	"github.com/nasa-jpl/frog/temperature"
	"github.com/nasa-jpl/frog/util"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-yaml/yaml"
	"go.uber.org/multierr"
)

// Config holds the setup of the server.  It is populated by koanf, or
// directly from a file with LoadYaml.
type Config struct {
	// Addr is the address to listen at
	Addr string `koanf:"addr" yaml:"addr"`

	// HardwareSet is the path to a hardware set opened at startup, may be empty
	HardwareSet string `koanf:"hardwareset" yaml:"hardwareset"`

	// HardwareSetDir is the directory hardware sets are listed from
	HardwareSetDir string `koanf:"hardwaresetdir" yaml:"hardwaresetdir"`

	// Script is the path to a measure script loaded at startup, may be empty
	Script string `koanf:"script" yaml:"script"`

	// History is the number of readings kept per temperature controller
	// and per sensor
	History int `koanf:"history" yaml:"history"`

	// Limits are the software limits on the mirror angle over HTTP.
	// Min == Max disables them.
	Limits util.Limiter `koanf:"limits" yaml:"limits"`
}

// LoadYaml converts a (path to a) yaml file into a Config struct
func LoadYaml(path string) (Config, error) {
	cfg := Config{}
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	err = yaml.NewDecoder(f).Decode(&cfg)
	return cfg, err
}

// System holds everything behind the HTTP interface
type System struct {
	Broker   *bus.Broker
	Registry *device.Registry
	Manager  *device.Manager
	Recorder *temperature.Recorder
	Sensors  *sensors.Recorder
	Lock     *locker.Locker
	Tracker  *motion.Tracker
	Runner   *runner.HTTPRunner
}

// NewSystem registers every device type and builds the broker and the
// components listening on it.  The broker is not started.
func NewSystem(c Config) (*System, error) {
	reg := device.NewRegistry()
	var err error
	err = multierr.Append(err, stepper.Register(reg))
	err = multierr.Append(err, spectrometer.Register(reg))
	err = multierr.Append(err, temperature.Register(reg))
	err = multierr.Append(err, sensors.Register(reg))
	if err != nil {
		return nil, err
	}
	b := bus.New()
	s := &System{
		Broker:   b,
		Registry: reg,
		Manager:  device.NewManager(b, reg),
		Recorder: temperature.NewRecorder(b, c.History),
		Sensors:  sensors.NewRecorder(b, c.History),
		Lock:     locker.New(),
		Tracker:  motion.NewTracker(b),
		Runner:   runner.NewHTTPRunner(b),
	}
	// manual moves are refused while a script is running
	s.Lock.Follow(b, script.TopicBegin, script.TopicEnd)
	if c.Script != "" {
		sc, err := script.Load(c.Script)
		if err != nil {
			return nil, err
		}
		s.Runner.SetScript(sc)
	}
	return s, nil
}

// Start delivers messages until ctx is done and opens the configured
// hardware set
func (s *System) Start(ctx context.Context, c Config) error {
	go s.Broker.Run(ctx)
	if c.HardwareSet == "" {
		return nil
	}
	hs, err := hardwareset.Load(c.HardwareSet)
	if err != nil {
		return err
	}
	hs.Open(s.Broker)
	return nil
}

// BuildMux mounts the route tables of the system on a chi router.
// The mux serves a special route, /endpoints, which returns a map of
// mount points to the routes below them as JSON.
func BuildMux(c Config, s *System) chi.Router {
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	supergraph := map[string][]string{}

	mount := func(stem string, h generichttp.HTTPer, mw ...func(http.Handler) http.Handler) {
		stem = generichttp.SubMuxSanitize(stem)
		supergraph[stem] = h.RT().Endpoints()
		r := chi.NewRouter()
		r.Use(mw...)
		h.RT().Bind(r)
		root.Mount(stem, r)
	}

	motor := motion.NewHTTPStepper(s.Broker, s.Tracker)
	lm := motion.LimitMiddleware{}
	if c.Limits.Min != c.Limits.Max {
		lim := c.Limits
		lm.Limits = &lim
	}
	lm.Inject(motor)
	locker.Inject(motor, s.Lock)
	mount("motor", motor, s.Lock.Check, lm.Check)
	mount("script", s.Runner)
	mount("hardware", hardware.NewHTTPHardware(s.Broker, s.Registry, s.Manager, c.HardwareSetDir))
	for _, name := range temperature.BaseType.NamesShort {
		mount("temperature/"+name, thermal.NewHTTPController(s.Broker, s.Recorder, name))
	}

	root.Get("/temperatures", s.Recorder.HTTPYield)
	root.Get("/sensors", s.Sensors.HTTPYield)
	root.Handle("/events", server.NewEventStream(s.Broker))
	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		err := json.NewEncoder(w).Encode(supergraph)
		if err != nil {
			log.Println(err)
		}
	})
	return root
}
