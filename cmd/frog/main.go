// Command frog validates measure scripts and runs them against simulated
// hardware, for checking a script before it is run on the instrument.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/theckman/yacspin"

	"github.com/nasa-jpl/frog/bus"
	"github.com/nasa-jpl/frog/device"
	"github.com/nasa-jpl/frog/script"
	"github.com/nasa-jpl/frog/spectrometer"
	"github.com/nasa-jpl/frog/stepper"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	k = koanf.New(".")
)

const topicFlush = "frog.flush"

// Config holds the timing of the simulated devices
type Config struct {
	// MoveDuration is the time taken by a mirror move, in seconds
	MoveDuration float64 `koanf:"moveduration"`

	// MeasureDuration is the time taken by a measurement, in seconds
	MeasureDuration float64 `koanf:"measureduration"`
}

func setupconfig() {
	k.Load(confmap.Provider(map[string]interface{}{
		"moveduration":    1.,
		"measureduration": 1.,
	}, "."), nil)
	// FROG_MOVEDURATION => moveduration
	err := k.Load(env.Provider("FROG_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "FROG_"))
	}), nil)
	if err != nil {
		log.Fatalf("error loading environment: %v", err)
	}
}

func root() {
	str := `frog checks and rehearses measure scripts.

Usage:
	frog <command>

Commands:
	validate <script>
	run <script>
	version

run uses simulated devices; set FROG_MOVEDURATION and FROG_MEASUREDURATION
(seconds) to change how long they take.`
	fmt.Println(str)
}

func validate(path string) {
	s, err := script.Load(path)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	fmt.Printf("%s: %d steps, %d repeats, %d measurements\n", path, len(s.Sequence), s.Repeats, s.Captures())
}

func openDummies(m *device.Manager, c Config) error {
	reqs := []device.OpenRequest{
		{
			ClassName: stepper.DummyInfo.ClassName,
			Instance:  stepper.Ref,
			Params:    map[string]interface{}{"move_duration": c.MoveDuration},
		},
		{
			ClassName: spectrometer.DummyInfo.ClassName,
			Instance:  spectrometer.Ref,
			Params:    map[string]interface{}{"measure_duration": c.MeasureDuration},
		},
	}
	for _, req := range reqs {
		if err := m.Open(req); err != nil {
			return err
		}
	}
	return nil
}

func progress(r *script.Runner) string {
	st := r.Status()
	angle := ""
	if st.Angle != nil {
		angle = st.Angle.String()
	}
	return fmt.Sprintf("repeat %d/%d, %s, measurement %d/%d (%s)",
		st.CurrentRepeat+1, st.Repeats, angle, st.Measurement, st.Measurements, st.State)
}

func run(path string) {
	c := Config{}
	if err := k.Unmarshal("", &c); err != nil {
		log.Fatal(err)
	}
	s, err := script.Load(path)
	if err != nil {
		log.Fatal(err)
	}

	reg := device.NewRegistry()
	if err := stepper.Register(reg); err != nil {
		log.Fatal(err)
	}
	if err := spectrometer.Register(reg); err != nil {
		log.Fatal(err)
	}
	b := bus.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	m := device.NewManager(b, reg)
	defer m.CloseAll()
	if err := openDummies(m, c); err != nil {
		log.Fatal(err)
	}

	spinner, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " ",
		SuffixAutoColon:   true,
		Message:           "starting",
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
	if err != nil {
		log.Fatal(err)
	}

	var failure error
	flushed := make(chan struct{})
	update := func(msg bus.Message) {
		if r, ok := msg.Data.(*script.Runner); ok {
			spinner.Message(progress(r))
		}
	}
	b.Subscribe(script.TopicStartMoving, update)
	b.Subscribe(script.TopicStartMeasuring, update)
	b.Subscribe(script.TopicError, func(msg bus.Message) {
		if e, ok := msg.Data.(script.ErrorMessage); ok {
			failure = errors.New(e.Message)
		}
	})
	b.Subscribe(topicFlush, func(bus.Message) { close(flushed) })

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)

	spinner.Start()
	runner, err := s.Run(b)
	if err != nil {
		spinner.StopFailMessage(err.Error())
		spinner.StopFail()
		os.Exit(1)
	}

	aborted := false
	select {
	case <-runner.Done():
	case <-sig:
		aborted = true
		spinner.Message("aborting")
		b.Publish(script.TopicAbort, nil)
		<-runner.Done()
	}
	// errors are sent after the runner finishes, wait for them to be delivered
	b.Publish(topicFlush, nil)
	<-flushed

	switch {
	case failure != nil:
		spinner.StopFailMessage(failure.Error())
		spinner.StopFail()
	case aborted:
		spinner.StopFailMessage("aborted")
		spinner.StopFail()
	default:
		spinner.StopMessage(fmt.Sprintf("%d measurements", s.Captures()))
		spinner.Stop()
	}
}

func pversion() {
	fmt.Printf("frog version %v\n", Version)
}

func main() {
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd := strings.ToLower(args[1])
	switch cmd {
	case "validate", "run":
		if len(args) != 3 {
			log.Fatalf("usage: frog %s <script>", cmd)
		}
		if cmd == "validate" {
			validate(args[2])
		} else {
			run(args[2])
		}
	case "version":
		pversion()
	default:
		log.Fatal("unknown command")
	}
}
