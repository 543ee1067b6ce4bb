package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	yml "gopkg.in/yaml.v2"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "frogsrv.yml"
	k              = koanf.New(".")
)

func setupconfig() {
	k.Load(structs.Provider(Config{
		Addr:           ":8000",
		HardwareSetDir: "hardware_sets",
		History:        3600}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
	// FROG_LIMITS_MIN => limits.min
	err := k.Load(env.Provider("FROG_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "FROG_")), "_", ".", -1)
	}), nil)
	if err != nil {
		log.Fatalf("error loading environment: %v", err)
	}
}

func root() {
	str := `frogsrv runs measure scripts on the radiometer and exposes an HTTP interface
to them and to its hardware.

Usage:
	frogsrv <command>

Commands:
	run [config file]
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `frogsrv is amenable to configuration via its .yml file, or environment
variables prefixed FROG_, e.g. FROG_ADDR=:9000 or FROG_LIMITS_MAX=270.
For a primer on YAML, see https://yaml.org/start.html

Given a path, run reads that file and nothing else.

Routes:
- /motor        mirror angle, presets, software limits and the lock
- /script       load, run, pause, unpause and abort measure scripts
- /hardware     device types, open devices and hardware sets
- /temperatures recent temperature controller readings
- /sensors      recent housekeeping sensor readings
- /temperature/hot_bb, /temperature/cold_bb
               temperature and set point of each black body
- /events       websocket carrying every message on the bus
- /endpoints    the routes below each mount point

Device types:
- stepper_motor.dummy.DummyStepperMotor
- stepper_motor.remote.RemoteStepperMotor
- spectrometer.dummy.DummySpectrometer
- temperature_controller.dummy.DummyTemperatureController (hot_bb, cold_bb)
- sensors.dummy.DummyEM27Sensors`
	fmt.Println(str)
}

func mkconf() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("frogsrv version %v\n", Version)
}

func run(args []string) {
	c := Config{}
	var err error
	if len(args) > 0 {
		c, err = LoadYaml(args[0])
	} else {
		err = k.Unmarshal("", &c)
	}
	if err != nil {
		log.Fatal(err)
	}
	sys, err := NewSystem(c)
	if err != nil {
		log.Fatal(err)
	}
	mux := BuildMux(c, sys)
	if err := sys.Start(context.Background(), c); err != nil {
		log.Fatal(err)
	}
	log.Println("now listening for requests at ", c.Addr)
	log.Fatal(http.ListenAndServe(c.Addr, mux))
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run(args[2:])
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
