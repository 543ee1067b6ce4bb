package hardwareset_test

import (
	"errors"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nasa-jpl/frog/bus"
	"github.com/nasa-jpl/frog/device"
	"github.com/nasa-jpl/frog/hardwareset"
	"go.uber.org/multierr"
)

const bench = `version: 1
name: Bench test
devices:
  temperature_controller.hot_bb:
    class_name: temperature_controller.dummy.DummyTemperatureController
    params:
      set_point: 70
  stepper_motor:
    class_name: stepper_motor.dummy.DummyStepperMotor
  spectrometer:
    class_name: spectrometer.dummy.DummySpectrometer
`

func TestParse(t *testing.T) {
	hs, err := hardwareset.Parse([]byte(bench))
	if err != nil {
		t.Fatal(err)
	}
	want := []hardwareset.Device{
		{Instance: device.InstanceRef{BaseType: "spectrometer"}, ClassName: "spectrometer.dummy.DummySpectrometer"},
		{Instance: device.InstanceRef{BaseType: "stepper_motor"}, ClassName: "stepper_motor.dummy.DummyStepperMotor"},
		{
			Instance:  device.InstanceRef{BaseType: "temperature_controller", Name: "hot_bb"},
			ClassName: "temperature_controller.dummy.DummyTemperatureController",
			Params:    map[string]interface{}{"set_point": 70},
		},
	}
	if diff := cmp.Diff(want, hs.Devices); diff != "" {
		t.Errorf("devices mismatch (-want +got):\n%s", diff)
	}
	if hs.Name != "Bench test" {
		t.Errorf("expected %s got %s", "Bench test", hs.Name)
	}
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"no version":   "name: x\ndevices: {spectrometer: {class_name: a}}\n",
		"bad version":  "version: 2\nname: x\ndevices: {spectrometer: {class_name: a}}\n",
		"no name":      "version: 1\ndevices: {spectrometer: {class_name: a}}\n",
		"no devices":   "version: 1\nname: x\ndevices: {}\n",
		"extra key":    "version: 1\nname: x\nowner: me\ndevices: {spectrometer: {class_name: a}}\n",
		"no class":     "version: 1\nname: x\ndevices: {spectrometer: {}}\n",
		"bad instance": "version: 1\nname: x\ndevices: {\"spectrometer.\": {class_name: a}}\n",
	}
	for name, doc := range cases {
		if _, err := hardwareset.Parse([]byte(doc)); !errors.Is(err, hardwareset.ErrLoad) {
			t.Errorf("%s: expected ErrLoad got %v", name, err)
		}
	}
}

func TestParseReportsEveryDevice(t *testing.T) {
	doc := "version: 1\nname: x\ndevices: {\".a\": {class_name: a}, \"b.\": {class_name: b}, c: {}}\n"
	_, err := hardwareset.Parse([]byte(doc))
	if n := len(multierr.Errors(err)); n != 3 {
		t.Errorf("expected %d errors got %d: %v", 3, n, err)
	}
}

func TestSaveLoadDir(t *testing.T) {
	dir := t.TempDir()
	hs, err := hardwareset.Parse([]byte(bench))
	if err != nil {
		t.Fatal(err)
	}
	if err := hs.Save(filepath.Join(dir, "b.yaml")); err != nil {
		t.Fatal(err)
	}
	other := &hardwareset.HardwareSet{
		Name:    "Alpha",
		Devices: []hardwareset.Device{{Instance: device.InstanceRef{BaseType: "spectrometer"}, ClassName: "spectrometer.dummy.DummySpectrometer"}},
	}
	if err := other.Save(filepath.Join(dir, "c.yaml")); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(filepath.Join(dir, "a.yaml"), []byte("version: 1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	sets, err := hardwareset.LoadDir(dir)
	if len(multierr.Errors(err)) != 1 || !errors.Is(err, hardwareset.ErrLoad) {
		t.Errorf("expected one ErrLoad got %v", err)
	}
	if len(sets) != 2 {
		t.Fatalf("expected %d sets got %d", 2, len(sets))
	}
	if sets[0].Name != "Alpha" || sets[1].Name != "Bench test" {
		t.Errorf("expected sets sorted by name got %s, %s", sets[0].Name, sets[1].Name)
	}
	if diff := cmp.Diff(hs.Devices, sets[1].Devices); diff != "" {
		t.Errorf("devices mismatch after reload (-want +got):\n%s", diff)
	}
}

func TestOpen(t *testing.T) {
	hs, err := hardwareset.Parse([]byte(bench))
	if err != nil {
		t.Fatal(err)
	}
	b := bus.New()
	var got []string
	b.Subscribe(device.TopicOpen, func(m bus.Message) {
		got = append(got, m.Data.(device.OpenRequest).Instance.String())
	})
	hs.Open(b)
	b.Drain()
	want := []string{"spectrometer", "stepper_motor", "temperature_controller.hot_bb"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("open order mismatch (-want +got):\n%s", diff)
	}
}
