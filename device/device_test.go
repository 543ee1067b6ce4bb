package device_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nasa-jpl/frog/bus"
	"github.com/nasa-jpl/frog/device"
)

var (
	lamp = device.BaseTypeInfo{Name: "lamp", Description: "Lamp"}

	blackbody = device.BaseTypeInfo{
		Name:        "temperature_controller",
		Description: "Temperature controller",
		NamesShort:  []string{"hot_bb", "cold_bb"},
		NamesLong:   []string{"Hot black body", "Cold black body"},
	}
)

func ExampleParseInstanceRef() {
	ref, _ := device.ParseInstanceRef("temperature_controller.hot_bb")
	fmt.Println(ref.BaseType, ref.Name)
	fmt.Println(ref.Topic())
	fmt.Println(ref.ErrorTopic())
	// Output:
	// temperature_controller hot_bb
	// device.temperature_controller.hot_bb
	// device.error.temperature_controller.hot_bb
}

func TestParseInstanceRefErrors(t *testing.T) {
	for _, s := range []string{"", ".name", "base."} {
		if _, err := device.ParseInstanceRef(s); !errors.Is(err, device.ErrBadInstance) {
			t.Errorf("expected ErrBadInstance for %q got %v", s, err)
		}
	}
}

func TestInstanceRefString(t *testing.T) {
	ref := device.InstanceRef{BaseType: "stepper_motor"}
	if s := ref.String(); s != "stepper_motor" {
		t.Errorf("expected %s got %s", "stepper_motor", s)
	}
}

func TestNewBaseNames(t *testing.T) {
	b := bus.New()
	cases := []struct {
		info device.BaseTypeInfo
		name string
		err  error
	}{
		{lamp, "", nil},
		{lamp, "left", device.ErrNameNotAllowed},
		{blackbody, "hot_bb", nil},
		{blackbody, "cold_bb", nil},
		{blackbody, "", device.ErrInvalidName},
		{blackbody, "warm_bb", device.ErrInvalidName},
	}
	for _, c := range cases {
		_, err := device.NewBase(b, c.info, "x.X", c.name)
		if !errors.Is(err, c.err) {
			t.Errorf("%s/%q: expected %v got %v", c.info.Name, c.name, c.err, err)
		}
	}
}

func TestSignalOpenedMessages(t *testing.T) {
	b := bus.New()
	var topics []string
	b.Subscribe("device", func(m bus.Message) { topics = append(topics, m.Topic) })
	d, err := device.NewBase(b, blackbody, "temperature.dummy.DummyTemperatureController", "hot_bb")
	if err != nil {
		t.Fatal(err)
	}
	d.SignalOpened()
	b.Drain()
	expected := []string{
		"device.after_opening.temperature_controller.hot_bb",
		"device.opened.temperature_controller.hot_bb",
	}
	if diff := cmp.Diff(expected, topics); diff != "" {
		t.Errorf("unexpected messages (-want +got):\n%s", diff)
	}
}

func TestSignalOpenedTwicePanics(t *testing.T) {
	d, _ := device.NewBase(bus.New(), lamp, "lamp.Lamp", "")
	d.SignalOpened()
	defer func() {
		if recover() == nil {
			t.Errorf("expected panic on second SignalOpened")
		}
	}()
	d.SignalOpened()
}

func TestSubscriptionsDeferredUntilOpen(t *testing.T) {
	b := bus.New()
	d, _ := device.NewBase(b, lamp, "lamp.Lamp", "")
	calls := 0
	d.Subscribe("on", func(bus.Message) error { calls++; return nil })
	b.Publish("device.lamp.on", nil)
	b.Drain()
	if calls != 0 {
		t.Errorf("expected no calls before open, got %d", calls)
	}
	d.SignalOpened()
	b.Publish("device.lamp.on", nil)
	b.Drain()
	if calls != 1 {
		t.Errorf("expected 1 call after open, got %d", calls)
	}
	d.Close()
	b.Publish("device.lamp.on", nil)
	b.Drain()
	if calls != 1 {
		t.Errorf("expected no calls after close, got %d", calls)
	}
}

func TestHandlerErrorsBecomeMessages(t *testing.T) {
	b := bus.New()
	d, _ := device.NewBase(b, lamp, "lamp.Lamp", "")
	boom := errors.New("bulb blown")
	d.Subscribe("on", func(bus.Message) error { return boom })
	d.Subscribe("off", func(bus.Message) error { panic("stuck") })
	d.SignalOpened()

	var got []device.ErrorMessage
	b.Subscribe("device.error.lamp", func(m bus.Message) {
		got = append(got, m.Data.(device.ErrorMessage))
	})
	b.Publish("device.lamp.on", nil)
	b.Publish("device.lamp.off", nil)
	b.Drain()
	if len(got) != 2 {
		t.Fatalf("expected 2 error messages got %d", len(got))
	}
	if !errors.Is(got[0], boom) {
		t.Errorf("expected %v got %v", boom, got[0].Err)
	}
	if got[1].Instance != d.Ref() {
		t.Errorf("expected %v got %v", d.Ref(), got[1].Instance)
	}
}

func TestSubscribeResult(t *testing.T) {
	b := bus.New()
	d, _ := device.NewBase(b, lamp, "lamp.Lamp", "")
	d.SubscribeResult("brightness.request", "brightness.response", func(bus.Message) (interface{}, error) {
		return 42, nil
	})
	d.SignalOpened()
	var got interface{}
	b.Subscribe("device.lamp.brightness.response", func(m bus.Message) { got = m.Data })
	b.Publish("device.lamp.brightness.request", nil)
	b.Drain()
	if got != 42 {
		t.Errorf("expected 42 got %v", got)
	}
}
