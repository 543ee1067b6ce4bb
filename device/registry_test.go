package device_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/go-cmp/cmp"
	"github.com/nasa-jpl/frog/bus"
	"github.com/nasa-jpl/frog/device"
)

type lampConfig struct {
	Watts  float64 `mapstructure:"watts"`
	Colour string  `mapstructure:"colour"`
}

type testLamp struct {
	*device.Base
	cfg    lampConfig
	closed int
}

func (l *testLamp) Close() error {
	l.closed++
	return l.Base.Close()
}

var lampInfo = device.TypeInfo{
	ClassName:   "lamp.TestLamp",
	Description: "Test lamp",
	Parameters: map[string]device.Parameter{
		"watts":  {Description: "Power", Type: device.TypeFloat, Default: 60.},
		"colour": {Description: "Colour", Type: device.TypeString, Allowed: []interface{}{"red", "white"}},
	},
}

func newRegistry(t *testing.T, opened *[]*testLamp) *device.Registry {
	r := device.NewRegistry()
	if err := r.RegisterBaseType(lamp); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterBaseType(blackbody); err != nil {
		t.Fatal(err)
	}
	err := r.Register("lamp", lampInfo, func(b *bus.Broker, name string, params map[string]interface{}) (device.Device, error) {
		base, err := device.NewBase(b, lamp, lampInfo.ClassName, name)
		if err != nil {
			return nil, err
		}
		l := &testLamp{Base: base}
		if err := device.DecodeParams(params, &l.cfg); err != nil {
			return nil, err
		}
		l.SignalOpened()
		if opened != nil {
			*opened = append(*opened, l)
		}
		return l, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestRegisterDuplicate(t *testing.T) {
	r := newRegistry(t, nil)
	if err := r.RegisterBaseType(lamp); !errors.Is(err, device.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate got %v", err)
	}
	if err := r.Register("lamp", lampInfo, nil); !errors.Is(err, device.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate got %v", err)
	}
	if err := r.Register("fridge", device.TypeInfo{ClassName: "f"}, nil); !errors.Is(err, device.ErrUnknownType) {
		t.Errorf("expected ErrUnknownType got %v", err)
	}
}

func TestRegisterBadDefault(t *testing.T) {
	r := newRegistry(t, nil)
	info := device.TypeInfo{
		ClassName: "lamp.Bad",
		Parameters: map[string]device.Parameter{
			"n": {Type: device.TypeInt, Default: "three"},
		},
	}
	if err := r.Register("lamp", info, nil); !errors.Is(err, device.ErrBadParameter) {
		t.Errorf("expected ErrBadParameter got %v", err)
	}
}

func TestGroupsSorted(t *testing.T) {
	r := newRegistry(t, nil)
	other := device.TypeInfo{ClassName: "lamp.Another", Description: "Another lamp"}
	if err := r.Register("lamp", other, nil); err != nil {
		t.Fatal(err)
	}
	groups := r.Groups()
	var got []string
	for _, g := range groups {
		got = append(got, g.Base.Description)
		for _, ty := range g.Types {
			got = append(got, "  "+ty.Description)
		}
	}
	expected := []string{"Lamp", "  Another lamp", "  Test lamp", "Temperature controller"}
	if diff := cmp.Diff(expected, got); diff != "" {
		t.Errorf("unexpected grouping (-want +got):\n%s", diff)
	}
}

func TestOpenParams(t *testing.T) {
	var opened []*testLamp
	r := newRegistry(t, &opened)
	b := bus.New()

	_, err := r.Open(b, "lamp.TestLamp", "", map[string]interface{}{"colour": "red"})
	if err != nil {
		t.Fatal(err)
	}
	expected := lampConfig{Watts: 60, Colour: "red"}
	if opened[0].cfg != expected {
		t.Errorf("expected %+v got %+v", expected, opened[0].cfg)
	}

	bad := []map[string]interface{}{
		{},                                 // missing colour
		{"colour": "blue"},                 // not allowed
		{"colour": "red", "watts": "many"}, // wrong type
		{"colour": "red", "volts": 240},    // unknown
	}
	for _, params := range bad {
		if _, err := r.Open(b, "lamp.TestLamp", "", params); !errors.Is(err, device.ErrBadParameter) {
			t.Errorf("%v: expected ErrBadParameter got %v", params, err)
		}
	}
	if _, err := r.Open(b, "lamp.Nope", "", nil); !errors.Is(err, device.ErrUnknownType) {
		t.Errorf("expected ErrUnknownType got %v", err)
	}
}

func TestManagerLifecycle(t *testing.T) {
	var opened []*testLamp
	r := newRegistry(t, &opened)
	b := bus.New()
	m := device.NewManager(b, r)
	ref := device.InstanceRef{BaseType: "lamp"}

	var closed []string
	b.Subscribe(device.TopicClosed, func(msg bus.Message) { closed = append(closed, msg.Topic) })

	b.Publish(device.TopicOpen, device.OpenRequest{
		ClassName: "lamp.TestLamp",
		Instance:  ref,
		Params:    map[string]interface{}{"colour": "white"},
	})
	b.Drain()
	if s := m.Status(ref); s != device.Connected {
		t.Errorf("expected %v got %v", device.Connected, s)
	}
	if _, ok := m.Device(ref); !ok {
		t.Errorf("expected device to be held")
	}

	// an error from the device closes it
	opened[0].SendError(errors.New("flicker"))
	b.Drain()
	if s := m.Status(ref); s != device.Disconnected {
		t.Errorf("expected %v got %v", device.Disconnected, s)
	}
	if opened[0].closed != 1 {
		t.Errorf("expected device to be closed once, closed %d times", opened[0].closed)
	}
	if diff := cmp.Diff([]string{"device.closed.lamp"}, closed); diff != "" {
		t.Errorf("unexpected closed messages (-want +got):\n%s", diff)
	}
}

func TestManagerOpenFailure(t *testing.T) {
	r := newRegistry(t, nil)
	b := bus.New()
	m := device.NewManager(b, r)
	ref := device.InstanceRef{BaseType: "lamp"}
	var errs []device.ErrorMessage
	b.Subscribe(ref.ErrorTopic(), func(msg bus.Message) { errs = append(errs, msg.Data.(device.ErrorMessage)) })

	err := m.Open(device.OpenRequest{ClassName: "lamp.TestLamp", Instance: ref})
	if !errors.Is(err, device.ErrBadParameter) {
		t.Errorf("expected ErrBadParameter got %v", err)
	}
	b.Drain()
	if len(errs) != 1 {
		t.Errorf("expected 1 error message got %d", len(errs))
	}
	if len(m.Devices()) != 0 {
		t.Errorf("expected no devices held, got %v", m.Devices())
	}
}

func TestManagerCloseAll(t *testing.T) {
	r := newRegistry(t, nil)
	b := bus.New()
	m := device.NewManager(b, r)
	err := m.Open(device.OpenRequest{
		ClassName: "lamp.TestLamp",
		Instance:  device.InstanceRef{BaseType: "lamp"},
		Params:    map[string]interface{}{"colour": "red"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.CloseAll(); err != nil {
		t.Errorf("expected nil got %v", err)
	}
	if err := m.Close(device.InstanceRef{BaseType: "lamp"}); !errors.Is(err, device.ErrNotOpen) {
		t.Errorf("expected ErrNotOpen got %v", err)
	}
}

func TestWorkerReportsErrors(t *testing.T) {
	b := bus.New()
	base, _ := device.NewBase(b, lamp, "lamp.TestLamp", "")
	w := device.NewWorker(base, 4)
	defer w.Stop()
	done := make(chan struct{})
	w.Submit(func(context.Context) error { return errors.New("slow link") })
	w.Submit(func(context.Context) error { close(done); return nil })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for worker")
	}
	if n := b.Drain(); n != 1 {
		t.Errorf("expected 1 error message got %d", n)
	}
}

func TestRetry(t *testing.T) {
	calls := 0
	err := device.Retry(context.Background(), 2, func() error {
		calls++
		return errors.New("timeout")
	})
	if err == nil {
		t.Errorf("expected an error")
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts got %d", calls)
	}

	calls = 0
	perm := errors.New("wrong model")
	err = device.Retry(context.Background(), 5, func() error {
		calls++
		return backoff.Permanent(perm)
	})
	if err != perm || calls != 1 {
		t.Errorf("expected one attempt returning %v, got %d attempts and %v", perm, calls, err)
	}
}
