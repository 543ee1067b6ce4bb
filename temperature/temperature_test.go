package temperature_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nasa-jpl/frog/bus"
	"github.com/nasa-jpl/frog/device"
	"github.com/nasa-jpl/frog/generichttp"
	"github.com/nasa-jpl/frog/temperature"
)

func ExampleC2K() {
	fmt.Println(temperature.C2K(0))
	// Output: 273.15
}

func TestNames(t *testing.T) {
	b := bus.New()
	if _, err := temperature.NewDummy(b, "warm_bb", temperature.DummyConfig{PollInterval: 1}); !errors.Is(err, device.ErrInvalidName) {
		t.Errorf("expected ErrInvalidName got %v", err)
	}
	d, err := temperature.NewDummy(b, "cold_bb", temperature.DummyConfig{PollInterval: 60})
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	if got := d.Topic(); got != "device.temperature_controller.cold_bb" {
		t.Errorf("expected %s got %s", "device.temperature_controller.cold_bb", got)
	}
}

func TestDummyApproachesSetPoint(t *testing.T) {
	d, err := temperature.NewDummy(bus.New(), "hot_bb", temperature.DummyConfig{SetPoint: 100, PollInterval: 60})
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	r := d.Tick(time.Now())
	if r.Temperature != 60 || r.SetPoint != 100 {
		t.Errorf("expected 60 C toward 100 C got %v toward %v", r.Temperature, r.SetPoint)
	}
	r = d.Tick(time.Now())
	if r.Temperature != 80 {
		t.Errorf("expected %v got %v", 80., r.Temperature)
	}
}

func TestChangeSetPoint(t *testing.T) {
	b := bus.New()
	d, err := temperature.NewDummy(b, "hot_bb", temperature.DummyConfig{SetPoint: 70, PollInterval: 60})
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	var errs []interface{}
	b.Subscribe(d.Ref().ErrorTopic(), func(m bus.Message) { errs = append(errs, m.Data) })
	b.Publish(d.Topic()+".change_set_point", generichttp.FloatT{F64: 85})
	b.Publish(d.Topic()+".change_set_point", generichttp.FloatT{F64: -300})
	b.Drain()
	if d.SetPoint() != 85 {
		t.Errorf("expected %v got %v", 85., d.SetPoint())
	}
	if len(errs) != 1 || !errors.Is(errs[0].(device.ErrorMessage), temperature.ErrBelowAbsoluteZero) {
		t.Errorf("expected one ErrBelowAbsoluteZero got %v", errs)
	}
}

func TestDummyPublishesReadings(t *testing.T) {
	b := bus.New()
	rec := temperature.NewRecorder(b, 3)
	d, err := temperature.NewDummy(b, "hot_bb", temperature.DummyConfig{SetPoint: 70, PollInterval: 0.005})
	if err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(rec.Readings("hot_bb")) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
		b.Drain()
	}
	d.Close()
	if n := len(rec.Readings("hot_bb")); n != 3 {
		t.Errorf("expected %d readings got %d", 3, n)
	}
}

func TestRecorderBounded(t *testing.T) {
	b := bus.New()
	rec := temperature.NewRecorder(b, 2)
	topic := temperature.Topic + ".cold_bb.data"
	for i := 0; i < 5; i++ {
		b.Publish(topic, temperature.Reading{Temperature: temperature.Celsius(i)})
	}
	// other messages on the family are ignored
	b.Publish(temperature.Topic+".cold_bb.change_set_point", generichttp.FloatT{F64: 1})
	b.Drain()
	rs := rec.Readings("cold_bb")
	if len(rs) != 2 || rs[0].Temperature != 3 || rs[1].Temperature != 4 {
		t.Errorf("expected the last two readings got %v", rs)
	}

	w := httptest.NewRecorder()
	rec.HTTPYield(w, httptest.NewRequest(http.MethodGet, "/temperatures", nil))
	out := map[string]struct {
		Temperature []float64 `json:"temperature"`
	}{}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if got := out["cold_bb"].Temperature; len(got) != 2 || got[1] != 4 {
		t.Errorf("expected [3 4] got %v", got)
	}

	rec.Stop()
	b.Publish(topic, temperature.Reading{Temperature: 9})
	b.Drain()
	if len(rec.Readings("cold_bb")) != 2 {
		t.Errorf("expected no recording after Stop")
	}
}
