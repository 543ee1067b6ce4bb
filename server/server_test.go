package server_test

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"github.com/nasa-jpl/frog/bus"
	"github.com/nasa-jpl/frog/device"
	"github.com/nasa-jpl/frog/server"
)

func TestEventFor(t *testing.T) {
	ref := device.InstanceRef{BaseType: "stepper_motor"}
	cases := []struct {
		name string
		data interface{}
		exp  interface{}
	}{
		{"nil", nil, nil},
		{"map", map[string]int{"a": 1}, json.RawMessage(`{"a":1}`)},
		{"plain error", errors.New("boom"), "boom"},
		{"error with JSON form", device.ErrorMessage{Instance: ref, Err: errors.New("boom")},
			json.RawMessage(`{"instance":"stepper_motor","error":"boom"}`)},
		{"unencodable", make(chan int), nil},
	}
	for _, c := range cases {
		ev := server.EventFor(bus.Message{Topic: "x", Data: c.data})
		if c.name == "unencodable" {
			if _, ok := ev.Data.(string); !ok {
				t.Errorf("%s: expected a string got %T", c.name, ev.Data)
			}
			continue
		}
		if !cmp.Equal(c.exp, ev.Data) {
			t.Errorf("%s: expected %s got %s", c.name, c.exp, ev.Data)
		}
	}
}

// gauge encodes whatever value it holds when it is marshaled
type gauge struct {
	mu sync.Mutex
	v  int
}

func (g *gauge) set(v int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.v = v
}

func (g *gauge) MarshalJSON() ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return json.Marshal(g.v)
}

func TestEventHoldsStateAtDelivery(t *testing.T) {
	g := &gauge{v: 1}
	ev := server.EventFor(bus.Message{Topic: "x", Data: g})
	g.set(2)
	buf, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf) != `{"topic":"x","data":1}` {
		t.Errorf("expected the value at delivery, got %s", buf)
	}
}

func TestEventStream(t *testing.T) {
	b := bus.New()
	srv := httptest.NewServer(server.NewEventStream(b))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	g := &gauge{v: 1}
	b.Publish("device.stepper_motor.move.end", map[string]float64{"moved_to": 90})
	b.Publish("measure_script.error", errors.New("spectrometer lost"))
	b.Publish("measure_script.start_moving", g)
	b.Drain()
	g.set(2)

	exp := []map[string]interface{}{
		{"topic": "device.stepper_motor.move.end", "data": map[string]interface{}{"moved_to": 90.}},
		{"topic": "measure_script.error", "data": "spectrometer lost"},
		{"topic": "measure_script.start_moving", "data": 1.},
	}
	for _, e := range exp {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		got := map[string]interface{}{}
		if err := conn.ReadJSON(&got); err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(e, got); diff != "" {
			t.Errorf("unexpected event (-want +got):\n%s", diff)
		}
	}
}

func TestEventStreamUnsubscribesOnClose(t *testing.T) {
	b := bus.New()
	srv := httptest.NewServer(server.NewEventStream(b))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !b.HasSubscribers("") {
		t.Fatal("expected the stream to subscribe to every topic")
	}
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for b.HasSubscribers("") {
		if time.Now().After(deadline) {
			t.Fatal("expected the subscription to be released")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
