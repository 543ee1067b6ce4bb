// Package server streams the traffic on a message broker to websocket
// clients, so that user interfaces can follow devices and measure scripts
// without polling.
package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nasa-jpl/frog/bus"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// Event is the JSON form of a broker message sent to clients
type Event struct {
	Topic string      `json:"topic"`
	Data  interface{} `json:"data,omitempty"`
}

// EventFor converts a message to an Event, encoding its data at once so the
// event holds the state of the data when it was delivered.  Errors without
// their own JSON form become their message, and data that can not be
// encoded is formatted with %v.
func EventFor(m bus.Message) Event {
	ev := Event{Topic: m.Topic}
	if m.Data == nil {
		return ev
	}
	e, isErr := m.Data.(error)
	if _, ok := m.Data.(json.Marshaler); isErr && !ok {
		ev.Data = e.Error()
		return ev
	}
	raw, err := json.Marshal(m.Data)
	switch {
	case err == nil:
		ev.Data = json.RawMessage(raw)
	case isErr:
		ev.Data = e.Error()
	default:
		ev.Data = fmt.Sprintf("%v", m.Data)
	}
	return ev
}

// EventStream is an http.Handler that upgrades requests to websockets and
// forwards every message published on the broker to them
type EventStream struct {
	broker   *bus.Broker
	upgrader websocket.Upgrader

	// Buffer is the number of events queued for a client.  Events for a
	// client whose queue is full are dropped.
	Buffer int
}

// NewEventStream returns an EventStream on b accepting any origin
func NewEventStream(b *bus.Broker) *EventStream {
	return &EventStream{
		broker: b,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		Buffer: 256,
	}
}

// ServeHTTP satisfies http.Handler
func (e *EventStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	queue := make(chan Event, e.Buffer)
	sub := e.broker.Subscribe("", func(m bus.Message) {
		select {
		case queue <- EventFor(m):
		default:
		}
	})
	defer sub.Unsubscribe()

	conn, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("event stream: upgrade failed: %v\n", err)
		return
	}
	defer conn.Close()

	// clients only ever close, but reading is required to see the close
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("event stream: read error: %v\n", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case ev := <-queue:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				log.Printf("event stream: write error: %v\n", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
