/*Package bus provides an in-process publish/subscribe broker with
dot-separated, hierarchical topics.

Messages are never delivered on the publisher's goroutine.  Publish appends
to a FIFO queue and a single dispatcher (Run, or Drain in tests) delivers one
message at a time, so a handler always runs to completion before the next
message is seen.  Handlers may publish, subscribe and unsubscribe freely.

A subscriber to "device.stepper_motor" also receives messages published on
"device.stepper_motor.move.end"; the empty topic receives everything.
*/
package bus

import (
	"context"
	"strings"
	"sync"
)

// Message is a unit of delivery
type Message struct {
	// Topic is the full topic the message was published on
	Topic string

	// Data is the payload, may be nil
	Data interface{}
}

// Handler consumes messages
type Handler func(Message)

// Subscription is a live registration of a Handler on a topic
type Subscription struct {
	broker *Broker
	topic  string
	fn     Handler

	mu     sync.Mutex
	active bool
}

// Topic returns the topic the subscription was made on
func (s *Subscription) Topic() string {
	return s.topic
}

// Active returns true if the subscription will still receive messages
func (s *Subscription) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Unsubscribe removes the subscription.  It is safe to call more than once
// and from within a handler.
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	s.mu.Unlock()
	s.broker.remove(s)
}

// Broker routes messages from publishers to subscribers.  Brokers must be
// created with New.
type Broker struct {
	mu     sync.Mutex
	subs   map[string][]*Subscription
	queue  []Message
	notify chan struct{}

	// dispatch serializes delivery between Run and Drain
	dispatch sync.Mutex
}

// New returns a new, empty Broker
func New() *Broker {
	return &Broker{
		subs:   make(map[string][]*Subscription),
		notify: make(chan struct{}, 1),
	}
}

// Subscribe registers fn on topic.  The subscription first sees the message
// after the one currently being delivered, if any.
func (b *Broker) Subscribe(topic string, fn Handler) *Subscription {
	s := &Subscription{broker: b, topic: topic, fn: fn, active: true}
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], s)
	b.mu.Unlock()
	return s
}

func (b *Broker) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[s.topic]
	for i := range list {
		if list[i] == s {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(b.subs, s.topic)
		return
	}
	b.subs[s.topic] = list
}

// Publish enqueues data on topic and returns immediately
func (b *Broker) Publish(topic string, data interface{}) {
	b.mu.Lock()
	b.queue = append(b.queue, Message{Topic: topic, Data: data})
	b.mu.Unlock()
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Pending returns the number of messages waiting for delivery
func (b *Broker) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// HasSubscribers returns true if anything is subscribed exactly on topic
func (b *Broker) HasSubscribers(topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic]) > 0
}

func (b *Broker) pop() (Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return Message{}, false
	}
	m := b.queue[0]
	b.queue[0] = Message{}
	b.queue = b.queue[1:]
	return m, true
}

// listeners returns a snapshot of the subscriptions that should see a
// message on topic, most specific topic first
func (b *Broker) listeners(topic string) []*Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*Subscription
	t := topic
	for {
		out = append(out, b.subs[t]...)
		if t == "" {
			break
		}
		if idx := strings.LastIndexByte(t, '.'); idx >= 0 {
			t = t[:idx]
		} else {
			t = ""
		}
	}
	return out
}

func (b *Broker) deliver(m Message) {
	for _, s := range b.listeners(m.Topic) {
		// a handler earlier in the chain may have unsubscribed s
		if !s.Active() {
			continue
		}
		s.fn(m)
	}
}

// Drain delivers queued messages, including any published while draining,
// until the queue is empty.  It returns the number of messages delivered.
func (b *Broker) Drain() int {
	b.dispatch.Lock()
	defer b.dispatch.Unlock()
	n := 0
	for {
		m, ok := b.pop()
		if !ok {
			return n
		}
		b.deliver(m)
		n++
	}
}

// Run delivers messages until ctx is done, then returns ctx.Err().
// Messages still queued when ctx is cancelled are left in the queue.
func (b *Broker) Run(ctx context.Context) error {
	for {
		b.Drain()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.notify:
		}
	}
}
