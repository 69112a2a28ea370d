// Package bus is the in-process message backbone of the RTU core. It is
// built around the two traffic shapes this system actually has:
//
//   - Retained service state: every service (core, heartbeat, fieldbus)
//     publishes its readiness record on StateTopic(service) with
//     PublishState; a late subscriber — an operator surface attaching
//     mid-run — immediately receives the current record.
//   - Operator request/reply: alarm acknowledge/clear commands are sent
//     with RequestWait and answered by the opcmd service with Reply.
//
// Topics are string paths ("fieldbus", "state"); subscription patterns
// may use "+" for exactly one segment or "#" for any remainder. The
// subscriber population is a fixed handful of services, so matching is a
// plain scan over live subscriptions rather than anything indexed.
//
// Delivery is bounded and never blocks a publisher: each subscription has
// a small queue, and when it overflows the oldest queued message is
// discarded. For state traffic that is the desired semantic — a slow
// subscriber converges on the freshest record — and it is what keeps
// Publish safe to call from the tick path (§5: bounded-time operations).
package bus

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// Wildcard segments accepted in subscription patterns.
const (
	WildcardOne = "+" // matches exactly one segment
	WildcardAny = "#" // matches any remainder, including none
)

const defaultQueueLen = 3

// Topic is a path of segments from coarse to fine, e.g.
// {"alarm", "cmd", "ack"}. A Topic used as a subscription pattern may
// contain wildcard segments; a published Topic must not.
type Topic []string

// T builds a Topic from its segments.
func T(segments ...string) Topic { return Topic(segments) }

// StateTopic is the retained-readiness topic for a service; every
// service's ServiceState record lives on exactly this shape so a single
// {"+", "state"} subscription observes the whole process.
func StateTopic(service string) Topic { return Topic{service, "state"} }

// String renders the topic as a slash-joined path; used as the retained
// store key and in diagnostics.
func (t Topic) String() string { return strings.Join(t, "/") }

// Match reports whether pattern t matches the concrete topic c, with "+"
// consuming exactly one segment and "#" consuming the rest (or nothing).
func (t Topic) Match(c Topic) bool {
	for i, seg := range t {
		if seg == WildcardAny {
			return true
		}
		if i >= len(c) {
			return false
		}
		if seg != WildcardOne && seg != c[i] {
			return false
		}
	}
	return len(t) == len(c)
}

// Message is one published record. A retained message replaces the
// previous retained record on its exact topic; a retained message with a
// nil payload deletes that record.
type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
	ReplyTo  Topic
	ID       uint64
}

// Subscription is one registered pattern and its delivery queue. The
// queue is guarded so a racing Unsubscribe/Disconnect can never make a
// publisher send on a closed channel.
type Subscription struct {
	pattern Topic
	conn    *Connection

	mu     sync.Mutex
	closed bool
	ch     chan *Message
}

func (s *Subscription) Topic() Topic             { return s.pattern }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

// push enqueues msg, discarding the oldest queued message on overflow.
func (s *Subscription) push(msg *Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- msg:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- msg:
	default:
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Bus routes messages between service connections. One Bus per process,
// built in cmd/rtu.
type Bus struct {
	qLen int
	seq  atomic.Uint64

	mu       sync.RWMutex
	subs     []*Subscription
	retained map[string]*Message
}

// NewBus builds a Bus with the given per-subscription queue length.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = defaultQueueLen
	}
	return &Bus{qLen: queueLen, retained: make(map[string]*Message)}
}

// NewMessage stamps a message with the bus-wide sequence id.
func (b *Bus) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{
		Topic:    topic,
		Payload:  payload,
		Retained: retained,
		ID:       b.seq.Add(1),
	}
}

// Publish routes msg to every matching subscription and updates the
// retained store. It never blocks on a slow subscriber.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	if msg.Retained {
		if msg.Payload == nil {
			delete(b.retained, msg.Topic.String())
		} else {
			b.retained[msg.Topic.String()] = msg
		}
	}
	targets := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.pattern.Match(msg.Topic) {
			targets = append(targets, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range targets {
		sub.push(msg)
	}
}

func (b *Bus) subscribe(sub *Subscription) {
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	var replay []*Message
	for _, msg := range b.retained {
		if sub.pattern.Match(msg.Topic) {
			replay = append(replay, msg)
		}
	}
	b.mu.Unlock()

	for _, msg := range replay {
		sub.push(msg)
	}
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
	sub.close()
}

// Connection is one service's handle on the bus; Disconnect tears down
// everything the service subscribed, so service shutdown is one call.
type Connection struct {
	bus *Bus
	id  string

	mu       sync.Mutex
	subs     []*Subscription
	replySeq atomic.Uint64
}

// NewConnection names a service's attachment. The id seeds reply topics
// and identifies the service in diagnostics.
func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{bus: b, id: id}
}

func (c *Connection) NewMessage(topic Topic, payload any, retained bool) *Message {
	return c.bus.NewMessage(topic, payload, retained)
}

func (c *Connection) Publish(msg *Message) { c.bus.Publish(msg) }

// PublishState retains the service-readiness record on StateTopic. This
// is the one publish shape every long-running service uses.
func (c *Connection) PublishState(service string, payload any) {
	c.Publish(c.NewMessage(StateTopic(service), payload, true))
}

// Subscribe registers a pattern; matching retained messages are
// delivered immediately.
func (c *Connection) Subscribe(pattern Topic) *Subscription {
	sub := &Subscription{
		pattern: pattern,
		conn:    c,
		ch:      make(chan *Message, c.bus.qLen),
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	c.bus.subscribe(sub)
	return sub
}

func (c *Connection) Unsubscribe(sub *Subscription) {
	c.mu.Lock()
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	c.bus.unsubscribe(sub)
}

// Disconnect removes and closes every subscription held by the
// connection.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		c.bus.unsubscribe(sub)
	}
}

// replyTopic derives a unique reply address from the connection identity
// and a per-connection counter.
func (c *Connection) replyTopic() Topic {
	return Topic{"reply", c.id, strconv.FormatUint(c.replySeq.Add(1), 10)}
}

// Request publishes msg with a unique ReplyTo topic and returns the
// subscription the reply will arrive on.
func (c *Connection) Request(msg *Message) *Subscription {
	if len(msg.ReplyTo) == 0 {
		msg.ReplyTo = c.replyTopic()
	}
	sub := c.Subscribe(msg.ReplyTo)
	c.Publish(msg)
	return sub
}

// RequestWait is Request plus a blocking wait bounded by ctx; the
// operator command surfaces use it for alarm acknowledge/clear.
func (c *Connection) RequestWait(ctx context.Context, msg *Message) (*Message, error) {
	sub := c.Request(msg)
	defer c.Unsubscribe(sub)

	select {
	case m := <-sub.ch:
		if m == nil {
			return nil, errors.New("bus: subscription closed")
		}
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reply answers a request on its ReplyTo topic; a message without one is
// ignored (fire-and-forget publish).
func (c *Connection) Reply(to *Message, payload any, retained bool) {
	if len(to.ReplyTo) == 0 {
		return
	}
	c.Publish(c.NewMessage(to.ReplyTo, payload, retained))
}
