// Broadcast hub: an explicit subscription table mapping two audience kinds
// (per-user channels, one shared operator pool) to listener sets, with pure
// fan-out publishing that is independent of any transport.
//
// Delivery is best-effort: each subscription owns a buffered channel and a
// publish never blocks — a listener that cannot keep up misses events (a drop
// counter is exported for dashboards). Within one channel, events arrive in
// publish order; no ordering is guaranteed across channels.
package events

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultBuffer is the per-subscription channel capacity used when the hub is
// constructed with a non-positive buffer size.
const DefaultBuffer = 64

var droppedEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "chattalk_events_dropped_total",
		Help: "Events dropped because a subscriber's buffer was full.",
	},
	[]string{"audience"},
)

func init() {
	prometheus.MustRegister(droppedEvents)
}

// Subscription is one listener's handle on the hub. Receive from C until it
// is closed; call Close exactly once when done (Close is also safe to call
// from the hub side on shutdown).
type Subscription struct {
	hub      *Hub
	userID   string // empty for operator subscriptions
	operator bool
	ch       chan Event
	once     sync.Once
}

// C returns the channel events are delivered on. It is closed when the
// subscription is closed.
func (s *Subscription) C() <-chan Event { return s.ch }

// Close detaches the subscription from the hub and closes its channel.
// Closing twice is a no-op. Billing is unaffected: it is tied to session
// state, not to listener connectivity.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.detach(s)
		close(s.ch)
	})
}

// Hub owns the subscription table and fans events out to it.
// All methods are safe for concurrent use.
type Hub struct {
	mu        sync.Mutex
	users     map[string]map[*Subscription]struct{}
	operators map[*Subscription]struct{}
	buffer    int
	closed    bool
}

// NewHub constructs a Hub whose subscriptions buffer up to buffer events;
// non-positive values fall back to DefaultBuffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		users:     make(map[string]map[*Subscription]struct{}),
		operators: make(map[*Subscription]struct{}),
		buffer:    buffer,
	}
}

// SubscribeUser registers a listener on userID's channel. A user may hold
// several subscriptions at once (multi-device echo).
func (h *Hub) SubscribeUser(userID string) *Subscription {
	s := &Subscription{hub: h, userID: userID, ch: make(chan Event, h.buffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.once.Do(func() { close(s.ch) })
		return s
	}
	set, ok := h.users[userID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.users[userID] = set
	}
	set[s] = struct{}{}
	return s
}

// SubscribeOperator registers a listener on the shared operator channel.
func (h *Hub) SubscribeOperator() *Subscription {
	s := &Subscription{hub: h, operator: true, ch: make(chan Event, h.buffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.once.Do(func() { close(s.ch) })
		return s
	}
	h.operators[s] = struct{}{}
	return s
}

// PublishToUser delivers ev to every listener on userID's channel.
func (h *Hub) PublishToUser(userID string, ev Event) {
	h.stamp(&ev)
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.users[userID] {
		h.send(s, ev, "user")
	}
}

// PublishToOperators delivers ev to every listener in the operator pool.
func (h *Hub) PublishToOperators(ev Event) {
	h.stamp(&ev)
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.operators {
		h.send(s, ev, "operator")
	}
}

// PublishToBoth delivers ev to userID's channel and to the operator pool
// under one lock acquisition, so both audiences observe this hub's events in
// the same relative order.
func (h *Hub) PublishToBoth(userID string, ev Event) {
	h.stamp(&ev)
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.users[userID] {
		h.send(s, ev, "user")
	}
	for s := range h.operators {
		h.send(s, ev, "operator")
	}
}

// Close detaches and closes every subscription. Publishing after Close is a
// silent no-op; subscribing returns an already-closed subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	var all []*Subscription
	for _, set := range h.users {
		for s := range set {
			all = append(all, s)
		}
	}
	for s := range h.operators {
		all = append(all, s)
	}
	h.users = make(map[string]map[*Subscription]struct{})
	h.operators = make(map[*Subscription]struct{})
	h.mu.Unlock()

	for _, s := range all {
		s.once.Do(func() { close(s.ch) })
	}
}

// send performs the non-blocking delivery. Caller holds h.mu, which is what
// makes per-channel delivery order match publish order.
func (h *Hub) send(s *Subscription, ev Event, audience string) {
	select {
	case s.ch <- ev:
	default:
		droppedEvents.WithLabelValues(audience).Inc()
	}
}

// stamp fills the event timestamp when the publisher left it zero.
func (h *Hub) stamp(ev *Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
}

// detach removes s from the subscription table.
func (h *Hub) detach(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.operator {
		delete(h.operators, s)
		return
	}
	if set, ok := h.users[s.userID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.users, s.userID)
		}
	}
}
