/**
 * Event Bus.
 *
 * A typed publish/subscribe bus decoupling the core services from
 * their consumers. Core services publish; the outward-facing layers
 * (query API, websocket push) subscribe. No service holds a
 * back-pointer to another.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package eventbus

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Kind string

const (
	FlowUpdate   Kind = "flow_update"
	DeviceUpdate Kind = "device_update"
	ThreatUpdate Kind = "threat_update"
)

// Event is one notification pushed to subscribers. Payload is the
// flow/device/threat model value relevant to Kind.
type Event struct {
	Kind    Kind
	Payload any
}

const (
	deliverTimeout = 5 * time.Second
	retryDelay     = 2 * time.Second
)

type subscriber struct {
	id      int
	ch      chan Event
	kinds   map[Kind]bool
	failure int
}

// Bus is a best-effort, non-blocking pub/sub dispatcher. Delivery order
// across event kinds is unspecified. A subscriber that fails delivery
// twice in a row (one send, one retry) is removed permanently.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]*subscriber
	nextID int
	log    *zap.Logger
}

func New(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{subs: make(map[int]*subscriber), log: log}
}

// Subscription is returned from Subscribe; call Close to unsubscribe.
type Subscription struct {
	bus *Bus
	id  int
	C   <-chan Event
}

func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if sub, ok := s.bus.subs[s.id]; ok {
		close(sub.ch)
		delete(s.bus.subs, s.id)
	}
}

// Subscribe registers interest in the given event kinds. An empty kinds
// list subscribes to all kinds. The returned channel has a small buffer;
// publishers never block on a slow subscriber past deliverTimeout.
func (b *Bus) Subscribe(kinds ...Kind) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	set := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}

	b.nextID++
	sub := &subscriber{id: b.nextID, ch: make(chan Event, 32), kinds: set}
	b.subs[sub.id] = sub
	return &Subscription{bus: b, id: sub.id, C: sub.ch}
}

// Publish delivers ev to every interested subscriber. Each delivery is
// attempted with a timeout, retried once after retryDelay, and the
// subscriber is dropped after two consecutive failures. Publish itself
// never blocks the caller for longer than deliverTimeout per subscriber
// and runs deliveries concurrently.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	targets := make([]*subscriber, 0, len(b.subs))
	for _, sub := range b.subs {
		if len(sub.kinds) == 0 || sub.kinds[ev.Kind] {
			targets = append(targets, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range targets {
		go b.deliver(sub, ev)
	}
}

func (b *Bus) deliver(sub *subscriber, ev Event) {
	if b.send(sub, ev) {
		b.mu.Lock()
		sub.failure = 0
		b.mu.Unlock()
		return
	}

	time.Sleep(retryDelay)
	if b.send(sub, ev) {
		b.mu.Lock()
		sub.failure = 0
		b.mu.Unlock()
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	sub.failure++
	b.log.Warn("subscriber delivery failed", zap.Int("subscriber", sub.id), zap.String("kind", string(ev.Kind)), zap.Int("consecutive_failures", sub.failure))
	if sub.failure >= 2 {
		// Dropped from the routing table only; the channel itself is
		// left for garbage collection. Closing it here would race
		// against in-flight deliveries from other Publish calls.
		delete(b.subs, sub.id)
		b.log.Warn("subscriber removed after repeated delivery failure", zap.Int("subscriber", sub.id))
	}
}

// send may race against Subscription.Close on the same channel; a send
// on a closed channel panics rather than blocking, so it is recovered
// here and treated as a failed delivery.
func (b *Bus) send(sub *subscriber, ev Event) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()
	select {
	case sub.ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Close unsubscribes everyone and releases all channels. Intended for
// shutdown only.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}
