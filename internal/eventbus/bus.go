package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultHeartbeatInterval = 30 * time.Second

// Subscription is a live registration returned by Subscribe. Events arrive
// on C in publish order per topic; the caller must range over C until it
// closes (on Unsubscribe or on being dropped for a full buffer) and must
// not close C itself.
type Subscription struct {
	ID     string
	C      <-chan Event
	bus    *Bus
	topics map[Topic]bool
}

// Close unsubscribes and closes C.
func (s *Subscription) Close() {
	s.bus.Unsubscribe(s.ID)
}

type subscriber struct {
	id       string
	ch       chan Event
	topics   map[Topic]bool
	mu       sync.Mutex
	lastSent time.Time
}

func (s *subscriber) send(ev Event) bool {
	select {
	case s.ch <- ev:
		s.mu.Lock()
		s.lastSent = ev.At
		s.mu.Unlock()
		return true
	default:
		return false
	}
}

// Bus fans events out to topic-subscribed clients. Publish never blocks:
// a subscriber whose buffer is full is dropped rather than slowing down
// every other subscriber or the publisher.
type Bus struct {
	mu                sync.RWMutex
	subs              map[string]*subscriber
	byTopic           map[Topic]map[string]*subscriber
	bufSize           int
	heartbeatInterval time.Duration
	droppedCount      map[string]int
	now               func() time.Time
	stop              chan struct{}
	stopOnce          sync.Once
}

// NewBus constructs a Bus whose per-subscriber channel holds bufSize
// pending events before the subscriber is dropped.
func NewBus(bufSize int) *Bus {
	if bufSize < 1 {
		bufSize = 64
	}
	return &Bus{
		subs:              make(map[string]*subscriber),
		byTopic:           make(map[Topic]map[string]*subscriber),
		bufSize:           bufSize,
		heartbeatInterval: defaultHeartbeatInterval,
		droppedCount:      make(map[string]int),
		now:               time.Now,
		stop:              make(chan struct{}),
	}
}

// Start launches the idle-heartbeat loop; it returns once ctx is done or
// Stop is called.
func (b *Bus) Start(ctx context.Context) {
	go b.heartbeatLoop(ctx)
}

// Stop halts the heartbeat loop and closes every live subscriber channel.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() { close(b.stop) })
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, s := range b.subs {
		close(s.ch)
		delete(b.subs, id)
	}
	for t := range b.byTopic {
		delete(b.byTopic, t)
	}
}

// Subscribe registers interest in topics and returns a Subscription whose
// channel carries every future event published to them.
func (b *Bus) Subscribe(topics []Topic) (*Subscription, error) {
	for _, t := range topics {
		if !validTopic(t) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTopic, t)
		}
	}
	s := &subscriber{
		id:       uuid.NewString(),
		ch:       make(chan Event, b.bufSize),
		topics:   make(map[Topic]bool, len(topics)),
		lastSent: b.now(),
	}
	for _, t := range topics {
		s.topics[t] = true
	}

	b.mu.Lock()
	b.subs[s.id] = s
	for t := range s.topics {
		if b.byTopic[t] == nil {
			b.byTopic[t] = make(map[string]*subscriber)
		}
		b.byTopic[t][s.id] = s
	}
	b.mu.Unlock()

	return &Subscription{ID: s.id, C: s.ch, bus: b, topics: s.topics}, nil
}

// Unsubscribe removes id's registration and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	for t := range s.topics {
		delete(b.byTopic[t], id)
	}
	close(s.ch)
}

// Publish fans payload out to every subscriber of topic. Never blocks: a
// subscriber whose buffer is full is dropped (its channel closed after one
// best-effort attempt to deliver a KindDropped event) rather than stalling
// delivery to anyone else.
func (b *Bus) Publish(topic Topic, payload any) {
	ev := Event{Kind: KindEvent, Topic: topic, At: b.now(), Payload: payload}

	b.mu.RLock()
	targets := make([]*subscriber, 0, len(b.byTopic[topic]))
	for _, s := range b.byTopic[topic] {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	for _, s := range targets {
		if !s.send(ev) {
			b.dropSubscriber(s, topic)
		}
	}
}

func (b *Bus) dropSubscriber(s *subscriber, topic Topic) {
	b.mu.Lock()
	if _, ok := b.subs[s.id]; !ok {
		b.mu.Unlock()
		return
	}
	delete(b.subs, s.id)
	for t := range s.topics {
		delete(b.byTopic[t], s.id)
	}
	b.droppedCount[s.id]++
	b.mu.Unlock()

	// Best effort: the buffer that's full is the same one we'd deliver
	// this into, so this usually only succeeds if a reader drained a slot
	// between the failed send above and here.
	select {
	case s.ch <- Event{Kind: KindDropped, Topic: topic, At: b.now(), Reason: "subscriber buffer full"}:
	default:
	}
	close(s.ch)
}

// DroppedCount returns how many times subscriberID has been dropped for a
// full buffer (zero for an id that was never registered or never dropped).
func (b *Bus) DroppedCount(subscriberID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.droppedCount[subscriberID]
}

func (b *Bus) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(b.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stop:
			return
		case <-ticker.C:
			b.sendIdleHeartbeats()
		}
	}
}

func (b *Bus) sendIdleHeartbeats() {
	now := b.now()
	b.mu.RLock()
	targets := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	for _, s := range targets {
		s.mu.Lock()
		idle := now.Sub(s.lastSent) >= b.heartbeatInterval
		s.mu.Unlock()
		if idle {
			if !s.send(Event{Kind: KindHeartbeat, At: now}) {
				b.dropSubscriber(s, "")
			}
		}
	}
}
