package broadcast

import (
	"sync"
	"time"
)

type EventType string

const (
	EventBookingCreated      EventType = "booking-created"
	EventBookingCancelled    EventType = "booking-cancelled"
	EventBookingRescheduled  EventType = "booking-rescheduled"
	EventWorkingHoursChanged EventType = "working-hours-changed"
	EventBlockedTimeChanged  EventType = "blocked-time-changed"
)

// Event is an availability change notification. Delivery is best-effort and
// at-most-once; subscribers re-fetch slots on demand rather than trusting the
// stream to be complete.
type Event struct {
	Type       EventType `json:"type"`
	ProviderID string    `json:"provider_id"`
	ServiceID  string    `json:"service_id,omitempty"`
	BookingID  string    `json:"booking_id,omitempty"`
	SeriesID   string    `json:"series_id,omitempty"`
	Date       string    `json:"date,omitempty"`
	At         time.Time `json:"at"`
}

// Topics returns the topics the event fans out to.
func (e Event) Topics() []string {
	topics := make([]string, 0, 2)
	if e.ProviderID != "" {
		topics = append(topics, ProviderTopic(e.ProviderID))
	}
	if e.ServiceID != "" {
		topics = append(topics, ServiceTopic(e.ServiceID))
	}
	return topics
}

func ProviderTopic(providerID string) string { return "provider:" + providerID }
func ServiceTopic(serviceID string) string   { return "service:" + serviceID }

// TopicAll receives every event regardless of provider or service. Used by
// in-process consumers such as cache invalidation.
const TopicAll = "*"

// Subscription receives events for the topics it was opened with. C is closed
// when the subscription or the broadcaster shuts down.
type Subscription struct {
	C      <-chan Event
	ch     chan Event
	topics []string
	b      *Broadcaster
	once   sync.Once
}

// Close detaches the subscription and closes C. It is idempotent and safe to
// race with Broadcaster.Close: the once guards only the channel close, so
// neither side ever waits on the hub lock from inside it.
func (s *Subscription) Close() {
	s.b.unsubscribe(s)
	s.once.Do(func() { close(s.ch) })
}

// Broadcaster is an in-process publish/subscribe hub keyed by provider and
// service topics. A full subscriber buffer drops the event instead of
// blocking the publisher.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	closed bool
	buffer int
}

func New(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 16
	}
	return &Broadcaster{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers interest in one or more topics.
func (b *Broadcaster) Subscribe(topics ...string) *Subscription {
	ch := make(chan Event, b.buffer)
	sub := &Subscription{C: ch, ch: ch, topics: topics, b: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		// Consume the once so a later sub.Close does not close ch again.
		sub.once.Do(func() { close(ch) })
		return sub
	}
	for _, t := range topics {
		set, ok := b.subs[t]
		if !ok {
			set = make(map[*Subscription]struct{})
			b.subs[t] = set
		}
		set[sub] = struct{}{}
	}
	return sub
}

func (b *Broadcaster) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, t := range sub.topics {
		if set, ok := b.subs[t]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(b.subs, t)
			}
		}
	}
}

// Publish fans the event out to every subscriber of its topics. Publish never
// blocks; events to saturated subscribers are dropped.
func (b *Broadcaster) Publish(event Event) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	delivered := make(map[*Subscription]struct{})
	for _, topic := range append(event.Topics(), TopicAll) {
		for sub := range b.subs[topic] {
			if _, dup := delivered[sub]; dup {
				continue
			}
			delivered[sub] = struct{}{}
			select {
			case sub.ch <- event:
			default:
			}
		}
	}
}

// Close shuts the hub down and closes every subscriber channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true

	closed := make(map[*Subscription]struct{})
	for _, set := range b.subs {
		for sub := range set {
			if _, done := closed[sub]; done {
				continue
			}
			closed[sub] = struct{}{}
			sub.once.Do(func() { close(sub.ch) })
		}
	}
	b.subs = nil
}
