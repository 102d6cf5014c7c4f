// Package live fans out roadmap and changelog change events to snapshot stream
// subscribers. Events only announce that a newer revision exists; subscribers
// re-read the snapshot themselves.
//
// With Redis configured every instance publishes to one Pub/Sub channel and
// dispatches what it receives to its own subscribers. Without Redis dispatch is
// in-process.
package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/lanehq/lanehq/internal/telemetry"
)

// Event announces a new revision of the snapshot identified by Topic.
type Event struct {
	Topic    string `json:"topic"`
	Revision int64  `json:"revision"`
}

// BoardTopic is the topic of a board's roadmap snapshot.
func BoardTopic(boardID string) string {
	return "board:" + boardID
}

// ChangelogTopic is the topic of an organization's changelog snapshot.
func ChangelogTopic(orgID string) string {
	return "changelog:" + orgID
}

// Hub routes events to subscriptions by topic.
type Hub struct {
	rdb     *redis.Client
	channel string
	logger  *slog.Logger

	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}

	ready     chan struct{}
	readyOnce sync.Once
}

// NewHub creates a hub. A nil rdb selects in-process dispatch.
func NewHub(rdb *redis.Client, prefix string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = "lanehq"
	}
	h := &Hub{
		rdb:     rdb,
		channel: prefix + ":events",
		logger:  logger,
		subs:    make(map[string]map[*Subscription]struct{}),
		ready:   make(chan struct{}),
	}
	if rdb == nil {
		h.markReady()
	}
	return h
}

// Channel returns the Redis channel the hub publishes on.
func (h *Hub) Channel() string {
	return h.channel
}

// Ready is closed once the hub receives events. In-process hubs are ready at creation.
func (h *Hub) Ready() <-chan struct{} {
	return h.ready
}

func (h *Hub) markReady() {
	h.readyOnce.Do(func() { close(h.ready) })
}

// Publish announces ev to every subscriber of ev.Topic on every instance.
func (h *Hub) Publish(ctx context.Context, ev Event) error {
	if h.rdb == nil {
		h.dispatch(ev)
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := h.rdb.Publish(ctx, h.channel, payload).Err(); err != nil {
		telemetry.LivePublishErrorsTotal.Inc()
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Run receives events from Redis and dispatches them until ctx is cancelled.
// For an in-process hub it just waits for cancellation.
func (h *Hub) Run(ctx context.Context) error {
	if h.rdb == nil {
		<-ctx.Done()
		return nil
	}

	pubsub := h.rdb.Subscribe(ctx, h.channel)
	defer pubsub.Close()

	// Wait for the subscription confirmation so Ready means events will arrive.
	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to subscribe to %s: %w", h.channel, err)
	}
	h.markReady()
	h.logger.Info("live hub subscribed", "channel", h.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				h.logger.Warn("live hub: skipping malformed event", "error", err)
				continue
			}
			h.dispatch(ev)
		}
	}
}

// Subscribe registers a subscription for topic. The caller must Close it.
func (h *Hub) Subscribe(topic string) *Subscription {
	s := &Subscription{
		hub:    h,
		topic:  topic,
		events: make(chan Event, 1),
	}

	h.mu.Lock()
	set, ok := h.subs[topic]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[topic] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()

	telemetry.LiveSubscribers.Inc()
	return s
}

// SubscriberCount returns the number of open subscriptions for topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}

func (h *Hub) dispatch(ev Event) {
	h.mu.RLock()
	targets := make([]*Subscription, 0, len(h.subs[ev.Topic]))
	for s := range h.subs[ev.Topic] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.deliver(ev)
	}
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[s.topic]
	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, s.topic)
	}
}

// Subscription receives change events for one topic. At most one event is
// pending at a time; a newer event replaces an unread older one.
type Subscription struct {
	hub    *Hub
	topic  string
	events chan Event

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

// Events returns the channel of change events. It is closed by Close.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string {
	return s.topic
}

// Close stops delivery and releases the subscription. Implements io.Closer.
// Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		s.hub.remove(s)
		s.mu.Lock()
		s.closed = true
		close(s.events)
		s.mu.Unlock()
		telemetry.LiveSubscribers.Dec()
	})
	return nil
}

func (s *Subscription) deliver(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	select {
	case s.events <- ev:
		telemetry.LiveEventsDelivered.WithLabelValues("delivered").Inc()
		return
	default:
	}

	// Only deliver sends, under s.mu, so after draining the buffer has room.
	select {
	case <-s.events:
	default:
	}
	s.events <- ev
	telemetry.LiveEventsDelivered.WithLabelValues("coalesced").Inc()
}
