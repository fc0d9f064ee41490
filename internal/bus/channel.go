// Package bus moves compliance pipeline events between the catalog, the
// drift worker, and alerting consumers. Both implementations encode typed
// domain events at the publish boundary; subscribers decode through
// Message.Decode.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-compliance/gavel/internal/domain"
)

// ChannelBus is the in-process Community tier bus. Delivery is per-tenant,
// per-topic fan-out over buffered channels; a subscriber that cannot keep
// up loses events rather than stalling the publisher, and every dropped
// delivery is counted and logged.
type ChannelBus struct {
	mu         sync.RWMutex
	bufferSize int
	feeds      map[string][]*channelSubscription // tenant:topic -> subscribers
	closed     bool
	dropped    atomic.Int64
}

type channelSubscription struct {
	id       string
	tenantID string
	topic    string
	handler  domain.MessageHandler
	deliver  chan *domain.Message
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewChannelBus creates an in-process event bus. bufferSize bounds how far
// a slow subscriber may lag before deliveries are dropped.
func NewChannelBus(bufferSize int) *ChannelBus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &ChannelBus{
		bufferSize: bufferSize,
		feeds:      make(map[string][]*channelSubscription),
	}
}

// Publish encodes the event and fans it out to the tenant's subscribers.
func (b *ChannelBus) Publish(ctx context.Context, tenantID string, topic string, event any) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", topic, err)
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("bus is closed")
	}
	subs := b.feeds[feedKey(tenantID, topic)]
	b.mu.RUnlock()

	msg := &domain.Message{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}

	for _, sub := range subs {
		select {
		case sub.deliver <- msg:
		default:
			// Subscriber buffer full. Compliance events are re-derivable
			// from persisted state, so dropping beats blocking a publish.
			b.dropped.Add(1)
			slog.Warn("event delivery dropped",
				"tenant_id", tenantID,
				"topic", topic,
				"subscription_id", sub.id,
			)
		}
	}

	return nil
}

// Subscribe registers a handler for a tenant's topic. Each subscription
// drains its own buffered channel on a dedicated goroutine, so one slow
// consumer never delays another.
func (b *ChannelBus) Subscribe(ctx context.Context, tenantID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("bus is closed")
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &channelSubscription{
		id:       uuid.New().String(),
		tenantID: tenantID,
		topic:    topic,
		handler:  handler,
		deliver:  make(chan *domain.Message, b.bufferSize),
		ctx:      subCtx,
		cancel:   cancel,
	}

	go sub.drain()

	key := feedKey(tenantID, topic)
	b.feeds[key] = append(b.feeds[key], sub)

	return sub, nil
}

func (s *channelSubscription) drain() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.deliver:
			if msg == nil {
				return
			}
			if err := s.handler(s.ctx, msg); err != nil {
				slog.Error("event handler failed",
					"tenant_id", s.tenantID,
					"topic", s.topic,
					"message_id", msg.ID,
					"error", err,
				)
			}
		}
	}
}

// Dropped returns how many deliveries were discarded because a subscriber
// buffer was full.
func (b *ChannelBus) Dropped() int64 {
	return b.dropped.Load()
}

// Ping checks bus health.
func (b *ChannelBus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("bus is closed")
	}
	return nil
}

// Close cancels every subscription and rejects further publishes.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, subs := range b.feeds {
		for _, sub := range subs {
			sub.cancel()
			close(sub.deliver)
		}
	}
	b.feeds = make(map[string][]*channelSubscription)
	return nil
}

func feedKey(tenantID, topic string) string {
	return tenantID + ":" + topic
}

// Unsubscribe stops receiving messages.
func (s *channelSubscription) Unsubscribe() error {
	s.cancel()
	return nil
}

// Topic returns the subscribed topic.
func (s *channelSubscription) Topic() string {
	return s.topic
}
