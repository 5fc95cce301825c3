// Package bus moves statement and analysis events between the API, the
// async worker, and any downstream consumers. The community tier runs
// an in-process channel bus; the pro tier runs NATS.
package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/veritas/internal/domain"
)

// ChannelBus is the community-tier EventBus: per-tenant topics fan out
// over buffered in-process channels, so events never leave the process.
type ChannelBus struct {
	mu            sync.RWMutex
	bufferSize    int
	subscriptions map[string][]*channelSubscription
	closed        bool
}

type channelSubscription struct {
	id       string
	tenantID string
	topic    string
	handler  domain.MessageHandler
	msgCh    chan *domain.Message
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewChannelBus builds an in-process bus whose subscribers each get a
// buffer of the given size.
func NewChannelBus(bufferSize int) *ChannelBus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &ChannelBus{
		bufferSize:    bufferSize,
		subscriptions: make(map[string][]*channelSubscription),
	}
}

// Publish delivers the payload to every current subscriber of the
// tenant's topic. Delivery is best-effort: a subscriber whose buffer
// is full misses the message.
func (b *ChannelBus) Publish(ctx context.Context, tenantID string, topic string, payload []byte) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("bus is closed")
	}

	msg := &domain.Message{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}

	subs := b.subscriptions[b.makeKey(tenantID, topic)]
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.msgCh <- msg:
		default:
			// full buffer, drop for this subscriber
		}
	}

	return nil
}

// Subscribe attaches a handler to the tenant's topic and starts a
// goroutine that feeds it until the subscription is cancelled.
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
		msgCh:    make(chan *domain.Message, b.bufferSize),
		ctx:      subCtx,
		cancel:   cancel,
	}

	go b.handleMessages(sub)

	key := b.makeKey(tenantID, topic)
	b.subscriptions[key] = append(b.subscriptions[key], sub)

	return sub, nil
}

// handleMessages drains one subscription's channel into its handler.
func (b *ChannelBus) handleMessages(sub *channelSubscription) {
	for {
		select {
		case <-sub.ctx.Done():
			return
		case msg := <-sub.msgCh:
			if msg != nil {
				_ = sub.handler(sub.ctx, msg)
			}
		}
	}
}

// Request publishes the payload and waits for a single reply on a
// one-off reply topic.
func (b *ChannelBus) Request(ctx context.Context, tenantID string, topic string, payload []byte) ([]byte, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	replyCh := make(chan []byte, 1)
	replyTopic := topic + ".reply." + uuid.New().String()

	sub, err := b.Subscribe(ctx, tenantID, replyTopic, func(ctx context.Context, msg *domain.Message) error {
		select {
		case replyCh <- msg.Payload:
		default:
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	if err := b.Publish(ctx, tenantID, topic, payload); err != nil {
		return nil, err
	}

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(30 * time.Second):
		return nil, fmt.Errorf("request timeout")
	}
}

// Ping reports whether the bus is still accepting traffic.
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

	for _, subs := range b.subscriptions {
		for _, sub := range subs {
			sub.cancel()
			close(sub.msgCh)
		}
	}

	b.subscriptions = make(map[string][]*channelSubscription)
	return nil
}

func (b *ChannelBus) makeKey(tenantID, topic string) string {
	return tenantID + ":" + topic
}

// Unsubscribe stops the feeding goroutine and releases the handler.
func (s *channelSubscription) Unsubscribe() error {
	s.cancel()
	return nil
}

// Topic reports the topic this subscription listens on.
func (s *channelSubscription) Topic() string {
	return s.topic
}
