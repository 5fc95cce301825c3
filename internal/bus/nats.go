package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/opensource-finance/veritas/internal/domain"
)

// NATSBus is the pro-tier EventBus. Subjects are prefixed per tenant
// so analysis and alert events from different tenants never mix, and
// the connection reconnects on its own after broker outages.
type NATSBus struct {
	mu            sync.RWMutex
	conn          *nats.Conn
	subscriptions map[string]*natsSubscription
	config        domain.EventBusConfig
}

type natsSubscription struct {
	id       string
	tenantID string
	topic    string
	sub      *nats.Subscription
}

// NewNATSBus connects to the broker, retrying up to the configured
// reconnect budget before giving up.
func NewNATSBus(cfg domain.EventBusConfig) (*NATSBus, error) {
	if cfg.NATSUrl == "" {
		cfg.NATSUrl = nats.DefaultURL
	}
	if cfg.NATSMaxReconnects == 0 {
		cfg.NATSMaxReconnects = 10
	}
	if cfg.NATSReconnectWait == 0 {
		cfg.NATSReconnectWait = 5
	}

	opts := []nats.Option{
		nats.MaxReconnects(cfg.NATSMaxReconnects),
		nats.ReconnectWait(time.Duration(cfg.NATSReconnectWait) * time.Second),
		nats.ReconnectBufSize(8 * 1024 * 1024), // 8MB buffer during reconnect
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("NATS disconnected",
				"error", err,
				"will_reconnect", !nc.IsClosed(),
			)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected",
				"url", nc.ConnectedUrl(),
			)
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			slog.Info("NATS connection closed")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			slog.Error("NATS error",
				"error", err,
				"subject", sub.Subject,
			)
		}),
	}

	if cfg.NATSToken != "" {
		opts = append(opts, nats.Token(cfg.NATSToken))
	}

	var conn *nats.Conn
	var err error
	for i := 0; i < cfg.NATSMaxReconnects; i++ {
		conn, err = nats.Connect(cfg.NATSUrl, opts...)
		if err == nil {
			break
		}
		slog.Warn("NATS connection attempt failed",
			"attempt", i+1,
			"max_attempts", cfg.NATSMaxReconnects,
			"error", err,
		)
		time.Sleep(time.Duration(cfg.NATSReconnectWait) * time.Second)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS after %d attempts: %w", cfg.NATSMaxReconnects, err)
	}

	slog.Info("NATS connected",
		"url", conn.ConnectedUrl(),
		"server_id", conn.ConnectedServerId(),
	)

	return &NATSBus{
		conn:          conn,
		subscriptions: make(map[string]*natsSubscription),
		config:        cfg,
	}, nil
}

// Publish wraps the payload in a Message envelope and sends it on the
// tenant-scoped subject.
func (b *NATSBus) Publish(ctx context.Context, tenantID string, topic string, payload []byte) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	msg := &domain.Message{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	subject := b.makeSubject(tenantID, topic)
	return b.conn.Publish(subject, data)
}

// Subscribe attaches a handler to the tenant-scoped subject. Messages
// that fail to decode are logged and skipped, not redelivered.
func (b *NATSBus) Subscribe(ctx context.Context, tenantID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	subject := b.makeSubject(tenantID, topic)

	natsSub, err := b.conn.Subscribe(subject, func(m *nats.Msg) {
		var msg domain.Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			slog.Error("failed to unmarshal NATS message",
				"subject", m.Subject,
				"error", err,
			)
			return
		}

		if err := handler(ctx, &msg); err != nil {
			slog.Error("handler error",
				"subject", m.Subject,
				"message_id", msg.ID,
				"error", err,
			)
		}
	})

	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	sub := &natsSubscription{
		id:       uuid.New().String(),
		tenantID: tenantID,
		topic:    topic,
		sub:      natsSub,
	}

	b.mu.Lock()
	b.subscriptions[sub.id] = sub
	b.mu.Unlock()

	return sub, nil
}

// Request sends the payload and waits for one reply, honoring the
// context deadline when set.
func (b *NATSBus) Request(ctx context.Context, tenantID string, topic string, payload []byte) ([]byte, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	msg := &domain.Message{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	subject := b.makeSubject(tenantID, topic)

	timeout := 30 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	reply, err := b.conn.Request(subject, data, timeout)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	var replyMsg domain.Message
	if err := json.Unmarshal(reply.Data, &replyMsg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reply: %w", err)
	}

	return replyMsg.Payload, nil
}

// Ping flushes the connection to prove the broker is reachable.
func (b *NATSBus) Ping(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("NATS not connected")
	}
	return b.conn.FlushWithContext(ctx)
}

// Close drops every subscription and tears down the connection.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subscriptions {
		_ = sub.sub.Unsubscribe()
	}
	b.subscriptions = make(map[string]*natsSubscription)

	b.conn.Close()
	return nil
}

// makeSubject scopes a topic under the tenant's subject prefix.
func (b *NATSBus) makeSubject(tenantID, topic string) string {
	return fmt.Sprintf("veritas.%s.%s", tenantID, topic)
}

// Stats exposes the underlying connection counters.
func (b *NATSBus) Stats() nats.Statistics {
	return b.conn.Stats()
}

// Unsubscribe detaches the handler from the subject.
func (s *natsSubscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}

// Topic reports the topic this subscription listens on.
func (s *natsSubscription) Topic() string {
	return s.topic
}
