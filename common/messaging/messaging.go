// Package messaging defines the broker contracts ddocs components publish
// and subscribe through. The NATS implementation lives in messaging/nats.
package messaging

import (
	"context"
	"time"
)

// Message is a message received from or sent to the broker.
type Message struct {
	Subject string
	Data    []byte
	// Reply is set for request/reply exchanges.
	Reply     string
	Metadata  map[string]string
	Timestamp time.Time
}

// MessageHandler processes a received message. A returned error is logged
// by the client; core subscriptions are not redelivered.
type MessageHandler func(ctx context.Context, msg *Message) error

// Subscription is an active subscription.
type Subscription interface {
	Unsubscribe() error
	Subject() string
	IsValid() bool
}

// Publisher publishes messages to subjects.
type Publisher interface {
	// Publish is fire-and-forget.
	Publish(ctx context.Context, subject string, data []byte) error
	// PublishJSON marshals v and publishes it.
	PublishJSON(ctx context.Context, subject string, v any) error
	PublishMsg(ctx context.Context, msg *Message) error
	Request(ctx context.Context, subject string, data []byte, timeout time.Duration) (*Message, error)
	Close() error
}

// Subscriber subscribes to subjects.
type Subscriber interface {
	Subscribe(subject string, handler MessageHandler) (Subscription, error)
	// QueueSubscribe load-balances messages across members of queue, so each
	// message is handled once per group.
	QueueSubscribe(subject, queue string, handler MessageHandler) (Subscription, error)
	Close() error
}

// Client combines Publisher and Subscriber.
type Client interface {
	Publisher
	Subscriber

	// Drain lets in-flight messages finish before closing.
	Drain() error
	IsConnected() bool
}
