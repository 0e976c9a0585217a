package amt

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/glekoz/resize-service/internal/models"
	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

var (
	errNoPublisher = errors.New("no publisher on this session")
	errNacked      = errors.New("broker did not confirm the message")
)

// Publisher sends persistent messages through the default exchange and
// waits for the broker to confirm each of them.
type Publisher struct {
	mu   sync.Mutex
	conn *amqp091.Connection
	ch   *amqp091.Channel
}

// NewPublisher puts ch into confirm mode. The caller keeps owning ch.
func NewPublisher(ch *amqp091.Channel) (*Publisher, error) {
	if err := ch.Confirm(false); err != nil {
		return nil, models.NewError("NewPublisher", "confirm", models.ErrTransport, err)
	}
	return &Publisher{ch: ch}, nil
}

// Dial opens a dedicated connection for publishing and declares queues
// as durable so nothing published before the first consumer is lost.
func Dial(url string, heartbeat time.Duration, queues ...string) (*Publisher, error) {
	loc := "amt.Dial"
	conn, err := amqp091.DialConfig(url, amqp091.Config{
		Heartbeat:  heartbeat,
		Properties: connectionProperties("resizer-publisher"),
	})
	if err != nil {
		return nil, models.NewError(loc, "dial", models.ErrTransport, err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, models.NewError(loc, "channel", models.ErrTransport, err)
	}
	for _, q := range queues {
		if err := declare(ch, q); err != nil {
			conn.Close()
			return nil, err
		}
	}
	p, err := NewPublisher(ch)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func (p *Publisher) Publish(ctx context.Context, queue string, msg amqp091.Publishing) error {
	loc := "Publisher.Publish"
	msg.DeliveryMode = amqp091.Persistent
	if msg.MessageId == "" {
		msg.MessageId = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	p.mu.Lock()
	dc, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, "", queue, false, false, msg)
	p.mu.Unlock()
	if err != nil {
		return models.NewError(loc, queue, models.ErrTransport, err)
	}

	ok, err := dc.WaitContext(ctx)
	if err != nil {
		return models.NewError(loc, queue, models.ErrTransport, err)
	}
	if !ok {
		return models.NewError(loc, queue, models.ErrTransport, errNacked)
	}
	return nil
}

// Close releases the connection opened by Dial. Publishers built with
// NewPublisher leave their channel to the caller.
func (p *Publisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}
