package amt

import (
	"context"
	"errors"
	"fmt"

	"github.com/glekoz/resize-service/internal/config"
	"github.com/glekoz/resize-service/internal/logging"
	"github.com/glekoz/resize-service/internal/models"
	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/sethvargo/go-retry"
)

var errDeliveriesClosed = errors.New("delivery channel closed by broker")

type HandlerAPI interface {
	ProcessMessage(ctx context.Context, msg amqp091.Delivery, pub PublisherAPI) error
	NeedsPublisher() bool
}

// Consumer keeps one consumer session attached to the task queue,
// reconnecting after a fixed delay for as long as ctx lives.
type Consumer struct {
	Config  config.RabbitMQConfig
	DLQ     string
	Handler HandlerAPI
	Logger  logging.Logger
	// OnState is told whether a session is currently attached.
	OnState func(attached bool)
}

func NewConsumer(cfg config.RabbitMQConfig, dlq string, h HandlerAPI, logger logging.Logger) *Consumer {
	return &Consumer{Config: cfg, DLQ: dlq, Handler: h, Logger: logger.With("queue", cfg.Queue)}
}

// Run blocks until ctx is canceled. Connection failures are never fatal.
func (c *Consumer) Run(ctx context.Context) error {
	b := retry.NewConstant(c.Config.ReconnectDelay)
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = errDeliveriesClosed
		}
		c.Logger.Warn(ctx, "consumer session lost, reconnecting", "error", err, "delay", c.Config.ReconnectDelay.String())
		return retry.RetryableError(err)
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (c *Consumer) session(ctx context.Context) error {
	loc := "Consumer.session"
	conn, err := amqp091.DialConfig(c.Config.URL(), amqp091.Config{
		Heartbeat:  c.Config.Heartbeat,
		Properties: connectionProperties("resizer-worker"),
	})
	if err != nil {
		return models.NewError(loc, "dial", models.ErrTransport, err)
	}
	defer conn.Close()
	closed := conn.NotifyClose(make(chan *amqp091.Error, 1))

	ch, err := conn.Channel()
	if err != nil {
		return models.NewError(loc, "channel", models.ErrTransport, err)
	}
	defer ch.Close()

	if err := declare(ch, c.Config.Queue); err != nil {
		return err
	}
	if c.DLQ != "" {
		if err := declare(ch, c.DLQ); err != nil {
			return err
		}
	}
	// one unacknowledged task at a time
	if err := ch.Qos(1, 0, false); err != nil {
		return models.NewError(loc, "qos", models.ErrTransport, err)
	}

	var (
		pub       PublisherAPI
		pubClosed <-chan *amqp091.Error
	)
	if c.Handler.NeedsPublisher() {
		pch, err := conn.Channel()
		if err != nil {
			return models.NewError(loc, "publish channel", models.ErrTransport, err)
		}
		defer pch.Close()
		pubClosed = pch.NotifyClose(make(chan *amqp091.Error, 1))
		p, err := NewPublisher(pch)
		if err != nil {
			return err
		}
		pub = p
	}

	tag := "resizer-" + uuid.NewString()
	deliveries, err := ch.Consume(c.Config.Queue, tag, false, false, false, false, nil)
	if err != nil {
		return models.NewError(loc, "consume", models.ErrTransport, err)
	}

	c.setState(true)
	defer c.setState(false)
	c.Logger.Info(ctx, "waiting for tasks", "consumer_tag", tag)

	err = c.serve(ctx, links{deliveries: deliveries, connClosed: closed, pubClosed: pubClosed}, pub)
	if ctx.Err() != nil {
		c.Logger.Info(ctx, "stopping consumer", "consumer_tag", tag)
		_ = ch.Cancel(tag, false)
	}
	return err
}

// links are the session channels serve watches. A nil pubClosed is never ready.
type links struct {
	deliveries <-chan amqp091.Delivery
	connClosed <-chan *amqp091.Error
	pubClosed  <-chan *amqp091.Error
}

// serve hands deliveries to the handler one at a time. It returns nil when
// ctx ends and a transport error when any part of the session goes away.
func (c *Consumer) serve(ctx context.Context, l links, pub PublisherAPI) error {
	loc := "Consumer.serve"
	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr, ok := <-l.connClosed:
			return closedError(loc, "connection closed", amqpErr, ok)
		case amqpErr, ok := <-l.pubClosed:
			return closedError(loc, "publish channel closed", amqpErr, ok)
		case msg, ok := <-l.deliveries:
			if !ok {
				return models.NewError(loc, "", models.ErrTransport, errDeliveriesClosed)
			}
			if err := c.Handler.ProcessMessage(ctx, msg, pub); err != nil {
				return models.NewError(loc, fmt.Sprintf("settle tag %d", msg.DeliveryTag), models.ErrTransport, err)
			}
		}
	}
}

func closedError(loc, detail string, amqpErr *amqp091.Error, ok bool) error {
	if !ok || amqpErr == nil {
		return models.NewError(loc, detail, models.ErrTransport, nil)
	}
	return models.NewError(loc, detail, models.ErrTransport, amqpErr)
}

func (c *Consumer) setState(attached bool) {
	if c.OnState != nil {
		c.OnState(attached)
	}
}

// declare makes sure queue exists as a plain durable queue. Arguments stay
// empty so the declaration matches the one made by the posts API.
func declare(ch *amqp091.Channel, queue string) error {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return models.NewError("amt.declare", queue, models.ErrTransport, err)
	}
	return nil
}

func connectionProperties(name string) amqp091.Table {
	p := amqp091.NewConnectionProperties()
	p.SetClientConnectionName(name)
	return p
}
