package amt

import (
	"context"
	"encoding/json"
	"time"
	"unicode/utf8"

	"github.com/glekoz/resize-service/application"
	"github.com/glekoz/resize-service/internal/config"
	"github.com/glekoz/resize-service/internal/logging"
	"github.com/glekoz/resize-service/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/rabbitmq/amqp091-go"
)

const (
	HeaderAttempts = "x-resize-attempts"
	HeaderError    = "x-resize-error"
	HeaderStage    = "x-resize-stage"

	maxHeaderError = 512
	settleTimeout  = 10 * time.Second
)

type AppAPI interface {
	Process(ctx context.Context, task models.ResizeTask) application.Result
}

type PublisherAPI interface {
	Publish(ctx context.Context, queue string, msg amqp091.Publishing) error
}

type AMTHandler struct {
	App    AppAPI
	Logger logging.Logger

	Queue           string
	DeadLetterQueue string
	// MaxDeliveries of 0 means failed tasks are requeued forever.
	MaxDeliveries int
	TaskTimeout   time.Duration

	validate *validator.Validate
}

func NewAMTHandler(app AppAPI, logger logging.Logger, queue string, cfg config.WorkerConfig) *AMTHandler {
	return &AMTHandler{
		App:             app,
		Logger:          logger,
		Queue:           queue,
		DeadLetterQueue: cfg.DeadLetterQueue,
		MaxDeliveries:   cfg.MaxDeliveries,
		TaskTimeout:     cfg.TaskTimeout,
		validate:        validator.New(validator.WithRequiredStructEnabled()),
	}
}

// NeedsPublisher reports whether settling may publish: bounded retries
// republish to the task queue and rejected tasks go to the dead-letter queue.
func (a *AMTHandler) NeedsPublisher() bool {
	return a.MaxDeliveries > 0 || a.DeadLetterQueue != ""
}

// ProcessMessage runs one delivery through the pipeline and settles it.
// The task gets its own deadline and is not interrupted by ctx, so a
// shutdown lets the in-flight task finish. The returned error is non-nil
// only when the delivery could not be settled, which means the channel is
// gone.
func (a *AMTHandler) ProcessMessage(ctx context.Context, msg amqp091.Delivery, pub PublisherAPI) error {
	task, err := a.decode(msg.Body)
	if err != nil {
		log := a.Logger.With("delivery_tag", msg.DeliveryTag, "message_id", msg.MessageId)
		return a.settle(ctx, log, msg, pub, application.Result{
			Verdict: application.VerdictReject,
			Stage:   application.StageReceived,
			Err:     err,
		})
	}

	log := a.Logger.With("image_path", task.ImagePath, "post_id", task.PostID, "delivery_tag", msg.DeliveryTag)
	log.Debug(ctx, "task received", "redelivered", msg.Redelivered, "attempts", attempts(msg.Headers))

	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.TaskTimeout)
	defer cancel()
	res := a.App.Process(tctx, task)

	return a.settle(ctx, log, msg, pub, res)
}

func (a *AMTHandler) decode(body []byte) (models.ResizeTask, error) {
	loc := "AMTHandler.decode"
	var m models.ResizeTaskMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return models.ResizeTask{}, models.NewError(loc, "json", models.ErrInvalidInput, err)
	}
	if err := a.validate.Struct(m); err != nil {
		return models.ResizeTask{}, models.NewError(loc, "fields", models.ErrInvalidInput, err)
	}
	return m.Task(), nil
}

func (a *AMTHandler) settle(ctx context.Context, log logging.Logger, msg amqp091.Delivery, pub PublisherAPI, res application.Result) error {
	// publishing must survive shutdown as well
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	switch res.Verdict {
	case application.VerdictDone, application.VerdictSkip:
		log.Debug(ctx, "task settled", "verdict", res.Verdict.String(), "duplicate", res.Duplicate)
		return msg.Ack(false)

	case application.VerdictReject:
		log.Error(ctx, "task rejected", "stage", res.Stage.String(), "error", res.Err)
		if a.DeadLetterQueue != "" {
			if err := a.deadLetter(pctx, msg, pub, res, attempts(msg.Headers)+1); err != nil {
				log.Error(ctx, "dead-letter publish failed, requeueing", "error", err)
				return msg.Nack(false, true)
			}
		}
		return msg.Ack(false)

	default:
		if a.MaxDeliveries <= 0 {
			log.Error(ctx, "task failed, requeueing", "stage", res.Stage.String(), "error", res.Err)
			return msg.Nack(false, true)
		}

		n := attempts(msg.Headers) + 1
		if n >= a.MaxDeliveries {
			log.Error(ctx, "task failed, retries exhausted", "stage", res.Stage.String(), "attempts", n, "error", res.Err)
			if a.DeadLetterQueue != "" {
				if err := a.deadLetter(pctx, msg, pub, res, n); err != nil {
					log.Error(ctx, "dead-letter publish failed, requeueing", "error", err)
					return msg.Nack(false, true)
				}
			}
			return msg.Ack(false)
		}

		log.Warn(ctx, "task failed, scheduling retry", "stage", res.Stage.String(), "attempts", n, "error", res.Err)
		if err := a.republish(pctx, msg, pub, a.Queue, retryHeaders(msg.Headers, n)); err != nil {
			log.Error(ctx, "retry publish failed, requeueing", "error", err)
			return msg.Nack(false, true)
		}
		return msg.Ack(false)
	}
}

func (a *AMTHandler) deadLetter(ctx context.Context, msg amqp091.Delivery, pub PublisherAPI, res application.Result, n int) error {
	h := retryHeaders(msg.Headers, n)
	h[HeaderStage] = res.Stage.String()
	if res.Err != nil {
		h[HeaderError] = truncate(res.Err.Error(), maxHeaderError)
	}
	return a.republish(ctx, msg, pub, a.DeadLetterQueue, h)
}

func (a *AMTHandler) republish(ctx context.Context, msg amqp091.Delivery, pub PublisherAPI, queue string, headers amqp091.Table) error {
	if pub == nil {
		return models.NewError("AMTHandler.republish", queue, models.ErrTransport, errNoPublisher)
	}
	contentType := msg.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	return pub.Publish(ctx, queue, amqp091.Publishing{
		Headers:       headers,
		ContentType:   contentType,
		CorrelationId: msg.CorrelationId,
		MessageId:     msg.MessageId,
		Body:          msg.Body,
	})
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func retryHeaders(src amqp091.Table, n int) amqp091.Table {
	h := amqp091.Table{}
	for k, v := range src {
		h[k] = v
	}
	h[HeaderAttempts] = int32(n)
	return h
}

// attempts reads the failure counter left by a previous retry.
func attempts(h amqp091.Table) int {
	switch v := h[HeaderAttempts].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	default:
		return 0
	}
}
