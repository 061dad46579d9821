package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/dto"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/models"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/services"
	"github.com/avast/retry-go"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

type DeliverySource interface {
	Consume() (<-chan amqp.Delivery, error)
}

type ReportSubmitter interface {
	Submit(ctx context.Context, report *models.Report) (*models.ReportGroup, error)
}

type disposition int

const (
	dispositionAck disposition = iota
	dispositionRequeue
	dispositionDiscard
)

func (d disposition) String() string {
	switch d {
	case dispositionAck:
		return "ack"
	case dispositionRequeue:
		return "requeue"
	default:
		return "discard"
	}
}

// ReportConsumer feeds report.created messages into the report intake.
type ReportConsumer struct {
	source   DeliverySource
	intake   ReportSubmitter
	attempts uint
	delay    time.Duration
	timeout  time.Duration
	done     chan struct{}
	wg       sync.WaitGroup
}

func NewReportConsumer(source DeliverySource, intake ReportSubmitter) *ReportConsumer {
	return &ReportConsumer{
		source:   source,
		intake:   intake,
		attempts: 3,
		delay:    200 * time.Millisecond,
		timeout:  30 * time.Second,
		done:     make(chan struct{}),
	}
}

func (c *ReportConsumer) Start() {
	c.wg.Add(1)
	go c.consume()
}

func (c *ReportConsumer) consume() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		default:
			msgs, err := c.source.Consume()
			if err != nil {
				slog.Warn("rabbitmq consume failed, retrying", "error", err)
				select {
				case <-c.done:
					return
				case <-time.After(reconnectDelay):
				}
				continue
			}

			c.processMessages(msgs)
		}
	}
}

func (c *ReportConsumer) processMessages(msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-c.done:
			return
		case msg, ok := <-msgs:
			if !ok {
				slog.Info("rabbitmq delivery channel closed")
				return
			}
			c.handleMessage(msg)
		}
	}
}

func (c *ReportConsumer) handleMessage(msg amqp.Delivery) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	d := c.process(ctx, msg.MessageId, msg.Body)
	metrics.ConsumerDeliveriesTotal.WithLabelValues(d.String()).Inc()

	var err error
	switch d {
	case dispositionAck:
		err = msg.Ack(false)
	case dispositionRequeue:
		err = msg.Nack(false, true)
	default:
		err = msg.Nack(false, false)
	}
	if err != nil {
		slog.Error("rabbitmq acknowledgement failed", "disposition", d.String(), "error", err)
	}
}

// process decodes and submits one message. The report id is derived from
// the message, so a redelivery is recognised by intake and changes nothing.
func (c *ReportConsumer) process(ctx context.Context, messageID string, body []byte) disposition {
	var req dto.CreateReportRequest
	if err := json.Unmarshal(body, &req); err != nil {
		slog.Warn("undecodable report message", "message_id", messageID, "error", err)
		return dispositionDiscard
	}
	id := reportID(messageID, body)

	err := retry.Do(
		func() error {
			report := req.ToReport()
			report.ID = id
			_, err := c.intake.Submit(ctx, report)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, services.ErrInvalidReport) && !errors.Is(err, services.ErrListenerFailed)
		}),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("report submit failed, retrying", "message_id", messageID, "attempt", n+1, "error", err)
		}),
	)

	switch {
	case err == nil:
		return dispositionAck
	case errors.Is(err, services.ErrListenerFailed):
		// The group is committed. A redelivery would be ignored as a
		// duplicate, so there is nothing left to retry.
		slog.Error("report grouped but task update failed", "report_id", id.String(), "error", err)
		return dispositionAck
	case errors.Is(err, services.ErrInvalidReport):
		slog.Warn("invalid report message discarded", "message_id", messageID, "error", err)
		return dispositionDiscard
	default:
		slog.Error("report submit failed", "message_id", messageID, "error", err)
		return dispositionRequeue
	}
}

func reportID(messageID string, body []byte) uuid.UUID {
	if id, err := uuid.Parse(messageID); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, body)
}

// Stop ends consumption and waits for the in-flight message.
func (c *ReportConsumer) Stop() {
	close(c.done)
	c.wg.Wait()
}
