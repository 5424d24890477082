// Package queue consumes inbound messages from a RabbitMQ queue.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/memohai/lexdesk/internal/identity"
	"github.com/memohai/lexdesk/internal/ingress"
	"github.com/memohai/lexdesk/internal/retry"
	"github.com/memohai/lexdesk/internal/workflow"
)

// Runner runs one message to completion.
type Runner interface {
	RunSync(ctx context.Context, msg workflow.InboundMessage) (workflow.Result, error)
}

// Config configures a Consumer.
type Config struct {
	URL      string
	Queue    string
	Prefetch int
	// Reconnect controls the wait between connection attempts. Attempts is
	// ignored; the consumer reconnects until its context ends.
	Reconnect retry.Policy
}

// Consumer feeds queue deliveries to a Runner.
type Consumer struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

// NewConsumer creates a Consumer.
func NewConsumer(log *slog.Logger, runner Runner, cfg Config) (*Consumer, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("amqp url is required")
	}
	if strings.TrimSpace(cfg.Queue) == "" {
		return nil, errors.New("amqp queue is required")
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{
		cfg:    cfg,
		runner: runner,
		logger: log.With(slog.String("service", "amqp_consumer"), slog.String("queue", cfg.Queue)),
	}, nil
}

// Run consumes until ctx is done, reconnecting after connection loss.
func (c *Consumer) Run(ctx context.Context) error {
	failures := 0
	for {
		err := c.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		failures++
		wait := c.cfg.Reconnect.Backoff(failures)
		c.logger.Error("amqp consumer stopped, reconnecting",
			slog.Any("error", err),
			slog.Duration("retry_in", wait),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Consumer) consume(ctx context.Context) error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}
	if _, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	msgs, err := ch.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	c.logger.Info("amqp consumer started", slog.Int("prefetch", c.cfg.Prefetch))

	return c.dispatch(ctx, msgs, closed)
}

// dispatch hands deliveries to handler goroutines until ctx ends or the
// connection drops. Handlers run detached from ctx so a shutdown never cuts a
// reply short, and dispatch returns only after every handler has settled its
// delivery, before the channel and connection are closed.
func (c *Consumer) dispatch(ctx context.Context, msgs <-chan amqp.Delivery, closed <-chan *amqp.Error) error {
	runCtx := context.WithoutCancel(ctx)
	sem := make(chan struct{}, c.cfg.Prefetch)
	var inflight sync.WaitGroup
	defer inflight.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cerr := <-closed:
			if cerr == nil {
				return errors.New("connection closed")
			}
			return cerr
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				// Unsettled; the broker redelivers it once the channel closes.
				return ctx.Err()
			}
			inflight.Add(1)
			go func() {
				defer inflight.Done()
				defer func() { <-sem }()
				c.handle(runCtx, d)
			}()
		}
	}
}

// handle runs one delivery and settles it. Decode failures, finished runs,
// duplicates and unlinked threads are acked. Other failures are rejected
// without requeue so a dead-letter exchange can keep them.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var msg workflow.InboundMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil || strings.TrimSpace(msg.ThreadID) == "" {
		c.logger.Warn("dropping undecodable delivery",
			slog.String("message_id", d.MessageId),
			slog.Any("error", err),
		)
		c.settle(d, true)
		return
	}
	if msg.CorrelationID == "" {
		msg.CorrelationID = d.MessageId
	}

	_, err := c.runner.RunSync(ctx, msg)
	switch {
	case err == nil:
		c.settle(d, true)
	case errors.Is(err, ingress.ErrDuplicate):
		c.settle(d, true)
	case errors.Is(err, identity.ErrUnlinkedChannel):
		c.settle(d, true)
	default:
		c.logger.Error("workflow run failed, rejecting delivery",
			slog.String("correlation_id", msg.CorrelationID),
			slog.Any("error", err),
		)
		c.settle(d, false)
	}
}

func (c *Consumer) settle(d amqp.Delivery, ack bool) {
	var err error
	if ack {
		err = d.Ack(false)
	} else {
		err = d.Nack(false, false)
	}
	if err != nil {
		c.logger.Warn("settle delivery failed", slog.Bool("ack", ack), slog.Any("error", err))
	}
}
