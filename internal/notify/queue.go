package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/streadway/amqp"
)

// Queue owns an AMQP connection and the durable queue verification jobs
// travel through. Publishing and consuming use separate channels.
type Queue struct {
	conn    *amqp.Connection
	publish *amqp.Channel
	name    string
}

// OpenQueue dials url and declares the durable queue name.
func OpenQueue(url, name string) (*Queue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("notify: connecting to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("notify: opening channel: %w", err)
	}

	if _, err := declare(ch, name); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &Queue{conn: conn, publish: ch, name: name}, nil
}

func declare(ch *amqp.Channel, name string) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("notify: declaring queue %s: %w", name, err)
	}
	return q, nil
}

// Notifier returns a QueueNotifier publishing to this queue.
func (q *Queue) Notifier() *QueueNotifier {
	return NewQueueNotifier(q.publish, q.name)
}

// Consumer opens a consuming channel and returns a Consumer that delivers
// every job through target. Call Run to start processing.
func (q *Queue) Consumer(target Notifier, logger *slog.Logger) (*Consumer, error) {
	ch, err := q.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("notify: opening consumer channel: %w", err)
	}
	if _, err := declare(ch, q.name); err != nil {
		ch.Close()
		return nil, err
	}

	deliveries, err := ch.Consume(
		q.name,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("notify: registering consumer: %w", err)
	}

	return NewConsumer(deliveries, target, logger), nil
}

// Close closes the connection and every channel opened on it. Consumers see
// their delivery channel close and Run returns.
func (q *Queue) Close() error {
	var errs []error
	if err := q.publish.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		errs = append(errs, fmt.Errorf("closing channel: %w", err))
	}
	if err := q.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		errs = append(errs, fmt.Errorf("closing connection: %w", err))
	}
	return errors.Join(errs...)
}

// publisher is the part of *amqp.Channel QueueNotifier needs.
type publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// QueueNotifier hands codes to a background worker through the broker, so
// the request that issued the code never waits on SMTP.
type QueueNotifier struct {
	mu    sync.Mutex
	ch    publisher
	queue string
	now   func() time.Time
}

func NewQueueNotifier(ch publisher, queue string) *QueueNotifier {
	return &QueueNotifier{ch: ch, queue: queue, now: time.Now}
}

func (n *QueueNotifier) SendVerificationCode(ctx context.Context, email, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := n.now().UTC()
	body, err := json.Marshal(Job{Email: email, Code: code, IssuedAt: now})
	if err != nil {
		return fmt.Errorf("notify: encoding job: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	err = n.ch.Publish(
		"",      // default exchange
		n.queue, // routing key is the queue name
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    now,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("notify: publishing job for %s: %w", email, err)
	}
	return nil
}

// Consumer delivers queued jobs through a Notifier.
//
// A job that fails delivery is rejected without requeue. Retrying a broken
// mail setup would only spin, and by the time it recovered the code would
// have expired. The code is logged instead so it is never lost outright.
type Consumer struct {
	deliveries <-chan amqp.Delivery
	target     Notifier
	logger     *slog.Logger
}

func NewConsumer(deliveries <-chan amqp.Delivery, target Notifier, logger *slog.Logger) *Consumer {
	return &Consumer{deliveries: deliveries, target: target, logger: logger}
}

// Run processes deliveries until ctx is cancelled or the delivery channel
// closes.
func (c *Consumer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-c.deliveries:
			if !ok {
				return
			}
			c.handle(ctx, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var job Job
	if err := json.Unmarshal(d.Body, &job); err != nil {
		c.logger.Error("dropping malformed verification job",
			slog.Uint64("delivery_tag", d.DeliveryTag),
			slog.String("error", err.Error()),
		)
		c.nack(d)
		return
	}

	if err := c.target.SendVerificationCode(ctx, job.Email, job.Code); err != nil {
		c.logger.Warn("verification email not delivered",
			slog.String("email", job.Email),
			slog.String("code", job.Code),
			slog.String("error", err.Error()),
		)
		c.nack(d)
		return
	}

	if err := d.Ack(false); err != nil {
		c.logger.Error("acking verification job", slog.String("error", err.Error()))
	}
}

func (c *Consumer) nack(d amqp.Delivery) {
	if err := d.Nack(false, false); err != nil {
		c.logger.Error("nacking verification job", slog.String("error", err.Error()))
	}
}
