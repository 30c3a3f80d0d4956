// Package amqp publishes and consumes upload events over RabbitMQ.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"profitdash/internal/log"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	maxBackoff     = 30 * time.Second
	publishTimeout = 5 * time.Second

	// attemptHeader counts deliveries of a republished message; the first
	// delivery has no header.
	attemptHeader      = "x-delivery-attempt"
	defaultMaxAttempts = 5
)

var errChannelClosed = errors.New("amqp channel closed")

type Client struct {
	url          string
	exchangeName string
	queueName    string
	logger       *log.Logger

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	failureCount int64
	state        int32
	cbMu         sync.Mutex
	lastFailure  time.Time

	// Redelivery of messages whose handler failed. Zero values mean
	// defaultMaxAttempts, exponentialBackoff and republishing to the queue.
	maxAttempts int
	backoff     func(attempt int) time.Duration
	republish   func(ctx context.Context, body []byte, attempt int) error
}

func NewClient(url, exchangeName, queueName string, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.Discard()
	}
	client := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
		logger:       logger.WithComponent(log.ComponentAMQP),
	}

	client.mu.Lock()
	err := client.connectLocked()
	client.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return client, nil
}

// connectLocked dials and declares the topology. c.mu must be held.
func (c *Client) connectLocked() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := setup(channel, c.exchangeName, c.queueName); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}

	c.conn = conn
	c.channel = channel
	return nil
}

func setup(ch *amqp091.Channel, exchangeName, queueName string) error {
	err := ch.ExchangeDeclare(
		exchangeName, // name
		"direct",     // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// Routing key equals the queue name on the direct exchange.
	if err := ch.QueueBind(queueName, queueName, exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

// ensureChannel returns an open channel, reconnecting when the previous one died.
func (c *Client) ensureChannel() (*amqp091.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil && !c.channel.IsClosed() && c.conn != nil && !c.conn.IsClosed() {
		return c.channel, nil
	}
	c.closeLocked()
	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	c.log().Info("Reconnected to AMQP broker", "exchange", c.exchangeName, "queue", c.queueName)
	return c.channel, nil
}

// PublishProductsUploaded publishes an upload event. Callers treat failures as
// non-fatal; repeated failures open the circuit so uploads stop waiting on a
// dead broker.
func (c *Client) PublishProductsUploaded(ctx context.Context, msg *ProductsUploadedMessage) error {
	if c.isCircuitOpen() {
		return fmt.Errorf("circuit breaker is open: skipping publish of upload %s", msg.UploadID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	// One retry after a reconnect when the first attempt hit a dead connection.
	for attempt := 0; attempt < 2; attempt++ {
		err = c.publish(ctx, body)
		if err == nil {
			c.recordSuccess()
			c.log().InfoContext(ctx, "Published products uploaded message",
				log.FieldUserID, msg.UserID,
				log.FieldUploadID, msg.UploadID,
				log.FieldProductCount, msg.ProductCount,
				"exchange", c.exchangeName,
				"queue", c.queueName)
			return nil
		}
		if ctx.Err() != nil || !isConnectionError(err) {
			break
		}
		c.resetConnection()
	}

	c.recordFailure()
	return fmt.Errorf("publish message: %w", err)
}

func (c *Client) publish(ctx context.Context, body []byte) error {
	return c.send(ctx, body, nil)
}

func (c *Client) send(ctx context.Context, body []byte, headers amqp091.Table) error {
	ch, err := c.ensureChannel()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return ch.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			Headers:      headers,
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// ConsumeProductsUploaded delivers messages to handler until ctx is done.
// Malformed messages are dropped. A failed message is republished after a
// growing delay and dropped once it has failed maxAttempts times. A lost
// connection is re-dialled with exponential backoff.
func (c *Client) ConsumeProductsUploaded(ctx context.Context, handler func(context.Context, *ProductsUploadedMessage) error) error {
	attempt := 0
	for {
		err := c.consume(ctx, handler, func() { attempt = 0 })
		if ctx.Err() != nil {
			c.log().InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		}
		if !errors.Is(err, errChannelClosed) && !isConnectionError(err) {
			return err
		}

		wait := exponentialBackoff(attempt)
		attempt++
		c.log().WarnContext(ctx, "AMQP connection lost, reconnecting", log.FieldError, err, "retry_in", wait.String())
		c.resetConnection()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) consume(ctx context.Context, handler func(context.Context, *ProductsUploadedMessage) error, connected func()) error {
	ch, err := c.ensureChannel()
	if err != nil {
		return err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	msgs, err := ch.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}
	connected()

	c.log().InfoContext(ctx, "Started consuming products uploaded messages", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errChannelClosed
			}
			c.handleDelivery(ctx, delivery, handler)
		}
	}
}

func (c *Client) handleDelivery(ctx context.Context, delivery amqp091.Delivery, handler func(context.Context, *ProductsUploadedMessage) error) {
	msg, err := ProductsUploadedMessageFromJSON(delivery.Body)
	if err != nil {
		c.log().ErrorContext(ctx, "Failed to decode message, dropping", log.FieldError, err)
		_ = delivery.Nack(false, false)
		return
	}

	if err := handler(ctx, msg); err != nil {
		c.retryDelivery(ctx, delivery, msg, err)
		return
	}

	_ = delivery.Ack(false)
	c.log().InfoContext(ctx, "Processed products uploaded message",
		log.FieldUserID, msg.UserID,
		log.FieldUploadID, msg.UploadID)
}

// retryDelivery waits, then republishes the message with its attempt count
// and acks the original. A message out of attempts is dropped; one that
// cannot be republished goes back to the queue.
func (c *Client) retryDelivery(ctx context.Context, delivery amqp091.Delivery, msg *ProductsUploadedMessage, cause error) {
	attempt := deliveryAttempt(delivery)
	logger := c.log().With(
		log.FieldUserID, msg.UserID,
		log.FieldUploadID, msg.UploadID,
		"attempt", attempt)

	maxAttempts := c.maxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if attempt >= maxAttempts {
		logger.ErrorContext(ctx, "Failed to handle message, giving up", log.FieldError, cause)
		_ = delivery.Nack(false, false)
		return
	}

	backoff := c.backoff
	if backoff == nil {
		backoff = exponentialBackoff
	}
	wait := backoff(attempt - 1)
	logger.WarnContext(ctx, "Failed to handle message, retrying", log.FieldError, cause, "retry_in", wait.String())

	select {
	case <-ctx.Done():
		_ = delivery.Nack(false, true)
		return
	case <-time.After(wait):
	}

	republish := c.republish
	if republish == nil {
		republish = func(ctx context.Context, body []byte, attempt int) error {
			return c.send(ctx, body, amqp091.Table{attemptHeader: int32(attempt)})
		}
	}
	if err := republish(ctx, delivery.Body, attempt+1); err != nil {
		logger.WarnContext(ctx, "Failed to republish message, requeueing", log.FieldError, err)
		_ = delivery.Nack(false, true)
		return
	}
	_ = delivery.Ack(false)
}

// deliveryAttempt is 1 for a first delivery and the header value for a
// republished one.
func deliveryAttempt(d amqp091.Delivery) int {
	var n int
	switch v := d.Headers[attemptHeader].(type) {
	case int32:
		n = int(v)
	case int64:
		n = int(v)
	case int:
		n = v
	case int16:
		n = int(v)
	case int8:
		n = int(v)
	}
	if n < 1 {
		return 1
	}
	return n
}

func (c *Client) log() *log.Logger {
	if c.logger == nil {
		return log.Discard()
	}
	return c.logger
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.cbMu.Lock()
	since := time.Since(c.lastFailure)
	c.cbMu.Unlock()
	if since > openTimeout {
		atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	n := atomic.AddInt64(&c.failureCount, 1)
	c.cbMu.Lock()
	c.lastFailure = time.Now()
	c.cbMu.Unlock()
	if n >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		if atomic.SwapInt32(&c.state, StateOpen) != StateOpen {
			c.log().Warn("AMQP circuit breaker opened", "failures", n)
		}
	}
}

// exponentialBackoff returns 1s, 2s, 4s, ... capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{
		"connection refused",
		"connection closed",
		"connection reset",
		"EOF",
		"broken pipe",
		"use of closed network connection",
		"channel/connection is not open",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) resetConnection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.channel != nil {
		_ = c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.channel != nil {
		_ = c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}
	return err
}
