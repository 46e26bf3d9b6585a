package mq

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/go-faster/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeTasks = "upload.task.exchange"
	ExchangeRetry = "upload.retry.exchange"
	ExchangeDLQ   = "upload.dlq.exchange"

	QueueTasks = "upload.task.queue"
	QueueRetry = "upload.retry.queue"
	QueueDLQ   = "upload.dlq.queue"

	RoutingTask  = "upload.task"
	RoutingRetry = "upload.retry"
	RoutingDLQ   = "upload.dlq"
)

type binding struct {
	exchange string
	queue    string
	key      string
	args     amqp.Table
}

// topology lists every exchange/queue pair. Retry messages dead-letter back
// into the task exchange once their per-message TTL runs out.
var topology = []binding{
	{exchange: ExchangeTasks, queue: QueueTasks, key: RoutingTask},
	{exchange: ExchangeRetry, queue: QueueRetry, key: RoutingRetry, args: amqp.Table{
		"x-dead-letter-exchange":    ExchangeTasks,
		"x-dead-letter-routing-key": RoutingTask,
	}},
	{exchange: ExchangeDLQ, queue: QueueDLQ, key: RoutingDLQ},
}

type Client struct {
	Conn      *amqp.Connection
	Channel   *amqp.Channel
	publishMu sync.Mutex
}

// Dial opens a connection and one channel.
func Dial(url string) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial rabbitmq")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}
	return &Client{Conn: conn, Channel: ch}, nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	if c.Channel != nil {
		_ = c.Channel.Close()
	}
	if c.Conn != nil {
		_ = c.Conn.Close()
	}
}

func (c *Client) closed() bool {
	return c.Conn.IsClosed() || c.Channel.IsClosed()
}

// DeclareTopology declares exchanges, queues and bindings. It is idempotent.
func (c *Client) DeclareTopology() error {
	for _, b := range topology {
		if err := c.Channel.ExchangeDeclare(b.exchange, "direct", true, false, false, false, nil); err != nil {
			return errors.Wrapf(err, "declare exchange %s", b.exchange)
		}
		if _, err := c.Channel.QueueDeclare(b.queue, true, false, false, false, b.args); err != nil {
			return errors.Wrapf(err, "declare queue %s", b.queue)
		}
		if err := c.Channel.QueueBind(b.queue, b.key, b.exchange, false, nil); err != nil {
			return errors.Wrapf(err, "bind queue %s", b.queue)
		}
	}
	return nil
}

func (c *Client) PublishTask(ctx context.Context, body []byte) error {
	return c.publish(ctx, ExchangeTasks, RoutingTask, body, "")
}

// PublishRetry parks body in the retry queue for delay.
func (c *Client) PublishRetry(ctx context.Context, body []byte, delay time.Duration) error {
	if delay < 0 {
		delay = 0
	}
	return c.publish(ctx, ExchangeRetry, RoutingRetry, body, strconv.FormatInt(delay.Milliseconds(), 10))
}

func (c *Client) PublishDLQ(ctx context.Context, body []byte) error {
	return c.publish(ctx, ExchangeDLQ, RoutingDLQ, body, "")
}

func (c *Client) publish(ctx context.Context, exchange, key string, body []byte, expiration string) error {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Expiration:   expiration,
	}
	return c.Channel.PublishWithContext(ctx, exchange, key, false, false, msg)
}

// Publisher keeps one lazily dialed client and redials after the broker
// drops the connection.
type Publisher struct {
	url    string
	mu     sync.Mutex
	client *Client
}

func NewPublisher(url string) *Publisher {
	return &Publisher{url: url}
}

func (p *Publisher) get() (*Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		if !p.client.closed() {
			return p.client, nil
		}
		p.client.Close()
		p.client = nil
	}
	client, err := Dial(p.url)
	if err != nil {
		return nil, err
	}
	if err := client.DeclareTopology(); err != nil {
		client.Close()
		return nil, err
	}
	p.client = client
	return client, nil
}

// PublishTask sends body to the task queue.
func (p *Publisher) PublishTask(ctx context.Context, body []byte) error {
	client, err := p.get()
	if err != nil {
		return err
	}
	return client.PublishTask(ctx, body)
}

func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.client.Close()
	p.client = nil
}
