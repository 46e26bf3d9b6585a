package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"TrainAI/config"
	"TrainAI/internal/mq"
	"TrainAI/internal/storage"
	"TrainAI/internal/task"

	"github.com/go-faster/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

type dlqMessage struct {
	Message  task.Message `json:"message"`
	Error    string       `json:"error"`
	FailedAt time.Time    `json:"failed_at"`
}

// Processor executes a task message and records its retry state.
type Processor interface {
	Process(ctx context.Context, msg task.Message) error
	MarkRetrying(ctx context.Context, msg task.Message, attempt int, nextRetryAt time.Time, procErr error) error
	MarkFailed(ctx context.Context, msg task.Message, procErr error) error
}

// Broker is the part of the RabbitMQ client the worker publishes through.
type Broker interface {
	PublishRetry(ctx context.Context, body []byte, delay time.Duration) error
	PublishDLQ(ctx context.Context, body []byte) error
}

type Options struct {
	Prefetch    int
	Concurrency int
	Rate        float64
	Burst       int
	RetryMax    int
	RetryDelays []time.Duration
}

// OptionsFromConfig reads worker settings from cfg.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Prefetch:    cfg.RabbitMQPrefetch,
		Concurrency: cfg.WorkerConcurrency,
		Rate:        cfg.WorkerRate,
		Burst:       cfg.WorkerBurst,
		RetryMax:    cfg.CleanupRetryMax,
		RetryDelays: cfg.CleanupRetryDelays,
	}
}

type Worker struct {
	opts      Options
	processor Processor
	broker    Broker
	limiter   *rate.Limiter
	logger    *zap.Logger
	now       func() time.Time
}

func New(opts Options, processor Processor, broker Broker, logger *zap.Logger) *Worker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.Prefetch <= 0 {
		opts.Prefetch = 1
	}
	if opts.RetryMax < 0 {
		opts.RetryMax = 0
	}
	limit := rate.Inf
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
	}
	return &Worker{
		opts:      opts,
		processor: processor,
		broker:    broker,
		limiter:   rate.NewLimiter(limit, opts.Burst),
		logger:    logger,
		now:       time.Now,
	}
}

// Run consumes task messages from RabbitMQ until ctx is done.
func Run(ctx context.Context, client *mq.Client, w *Worker) error {
	if err := client.DeclareTopology(); err != nil {
		return err
	}
	if err := client.Channel.Qos(w.opts.Prefetch, 0, false); err != nil {
		return err
	}
	deliveries, err := client.Channel.Consume(
		mq.QueueTasks,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	sem := make(chan struct{}, w.opts.Concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("upload worker: delivery channel closed")
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				_ = delivery.Nack(false, true)
				return nil
			}
			wg.Add(1)
			go func(d amqp.Delivery) {
				defer wg.Done()
				defer func() { <-sem }()
				w.handleDelivery(ctx, d)
			}(delivery)
		}
	}
}

type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func (w *Worker) handleDelivery(ctx context.Context, d amqp.Delivery) {
	w.handle(ctx, d.Body, d)
}

// handle processes one body and acks, nacks or reroutes it.
func (w *Worker) handle(ctx context.Context, body []byte, ack acknowledger) {
	var msg task.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		w.logger.Warn("upload worker: invalid message", zap.Error(err))
		_ = ack.Ack(false)
		return
	}

	if err := w.limiter.Wait(ctx); err != nil {
		_ = ack.Nack(false, true)
		return
	}

	if err := w.processor.Process(ctx, msg); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			_ = ack.Nack(false, true)
			return
		}
		w.logger.Warn("upload worker: task failed",
			zap.String("type", string(msg.Type)),
			zap.Uint64("task_id", msg.TaskID),
			zap.Int("attempt", msg.Attempt),
			zap.Error(err),
		)
		var handleErr error
		if shouldRetry(err) {
			handleErr = w.scheduleRetry(ctx, msg, err)
		} else {
			handleErr = w.markFailed(ctx, msg, err)
		}
		if handleErr != nil {
			w.logger.Error("upload worker: requeue after bookkeeping failure", zap.Error(handleErr))
			_ = ack.Nack(false, true)
			return
		}
	}

	_ = ack.Ack(false)
}

func shouldRetry(err error) bool {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return false
	case errors.Is(err, task.ErrUnknownMessage):
		return false
	case errors.Is(err, storage.ErrObjectNotFound):
		return false
	}
	return true
}

func (w *Worker) scheduleRetry(ctx context.Context, msg task.Message, procErr error) error {
	nextAttempt := msg.Attempt + 1
	if w.opts.RetryMax == 0 || nextAttempt > w.opts.RetryMax {
		return w.markFailed(ctx, msg, procErr)
	}

	delay := pickRetryDelay(nextAttempt, w.opts.RetryDelays)
	if err := w.processor.MarkRetrying(ctx, msg, nextAttempt, w.now().Add(delay), procErr); err != nil {
		return err
	}

	msg.Attempt = nextAttempt
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return w.broker.PublishRetry(ctx, body, delay)
}

func (w *Worker) markFailed(ctx context.Context, msg task.Message, procErr error) error {
	if err := w.processor.MarkFailed(ctx, msg, procErr); err != nil {
		return err
	}
	body, err := json.Marshal(dlqMessage{
		Message:  msg,
		Error:    procErr.Error(),
		FailedAt: w.now(),
	})
	if err != nil {
		return err
	}
	if err := w.broker.PublishDLQ(ctx, body); err != nil {
		w.logger.Error("upload worker: dlq publish failed", zap.Error(err))
	}
	return nil
}

func pickRetryDelay(attempt int, delays []time.Duration) time.Duration {
	if len(delays) == 0 {
		return 0
	}
	index := attempt - 1
	if index < 0 {
		index = 0
	}
	if index >= len(delays) {
		return delays[len(delays)-1]
	}
	return delays[index]
}
