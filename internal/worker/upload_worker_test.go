package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"TrainAI/internal/task"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeAck struct {
	acked, nacked, requeued bool
}

func (a *fakeAck) Ack(bool) error { a.acked = true; return nil }

func (a *fakeAck) Nack(_ bool, requeue bool) error {
	a.nacked = true
	a.requeued = requeue
	return nil
}

type fakeProcessor struct {
	err           error
	retrying      []int
	failed        int
	markRetryErr  error
	lastRetryTime time.Time
}

func (p *fakeProcessor) Process(context.Context, task.Message) error { return p.err }

func (p *fakeProcessor) MarkRetrying(_ context.Context, _ task.Message, attempt int, next time.Time, _ error) error {
	p.retrying = append(p.retrying, attempt)
	p.lastRetryTime = next
	return p.markRetryErr
}

func (p *fakeProcessor) MarkFailed(context.Context, task.Message, error) error {
	p.failed++
	return nil
}

type fakeBroker struct {
	retries []time.Duration
	retried []task.Message
	dlq     [][]byte
}

func (b *fakeBroker) PublishRetry(_ context.Context, body []byte, delay time.Duration) error {
	var msg task.Message
	_ = json.Unmarshal(body, &msg)
	b.retried = append(b.retried, msg)
	b.retries = append(b.retries, delay)
	return nil
}

func (b *fakeBroker) PublishDLQ(_ context.Context, body []byte) error {
	b.dlq = append(b.dlq, body)
	return nil
}

func newTestWorker(p Processor, b Broker) *Worker {
	w := New(Options{
		RetryMax:    2,
		RetryDelays: []time.Duration{time.Second, time.Minute},
	}, p, b, zap.NewNop())
	w.now = func() time.Time { return time.Unix(1000, 0) }
	return w
}

func body(t *testing.T, msg task.Message) []byte {
	t.Helper()
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return b
}

func TestHandleSuccessAcks(t *testing.T) {
	broker := &fakeBroker{}
	w := newTestWorker(&fakeProcessor{}, broker)
	ack := &fakeAck{}
	w.handle(context.Background(), body(t, task.Message{Type: task.MessageCleanup, TaskID: 1}), ack)
	if !ack.acked || ack.nacked {
		t.Fatalf("expected ack, got %+v", ack)
	}
	if len(broker.retries) != 0 || len(broker.dlq) != 0 {
		t.Fatalf("no rerouting expected")
	}
}

func TestHandleInvalidBodyAcks(t *testing.T) {
	w := newTestWorker(&fakeProcessor{}, &fakeBroker{})
	ack := &fakeAck{}
	w.handle(context.Background(), []byte("{"), ack)
	if !ack.acked {
		t.Fatalf("malformed payload must be dropped")
	}
}

func TestHandleTransientErrorSchedulesRetry(t *testing.T) {
	proc := &fakeProcessor{err: fmt.Errorf("storage timeout")}
	broker := &fakeBroker{}
	w := newTestWorker(proc, broker)

	ack := &fakeAck{}
	w.handle(context.Background(), body(t, task.Message{Type: task.MessageCleanup, TaskID: 7, Attempt: 1}), ack)
	if !ack.acked {
		t.Fatalf("expected ack after retry publish")
	}
	if len(proc.retrying) != 1 || proc.retrying[0] != 2 {
		t.Fatalf("unexpected retry bookkeeping: %v", proc.retrying)
	}
	if len(broker.retries) != 1 || broker.retries[0] != time.Minute || broker.retried[0].Attempt != 2 {
		t.Fatalf("unexpected retry publish: %v %+v", broker.retries, broker.retried)
	}
	if !proc.lastRetryTime.Equal(time.Unix(1000, 0).Add(time.Minute)) {
		t.Fatalf("unexpected next retry time %v", proc.lastRetryTime)
	}
}

func TestHandleRetryExhaustedGoesToDLQ(t *testing.T) {
	proc := &fakeProcessor{err: fmt.Errorf("storage timeout")}
	broker := &fakeBroker{}
	w := newTestWorker(proc, broker)

	ack := &fakeAck{}
	w.handle(context.Background(), body(t, task.Message{Type: task.MessageCleanup, TaskID: 7, Attempt: 2}), ack)
	if !ack.acked || proc.failed != 1 || len(broker.dlq) != 1 || len(broker.retries) != 0 {
		t.Fatalf("expected dlq routing: ack=%+v failed=%d dlq=%d", ack, proc.failed, len(broker.dlq))
	}
}

func TestHandlePermanentErrorSkipsRetry(t *testing.T) {
	for _, err := range []error{gorm.ErrRecordNotFound, task.ErrUnknownMessage} {
		proc := &fakeProcessor{err: err}
		broker := &fakeBroker{}
		w := newTestWorker(proc, broker)
		w.handle(context.Background(), body(t, task.Message{Type: task.MessageCleanup}), &fakeAck{})
		if proc.failed != 1 || len(broker.retries) != 0 {
			t.Fatalf("%v should not be retried", err)
		}
	}
}

func TestHandleCanceledRequeues(t *testing.T) {
	w := newTestWorker(&fakeProcessor{err: context.Canceled}, &fakeBroker{})
	ack := &fakeAck{}
	w.handle(context.Background(), body(t, task.Message{Type: task.MessageCleanup}), ack)
	if !ack.nacked || !ack.requeued {
		t.Fatalf("expected requeue, got %+v", ack)
	}
}

func TestHandleBookkeepingFailureRequeues(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("boom"), markRetryErr: errors.New("db down")}
	w := newTestWorker(proc, &fakeBroker{})
	ack := &fakeAck{}
	w.handle(context.Background(), body(t, task.Message{Type: task.MessageCleanup}), ack)
	if !ack.nacked || !ack.requeued {
		t.Fatalf("expected requeue, got %+v", ack)
	}
}

func TestPickRetryDelay(t *testing.T) {
	delays := []time.Duration{time.Second, 2 * time.Second}
	cases := map[int]time.Duration{0: time.Second, 1: time.Second, 2: 2 * time.Second, 5: 2 * time.Second}
	for attempt, want := range cases {
		if got := pickRetryDelay(attempt, delays); got != want {
			t.Fatalf("attempt %d: got %v want %v", attempt, got, want)
		}
	}
	if pickRetryDelay(1, nil) != 0 {
		t.Fatalf("empty delays should give zero")
	}
}
