package forward

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot"
)

// sleepRecorder 注入 Dispatcher 的休眠记录器，真实时间一毫秒也不消耗
type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	r.mu.Lock()
	r.sleeps = append(r.sleeps, d)
	r.mu.Unlock()
	return nil
}

func (r *sleepRecorder) total() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sum time.Duration
	for _, d := range r.sleeps {
		sum += d
	}
	return sum
}

func newTestDispatcher(client Client, opts DispatcherOptions) (*Dispatcher, *sleepRecorder, func()) {
	limiter := NewRateLimiter(1000)
	d := NewDispatcher(client, limiter, opts)
	recorder := &sleepRecorder{}
	d.sleep = recorder.sleep
	return d, recorder, limiter.Close
}

func TestDeliverThrottleRetry(t *testing.T) {
	client := &scriptedClient{
		copyErrs: []error{
			&bot.TooManyRequestsError{Message: "too many requests", RetryAfter: 5},
			&bot.TooManyRequestsError{Message: "too many requests", RetryAfter: 5},
		},
	}

	var throttles []time.Duration
	d, recorder, done := newTestDispatcher(client, DispatcherOptions{
		MaxThrottleSleep: 60 * time.Second,
		OnThrottle:       func(wait time.Duration) { throttles = append(throttles, wait) },
	})
	defer done()

	msgID, err := d.Deliver(context.Background(), CopyParams{FromChat: -1, ToChat: -2, MessageID: 7})
	if err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if msgID == 0 {
		t.Fatalf("expected delivered message id")
	}

	if client.copyCalls != 3 {
		t.Fatalf("expected 3 copy attempts, got %d", client.copyCalls)
	}
	if got := client.copied(); len(got) != 1 || got[0] != 7 {
		t.Fatalf("expected exactly one delivery of message 7, got %v", got)
	}
	if recorder.total() < 10*time.Second {
		t.Fatalf("expected at least 10s of throttle sleep, got %v", recorder.total())
	}
	if len(throttles) != 2 {
		t.Fatalf("expected 2 throttle callbacks, got %d", len(throttles))
	}
}

func TestDeliverThrottleSleepCapped(t *testing.T) {
	client := &scriptedClient{
		copyErrs: []error{
			&bot.TooManyRequestsError{Message: "too many requests", RetryAfter: 600},
		},
	}

	d, recorder, done := newTestDispatcher(client, DispatcherOptions{MaxThrottleSleep: 60 * time.Second})
	defer done()

	if _, err := d.Deliver(context.Background(), CopyParams{MessageID: 1}); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if recorder.total() != 60*time.Second {
		t.Fatalf("expected capped 60s sleep, got %v", recorder.total())
	}
}

func TestDeliverFallbackToForward(t *testing.T) {
	client := &scriptedClient{
		copyErrs: []error{errors.New("copy not possible for this message")},
	}

	d, _, done := newTestDispatcher(client, DispatcherOptions{})
	defer done()

	_, err := d.Deliver(context.Background(), CopyParams{FromChat: -1, ToChat: -2, MessageID: 9})
	if err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}
	if client.forwardCalls != 1 {
		t.Fatalf("expected 1 forward call, got %d", client.forwardCalls)
	}
	if len(client.forwardBatches) != 1 || len(client.forwardBatches[0]) != 1 || client.forwardBatches[0][0] != 9 {
		t.Fatalf("unexpected fallback batch: %v", client.forwardBatches)
	}
}

func TestDeliverUndeliverable(t *testing.T) {
	client := &scriptedClient{
		copyErrs:    []error{errors.New("copy failed")},
		forwardErrs: []error{errors.New("forward failed")},
	}

	d, _, done := newTestDispatcher(client, DispatcherOptions{})
	defer done()

	_, err := d.Deliver(context.Background(), CopyParams{MessageID: 3})
	if !errors.Is(err, ErrUndeliverable) {
		t.Fatalf("expected ErrUndeliverable, got %v", err)
	}
}

func TestDeliverTargetRejected(t *testing.T) {
	client := &scriptedClient{
		copyErrs: []error{fmt.Errorf("%w, bot was kicked", bot.ErrorForbidden)},
	}

	d, _, done := newTestDispatcher(client, DispatcherOptions{})
	defer done()

	_, err := d.Deliver(context.Background(), CopyParams{MessageID: 3})
	if !errors.Is(err, ErrTargetRejected) {
		t.Fatalf("expected ErrTargetRejected, got %v", err)
	}
	if client.forwardCalls != 0 {
		t.Fatalf("forbidden error must not trigger fallback, got %d forward calls", client.forwardCalls)
	}
}

func TestDeliverCancelledContext(t *testing.T) {
	client := &scriptedClient{blockCopy: make(chan struct{})}

	d, _, done := newTestDispatcher(client, DispatcherOptions{})
	defer done()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := d.Deliver(ctx, CopyParams{MessageID: 1})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if client.forwardCalls != 0 {
		t.Fatalf("cancellation must not trigger fallback")
	}
}

func TestDeliverPacing(t *testing.T) {
	client := &scriptedClient{}

	d, recorder, done := newTestDispatcher(client, DispatcherOptions{
		MessageDelay: 1300 * time.Millisecond,
	})
	defer done()

	if _, err := d.Deliver(context.Background(), CopyParams{MessageID: 1}); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if recorder.total() != 1300*time.Millisecond {
		t.Fatalf("expected 1.3s pacing sleep, got %v", recorder.total())
	}
}

func TestForwardBatch(t *testing.T) {
	client := &scriptedClient{
		forwardErrs: []error{
			&bot.TooManyRequestsError{Message: "too many requests", RetryAfter: 2},
		},
	}

	d, recorder, done := newTestDispatcher(client, DispatcherOptions{MaxThrottleSleep: 60 * time.Second})
	defer done()

	ids := []int{1, 2, 3}
	if err := d.ForwardBatch(context.Background(), -1, -2, ids, false); err != nil {
		t.Fatalf("ForwardBatch failed: %v", err)
	}
	if client.forwardCalls != 2 {
		t.Fatalf("expected retry after throttle, got %d calls", client.forwardCalls)
	}
	if recorder.total() < 2*time.Second {
		t.Fatalf("expected throttle sleep, got %v", recorder.total())
	}
	if len(client.forwardBatches) != 1 || len(client.forwardBatches[0]) != 3 {
		t.Fatalf("expected single batch of 3, got %v", client.forwardBatches)
	}
}

func TestForwardBatchEmpty(t *testing.T) {
	client := &scriptedClient{}

	d, _, done := newTestDispatcher(client, DispatcherOptions{})
	defer done()

	if err := d.ForwardBatch(context.Background(), -1, -2, nil, false); err != nil {
		t.Fatalf("empty batch must be a no-op, got %v", err)
	}
	if client.forwardCalls != 0 {
		t.Fatalf("expected no forward calls, got %d", client.forwardCalls)
	}
}
