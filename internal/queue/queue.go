// Package queue provides at-least-once delivery of pipeline work with
// delayed visibility and bounded redelivery.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/claimstream/internal/model"
	"github.com/ppiankov/claimstream/internal/worker"
)

// Topics used by the pipeline
const (
	TopicSegments = "segments"
	TopicClaims   = "claims"
)

// ErrClosed is returned by Send after Close
var ErrClosed = errors.New("queue closed")

// Message is one delivery of a queued body
type Message struct {
	ID      string
	Topic   string
	Body    []byte
	Attempt int // 1 on first delivery
}

// Handler processes a message. Returning an error schedules a redelivery.
type Handler func(ctx context.Context, msg Message) error

// Queue accepts work for later delivery
type Queue interface {
	Send(ctx context.Context, topic string, body []byte, delay time.Duration) error
}

// MemoryQueue is an in-process queue whose deliveries run on a worker pool
type MemoryQueue struct {
	logger      *zap.Logger
	workers     int
	maxAttempts int
	retryDelay  time.Duration

	mu       sync.Mutex
	cond     *sync.Cond
	handlers map[string]Handler
	pending  []Message
	timers   map[*time.Timer]struct{}
	inflight int
	closed   bool
	started  bool

	pool *worker.Pool
	wg   sync.WaitGroup
}

// NewMemoryQueue creates a queue from configuration
func NewMemoryQueue(cfg model.QueueConfig, logger *zap.Logger) *MemoryQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	q := &MemoryQueue{
		logger:      logger,
		workers:     cfg.Workers,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
		handlers:    make(map[string]Handler),
		timers:      make(map[*time.Timer]struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Subscribe registers the handler for a topic. Register before Start.
func (q *MemoryQueue) Subscribe(topic string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[topic] = h
}

// Start begins delivering messages until ctx is done or Close is called
func (q *MemoryQueue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.pool = worker.NewPool(ctx, q.workers)
	q.mu.Unlock()

	q.pool.Start()
	q.wg.Add(2)
	go q.dispatch()
	go q.collect()

	go func() {
		<-ctx.Done()
		q.Close()
	}()
}

// Send enqueues body on topic, visible after delay. It never blocks.
func (q *MemoryQueue) Send(ctx context.Context, topic string, body []byte, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := Message{ID: uuid.NewString(), Topic: topic, Body: body, Attempt: 1}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.inflight++
	q.scheduleLocked(msg, delay)
	return nil
}

// WaitIdle blocks until no message is pending, delayed or running
func (q *MemoryQueue) WaitIdle(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.mu.Lock()
		for q.inflight > 0 && !q.closed && ctx.Err() == nil {
			q.cond.Wait()
		}
		q.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		q.cond.Broadcast()
		return ctx.Err()
	}
}

// Close stops accepting messages, cancels delayed deliveries and waits for
// running handlers to return
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	for t := range q.timers {
		if t.Stop() {
			q.inflight--
		}
	}
	q.timers = nil
	started := q.started
	q.mu.Unlock()
	q.cond.Broadcast()

	if started {
		q.wg.Wait()
	}
}

func (q *MemoryQueue) scheduleLocked(msg Message, delay time.Duration) {
	if delay <= 0 {
		q.pending = append(q.pending, msg)
		q.cond.Broadcast()
		return
	}

	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		if q.closed {
			return
		}
		delete(q.timers, t)
		q.pending = append(q.pending, msg)
		q.cond.Broadcast()
	})
	q.timers[t] = struct{}{}
}

// dispatch moves visible messages into the worker pool
func (q *MemoryQueue) dispatch() {
	defer q.wg.Done()
	defer q.pool.Drain()

	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if q.closed {
			q.inflight -= len(q.pending)
			q.pending = nil
			q.mu.Unlock()
			q.cond.Broadcast()
			return
		}
		msg := q.pending[0]
		q.pending = q.pending[1:]
		handler := q.handlers[msg.Topic]
		q.mu.Unlock()

		if err := q.pool.Submit(&delivery{msg: msg, handler: handler}); err != nil {
			q.finish()
			return
		}
	}
}

// collect handles delivery outcomes and schedules redeliveries
func (q *MemoryQueue) collect() {
	defer q.wg.Done()

	for res := range q.pool.Results() {
		out, ok := res.(*outcome)
		if !ok {
			q.logger.Error("delivery failed", zap.Error(res.GetError()))
			q.finish()
			continue
		}
		if out.err == nil {
			q.finish()
			continue
		}

		msg := out.msg
		if msg.Attempt >= q.maxAttempts {
			q.logger.Error("message dropped after max attempts",
				zap.String("topic", msg.Topic),
				zap.String("id", msg.ID),
				zap.Int("attempts", msg.Attempt),
				zap.Error(out.err))
			q.finish()
			continue
		}

		q.logger.Warn("message will be redelivered",
			zap.String("topic", msg.Topic),
			zap.String("id", msg.ID),
			zap.Int("attempt", msg.Attempt),
			zap.Error(out.err))
		msg.Attempt++

		q.mu.Lock()
		if q.closed {
			q.inflight--
			q.mu.Unlock()
			q.cond.Broadcast()
			continue
		}
		q.scheduleLocked(msg, q.retryDelay)
		q.mu.Unlock()
	}
}

func (q *MemoryQueue) finish() {
	q.mu.Lock()
	q.inflight--
	q.mu.Unlock()
	q.cond.Broadcast()
}

type delivery struct {
	msg     Message
	handler Handler
}

func (d *delivery) Execute(ctx context.Context) (res worker.Result) {
	if d.handler == nil {
		return &outcome{msg: d.msg, err: fmt.Errorf("no handler for topic %q", d.msg.Topic)}
	}
	defer func() {
		if r := recover(); r != nil {
			res = &outcome{msg: d.msg, err: fmt.Errorf("handler panicked: %v", r)}
		}
	}()
	return &outcome{msg: d.msg, err: d.handler(ctx, d.msg)}
}

type outcome struct {
	msg Message
	err error
}

func (o *outcome) GetError() error { return o.err }
