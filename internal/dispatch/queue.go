// Package dispatch runs confirmation tasks on a pool of workers, detached from
// the request that enqueued them, with a bounded number of attempts per task.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	ErrQueueFull   = errors.New("dispatch: queue full")
	ErrQueueClosed = errors.New("dispatch: queue closed")
)

// Task asks for a confirmation message for one order.
type Task struct {
	ID        uuid.UUID
	OrderID   int64
	Recipient string
	// Attempt is 1 on first delivery.
	Attempt int
}

type Handler interface {
	Handle(ctx context.Context, task Task) error
}

type HandlerFunc func(ctx context.Context, task Task) error

func (f HandlerFunc) Handle(ctx context.Context, task Task) error { return f(ctx, task) }

type Options struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// TaskTimeout bounds a single attempt.
	TaskTimeout time.Duration
	// OnExhausted, if set, is called once a task has failed MaxAttempts times.
	OnExhausted func(task Task, err error)
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = time.Second
	}
	if o.MaxDelay < o.BaseDelay {
		o.MaxDelay = o.BaseDelay
	}
	if o.TaskTimeout <= 0 {
		o.TaskTimeout = 30 * time.Second
	}
	return o
}

type Queue struct {
	handler Handler
	opts    Options
	logger  *slog.Logger

	tasks     chan Task
	done      chan struct{}
	closeOnce sync.Once
	retries   sync.WaitGroup
}

func New(handler Handler, opts Options, logger *slog.Logger) *Queue {
	if handler == nil {
		panic("dispatch.New: nil handler")
	}
	opts = opts.withDefaults()
	return &Queue{
		handler: handler,
		opts:    opts,
		logger:  logger,
		tasks:   make(chan Task, opts.QueueSize),
		done:    make(chan struct{}),
	}
}

// Enqueue hands task to the workers without blocking.
// It fails with ErrQueueFull rather than stall the caller.
func (q *Queue) Enqueue(task Task) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.Attempt <= 0 {
		task.Attempt = 1
	}

	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	select {
	case q.tasks <- task:
		q.logger.Debug("confirmation task enqueued", "task_id", task.ID, "order_id", task.OrderID)
		return nil
	default:
		return ErrQueueFull
	}
}

// Run starts the workers and blocks until ctx is canceled.
// Attempts already in progress finish; queued and scheduled retries are dropped.
func (q *Queue) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		q.close()
	}()

	var g errgroup.Group
	for i := 0; i < q.opts.Workers; i++ {
		g.Go(func() error {
			q.work()
			return nil
		})
	}
	err := g.Wait()
	q.retries.Wait()
	return err
}

func (q *Queue) close() {
	q.closeOnce.Do(func() { close(q.done) })
}

func (q *Queue) work() {
	for {
		select {
		case <-q.done:
			return
		case task := <-q.tasks:
			q.process(task)
		}
	}
}

func (q *Queue) process(task Task) {
	// detached from the worker lifecycle: an attempt is never canceled mid-send
	ctx, cancel := context.WithTimeout(context.Background(), q.opts.TaskTimeout)
	defer cancel()

	err := q.handle(ctx, task)
	if err == nil {
		return
	}

	if task.Attempt >= q.opts.MaxAttempts {
		q.logger.Error("confirmation task failed permanently",
			"task_id", task.ID,
			"order_id", task.OrderID,
			"attempts", task.Attempt,
			"error", err,
		)
		if q.opts.OnExhausted != nil {
			q.opts.OnExhausted(task, err)
		}
		return
	}

	delay := q.backoff(task.Attempt)
	q.logger.Warn("confirmation task failed, retrying",
		"task_id", task.ID,
		"order_id", task.OrderID,
		"attempt", task.Attempt,
		"retry_in", delay.String(),
		"error", err,
	)

	next := task
	next.Attempt++
	q.scheduleRetry(next, delay)
}

func (q *Queue) handle(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch: handler panic: %v", r)
		}
	}()
	return q.handler.Handle(ctx, task)
}

func (q *Queue) backoff(attempt int) time.Duration {
	return min(q.opts.BaseDelay*time.Duration(1<<(attempt-1)), q.opts.MaxDelay)
}

func (q *Queue) scheduleRetry(task Task, delay time.Duration) {
	q.retries.Add(1)
	go func() {
		defer q.retries.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-q.done:
			q.logger.Warn("confirmation retry dropped on shutdown", "task_id", task.ID, "order_id", task.OrderID)
			return
		}

		select {
		case q.tasks <- task:
		case <-q.done:
			q.logger.Warn("confirmation retry dropped on shutdown", "task_id", task.ID, "order_id", task.OrderID)
		}
	}()
}
