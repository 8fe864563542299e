package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkmeta/internal/metadata"
)

// Defaults applied when QueueConfig fields are zero.
const (
	DefaultMinInterval   = 400 * time.Millisecond
	DefaultQueueCapacity = 100
)

// ErrQueueFull is returned when too many calls are already waiting.
var ErrQueueFull = errors.New("request queue full")

// Task is one call to the guarded provider.
type Task func(ctx context.Context) (metadata.WebsiteData, error)

// Gate reports whether the guarded provider may be called.
type Gate interface {
	IsAvailable(ctx context.Context) bool
}

// Pauser abstracts how the queue waits between calls.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration)
}

// TimerPauser sleeps on a timer and returns early when ctx ends.
type TimerPauser struct{}

// Pause blocks for delay or until ctx is done.
func (TimerPauser) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// QueueConfig tunes pacing and backpressure.
type QueueConfig struct {
	MinInterval time.Duration
	Capacity    int
}

type result struct {
	data metadata.WebsiteData
	err  error
}

type job struct {
	ctx  context.Context
	task Task
	done chan result
}

func (j *job) finish(data metadata.WebsiteData, err error) {
	j.done <- result{data: data, err: err}
}

// Queue runs tasks one at a time in FIFO order with a minimum pause after each
// completed task. When the gate closes, all waiting tasks resolve empty.
type Queue struct {
	mu      sync.Mutex
	pending []*job
	running bool

	gate    Gate
	pauser  Pauser
	cfg     QueueConfig
	logger  *zap.Logger
	onDepth func(int)
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithPauser replaces the timer-based pauser.
func WithPauser(p Pauser) QueueOption {
	return func(q *Queue) {
		q.pauser = p
	}
}

// WithDepthHook registers fn to observe the number of waiting tasks.
func WithDepthHook(fn func(int)) QueueOption {
	return func(q *Queue) {
		q.onDepth = fn
	}
}

// NewQueue creates a Queue gated by gate.
func NewQueue(gate Gate, cfg QueueConfig, logger *zap.Logger, opts ...QueueOption) *Queue {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultQueueCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &Queue{gate: gate, pauser: TimerPauser{}, cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Len returns the number of tasks waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Do enqueues task and waits for its result. It returns immediately with an
// empty result when the gate is closed or the queue is full, and with the
// context error when ctx ends first.
func (q *Queue) Do(ctx context.Context, task Task) (metadata.WebsiteData, error) {
	if !q.gate.IsAvailable(ctx) {
		return metadata.WebsiteData{}, ErrBreakerOpen
	}
	j := &job{ctx: ctx, task: task, done: make(chan result, 1)}

	q.mu.Lock()
	if len(q.pending) >= q.cfg.Capacity {
		q.mu.Unlock()
		q.logger.Warn("request queue full", zap.Int("capacity", q.cfg.Capacity))
		return metadata.WebsiteData{}, ErrQueueFull
	}
	q.pending = append(q.pending, j)
	depth := len(q.pending)
	if !q.running {
		q.running = true
		go q.drain()
	}
	q.mu.Unlock()
	q.reportDepth(depth)

	select {
	case res := <-j.done:
		return res.data, res.err
	case <-ctx.Done():
		return metadata.WebsiteData{}, fmt.Errorf("queued request: %w", ctx.Err())
	}
}

func (q *Queue) drain() {
	for {
		j, depth, ok := q.next()
		if !ok {
			return
		}
		q.reportDepth(depth)

		if err := j.ctx.Err(); err != nil {
			j.finish(metadata.WebsiteData{}, err)
			continue
		}
		if !q.gate.IsAvailable(j.ctx) {
			j.finish(metadata.WebsiteData{}, ErrBreakerOpen)
			q.flush()
			continue
		}

		data, err := q.run(j)
		j.finish(data, err)

		if !q.gate.IsAvailable(context.WithoutCancel(j.ctx)) {
			q.flush()
			continue
		}
		q.pauser.Pause(context.Background(), q.cfg.MinInterval)
	}
}

// next pops the head of the queue or marks the worker stopped.
func (q *Queue) next() (*job, int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		q.running = false
		return nil, 0, false
	}
	j := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	return j, len(q.pending), true
}

// flush resolves every waiting task with an empty result.
func (q *Queue) flush() {
	q.mu.Lock()
	dropped := q.pending
	q.pending = nil
	q.mu.Unlock()
	for _, j := range dropped {
		j.finish(metadata.WebsiteData{}, ErrBreakerOpen)
	}
	if len(dropped) > 0 {
		q.logger.Info("drained request queue after breaker trip", zap.Int("dropped", len(dropped)))
	}
	q.reportDepth(0)
}

func (q *Queue) run(j *job) (data metadata.WebsiteData, err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("queued task panicked", zap.Any("panic", r))
			data, err = metadata.WebsiteData{}, fmt.Errorf("queued task panicked: %v", r)
		}
	}()
	return j.task(j.ctx)
}

func (q *Queue) reportDepth(depth int) {
	if q.onDepth != nil {
		q.onDepth(depth)
	}
}
