// Package queue provides the bounded task queue and fixed-size worker pool
// that feed the dispatcher. Submission is fail-fast: when the queue is at
// capacity the caller gets ErrQueueFull instead of blocking, which the HTTP
// boundary maps to a 429-equivalent.
package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/visiongate/visiongate/internal/provider"
)

var (
	// ErrQueueFull indicates the queue is at capacity. Callers must treat
	// this as retryable.
	ErrQueueFull = errors.New("queue full")

	// ErrNotAccepting indicates the pool is stopped or draining.
	ErrNotAccepting = errors.New("queue not accepting tasks")
)

// Task is one unit of analysis work. A worker owns a claimed task
// exclusively until its terminal outcome.
type Task struct {
	ID       string
	Request  *provider.Request
	Deadline time.Time

	// Attempt counts dispatch attempts across providers; maintained by the
	// dispatcher.
	Attempt int

	EnqueuedAt time.Time
}

// Handler processes one claimed task to its terminal outcome. The context
// carries the task deadline when one was set.
type Handler func(ctx context.Context, task *Task)

// Config sizes the queue and the worker pool.
type Config struct {
	// Capacity is the maximum number of enqueued-but-unclaimed tasks.
	Capacity int `yaml:"capacity" json:"capacity"`

	// Workers is the fixed number of concurrent workers.
	Workers int `yaml:"workers" json:"workers"`

	// DrainTimeout bounds how long Stop waits for in-flight work.
	DrainTimeout time.Duration `yaml:"drain-timeout" json:"drain-timeout"`
}

// DefaultConfig returns the default queue sizing.
func DefaultConfig() Config {
	return Config{
		Capacity:     128,
		Workers:      4,
		DrainTimeout: 30 * time.Second,
	}
}

// Pool is the bounded FIFO queue plus its worker pool.
type Pool struct {
	cfg     Config
	handler Handler

	tasks chan *Task

	mu        sync.Mutex
	accepting bool
	started   bool

	active atomic.Int64

	baseCtx context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewPool creates a pool; call Start before Submit.
func NewPool(cfg Config, handler Handler) *Pool {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultConfig().Capacity
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultConfig().DrainTimeout
	}
	return &Pool{
		cfg:     cfg,
		handler: handler,
		tasks:   make(chan *Task, cfg.Capacity),
		done:    make(chan struct{}),
	}
}

// Start launches the workers. It is an error to start a pool twice.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return errors.New("worker pool already started")
	}
	p.started = true
	p.accepting = true
	p.baseCtx, p.cancel = context.WithCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(p.cfg.Workers)
	for i := 0; i < p.cfg.Workers; i++ {
		go p.worker(&wg, i)
	}
	go func() {
		wg.Wait()
		close(p.done)
	}()

	log.Infof("Worker pool started: %d workers, queue capacity %d", p.cfg.Workers, p.cfg.Capacity)
	return nil
}

// Submit enqueues a task. It suspends the caller only long enough to
// enqueue; completion is reported asynchronously through the status surface.
func (p *Pool) Submit(task *Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.accepting {
		return ErrNotAccepting
	}

	task.EnqueuedAt = time.Now()
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop drains the pool: submission stops immediately, queued tasks are
// processed, and in-flight work gets up to DrainTimeout to finish.
func (p *Pool) Stop() error {
	p.mu.Lock()
	if !p.started || !p.accepting {
		p.mu.Unlock()
		return nil
	}
	p.accepting = false
	close(p.tasks)
	p.mu.Unlock()

	select {
	case <-p.done:
		log.Info("Worker pool drained")
		return nil
	case <-time.After(p.cfg.DrainTimeout):
		p.cancel()
		log.Warn("Worker pool drain timed out; cancelled in-flight tasks")
		return errors.New("drain timed out")
	}
}

// QueueDepth is the count of tasks enqueued but not yet claimed.
func (p *Pool) QueueDepth() int {
	return len(p.tasks)
}

// ActiveWorkers is the count of workers currently executing a task.
func (p *Pool) ActiveWorkers() int {
	return int(p.active.Load())
}

func (p *Pool) worker(wg *sync.WaitGroup, id int) {
	defer wg.Done()

	for task := range p.tasks {
		p.active.Add(1)

		ctx := p.baseCtx
		var cancel context.CancelFunc
		if !task.Deadline.IsZero() {
			ctx, cancel = context.WithDeadline(ctx, task.Deadline)
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("Panic in worker %d handling task %s: %v", id, task.ID, r)
				}
			}()
			p.handler(ctx, task)
		}()

		if cancel != nil {
			cancel()
		}
		p.active.Add(-1)
	}
}
