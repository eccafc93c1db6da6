// Package worker runs per-file analysis tasks on a bounded set of goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// ErrPoolClosed is returned by Submit after Stop.
var ErrPoolClosed = errors.New("worker pool closed")

// Task represents a task to be executed by a worker.
type Task interface {
	Execute(ctx context.Context) error
	ID() string
}

// Result contains the result of a task execution.
type Result struct {
	TaskID   string
	Error    error
	Duration time.Duration
}

// Pool manages a pool of workers for parallel processing.
type Pool struct {
	workers int
	tasks   chan Task
	results chan Result
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	mu     sync.RWMutex
	closed bool

	started   atomic.Bool
	processed atomic.Int64
	errors    atomic.Int64
	panics    atomic.Int64
}

// Config configures the worker pool.
type Config struct {
	Workers   int // Number of workers (default: GOMAXPROCS)
	QueueSize int // Size of task queue (default: workers * 2)
}

// NewPool creates a pool whose tasks run under ctx.
func NewPool(ctx context.Context, cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 2
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		workers: cfg.Workers,
		tasks:   make(chan Task, cfg.QueueSize),
		results: make(chan Result, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start starts the worker pool.
func (p *Pool) Start() {
	if p.started.Swap(true) {
		return
	}

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return

		case task, ok := <-p.tasks:
			if !ok {
				return
			}

			start := time.Now()
			err := p.execute(task)

			p.processed.Add(1)
			if err != nil {
				p.errors.Add(1)
			}

			select {
			case p.results <- Result{TaskID: task.ID(), Error: err, Duration: time.Since(start)}:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

// execute runs task, turning a panic into an error so one bad file does not
// take the pool down.
func (p *Pool) execute(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			err = fmt.Errorf("task %s panicked: %v", task.ID(), r)
		}
	}()
	return task.Execute(p.ctx)
}

// Submit queues a task. It blocks while the queue is full.
func (p *Pool) Submit(task Task) error {
	if !p.started.Load() {
		return fmt.Errorf("pool not started")
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.tasks <- task:
		return nil
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// Results returns the results channel.
func (p *Pool) Results() <-chan Result {
	return p.results
}

func (p *Pool) close() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.closed = true
	close(p.tasks)
	return true
}

// Stop cancels running tasks and stops the workers.
func (p *Pool) Stop() {
	p.cancel()
	if !p.close() {
		return
	}
	p.wg.Wait()
	close(p.results)
}

// StopWait stops accepting tasks and waits for queued ones to finish.
// Results must be drained concurrently.
func (p *Pool) StopWait() {
	if !p.close() {
		return
	}
	p.wg.Wait()
	p.cancel()
	close(p.results)
}

// Stats returns pool statistics.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.workers,
		Processed: p.processed.Load(),
		Errors:    p.errors.Load(),
		Panics:    p.panics.Load(),
		Pending:   len(p.tasks),
	}
}

// Stats contains pool statistics.
type Stats struct {
	Workers   int
	Processed int64
	Errors    int64
	Panics    int64
	Pending   int
}

// String returns a string representation of the stats.
func (s Stats) String() string {
	return fmt.Sprintf("workers=%d processed=%d errors=%d panics=%d pending=%d",
		s.Workers, s.Processed, s.Errors, s.Panics, s.Pending)
}

// Run executes tasks on a fresh pool and returns one result per task, in
// task order. Task ids must be unique.
func Run(ctx context.Context, cfg Config, tasks []Task) []Result {
	if len(tasks) == 0 {
		return nil
	}
	if cfg.Workers <= 0 || cfg.Workers > len(tasks) {
		cfg.Workers = min(len(tasks), runtime.GOMAXPROCS(0))
	}

	pool := NewPool(ctx, cfg)
	pool.Start()

	index := make(map[string]int, len(tasks))
	for i, t := range tasks {
		index[t.ID()] = i
	}

	go func() {
		for _, t := range tasks {
			if err := pool.Submit(t); err != nil {
				break
			}
		}
		pool.StopWait()
	}()

	results := make([]Result, len(tasks))
	seen := make([]bool, len(tasks))
	for r := range pool.Results() {
		if i, ok := index[r.TaskID]; ok {
			results[i] = r
			seen[i] = true
		}
	}

	for i, t := range tasks {
		if !seen[i] {
			err := ctx.Err()
			if err == nil {
				err = ErrPoolClosed
			}
			results[i] = Result{TaskID: t.ID(), Error: err}
		}
	}
	return results
}

// FuncTask adapts a function to Task.
type FuncTask struct {
	id string
	fn func(ctx context.Context) error
}

// NewFuncTask creates a task that runs fn.
func NewFuncTask(id string, fn func(ctx context.Context) error) *FuncTask {
	return &FuncTask{id: id, fn: fn}
}

// ID returns the task identifier.
func (t *FuncTask) ID() string { return t.id }

// Execute runs the function.
func (t *FuncTask) Execute(ctx context.Context) error { return t.fn(ctx) }
