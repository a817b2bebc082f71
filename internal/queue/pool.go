package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Handler processes one task. Returning a retryable error puts the task back on
// the queue until MaxRetries is reached.
type Handler func(ctx context.Context, task *Task) (interface{}, error)

type PoolOptions struct {
	Workers    int
	MaxRetries int
	// Retryable decides whether a failed task goes back on the queue.
	Retryable func(error) bool
}

// Result is the final outcome of a task.
type Result struct {
	Task  *Task
	Value interface{}
	Err   error
}

// Pool drains a queue with a fixed number of workers.
type Pool struct {
	queue  *InMemoryQueue
	opts   PoolOptions
	logger *slog.Logger
}

func NewPool(q *InMemoryQueue, opts PoolOptions, logger *slog.Logger) *Pool {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Retryable == nil {
		opts.Retryable = func(error) bool { return false }
	}
	return &Pool{
		queue:  q,
		opts:   opts,
		logger: logger.With("component", "pool"),
	}
}

// Run processes every queued task and reports each final outcome on results,
// which is closed when Run returns. Tasks must be pushed before Run is called.
func (p *Pool) Run(ctx context.Context, handle Handler, results chan<- Result) error {
	defer close(results)

	outstanding := int64(p.queue.Size())
	if outstanding == 0 {
		return nil
	}

	var remaining atomic.Int64
	remaining.Store(outstanding)

	var wg sync.WaitGroup
	for i := 0; i < p.opts.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			p.work(ctx, worker, handle, results, &remaining)
		}(i + 1)
	}
	wg.Wait()

	return ctx.Err()
}

func (p *Pool) work(ctx context.Context, worker int, handle Handler, results chan<- Result, remaining *atomic.Int64) {
	for {
		task, err := p.queue.Pop(ctx)
		if err != nil {
			if !errors.Is(err, ErrQueueClosed) {
				p.logger.Debug("worker stopping", "worker", worker, "error", err)
			}
			return
		}

		value, err := handle(ctx, task)
		if err != nil && task.Retries < p.opts.MaxRetries && p.opts.Retryable(err) && ctx.Err() == nil {
			task.Retries++
			task.Priority--
			p.logger.Info("requeueing task", "worker", worker, "url", task.URL, "retries", task.Retries, "error", err)
			if p.queue.Push(task) == nil {
				continue
			}
		}

		results <- Result{Task: task, Value: value, Err: err}
		if remaining.Add(-1) == 0 {
			p.queue.Close()
		}
	}
}
