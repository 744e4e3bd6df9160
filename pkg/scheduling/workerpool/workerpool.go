package workerpool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	cferrors "github.com/vnykmshr/cardflow/pkg/common/errors"
)

// Submit adds a task to the pool for execution with context.Background().
func (p *workerPool) Submit(task Task) error {
	return p.SubmitWithContext(context.Background(), task)
}

// SubmitWithContext adds a task to the pool. If the pool has a TaskTimeout
// configured, the effective deadline is the earlier of ctx's and TaskTimeout.
func (p *workerPool) SubmitWithContext(ctx context.Context, task Task) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return fmt.Errorf("cannot submit task: %w", cferrors.ErrClosed)
	}

	// Checked first so a canceled context never races a free queue slot.
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cannot submit task: %w", err)
	}

	select {
	case p.queue <- queued{ctx: ctx, task: task}:
		atomic.AddInt64(&p.submitted, 1)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cannot submit task: %w", ctx.Err())
	}
}

// Shutdown initiates a graceful shutdown of the pool.
func (p *workerPool) Shutdown() <-chan struct{} {
	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()
	})
	return p.done
}

func (p *workerPool) Size() int {
	return p.config.WorkerCount
}

func (p *workerPool) QueueSize() int {
	return len(p.queue)
}

func (p *workerPool) ActiveWorkers() int {
	return int(atomic.LoadInt64(&p.active))
}

func (p *workerPool) TotalSubmitted() int64 {
	return atomic.LoadInt64(&p.submitted)
}

func (p *workerPool) TotalCompleted() int64 {
	return atomic.LoadInt64(&p.completed)
}

// work is the main loop for a worker. It exits once the queue is closed and
// drained.
func (p *workerPool) work(id int) {
	defer p.workerWg.Done()

	for q := range p.queue {
		p.execute(id, q)
	}
}

func (p *workerPool) execute(id int, q queued) {
	atomic.AddInt64(&p.active, 1)
	start := time.Now()

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v\nStack trace:\n%s", r, debug.Stack())
			if p.config.PanicHandler != nil {
				p.config.PanicHandler(q.task, r)
			}
		}

		atomic.AddInt64(&p.active, -1)
		atomic.AddInt64(&p.completed, 1)

		if p.config.OnTaskComplete != nil {
			p.config.OnTaskComplete(Result{
				Task:     q.task,
				Error:    err,
				Duration: time.Since(start),
				WorkerID: id,
			})
		}
	}()

	ctx := q.ctx
	if p.config.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.TaskTimeout)
		defer cancel()
	}

	err = q.task.Execute(ctx)
}
