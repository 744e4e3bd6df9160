package workerpool

import (
	"context"
	"sync"
	"time"

	cferrors "github.com/vnykmshr/cardflow/pkg/common/errors"
	"github.com/vnykmshr/cardflow/pkg/common/validation"
)

// Task represents a unit of work that can be executed by a worker.
type Task interface {
	// Execute runs the task with the given context.
	// It should respect context cancellation and return any error encountered.
	Execute(ctx context.Context) error
}

// TaskFunc is a function type that implements the Task interface.
type TaskFunc func(ctx context.Context) error

// Execute implements the Task interface for TaskFunc.
func (f TaskFunc) Execute(ctx context.Context) error {
	return f(ctx)
}

// Result describes one finished task.
type Result struct {
	Task     Task
	Error    error
	Duration time.Duration
	WorkerID int
}

// Pool executes tasks on a fixed set of worker goroutines.
type Pool interface {
	// Submit queues a task. It blocks while the queue is full.
	Submit(task Task) error

	// SubmitWithContext queues a task. ctx bounds the wait for a queue slot
	// and is the context the task later executes with.
	SubmitWithContext(ctx context.Context, task Task) error

	// Shutdown stops accepting tasks, lets queued tasks finish and returns a
	// channel closed once every worker has exited.
	Shutdown() <-chan struct{}

	// Size returns the number of workers in the pool.
	Size() int

	// QueueSize returns the number of queued tasks waiting for a worker.
	QueueSize() int

	// ActiveWorkers returns the number of workers currently executing tasks.
	ActiveWorkers() int

	TotalSubmitted() int64
	TotalCompleted() int64
}

// Config holds configuration options for creating a worker pool.
type Config struct {
	// WorkerCount is the number of workers in the pool. Must be positive.
	WorkerCount int

	// QueueSize is the number of tasks that may wait for a worker.
	// Zero hands every task directly to an idle worker.
	QueueSize int

	// TaskTimeout bounds each task execution. Zero means no timeout.
	TaskTimeout time.Duration

	// PanicHandler is called when a task panics. The panic is always
	// recovered and reported as the task error.
	PanicHandler func(task Task, recovered any)

	// OnTaskComplete is called after every task, successful or not.
	OnTaskComplete func(result Result)
}

// DefaultConfig returns a pool sized for request dispatch.
func DefaultConfig() Config {
	return Config{
		WorkerCount: 8,
		QueueSize:   64,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := validation.ValidatePositive("workerpool", "WorkerCount", c.WorkerCount); err != nil {
		return err
	}
	if err := validation.ValidateNonNegative("workerpool", "QueueSize", c.QueueSize); err != nil {
		return err
	}
	if c.TaskTimeout < 0 {
		return cferrors.NewValidationError("workerpool", "TaskTimeout", c.TaskTimeout, "cannot be negative")
	}
	return nil
}

type queued struct {
	ctx  context.Context
	task Task
}

// workerPool implements the Pool interface.
type workerPool struct {
	config Config

	queue chan queued
	done  chan struct{}

	// mu guards closed; senders hold it shared so the queue is never closed
	// under a pending send.
	mu           sync.RWMutex
	closed       bool
	shutdownOnce sync.Once

	active    int64
	submitted int64
	completed int64

	workerWg sync.WaitGroup
}

// New creates a worker pool and panics on an invalid size.
func New(workerCount, queueSize int) Pool {
	pool, err := NewWithConfig(Config{
		WorkerCount: workerCount,
		QueueSize:   queueSize,
	})
	if err != nil {
		panic(err)
	}
	return pool
}

// NewWithConfig creates a worker pool and starts its workers.
func NewWithConfig(config Config) (Pool, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	pool := &workerPool{
		config: config,
		queue:  make(chan queued, config.QueueSize),
		done:   make(chan struct{}),
	}

	pool.workerWg.Add(config.WorkerCount)
	for i := 0; i < config.WorkerCount; i++ {
		go pool.work(i)
	}

	go func() {
		pool.workerWg.Wait()
		close(pool.done)
	}()

	return pool, nil
}
