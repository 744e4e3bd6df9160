package workerpool

import (
	"context"

	"github.com/vnykmshr/cardflow/pkg/metrics"
)

// MetricsPool wraps a Pool and keeps the pool gauges of a metrics.Registry
// current.
type MetricsPool struct {
	pool     Pool
	name     string
	registry *metrics.Registry
}

// WithMetrics wraps pool. A nil registry selects metrics.DefaultRegistry.
func WithMetrics(pool Pool, name string, registry *metrics.Registry) *MetricsPool {
	if registry == nil {
		registry = metrics.DefaultRegistry
	}
	mp := &MetricsPool{pool: pool, name: name, registry: registry}
	mp.updateMetrics()
	return mp
}

func (mp *MetricsPool) updateMetrics() {
	mp.registry.WorkerPoolSize.WithLabelValues(mp.name).Set(float64(mp.pool.Size()))
	mp.registry.WorkerPoolActive.WithLabelValues(mp.name).Set(float64(mp.pool.ActiveWorkers()))
	mp.registry.WorkerPoolQueued.WithLabelValues(mp.name).Set(float64(mp.pool.QueueSize()))
}

// Submit adds a task to the pool for execution.
func (mp *MetricsPool) Submit(task Task) error {
	return mp.SubmitWithContext(context.Background(), task)
}

// SubmitWithContext queues task and refreshes the gauges when it is queued,
// when it starts and when it finishes.
func (mp *MetricsPool) SubmitWithContext(ctx context.Context, task Task) error {
	if task == nil {
		return mp.pool.SubmitWithContext(ctx, nil)
	}
	wrapped := TaskFunc(func(ctx context.Context) error {
		mp.updateMetrics()
		defer mp.updateMetrics()
		return task.Execute(ctx)
	})
	err := mp.pool.SubmitWithContext(ctx, wrapped)
	mp.updateMetrics()
	return err
}

// Shutdown shuts the wrapped pool down; the returned channel closes after the
// gauges reflect the stopped pool.
func (mp *MetricsPool) Shutdown() <-chan struct{} {
	stopped := mp.pool.Shutdown()
	done := make(chan struct{})
	go func() {
		<-stopped
		mp.updateMetrics()
		close(done)
	}()
	return done
}

func (mp *MetricsPool) Size() int             { return mp.pool.Size() }
func (mp *MetricsPool) QueueSize() int        { return mp.pool.QueueSize() }
func (mp *MetricsPool) ActiveWorkers() int    { return mp.pool.ActiveWorkers() }
func (mp *MetricsPool) TotalSubmitted() int64 { return mp.pool.TotalSubmitted() }
func (mp *MetricsPool) TotalCompleted() int64 { return mp.pool.TotalCompleted() }

var _ Pool = (*MetricsPool)(nil)
