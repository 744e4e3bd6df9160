/*
Package workerpool runs tasks on a fixed number of goroutines behind a bounded
queue. The transport server uses it to execute incoming requests.

Basic usage:

	pool := workerpool.New(4, 100) // 4 workers, queue size 100
	defer pool.Shutdown()

	err := pool.Submit(workerpool.TaskFunc(func(ctx context.Context) error {
		return handle(ctx)
	}))

Submit blocks while the queue is full; SubmitWithContext bounds that wait with
a context, which is also the context the task executes with. Results are
delivered through Config.OnTaskComplete. Panics are recovered and reported as
the task error.

Shutdown stops accepting tasks, lets the queued ones finish and returns a
channel closed when every worker has exited:

	<-pool.Shutdown()

MetricsPool wraps any Pool and publishes size, active and queued gauges
labelled by pool name:

	pool := workerpool.WithMetrics(workerpool.New(8, 64), "server", metrics.DefaultRegistry)
*/
package workerpool
