package pipeline

import (
	"context"
	"sync"
	"time"
)

// Result summarizes one processor run.
type Result struct {
	// Processor is the name of the processor that ran
	Processor string

	// Status is the subject status after the run
	Status Status

	// Errors is the number of errors recorded on the subject
	Errors int

	// Error is an error that escaped the tree, if any
	Error error

	// Duration is the total execution time
	Duration time.Duration

	// StartTime is when the run started
	StartTime time.Time

	// EndTime is when the run finished
	EndTime time.Time
}

// StageResult represents the result of a single worker execution.
type StageResult struct {
	// StageName is the title of the worker
	StageName string

	// Error is the error returned by the worker body, absorbed or not
	Error error

	// Duration is how long the body took
	Duration time.Duration

	// StartTime is when the body started
	StartTime time.Time

	// EndTime is when the body finished
	EndTime time.Time
}

// Stats holds processor execution statistics.
type Stats struct {
	TotalExecutions int64
	SuccessfulRuns  int64
	FailedRuns      int64
	TotalDuration   time.Duration
	AverageDuration time.Duration
	StageStats      map[string]StageStats
	LastExecutionAt time.Time
}

// StageStats holds statistics for individual workers.
type StageStats struct {
	Name            string
	ExecutionCount  int64
	SuccessCount    int64
	ErrorCount      int64
	TotalDuration   time.Duration
	AverageDuration time.Duration
}

type statsCollector struct {
	mu    sync.Mutex
	stats Stats
}

func newStatsCollector() *statsCollector {
	return &statsCollector{
		stats: Stats{StageStats: make(map[string]StageStats)},
	}
}

func (c *statsCollector) recordRun(result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.TotalExecutions++
	c.stats.TotalDuration += result.Duration
	c.stats.LastExecutionAt = result.EndTime

	if result.Error == nil && result.Status == StatusOK {
		c.stats.SuccessfulRuns++
	} else {
		c.stats.FailedRuns++
	}
}

func (c *statsCollector) recordStage(result StageResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, exists := c.stats.StageStats[result.StageName]
	if !exists {
		stats = StageStats{Name: result.StageName}
	}

	stats.ExecutionCount++
	stats.TotalDuration += result.Duration

	if result.Error == nil {
		stats.SuccessCount++
	} else {
		stats.ErrorCount++
	}
	stats.AverageDuration = time.Duration(int64(stats.TotalDuration) / stats.ExecutionCount)

	c.stats.StageStats[result.StageName] = stats
}

func (c *statsCollector) snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	statsCopy := c.stats
	statsCopy.StageStats = make(map[string]StageStats, len(c.stats.StageStats))
	for k, v := range c.stats.StageStats {
		statsCopy.StageStats[k] = v
	}

	if statsCopy.TotalExecutions > 0 {
		statsCopy.AverageDuration = time.Duration(int64(statsCopy.TotalDuration) / statsCopy.TotalExecutions)
	}

	return statsCopy
}

// observer receives worker events for the processor currently running.
// It travels in the context.Context so the shared tree stays immutable.
type observer struct {
	processor string
	config    *Config
	stats     *statsCollector
}

type observerKey struct{}

func withObserver(ctx context.Context, obs *observer) context.Context {
	return context.WithValue(ctx, observerKey{}, obs)
}

func observerFrom(ctx context.Context) *observer {
	obs, _ := ctx.Value(observerKey{}).(*observer)
	return obs
}

func (o *observer) stageStart(name string) {
	if o == nil || o.config.OnStageStart == nil {
		return
	}
	o.config.OnStageStart(name)
}

func (o *observer) stageDone(name string, start time.Time, err error) {
	if o == nil {
		return
	}

	end := time.Now()
	result := StageResult{
		StageName: name,
		Error:     err,
		Duration:  end.Sub(start),
		StartTime: start,
		EndTime:   end,
	}
	o.stats.recordStage(result)

	if err != nil && o.config.Metrics != nil {
		o.config.Metrics.StageFailures.WithLabelValues(o.processor, name).Inc()
	}
	if o.config.OnStageComplete != nil {
		o.config.OnStageComplete(result)
	}
}
