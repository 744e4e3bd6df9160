// Package metrics provides Prometheus instrumentation for cardflow components.
//
// # Overview
//
// The metrics package provides instrumentation for:
//   - Processor runs (terminal status, duration, accumulated error groups)
//   - Stage failures and runs that never reached a terminal status
//   - The retry/reply transport client (attempt outcomes, exhausted sends)
//   - The remote executor (handled requests, reply cache hits)
//   - Worker pools (pool size, active workers, queued tasks)
//
// Components take a *Registry in their Config. A nil registry disables
// instrumentation for that component.
//
// # Custom Registry
//
// Use a custom Prometheus registry for isolation, which is what tests do:
//
//	reg := prometheus.NewRegistry()
//	m := metrics.NewRegistry(reg)
//	proc, _ := cards.New(deps, pipeline.Config{Metrics: m})
//
// Then expose metrics via HTTP:
//
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
package metrics
