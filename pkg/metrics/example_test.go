package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// Example_basicUsage demonstrates basic metrics configuration.
func Example_basicUsage() {
	// Create a separate registry for this example
	testRegistry := prometheus.NewRegistry()
	registry := NewRegistry(testRegistry)

	registry.PipelineRuns.WithLabelValues("cards", "ok").Add(8)
	registry.PipelineRuns.WithLabelValues("cards", "fail").Add(2)

	fmt.Println(testutil.ToFloat64(registry.PipelineRuns.WithLabelValues("cards", "ok")))

	// Output:
	// 8
}

// Example_customRegistry demonstrates a custom namespace and constant labels.
func Example_customRegistry() {
	customRegistry := prometheus.NewRegistry()

	registry := NewRegistryWithConfig(Config{
		Enabled:   true,
		Registry:  customRegistry,
		Namespace: "flashcards",
		Labels:    prometheus.Labels{"instance": "worker-1"},
	})
	registry.TransportAttempts.WithLabelValues("cards", "reply").Inc()

	families, _ := customRegistry.Gather()
	for _, mf := range families {
		fmt.Println(mf.GetName())
	}

	// Output:
	// flashcards_server_dedup_entries
	// flashcards_transport_attempts_total
}
