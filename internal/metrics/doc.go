/*
Package metrics exports cache engine events to Prometheus.

Collector implements types.Recorder, so it can be handed to the engine with
cache.WithRecorder. It owns a private registry with these series:

	tiercache_operations_total{operation,status}
	tiercache_operation_duration_seconds{operation}
	tiercache_errors_total{operation,code}
	tiercache_displacements_total{from_tier}
	tiercache_discards_total{tier}
	tiercache_tier_entries{tier,kind}
	tiercache_tier_capacity{tier,kind}

Start serves the registry at Config.Path, plus /health and
/debug/operations, until Stop is called. A DELETE on /debug/operations
clears the per-operation summary:

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Port:      9090,
		Path:      "/metrics",
		Namespace: "tiercache",
	})
	if err != nil {
		return err
	}
	c, err := cache.NewFromConfig(ctx, cfg, cache.WithRecorder(collector))
*/
package metrics
