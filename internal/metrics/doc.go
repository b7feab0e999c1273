// Package metrics provides real-time metrics collection for the load balancer.
//
// It uses a channel-based event pipeline to asynchronously collect:
//   - Accepted and rejected (no available backend) connection counts
//   - Backend selection frequencies
//   - Relay outcomes, bytes moved in each direction and relay latency
//     percentiles (P50, P95, P99)
//   - Backend availability as reported by health checks
//
// The collector runs in a dedicated goroutine. Emit never blocks: when the
// buffer is full the event is dropped so relays are never slowed by metrics.
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:     metrics.EventRelayCompleted,
//		Backend:  "127.0.0.1:8081",
//		Duration: 15 * time.Millisecond,
//		BytesIn:  78,
//		BytesOut: 512,
//	})
//
//	snapshot := collector.Snapshot()
//
// On shutdown the collector drains whatever is still buffered.
package metrics
