// Package testutil holds small helpers shared by contention-oriented tests.
package testutil

import (
	"fmt"
	"sort"
	"time"
)

// Percentile returns the p-th percentile value from a slice of durations.
func Percentile(latencies []time.Duration, p float64) time.Duration {
	if len(latencies) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted))*p + 0.5)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// LatencySummary formats the p50/p95/p99 of a latency sample for test logs.
func LatencySummary(latencies []time.Duration) string {
	return fmt.Sprintf("p50=%v p95=%v p99=%v",
		Percentile(latencies, 0.50),
		Percentile(latencies, 0.95),
		Percentile(latencies, 0.99))
}
