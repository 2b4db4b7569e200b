package metrics

import (
	"context"
	"time"
)

// MetricsCollector receives one record per sampler cycle
type MetricsCollector interface {
	Record(ctx context.Context, cycle *CycleMetrics) error
	Close() error
}

// MetricsRepository defines the interface for metrics data storage
type MetricsRepository interface {
	Record(cycle *CycleMetrics) error
	Close() error
}

// CycleMetrics summarizes one sampling cycle. Failed cycles carry no
// process totals.
type CycleMetrics struct {
	Timestamp   time.Time
	Seq         uint64
	Processes   int
	TotalCPU    float64
	TotalMemory float64
	Duration    time.Duration
	Failed      bool
}
