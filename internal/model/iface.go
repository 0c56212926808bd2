package model

import "context"

// RecordStore persists normalized records into the shared queues.
// Implementations never return errors: a failed store yields ok == false.
type RecordStore interface {
	StoreMetric(ctx context.Context, record *MetricRecord) (key string, ok bool)
	StoreLog(ctx context.Context, record *LogRecord) (key string, ok bool)
}
