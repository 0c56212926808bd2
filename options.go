package chouette

import "time"

// MetricOption sets optional metric fields.
type MetricOption func(*metricOptions)

type metricOptions struct {
	timestamp float64
	tags      map[string]string
}

// WithTimestamp sets the metric time in unix seconds. Zero means now.
func WithTimestamp(ts float64) MetricOption {
	return func(o *metricOptions) { o.timestamp = ts }
}

// WithTime sets the metric time.
func WithTime(t time.Time) MetricOption {
	return func(o *metricOptions) {
		if t.IsZero() {
			o.timestamp = 0
			return
		}
		o.timestamp = float64(t.UnixNano()) / float64(time.Second)
	}
}

// WithTags attaches tags to the metric.
func WithTags(tags map[string]string) MetricOption {
	return func(o *metricOptions) { o.tags = tags }
}

func applyMetricOptions(opts []MetricOption) metricOptions {
	var o metricOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
