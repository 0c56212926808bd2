package chouette

import "sync"

var (
	defaultMu     sync.Mutex
	defaultClient *Client
)

// Default returns the process-wide client, creating it from the
// environment on first use. Its Redis probe happens at that moment.
func Default() *Client {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultClient == nil {
		defaultClient = New()
	}
	return defaultClient
}

// SetDefault replaces the process-wide client and returns the previous
// one, which is not closed.
func SetDefault(c *Client) *Client {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultClient
	defaultClient = c
	return prev
}

// Close closes the process-wide client, if one was created. A later call
// to Default builds a fresh client.
func Close() error {
	defaultMu.Lock()
	c := defaultClient
	defaultClient = nil
	defaultMu.Unlock()
	if c == nil {
		return nil
	}
	return c.Close()
}

// Count submits a count metric through the default client.
func Count(name string, value any, opts ...MetricOption) (*Handle, error) {
	return Default().Count(name, value, opts...)
}

// Increment submits a positive count through the default client.
func Increment(name string, value any, opts ...MetricOption) (*Handle, error) {
	return Default().Increment(name, value, opts...)
}

// Decrement submits a negated count through the default client.
func Decrement(name string, value any, opts ...MetricOption) (*Handle, error) {
	return Default().Decrement(name, value, opts...)
}

// Gauge submits a gauge through the default client.
func Gauge(name string, value any, opts ...MetricOption) (*Handle, error) {
	return Default().Gauge(name, value, opts...)
}

// Rate submits a rate through the default client.
func Rate(name string, value any, opts ...MetricOption) (*Handle, error) {
	return Default().Rate(name, value, opts...)
}

// Set submits a set through the default client.
func Set(name string, value any, opts ...MetricOption) (*Handle, error) {
	return Default().Set(name, value, opts...)
}

// Histogram submits a histogram through the default client.
func Histogram(name string, value any, opts ...MetricOption) (*Handle, error) {
	return Default().Histogram(name, value, opts...)
}

// Timed returns a timer bound to the default client.
func Timed(name string, opts ...TimerOption) *Timer {
	return Default().Timed(name, opts...)
}
