package chouette

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tinytelemetry/chouette/internal/executor"
)

// Timer emits the duration of a block of code as a histogram.
// A Timer holds no per-call state and may be shared between goroutines.
type Timer struct {
	client *Client
	name   string
	tags   map[string]string
	millis bool
}

// TimerOption configures a Timer.
type TimerOption func(*Timer)

// TimerTags attaches tags to every measurement.
func TimerTags(tags map[string]string) TimerOption {
	return func(t *Timer) { t.tags = tags }
}

// InMilliseconds reports durations in milliseconds instead of seconds.
func InMilliseconds() TimerOption {
	return func(t *Timer) { t.millis = true }
}

// Timed returns a timer that submits through c.
func (c *Client) Timed(name string, opts ...TimerOption) *Timer {
	t := &Timer{client: c, name: name}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	if strings.TrimSpace(name) == "" {
		c.logger.Warn("Timer has an empty metric name, measurements will be dropped")
	}
	return t
}

// Measurement is one running timing.
type Measurement struct {
	timer *Timer
	start time.Time

	once   sync.Once
	handle *Handle
}

// Start begins a measurement. Use as
//
//	defer t.Start().Stop()
func (t *Timer) Start() *Measurement {
	return &Measurement{timer: t, start: time.Now()}
}

// Stop submits the elapsed time. Only the first call submits; later calls
// return the same handle. The handle is never nil.
func (m *Measurement) Stop() *Handle {
	m.once.Do(func() {
		m.handle = m.timer.emit(time.Since(m.start))
	})
	return m.handle
}

// Elapsed returns the time since Start.
func (m *Measurement) Elapsed() time.Duration {
	return time.Since(m.start)
}

func (t *Timer) emit(d time.Duration) *Handle {
	value := d.Seconds()
	if t.millis {
		value *= 1000
	}
	h, err := t.client.Histogram(t.name, value, WithTags(t.tags))
	if err != nil {
		t.client.logger.Warn("Timed measurement rejected", zap.String("metric", t.name), zap.Error(err))
		return executor.Resolved("", false)
	}
	return h
}

// Time runs fn and records its duration. A panic in fn is recorded and
// then re-raised.
func (t *Timer) Time(fn func()) {
	defer t.Start().Stop()
	fn()
}

// Wrap returns fn instrumented with the timer. The error from fn is
// returned unchanged.
func (t *Timer) Wrap(fn func() error) func() error {
	return func() error {
		defer t.Start().Stop()
		return fn()
	}
}

// TimedFunc runs fn under t and returns its results unchanged.
func TimedFunc[T any](t *Timer, fn func() (T, error)) (T, error) {
	defer t.Start().Stop()
	return fn()
}
