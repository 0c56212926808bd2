package model

import (
	"encoding/json"
	"fmt"
)

// MetricKind is the aggregation type the collection agent applies to a metric.
type MetricKind string

const (
	KindCount     MetricKind = "count"
	KindGauge     MetricKind = "gauge"
	KindRate      MetricKind = "rate"
	KindSet       MetricKind = "set"
	KindHistogram MetricKind = "histogram"
)

// MetricKinds lists every supported kind.
var MetricKinds = []MetricKind{KindCount, KindGauge, KindRate, KindSet, KindHistogram}

// ParseMetricKind converts a wire name into a MetricKind.
func ParseMetricKind(name string) (MetricKind, error) {
	for _, k := range MetricKinds {
		if string(k) == name {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown metric kind %q", name)
}

// Numeric reports whether the kind carries a scalar value.
func (k MetricKind) Numeric() bool {
	return k != KindSet
}

// MetricRecord is the canonical metric shape stored in the metrics queue.
// Value is a float64 for numeric kinds and a []string for KindSet.
type MetricRecord struct {
	Name      string            `json:"metric"`
	Kind      MetricKind        `json:"type"`
	Value     any               `json:"value"`
	Timestamp float64           `json:"timestamp"`
	Tags      map[string]string `json:"tags"`
}

// UnmarshalJSON restores the typed value representation.
func (m *MetricRecord) UnmarshalJSON(data []byte) error {
	type plain MetricRecord
	var raw struct {
		plain
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = MetricRecord(raw.plain)
	if len(raw.Value) == 0 || string(raw.Value) == "null" {
		m.Value = nil
		return nil
	}
	if m.Kind == KindSet {
		var members []string
		if err := json.Unmarshal(raw.Value, &members); err != nil {
			return fmt.Errorf("set value: %w", err)
		}
		m.Value = members
		return nil
	}
	var v float64
	if err := json.Unmarshal(raw.Value, &v); err != nil {
		return fmt.Errorf("%s value: %w", m.Kind, err)
	}
	m.Value = v
	return nil
}
