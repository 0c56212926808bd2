// Package metric converts caller arguments into MetricRecords.
package metric

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/tinytelemetry/chouette/internal/model"
)

var (
	ErrEmptyName    = errors.New("metric name is empty")
	ErrUnknownKind  = errors.New("unknown metric kind")
	ErrInvalidValue = errors.New("invalid metric value")
)

// Normalizer builds records with an injectable clock.
type Normalizer struct {
	Now func() time.Time
}

// Normalize builds a record using the wall clock for missing timestamps.
func Normalize(name string, kind model.MetricKind, value any, timestamp float64, tags map[string]string) (*model.MetricRecord, error) {
	return Normalizer{}.Normalize(name, kind, value, timestamp, tags)
}

// Normalize validates the arguments and returns the canonical record.
// A zero timestamp is replaced by the current time and nil tags by an
// empty map. Set values are materialized as a sorted []string.
func (n Normalizer) Normalize(name string, kind model.MetricKind, value any, timestamp float64, tags map[string]string) (*model.MetricRecord, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyName
	}

	var v any
	switch {
	case kind == model.KindSet:
		members, err := SetMembers(value)
		if err != nil {
			return nil, fmt.Errorf("%s %q: %w", kind, name, err)
		}
		v = members
	case isKnownKind(kind):
		f, err := Float(value)
		if err != nil {
			return nil, fmt.Errorf("%s %q: %w", kind, name, err)
		}
		v = f
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	if timestamp == 0 {
		timestamp = unixSeconds(n.now())
	}

	copied := make(map[string]string, len(tags))
	for k, val := range tags {
		copied[k] = val
	}

	return &model.MetricRecord{
		Name:      name,
		Kind:      kind,
		Value:     v,
		Timestamp: timestamp,
		Tags:      copied,
	}, nil
}

func (n Normalizer) now() time.Time {
	if n.Now != nil {
		return n.Now()
	}
	return time.Now()
}

func isKnownKind(kind model.MetricKind) bool {
	for _, k := range model.MetricKinds {
		if k == kind {
			return true
		}
	}
	return false
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// Float converts any Go integer or float to float64. NaN and infinities are
// rejected because they cannot be encoded as JSON.
func Float(value any) (float64, error) {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int8:
		f = float64(v)
	case int16:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint:
		f = float64(v)
	case uint8:
		f = float64(v)
	case uint16:
		f = float64(v)
	case uint32:
		f = float64(v)
	case uint64:
		f = float64(v)
	case time.Duration:
		f = v.Seconds()
	default:
		return 0, fmt.Errorf("%w: want a number, got %T", ErrInvalidValue, value)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %v is not finite", ErrInvalidValue, f)
	}
	return f, nil
}

// Negate flips the sign of a numeric value.
func Negate(value any) (float64, error) {
	f, err := Float(value)
	if err != nil {
		return 0, err
	}
	return -f, nil
}

// SetMembers materializes a set value. Slices and arrays contribute their
// elements (duplicates kept); maps are native sets and contribute their keys.
// Every member is converted to its display string and the result is sorted.
func SetMembers(value any) ([]string, error) {
	if value == nil {
		return nil, fmt.Errorf("%w: set value is nil", ErrInvalidValue)
	}
	if members, ok := value.([]string); ok {
		out := append([]string(nil), members...)
		sort.Strings(out)
		return out, nil
	}

	rv := reflect.ValueOf(value)
	var out []string
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return nil, fmt.Errorf("%w: []byte is not a set", ErrInvalidValue)
		}
		out = make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out = append(out, Display(rv.Index(i).Interface()))
		}
	case reflect.Map:
		out = make([]string, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out = append(out, Display(iter.Key().Interface()))
		}
	default:
		return nil, fmt.Errorf("%w: want a slice, array or map for a set, got %T", ErrInvalidValue, value)
	}
	sort.Strings(out)
	return out, nil
}

// Display renders one set member. Composite values use canonical JSON
// (map keys sorted) so equal values always produce the same string.
func Display(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			return "null"
		}
	}

	switch x := v.(type) {
	case fmt.Stringer:
		return x.String()
	case error:
		return x.Error()
	}

	switch rv.Kind() {
	case reflect.Map, reflect.Struct, reflect.Slice, reflect.Array, reflect.Pointer:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
	}
	return fmt.Sprintf("%v", v)
}
