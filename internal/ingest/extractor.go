package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tinytelemetry/chouette/internal/logformat"
	"github.com/tinytelemetry/chouette/internal/logparse"
	"github.com/tinytelemetry/chouette/internal/metric"
	"github.com/tinytelemetry/chouette/internal/model"
)

// ErrInvalidPayload reports a body that is neither a JSON object nor an
// array of objects.
var ErrInvalidPayload = errors.New("ingest: payload must be a JSON object or an array of objects")

// MetricInput is a metric as sent to the relay. It uses the stored field
// names; timestamp may be omitted and tags may be a map or "key:value" list.
type MetricInput struct {
	Name      string  `json:"metric"`
	Kind      string  `json:"type"`
	Value     any     `json:"value"`
	Timestamp float64 `json:"timestamp,omitempty"`
	Tags      any     `json:"tags,omitempty"`
}

// Normalize validates m and builds the stored record.
func (m MetricInput) Normalize(n metric.Normalizer) (*model.MetricRecord, error) {
	kind, err := model.ParseMetricKind(strings.ToLower(strings.TrimSpace(m.Kind)))
	if err != nil {
		return nil, fmt.Errorf("%w %q", metric.ErrUnknownKind, m.Kind)
	}
	tags, err := TagMap(m.Tags)
	if err != nil {
		return nil, err
	}
	return n.Normalize(m.Name, kind, m.Value, m.Timestamp, tags)
}

// Item is one parsed unit of relay input: a metric or a log event.
type Item struct {
	Metric *MetricInput
	Log    *logformat.Event
	// Service overrides the relay's default service for logs.
	Service string
}

// ParseLine parses one relay line. JSON objects carrying "metric" are
// metrics; OTEL log shapes and objects with "message" or "msg" are logs;
// anything else is a plain-text log.
func ParseLine(line string) []Item {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil
	}
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		// A recognized payload that yields nothing (an OTLP export with only
		// empty points) is dropped rather than shipped as text.
		if items, err := ParsePayload([]byte(trimmed)); err == nil {
			return items
		}
	}
	return []Item{TextItem(line)}
}

// ParsePayload parses a JSON object or an array of objects.
func ParsePayload(data []byte) ([]Item, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after JSON value", ErrInvalidPayload)
	}
	decoded = toFloats(decoded)

	var objects []map[string]any
	switch v := decoded.(type) {
	case map[string]any:
		objects = []map[string]any{v}
	case []any:
		for _, el := range v {
			obj, ok := el.(map[string]any)
			if !ok {
				return nil, ErrInvalidPayload
			}
			objects = append(objects, obj)
		}
	default:
		return nil, ErrInvalidPayload
	}

	var items []Item
	for _, obj := range objects {
		items = append(items, parseObject(obj)...)
	}
	return items, nil
}

// toFloats replaces every json.Number that fits a float64 with its value.
// Numbers out of range stay json.Number, so a metric carrying one is
// rejected by the normalizer instead of failing the whole payload.
func toFloats(v any) any {
	switch t := v.(type) {
	case json.Number:
		if f, err := strconv.ParseFloat(t.String(), 64); err == nil {
			return f
		}
		return t
	case map[string]any:
		for k, el := range t {
			t[k] = toFloats(el)
		}
	case []any:
		for i, el := range t {
			t[i] = toFloats(el)
		}
	}
	return v
}

func parseObject(raw map[string]any) []Item {
	if _, ok := raw["metric"]; ok {
		return []Item{{Metric: metricFromObject(raw)}}
	}
	if items, ok := parseOTLPJSON(raw); ok {
		return items
	}
	if item := messageItem(raw); item != nil {
		return []Item{*item}
	}
	encoded, _ := json.Marshal(raw)
	return []Item{TextItem(string(encoded))}
}

func metricFromObject(raw map[string]any) *MetricInput {
	m := &MetricInput{
		Name:  ExtractStringField(raw, "metric"),
		Kind:  ExtractStringField(raw, "type"),
		Value: raw["value"],
		Tags:  raw["tags"],
	}
	if ts, ok := raw["timestamp"].(float64); ok {
		m.Timestamp = ts
	}
	return m
}

// TextItem builds a plain-text log event with severity taken from the text.
func TextItem(line string) Item {
	return Item{Log: &logformat.Event{
		Time:    time.Now(),
		Level:   levelName(logparse.ExtractSeverityFromText(line)),
		Message: sanitizeLogMessage(strings.TrimRight(line, "\r\n")),
	}}
}

// messageKeys are consumed by messageItem and never copied into fields.
var messageKeys = []string{
	"message", "msg", "level", "severity", "levelname", "service", "ddsource",
	"ddtags", "tags", "exc_info", "date", "timestamp", "time", "@timestamp",
}

func messageItem(raw map[string]any) *Item {
	msg, ok := extractMessage(raw)
	if !ok {
		return nil
	}

	ev := &logformat.Event{
		Time:    extractTime(raw),
		Level:   extractLevel(raw),
		Message: msg,
		Tags:    firstPresent(raw, "ddtags", "tags"),
	}
	if exc, ok := raw["exc_info"].(string); ok {
		ev.ExcText = exc
	}

	for k, v := range raw {
		if isMessageKey(k) {
			continue
		}
		if ev.Fields == nil {
			ev.Fields = make(map[string]any)
		}
		ev.Fields[k] = v
	}

	return &Item{
		Log:     ev,
		Service: ExtractStringField(raw, "service", "ddsource"),
	}
}

func isMessageKey(k string) bool {
	for _, mk := range messageKeys {
		if k == mk {
			return true
		}
	}
	return false
}

func extractMessage(raw map[string]any) (string, bool) {
	for _, key := range []string{"message", "msg"} {
		switch v := raw[key].(type) {
		case string:
			return v, true
		case map[string]any:
			if inner, ok := v["msg"].(string); ok {
				return inner, true
			}
			return stringifyJSONValue(v), true
		case nil:
			continue
		default:
			return stringifyJSONValue(v), true
		}
	}
	return "", false
}

func extractLevel(raw map[string]any) string {
	for _, key := range []string{"level", "severity", "levelname"} {
		switch v := raw[key].(type) {
		case string:
			if v != "" {
				return levelName(v)
			}
		case float64:
			return levelName(logparse.PinoLevelToString(int(v)))
		}
	}
	return levelName("INFO")
}

func extractTime(raw map[string]any) time.Time {
	for _, key := range []string{"date", "timestamp", "time", "@timestamp"} {
		if ts, ok := parseTime(raw[key]); ok {
			return ts
		}
	}
	return time.Now()
}

// parseTime accepts RFC 3339 strings and epoch numbers in seconds,
// milliseconds or nanoseconds.
func parseTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range []string{time.RFC3339Nano, model.LogDateLayout} {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, true
			}
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return parseTime(n)
		}
	case float64:
		switch {
		case v <= 0:
			return time.Time{}, false
		case v < 1e11:
			return time.Unix(0, int64(v*1e9)), true
		case v < 1e14:
			return time.UnixMilli(int64(v)), true
		default:
			return time.Unix(0, int64(v)), true
		}
	}
	return time.Time{}, false
}

func firstPresent(raw map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// levelName maps any producer severity onto the shipped level name.
func levelName(severity string) string {
	return logparse.LevelName(logparse.SeverityLevel(severity))
}

// TagMap converts map or "key:value" list tags into a metric tag map.
func TagMap(value any) (map[string]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case map[string]string:
		return v, nil
	case map[string]any:
		out := make(map[string]string, len(v))
		for k, val := range v {
			out[k] = stringifyJSONValue(val)
		}
		return out, nil
	case []string:
		return pairsToMap(v), nil
	case []any:
		pairs := make([]string, 0, len(v))
		for _, el := range v {
			pairs = append(pairs, stringifyJSONValue(el))
		}
		return pairsToMap(pairs), nil
	case string:
		return pairsToMap(strings.Split(v, ",")), nil
	default:
		return nil, fmt.Errorf("%w: tags must be an object or a list, got %T", metric.ErrInvalidValue, value)
	}
}

func pairsToMap(pairs []string) map[string]string {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		k, v, _ := strings.Cut(p, ":")
		out[k] = v
	}
	return out
}

func stringifyJSONValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	default:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
	}
	return ""
}

func sanitizeLogMessage(message string) string {
	clean := strings.ReplaceAll(message, "\t", " ")
	clean = strings.ReplaceAll(clean, "\n", " ")
	clean = strings.ReplaceAll(clean, "\r", " ")
	return clean
}

// ExtractStringField returns the first non-empty string value found among the given keys.
func ExtractStringField(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			if str := stringifyJSONValue(v); str != "" {
				return str
			}
		}
	}
	return ""
}

// ExtractService extracts the service name from log attributes.
func ExtractService(attributes map[string]string) string {
	for _, key := range []string{"service.name", "service", "serviceName", "app", "name"} {
		if s := attributes[key]; s != "" {
			return s
		}
	}
	return ""
}
