package ingest

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

var otlpJSON = protojson.UnmarshalOptions{DiscardUnknown: true}

// otlpRecordKeys mark a bare OTLP/JSON log record.
var otlpRecordKeys = []string{"timeUnixNano", "observedTimeUnixNano", "severityNumber", "severityText", "traceId", "spanId"}

// parseOTLPJSON recognizes OTLP/JSON payloads: a full logs or metrics export
// request, a single resource or scope entry, or a bare log record. ok is
// false when raw has none of those shapes or does not decode.
func parseOTLPJSON(raw map[string]any) (items []Item, ok bool) {
	switch {
	case has(raw, "resourceLogs"):
		var req collogspb.ExportLogsServiceRequest
		if !decodeOTLP(raw, &req) {
			return nil, false
		}
		return LogItems(req.GetResourceLogs()), true
	case has(raw, "scopeLogs"):
		var rl logspb.ResourceLogs
		if !decodeOTLP(raw, &rl) {
			return nil, false
		}
		return LogItems([]*logspb.ResourceLogs{&rl}), true
	case has(raw, "logRecords"):
		var sl logspb.ScopeLogs
		if !decodeOTLP(raw, &sl) {
			return nil, false
		}
		return LogItems([]*logspb.ResourceLogs{{ScopeLogs: []*logspb.ScopeLogs{&sl}}}), true
	case has(raw, "resourceMetrics"):
		var req colmetricspb.ExportMetricsServiceRequest
		if !decodeOTLP(raw, &req) {
			return nil, false
		}
		return MetricItems(req.GetResourceMetrics()), true
	case has(raw, "scopeMetrics"):
		var rm metricspb.ResourceMetrics
		if !decodeOTLP(raw, &rm) {
			return nil, false
		}
		return MetricItems([]*metricspb.ResourceMetrics{&rm}), true
	case isOTLPLogRecord(raw):
		var lr logspb.LogRecord
		if !decodeOTLP(raw, &lr) {
			return nil, false
		}
		return []Item{logItem(&lr, nil)}, true
	}
	return nil, false
}

func decodeOTLP(raw map[string]any, msg proto.Message) bool {
	hexIDsToBase64(raw)
	data, err := json.Marshal(raw)
	if err != nil {
		return false
	}
	return otlpJSON.Unmarshal(data, msg) == nil
}

// hexIDsToBase64 rewrites traceId and spanId in place. OTLP/JSON encodes them
// as hex while protojson expects base64 for bytes fields. An id that is not
// valid hex is moved into the record's attributes unchanged.
func hexIDsToBase64(v any) {
	switch t := v.(type) {
	case []any:
		for _, el := range t {
			hexIDsToBase64(el)
		}
	case map[string]any:
		for key, attr := range map[string]string{"traceId": "trace.id", "spanId": "span.id"} {
			id, ok := t[key].(string)
			if !ok {
				continue
			}
			if b, err := hex.DecodeString(id); err == nil {
				t[key] = base64.StdEncoding.EncodeToString(b)
				continue
			}
			delete(t, key)
			attrs, _ := t["attributes"].([]any)
			t["attributes"] = append(attrs, map[string]any{
				"key":   attr,
				"value": map[string]any{"stringValue": id},
			})
		}
		for _, child := range t {
			hexIDsToBase64(child)
		}
	}
}

func isOTLPLogRecord(raw map[string]any) bool {
	for _, key := range otlpRecordKeys {
		if has(raw, key) {
			return true
		}
	}
	return has(raw, "body") && has(raw, "attributes")
}

func has(raw map[string]any, key string) bool {
	_, ok := raw[key]
	return ok
}
