// Package logformat converts log events from any producer into the
// LogRecord shape read by the collection agent.
package logformat

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tinytelemetry/chouette/internal/model"
)

// Event is a producer-neutral log event.
type Event struct {
	Time    time.Time
	Level   string
	Message string
	// Tags is a map (rendered as "key:value") or a sequence passed through.
	Tags any
	// Err is formatted with %+v, so errors carrying a stack print it.
	Err error
	// ExcText is a preformatted exception used when Err is nil.
	ExcText string
	Fields  map[string]any
}

// reserved names are never copied from Fields into the record.
var reserved = map[string]struct{}{
	model.FieldDate:    {},
	model.FieldSource:  {},
	model.FieldTags:    {},
	model.FieldLevel:   {},
	model.FieldMessage: {},
	model.FieldService: {},
	model.FieldExcInfo: {},
	"tags":             {},

	"name":            {},
	"msg":             {},
	"args":            {},
	"levelname":       {},
	"levelno":         {},
	"pathname":        {},
	"filename":        {},
	"module":          {},
	"exc_text":        {},
	"stack_info":      {},
	"lineno":          {},
	"funcName":        {},
	"created":         {},
	"msecs":           {},
	"relativeCreated": {},
	"thread":          {},
	"threadName":      {},
	"processName":     {},
	"process":         {},
}

// IsReserved reports whether name is kept out of extra fields.
func IsReserved(name string) bool {
	_, ok := reserved[name]
	return ok
}

// Format builds the record for service.
func Format(e Event, service string) *model.LogRecord {
	ts := e.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	rec := &model.LogRecord{
		Date:    ts.UTC().Format(model.LogDateLayout),
		Source:  service,
		Service: service,
		Tags:    Tags(e.Tags),
		Level:   e.Level,
		Message: model.LogMessage{Msg: e.Message},
	}

	switch {
	case e.Err != nil:
		rec.ExcInfo = fmt.Sprintf("%+v", e.Err)
	case e.ExcText != "":
		rec.ExcInfo = e.ExcText
	}

	for name, value := range e.Fields {
		if IsReserved(name) {
			continue
		}
		if rec.Extra == nil {
			rec.Extra = make(map[string]any, len(e.Fields))
		}
		rec.Extra[name] = value
	}
	return rec
}

// Tags renders tags as "key:value" strings. Maps are sorted by key;
// sequences keep their order.
func Tags(v any) []string {
	switch t := v.(type) {
	case nil:
		return []string{}
	case []string:
		return append([]string{}, t...)
	case map[string]string:
		out := make([]string, 0, len(t))
		for k, val := range t {
			out = append(out, k+":"+val)
		}
		sort.Strings(out)
		return out
	case map[string]any:
		out := make([]string, 0, len(t))
		for k, val := range t {
			out = append(out, k+":"+fmt.Sprint(val))
		}
		sort.Strings(out)
		return out
	case []any:
		out := make([]string, 0, len(t))
		for _, val := range t {
			out = append(out, fmt.Sprint(val))
		}
		return out
	case string:
		if strings.TrimSpace(t) == "" {
			return []string{}
		}
		parts := strings.Split(t, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	default:
		return []string{fmt.Sprint(t)}
	}
}
