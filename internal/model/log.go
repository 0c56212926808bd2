package model

import "encoding/json"

// LogDateLayout renders LogRecord.Date: ISO 8601 with microseconds and a
// numeric UTC offset.
const LogDateLayout = "2006-01-02T15:04:05.000000-07:00"

// LogMessage nests the raw text so the backend can index on message.msg.
type LogMessage struct {
	Msg string `json:"msg"`
}

// LogRecord is the canonical log shape stored in the logs queue.
// Extra carries caller attributes merged at the top level of the JSON body.
type LogRecord struct {
	Date    string
	Source  string
	Service string
	Tags    []string
	Level   string
	Message LogMessage
	ExcInfo string
	Extra   map[string]any
}

// Wire field names. Extra keys never override them.
const (
	FieldDate    = "date"
	FieldSource  = "ddsource"
	FieldTags    = "ddtags"
	FieldLevel   = "level"
	FieldMessage = "message"
	FieldService = "service"
	FieldExcInfo = "exc_info"
)

// MarshalJSON flattens Extra next to the fixed fields.
func (r LogRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Extra)+7)
	for k, v := range r.Extra {
		out[k] = v
	}
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	out[FieldDate] = r.Date
	out[FieldSource] = r.Source
	out[FieldTags] = tags
	out[FieldLevel] = r.Level
	out[FieldMessage] = r.Message
	out[FieldService] = r.Service
	if r.ExcInfo != "" {
		out[FieldExcInfo] = r.ExcInfo
	} else {
		delete(out, FieldExcInfo)
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits a stored body back into fixed fields and extras.
func (r *LogRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = LogRecord{}
	fixed := map[string]any{
		FieldDate:    &r.Date,
		FieldSource:  &r.Source,
		FieldTags:    &r.Tags,
		FieldLevel:   &r.Level,
		FieldMessage: &r.Message,
		FieldService: &r.Service,
		FieldExcInfo: &r.ExcInfo,
	}
	for k, v := range raw {
		if dst, ok := fixed[k]; ok {
			if err := json.Unmarshal(v, dst); err != nil {
				return err
			}
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return err
		}
		if r.Extra == nil {
			r.Extra = make(map[string]any)
		}
		r.Extra[k] = val
	}
	return nil
}
