package log

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const defaultTimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// JSONFormatter renders one JSON object per line.
type JSONFormatter struct {
	TimestampFormat string
	DisableCaller   bool
}

// Format implements Formatter.
func (f *JSONFormatter) Format(entry *Entry) ([]byte, error) {
	layout := f.TimestampFormat
	if layout == "" {
		layout = defaultTimestampFormat
	}
	out := make(map[string]any, len(entry.Fields)+4)
	for k, v := range entry.Fields {
		out[k] = normalize(v)
	}
	out["ts"] = entry.Timestamp.Format(layout)
	out["level"] = entry.Level.String()
	out["msg"] = entry.Message
	if !f.DisableCaller && entry.Caller != "" {
		out["caller"] = entry.Caller
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// TextFormatter renders "ts LEVEL msg key=value ..." with keys sorted.
type TextFormatter struct {
	TimestampFormat string
	DisableCaller   bool
}

// Format implements Formatter.
func (f *TextFormatter) Format(entry *Entry) ([]byte, error) {
	layout := f.TimestampFormat
	if layout == "" {
		layout = defaultTimestampFormat
	}
	var buf bytes.Buffer
	buf.WriteString(entry.Timestamp.Format(layout))
	buf.WriteByte(' ')
	fmt.Fprintf(&buf, "%-5s", entry.Level.String())
	buf.WriteByte(' ')
	buf.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Fields))
	for k := range entry.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf.WriteByte(' ')
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(textValue(normalize(entry.Fields[k])))
	}
	if !f.DisableCaller && entry.Caller != "" {
		buf.WriteString(" caller=")
		buf.WriteString(shortCaller(entry.Caller))
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// normalize turns values json/text cannot render usefully into strings.
func normalize(v any) any {
	switch t := v.(type) {
	case error:
		return t.Error()
	case time.Duration:
		return t.String()
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return t.String()
	default:
		return v
	}
}

func textValue(v any) string {
	var s string
	switch t := v.(type) {
	case nil:
		return `""`
	case string:
		s = t
	default:
		s = fmt.Sprint(t)
	}
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

// shortCaller keeps the last two path elements: "rpc/poller.go:88".
func shortCaller(caller string) string {
	idx := strings.LastIndexByte(caller, '/')
	if idx <= 0 {
		return caller
	}
	if prev := strings.LastIndexByte(caller[:idx], '/'); prev >= 0 {
		return caller[prev+1:]
	}
	return caller
}
