package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"unicode/utf8"
)

// maxValueLen is the number of characters shown before a value is cut.
const maxValueLen = 20

// Field is one key of an audit snapshot with its raw JSON value.
type Field struct {
	Name  string
	Value json.RawMessage
}

// FieldMap is a JSON object decoded with its key order preserved, so fields
// show up the way the server wrote them.
type FieldMap []Field

// ParseFieldMap decodes an object snapshot. Empty input and JSON null give an
// empty map.
func ParseFieldMap(data []byte) (FieldMap, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("snapshot is not an object")
	}

	var out FieldMap
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read snapshot key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("snapshot key %v is not a string", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("read snapshot value %q: %w", key, err)
		}
		out = append(out, Field{Name: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("read snapshot end: %w", err)
	}
	return out, nil
}

func (m FieldMap) Get(name string) (json.RawMessage, bool) {
	for _, f := range m {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// FormatValue renders a raw value for display: strings without quotes,
// null as "null", anything else as compact JSON. Values longer than 20
// characters are cut to 20 followed by an ellipsis.
func FormatValue(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	var s string
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		return "null"
	case raw[0] == '"':
		if err := json.Unmarshal(raw, &s); err != nil {
			s = string(raw)
		}
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			s = string(raw)
		} else {
			s = buf.String()
		}
	}
	return truncate(s)
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxValueLen {
		return s
	}
	r := []rune(s)
	return string(r[:maxValueLen]) + "…"
}

// isBlank reports whether a value counts as unset: missing, null or "".
func isBlank(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte(`""`))
}

// sameValue compares two raw values semantically, ignoring whitespace and
// number spelling ("1.0" and "1").
func sameValue(a, b json.RawMessage) bool {
	if isNull(a) || isNull(b) {
		return isNull(a) == isNull(b)
	}
	var x, y any
	if json.Unmarshal(a, &x) != nil || json.Unmarshal(b, &y) != nil {
		return bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b))
	}
	return canonical(x) == canonical(y)
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func canonical(v any) string {
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
