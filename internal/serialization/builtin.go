package serialization

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"time"
)

// Serializer kinds.
const (
	KindJSON     = "json"
	KindTime     = "time"
	KindDuration = "duration"
	KindBytes    = "bytes"
	KindSealed   = "sealed"
)

// JSONSerializer stores any JSON-representable value. Numbers come back as
// int64 when integral and float64 otherwise.
type JSONSerializer struct{}

func (JSONSerializer) Kind() string       { return KindJSON }
func (JSONSerializer) Accepts(v any) bool { return true }

func (JSONSerializer) Serialize(v any) (json.RawMessage, error) {
	return json.Marshal(v)
}

func (JSONSerializer) Deserialize(raw json.RawMessage) (any, error) {
	return DecodeJSON(raw)
}

// DecodeJSON decodes raw JSON keeping integers as int64.
func DecodeJSON(raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return fromJSONNumbers(v), nil
}

func fromJSONNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case map[string]any:
		for k, item := range val {
			val[k] = fromJSONNumbers(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = fromJSONNumbers(item)
		}
		return val
	default:
		return v
	}
}

// TimeSerializer stores time.Time as RFC 3339 with nanoseconds.
type TimeSerializer struct{}

func (TimeSerializer) Kind() string { return KindTime }

func (TimeSerializer) Accepts(v any) bool {
	_, ok := v.(time.Time)
	return ok
}

func (TimeSerializer) Serialize(v any) (json.RawMessage, error) {
	return json.Marshal(v.(time.Time).Format(time.RFC3339Nano))
}

func (TimeSerializer) Deserialize(raw json.RawMessage) (any, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return time.Parse(time.RFC3339Nano, s)
}

// DurationSerializer stores time.Duration in its string form ("1h30m").
type DurationSerializer struct{}

func (DurationSerializer) Kind() string { return KindDuration }

func (DurationSerializer) Accepts(v any) bool {
	_, ok := v.(time.Duration)
	return ok
}

func (DurationSerializer) Serialize(v any) (json.RawMessage, error) {
	return json.Marshal(v.(time.Duration).String())
}

func (DurationSerializer) Deserialize(raw json.RawMessage) (any, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return time.ParseDuration(s)
}

// BytesSerializer stores []byte as standard base64.
type BytesSerializer struct{}

func (BytesSerializer) Kind() string { return KindBytes }

func (BytesSerializer) Accepts(v any) bool {
	_, ok := v.([]byte)
	return ok
}

func (BytesSerializer) Serialize(v any) (json.RawMessage, error) {
	return json.Marshal(base64.StdEncoding.EncodeToString(v.([]byte)))
}

func (BytesSerializer) Deserialize(raw json.RawMessage) (any, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(s)
}
