package docstore

import (
	"encoding/json"
	"fmt"
	"time"
)

// Timestamp is the store's native time representation. Stores hand these out
// in document data; mirrors convert them to time.Time before exposing them.
type Timestamp struct {
	Seconds int64 `json:"_seconds"`
	Nanos   int32 `json:"_nanoseconds"`
}

// TimestampOf converts t to a Timestamp
func TimestampOf(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

// Time returns the instant as a time.Time in the local zone
func (ts Timestamp) Time() time.Time {
	return time.Unix(ts.Seconds, int64(ts.Nanos))
}

// Before reports whether ts is earlier than other
func (ts Timestamp) Before(other Timestamp) bool {
	if ts.Seconds != other.Seconds {
		return ts.Seconds < other.Seconds
	}
	return ts.Nanos < other.Nanos
}

// EncodeData serializes d as JSON. Timestamps become {"_seconds","_nanoseconds"}
// objects and time.Time values are converted to Timestamps first.
func EncodeData(d Data) ([]byte, error) {
	out := make(map[string]any, len(d))
	for k, v := range d {
		if t, ok := v.(time.Time); ok {
			v = TimestampOf(t)
		}
		out[k] = v
	}
	return json.Marshal(out)
}

// DecodeData parses JSON produced by EncodeData
func DecodeData(raw []byte) (Data, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	d := make(Data, len(m))
	for k, v := range m {
		if ts, ok := asTimestamp(v); ok {
			d[k] = ts
			continue
		}
		d[k] = v
	}
	return d, nil
}

func asTimestamp(v any) (Timestamp, bool) {
	obj, ok := v.(map[string]any)
	if !ok || len(obj) != 2 {
		return Timestamp{}, false
	}
	secs, ok1 := obj["_seconds"].(float64)
	nanos, ok2 := obj["_nanoseconds"].(float64)
	if !ok1 || !ok2 {
		return Timestamp{}, false
	}
	return Timestamp{Seconds: int64(secs), Nanos: int32(nanos)}, true
}
