package docstore

import (
	"encoding/json"
	"time"
)

// Sentinel marks a field value that the store replaces or drops at write time.
type Sentinel struct{ name string }

var (
	// ServerTimestamp is replaced with the store's clock when written.
	ServerTimestamp = Sentinel{"serverTimestamp"}
	// Unset marks a field that must not be written at all.
	Unset = Sentinel{"unset"}
)

// Timestamp is the store-native time representation.
type Timestamp struct {
	Seconds int64
	Nanos   int32
}

func TimestampOf(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

func (t Timestamp) Time() time.Time {
	return time.Unix(t.Seconds, int64(t.Nanos)).UTC()
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time().Format(time.RFC3339Nano))
}

const isoLayout = "2006-01-02T15:04:05.000Z"

// NormalizeTimestamp renders a stored time value as an ISO-8601 UTC string
// with millisecond precision. It accepts Timestamp, time.Time, their
// pointers, strings and nil; nil and "" yield the current time. Strings that
// do not parse as RFC 3339 are returned unchanged.
func NormalizeTimestamp(v any) string {
	return normalizeAt(v, time.Now)
}

// OptionalTimestamp is NormalizeTimestamp for fields that may be absent: it
// returns "" instead of the current time.
func OptionalTimestamp(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok && s == "" {
		return ""
	}
	return NormalizeTimestamp(v)
}

func normalizeAt(v any, now func() time.Time) string {
	switch t := v.(type) {
	case nil:
		return formatISO(now())
	case Timestamp:
		return formatISO(t.Time())
	case *Timestamp:
		if t == nil {
			return formatISO(now())
		}
		return formatISO(t.Time())
	case time.Time:
		return formatISO(t)
	case *time.Time:
		if t == nil {
			return formatISO(now())
		}
		return formatISO(*t)
	case string:
		if t == "" {
			return formatISO(now())
		}
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return t
		}
		return formatISO(parsed)
	default:
		return formatISO(now())
	}
}

func formatISO(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// ParseTimestamp parses an ISO-8601 string, returning the zero time when it
// is not one.
func ParseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// StripUndefined returns a copy of fields without the keys set to Unset.
// nil and empty values are kept.
func StripUndefined(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if v == Unset {
			continue
		}
		out[k] = v
	}
	return out
}

// Optional turns a nil pointer into Unset and dereferences anything else,
// for building partial updates from request structs.
func Optional[T any](p *T) any {
	if p == nil {
		return Unset
	}
	return *p
}

// resolve strips Unset values and replaces ServerTimestamp with stamp.
func resolve(fields map[string]any, stamp any) map[string]any {
	out := StripUndefined(fields)
	for k, v := range out {
		if v == ServerTimestamp {
			out[k] = stamp
		}
	}
	return out
}
