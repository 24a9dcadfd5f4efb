package docstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTimestamp(t *testing.T) {
	at := time.Date(2025, 3, 14, 9, 26, 53, 589_000_000, time.FixedZone("CET", 3600))
	want := "2025-03-14T08:26:53.589Z"
	fixedNow := func() time.Time { return at }

	cases := []struct {
		name string
		in   any
		want string
	}{
		{"native timestamp", TimestampOf(at), want},
		{"timestamp pointer", func() *Timestamp { ts := TimestampOf(at); return &ts }(), want},
		{"time", at, want},
		{"time pointer", &at, want},
		{"rfc3339 string", "2025-03-14T09:26:53.589+01:00", want},
		{"iso string", want, want},
		{"absent", nil, want},
		{"empty string", "", want},
		{"unparseable string", "last tuesday", "last tuesday"},
		{"unknown type", 42, want},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, normalizeAt(tc.in, fixedNow))
		})
	}
}

func TestNormalizeTimestampIsIdempotent(t *testing.T) {
	inputs := []any{
		time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC),
		TimestampOf(time.Unix(1700000000, 123456789)),
		"2024-06-01T12:00:00+02:00",
		"2024-06-01T12:00:00.5Z",
		"not a date",
	}
	for _, in := range inputs {
		once := NormalizeTimestamp(in)
		assert.Equal(t, once, NormalizeTimestamp(once), "input %v", in)
	}
}

func TestOptionalTimestamp(t *testing.T) {
	assert.Equal(t, "", OptionalTimestamp(nil))
	assert.Equal(t, "", OptionalTimestamp(""))
	assert.Equal(t, "2024-01-01T00:00:00.000Z", OptionalTimestamp(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestStripUndefined(t *testing.T) {
	in := map[string]any{"a": 1, "b": Unset, "c": nil, "d": ""}

	out := StripUndefined(in)

	assert.Equal(t, map[string]any{"a": 1, "c": nil, "d": ""}, out)
	assert.Len(t, in, 4, "input must not be modified")
}

func TestOptional(t *testing.T) {
	name := "billing"
	assert.Equal(t, Unset, Optional[string](nil))
	assert.Equal(t, "billing", Optional(&name))
}

func TestTimestampMarshalJSON(t *testing.T) {
	raw, err := TimestampOf(time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)).MarshalJSON()
	assert.NoError(t, err)
	assert.Equal(t, `"2024-05-06T07:08:09Z"`, string(raw))
}
