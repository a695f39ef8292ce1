package timestamp

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var fixedNow = time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC)

func newTestNormalizer() *Normalizer {
	return NewWithClock(func() time.Time { return fixedNow })
}

func TestNormalize(t *testing.T) {
	n := newTestNormalizer()
	epoch := time.Unix(1700000000, 0).UTC()

	tests := []struct {
		name  string
		input any
		want  time.Time
	}{
		{"nil", nil, fixedNow},
		{"empty string", "", fixedNow},
		{"whitespace", "   ", fixedNow},
		{"rfc3339", "2025-08-20T09:10:00Z", time.Date(2025, 8, 20, 9, 10, 0, 0, time.UTC)},
		{"rfc3339 with offset", "2025-08-20T11:10:00+02:00", time.Date(2025, 8, 20, 9, 10, 0, 0, time.UTC)},
		{"fractional", "2025-08-20T09:10:00.123Z", time.Date(2025, 8, 20, 9, 10, 0, 123000000, time.UTC)},
		{"space separated", "2025-08-20 09:10:00", time.Date(2025, 8, 20, 9, 10, 0, 0, time.UTC)},
		{"date only", "2025-08-20", time.Date(2025, 8, 20, 0, 0, 0, 0, time.UTC)},
		{"seconds int", 1700000000, epoch},
		{"seconds int64", int64(1700000000), epoch},
		{"seconds float", float64(1700000000), epoch},
		{"milliseconds int64", int64(1700000000000), epoch},
		{"milliseconds float", float64(1700000000000), epoch},
		{"json number seconds", json.Number("1700000000"), epoch},
		{"json number millis", json.Number("1700000000000"), epoch},
		{"numeric string", "1700000000", epoch},
		{"garbage", "not a time", fixedNow},
		{"unsupported type", []string{"x"}, fixedNow},
		{"bool", true, fixedNow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.Normalize(tt.input)
			assert.True(t, tt.want.Equal(got), "want %s got %s", tt.want, got)
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	n := newTestNormalizer()
	in := time.Date(2024, 1, 2, 3, 4, 5, 6, time.FixedZone("X", 3600))

	once := n.Normalize(in)
	twice := n.Normalize(once)

	assert.Equal(t, in, once)
	assert.Equal(t, once, twice)
}

func TestNormalize_SecondsAndMillisAgree(t *testing.T) {
	n := newTestNormalizer()
	assert.True(t, n.Normalize(1700000000).Equal(n.Normalize(int64(1700000000000))))
	assert.True(t, n.Normalize(float64(1700000000)).Equal(n.Normalize(float64(1700000000000))))
}

func TestNormalize_ZeroTimeIsNow(t *testing.T) {
	n := newTestNormalizer()
	assert.Equal(t, fixedNow, n.Normalize(time.Time{}))
}
