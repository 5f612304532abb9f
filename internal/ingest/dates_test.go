package ingest

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
		ok   bool
	}{
		{"serial 1", 1.0, "12/31/1899", true},
		{"serial 61", 61.0, "03/01/1900", true},
		{"serial modern", 45366.0, "03/15/2024", true},
		{"serial with time of day", 45366.75, "03/15/2024", true},
		{"serial as int", 45366, "03/15/2024", true},
		{"serial as string", "45366", "03/15/2024", true},
		{"serial as json number", json.Number("45366"), "03/15/2024", true},
		{"canonical kept verbatim", "03/15/2024", "03/15/2024", true},
		{"short canonical kept verbatim", "3/5/2024", "3/5/2024", true},
		{"iso date", "2024-03-15", "03/15/2024", true},
		{"iso timestamp", "2024-03-15T10:30:00Z", "03/15/2024", true},
		{"day-month-name", "15-Mar-2024", "03/15/2024", true},
		{"month name", "March 15, 2024", "03/15/2024", true},
		{"time value", time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC), "03/15/2024", true},
		{"zero serial outside guard", 0.0, "", false},
		{"negative serial", -5.0, "", false},
		{"huge serial", 1e9, "", false},
		{"garbage", "not a date", "", false},
		{"empty", "", "", false},
		{"nil", nil, "", false},
		{"bool", true, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NormalizeDate(tt.in)
			assert.Equal(t, tt.ok, res.Recognized)
			assert.Equal(t, tt.want, res.OrEmpty())
			assert.Equal(t, tt.in, res.Original)
		})
	}
}

func TestNormalizeDate_Idempotent(t *testing.T) {
	for _, in := range []any{1.0, 61.0, "2024-03-15", "15-Mar-2024", "12/31/1899"} {
		once := NormalizeDate(in).OrEmpty()
		assert.Equal(t, once, NormalizeDate(once).OrEmpty(), "%v", in)
	}
}

func TestSerialToTime(t *testing.T) {
	assert.Equal(t, time.Date(1899, 12, 31, 0, 0, 0, 0, time.UTC), SerialToTime(1))
	assert.Equal(t, time.Date(1900, 3, 1, 0, 0, 0, 0, time.UTC), SerialToTime(61))
	assert.Equal(t, time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC), SerialToTime(maxSerial))
}
