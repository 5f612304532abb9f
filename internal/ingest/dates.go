package ingest

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the canonical stored date format.
const DateLayout = "01/02/2006"

// Spreadsheet serial day range accepted as dates: 1 (12/31/1899) to
// 2958465 (12/31/9999).
const (
	minSerial = 1
	maxSerial = 2958465
)

var (
	canonicalDate = regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`)
	serialBase    = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)
)

// Calendar layouts tried in order for string values.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"01/02/2006 15:04:05",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/06",
	"01-02-2006",
	"1-2-2006",
	"02-Jan-2006",
	"2-Jan-2006",
	"02-Jan-06",
	"2-Jan-06",
	"02 Jan 2006",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"January 2, 2006",
	"January 2 2006",
	"Mon Jan 2 2006",
	"Mon, 02 Jan 2006 15:04:05 MST",
	time.RFC1123Z,
	time.ANSIC,
}

// DateResult is the outcome of normalizing one cell: either a recognized
// date in DateLayout or the untouched original.
type DateResult struct {
	Value      string
	Original   any
	Recognized bool
}

// OrEmpty returns the canonical date, or "" when the cell was not a date.
func (r DateResult) OrEmpty() string {
	if r.Recognized {
		return r.Value
	}
	return ""
}

// NormalizeDate converts a cell to MM/DD/YYYY. Values already in that shape
// are kept verbatim, numbers inside the serial range are spreadsheet day
// counts, and other strings go through the calendar layouts.
func NormalizeDate(v any) DateResult {
	unrecognized := DateResult{Original: v}

	switch t := v.(type) {
	case nil:
		return unrecognized
	case time.Time:
		return recognized(t, v)
	case float64:
		return fromSerial(t, v)
	case float32:
		return fromSerial(float64(t), v)
	case int:
		return fromSerial(float64(t), v)
	case int64:
		return fromSerial(float64(t), v)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return unrecognized
		}
		return fromSerial(f, v)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return unrecognized
		}
		if canonicalDate.MatchString(s) {
			return DateResult{Value: s, Original: v, Recognized: true}
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return fromSerial(f, v)
		}
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return recognized(ts, v)
			}
		}
		return unrecognized
	default:
		return unrecognized
	}
}

// SerialToTime converts a spreadsheet serial day count to a calendar date.
// Serial 1 is 12/31/1899 and serial 61 is 03/01/1900; the fractional time of
// day is discarded.
func SerialToTime(serial float64) time.Time {
	return serialBase.AddDate(0, 0, int(math.Floor(serial))-2)
}

func fromSerial(f float64, original any) DateResult {
	if math.IsNaN(f) || f < minSerial || f > maxSerial {
		return DateResult{Original: original}
	}
	return recognized(SerialToTime(f), original)
}

func recognized(t time.Time, original any) DateResult {
	return DateResult{Value: t.Format(DateLayout), Original: original, Recognized: true}
}
