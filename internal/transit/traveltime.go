package transit

import (
	"fmt"
	"time"
)

const timestampLayout = "2006-01-02 15:04:05"

// ParseTimestamp parses a date and a clock time as naive time.
// No timezone conversion is applied; the result is in UTC so that
// differences between two parsed values are plain wall-clock differences.
func ParseTimestamp(date, clock string) (time.Time, error) {
	return time.ParseInLocation(timestampLayout, date+" "+clock, time.UTC)
}

// ParseWarning describes a record whose timestamps could not be parsed.
// The record is kept with a zero travel time.
type ParseWarning struct {
	MessageID int64
	Index     int64
	Field     string
	Value     string
	Err       error
}

func (w *ParseWarning) Error() string {
	return fmt.Sprintf("message %d (index %d): invalid %s %q: %v", w.MessageID, w.Index, w.Field, w.Value, w.Err)
}

func (w *ParseWarning) Unwrap() error {
	return w.Err
}

// HasValidOBUEntry reports whether the record carries a usable electronic toll
// entry: paid with an OBU and the entry data flagged as valid.
func (r Record) HasValidOBUEntry() bool {
	return r.OBUPayment != 0 && r.OBUEntryValid == 0
}

// DeriveTravelTime returns the record with TravelTimeSeconds filled in.
// Travel time is the transit timestamp minus the OBU entry timestamp, in whole
// seconds, for records with a valid OBU entry and 0 for everything else.
// A non-nil warning means a timestamp failed to parse and travel time fell back to 0.
func DeriveTravelTime(r Record) (Record, *ParseWarning) {
	r.TravelTimeSeconds = 0

	exit, err := ParseTimestamp(r.Date, r.Time)
	if err != nil {
		return r, &ParseWarning{MessageID: r.MessageID, Index: r.Index, Field: "transit timestamp", Value: r.Date + " " + r.Time, Err: err}
	}
	if !r.HasValidOBUEntry() {
		return r, nil
	}

	entry, err := ParseTimestamp(r.OBUEntryDate, r.OBUEntryTime)
	if err != nil {
		return r, &ParseWarning{MessageID: r.MessageID, Index: r.Index, Field: "OBU entry timestamp", Value: r.OBUEntryDate + " " + r.OBUEntryTime, Err: err}
	}

	r.TravelTimeSeconds = int64(exit.Sub(entry) / time.Second)
	return r, nil
}

// DeriveBatch derives travel time for every record in the batch.
// Records are never dropped; parse failures are returned alongside.
func DeriveBatch(records []Record) ([]Record, []*ParseWarning) {
	out := make([]Record, 0, len(records))
	var warnings []*ParseWarning
	for _, r := range records {
		derived, warn := DeriveTravelTime(r)
		if warn != nil {
			warnings = append(warnings, warn)
		}
		out = append(out, derived)
	}
	return out, warnings
}
