package transit

import (
	"fmt"
	"strconv"
)

// RawColumns are the raw record columns in storage order. The fetch index is
// not one of them.
var RawColumns = []string{
	"message_id", "station_id", "lane_id", "transit_date", "transit_time",
	"vehicle_key", "source", "destination", "payment_type", "obu_entry_valid",
	"obu_payment", "obu_entry_station", "obu_entry_date", "obu_entry_time",
	"obu_entry_lane", "travel_time_seconds",
}

// Fields returns the record as strings in RawColumns order.
func (r Record) Fields() []string {
	return []string{
		strconv.FormatInt(r.MessageID, 10),
		strconv.Itoa(r.StationID),
		strconv.Itoa(r.LaneID),
		r.Date,
		r.Time,
		r.VehicleKey,
		strconv.Itoa(r.Source),
		strconv.Itoa(r.Destination),
		strconv.Itoa(r.PaymentType),
		strconv.Itoa(r.OBUEntryValid),
		strconv.Itoa(r.OBUPayment),
		strconv.Itoa(r.OBUEntryStation),
		r.OBUEntryDate,
		r.OBUEntryTime,
		strconv.Itoa(r.OBUEntryLane),
		strconv.FormatInt(r.TravelTimeSeconds, 10),
	}
}

// RecordFromFields parses a row in RawColumns order.
func RecordFromFields(fields []string) (Record, error) {
	if len(fields) != len(RawColumns) {
		return Record{}, fmt.Errorf("expected %d columns, got %d", len(RawColumns), len(fields))
	}

	var (
		r   Record
		err error
	)
	ints := []struct {
		col int
		dst *int
	}{
		{1, &r.StationID},
		{2, &r.LaneID},
		{6, &r.Source},
		{7, &r.Destination},
		{8, &r.PaymentType},
		{9, &r.OBUEntryValid},
		{10, &r.OBUPayment},
		{11, &r.OBUEntryStation},
		{14, &r.OBUEntryLane},
	}
	for _, f := range ints {
		if *f.dst, err = strconv.Atoi(fields[f.col]); err != nil {
			return Record{}, fmt.Errorf("column %s: %w", RawColumns[f.col], err)
		}
	}
	if r.MessageID, err = strconv.ParseInt(fields[0], 10, 64); err != nil {
		return Record{}, fmt.Errorf("column %s: %w", RawColumns[0], err)
	}
	// Recomputed on load; an empty value is accepted.
	if fields[15] != "" {
		if r.TravelTimeSeconds, err = strconv.ParseInt(fields[15], 10, 64); err != nil {
			return Record{}, fmt.Errorf("column %s: %w", RawColumns[15], err)
		}
	}

	r.Date = fields[3]
	r.Time = fields[4]
	r.VehicleKey = fields[5]
	r.OBUEntryDate = fields[12]
	r.OBUEntryTime = fields[13]
	return r, nil
}
