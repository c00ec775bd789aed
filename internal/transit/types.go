package transit

// Record represents one vehicle transit through a toll lane.
// Date and time fields are kept as the zero-padded strings delivered by the
// upstream store so that lexicographic order matches chronological order.
type Record struct {
	MessageID         int64
	StationID         int
	LaneID            int
	Date              string // YYYY-MM-DD
	Time              string // HH:MM:SS
	VehicleKey        string
	Source            int
	Destination       int
	PaymentType       int
	OBUEntryValid     int // 0 means the OBU entry data is usable
	OBUPayment        int // non-zero when the toll was paid with an OBU
	OBUEntryStation   int
	OBUEntryDate      string
	OBUEntryTime      string
	OBUEntryLane      int
	TravelTimeSeconds int64

	// Index is the upstream row index used as the fetch cursor.
	// It is never written to the raw store.
	Index int64
}

// Minute returns the HH:MM part of the transit time.
func (r Record) Minute() string {
	if len(r.Time) < 5 {
		return r.Time
	}
	return r.Time[:5]
}

// Key returns the window the record belongs to.
func (r Record) Key() WindowKey {
	return WindowKey{Date: r.Date, Minute: r.Minute()}
}

// WindowKey identifies a one-minute window.
type WindowKey struct {
	Date   string
	Minute string
}

// Less orders keys by (Date, Minute).
func (k WindowKey) Less(other WindowKey) bool {
	if k.Date != other.Date {
		return k.Date < other.Date
	}
	return k.Minute < other.Minute
}

func (k WindowKey) String() string {
	return k.Date + " " + k.Minute
}

// AggregatedRow is the per-route summary of one window.
// Count is the number of transits (AHT before hourly scaling) and TravelTime
// is the minimum positive travel time in seconds, or 0 when none was seen.
type AggregatedRow struct {
	Date        string
	Time        string
	Source      int
	Destination int
	Count       int
	TravelTime  int64
}

// MaxIndex returns the highest upstream index in the batch.
func MaxIndex(records []Record) int64 {
	var max int64
	for _, r := range records {
		if r.Index > max {
			max = r.Index
		}
	}
	return max
}
