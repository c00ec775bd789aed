package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toll-telemetry/ingester/internal/transit"
)

func TestAggregate(t *testing.T) {
	key := transit.WindowKey{Date: "2018-05-22", Minute: "08:15"}

	tests := []struct {
		name   string
		bucket []transit.Record
		want   []transit.AggregatedRow
	}{
		{
			name:   "empty bucket",
			bucket: nil,
			want:   nil,
		},
		{
			name: "single route minimum positive travel time",
			bucket: []transit.Record{
				rec("2018-05-22", "08:15:01", 6, 7, 900),
				rec("2018-05-22", "08:15:20", 6, 7, 0),
				rec("2018-05-22", "08:15:40", 6, 7, 840),
			},
			want: []transit.AggregatedRow{
				{Date: "2018-05-22", Time: "08:15", Source: 6, Destination: 7, Count: 3, TravelTime: 840},
			},
		},
		{
			name: "route without positive sample reports zero",
			bucket: []transit.Record{
				rec("2018-05-22", "08:15:01", 2, 7, 0),
				rec("2018-05-22", "08:15:02", 2, 7, -5),
				rec("2018-05-22", "08:15:03", 3, 7, 120),
			},
			want: []transit.AggregatedRow{
				{Date: "2018-05-22", Time: "08:15", Source: 2, Destination: 7, Count: 2, TravelTime: 0},
				{Date: "2018-05-22", Time: "08:15", Source: 3, Destination: 7, Count: 1, TravelTime: 120},
			},
		},
		{
			name: "rows ordered by source then destination",
			bucket: []transit.Record{
				rec("2018-05-22", "08:15:01", 9, 1, 10),
				rec("2018-05-22", "08:15:02", 1, 9, 20),
				rec("2018-05-22", "08:15:03", 1, 2, 30),
				rec("2018-05-22", "08:15:04", 9, 1, 5),
			},
			want: []transit.AggregatedRow{
				{Date: "2018-05-22", Time: "08:15", Source: 1, Destination: 2, Count: 1, TravelTime: 30},
				{Date: "2018-05-22", Time: "08:15", Source: 1, Destination: 9, Count: 1, TravelTime: 20},
				{Date: "2018-05-22", Time: "08:15", Source: 9, Destination: 1, Count: 2, TravelTime: 5},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Aggregate(key, tc.bucket))
		})
	}
}

func TestAggregate_OneRowPerRoute(t *testing.T) {
	var bucket []transit.Record
	for i := 0; i < 50; i++ {
		bucket = append(bucket, rec("2018-05-22", "08:15:00", i%5, i%3, int64(i)))
	}
	rows := Aggregate(transit.WindowKey{Date: "2018-05-22", Minute: "08:15"}, bucket)

	// i%5 and i%3 are coprime cycles, so all 15 pairs occur.
	require.Len(t, rows, 15)
	total := 0
	for _, r := range rows {
		total += r.Count
	}
	assert.Equal(t, 50, total)
}
