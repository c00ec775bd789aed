package window

import (
	"sort"

	"github.com/toll-telemetry/ingester/internal/transit"
)

type route struct {
	source      int
	destination int
}

// Aggregate reduces one window into one row per (source, destination) pair.
// Count is the number of records on the route; TravelTime is the minimum
// positive travel time on the route, or 0 when no record had one.
// Rows are ordered by source, then destination.
func Aggregate(key transit.WindowKey, bucket []transit.Record) []transit.AggregatedRow {
	if len(bucket) == 0 {
		return nil
	}

	counts := make(map[route]int)
	minTravel := make(map[route]int64)
	for _, r := range bucket {
		rt := route{source: r.Source, destination: r.Destination}
		counts[rt]++

		if r.TravelTimeSeconds <= 0 {
			continue
		}
		if cur, ok := minTravel[rt]; !ok || r.TravelTimeSeconds < cur {
			minTravel[rt] = r.TravelTimeSeconds
		}
	}

	routes := make([]route, 0, len(counts))
	for rt := range counts {
		routes = append(routes, rt)
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].source != routes[j].source {
			return routes[i].source < routes[j].source
		}
		return routes[i].destination < routes[j].destination
	})

	rows := make([]transit.AggregatedRow, 0, len(routes))
	for _, rt := range routes {
		// Routes without a positive sample keep TravelTime 0.
		rows = append(rows, transit.AggregatedRow{
			Date:        key.Date,
			Time:        key.Minute,
			Source:      rt.source,
			Destination: rt.destination,
			Count:       counts[rt],
			TravelTime:  minTravel[rt],
		})
	}
	return rows
}
