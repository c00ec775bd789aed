package ingest

import (
	"fmt"
	"time"
)

const dayLayout = "2006-01-02"

// Days returns the days to load starting at start. Without untilYesterday it
// is just start; otherwise every day from start through the day before today,
// ascending. A start on or after today yields no days.
func Days(start string, untilYesterday bool, today time.Time) ([]string, error) {
	first, err := time.Parse(dayLayout, start)
	if err != nil {
		return nil, fmt.Errorf("invalid day %q: %w", start, err)
	}
	if !untilYesterday {
		return []string{first.Format(dayLayout)}, nil
	}

	y, m, d := today.Date()
	yesterday := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)

	var days []string
	for day := first; !day.After(yesterday); day = day.AddDate(0, 0, 1) {
		days = append(days, day.Format(dayLayout))
	}
	return days, nil
}
