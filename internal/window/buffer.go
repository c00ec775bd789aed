// Package window keeps transit records grouped into one-minute windows until
// enough newer windows exist for them to be considered complete, then reduces
// each complete window into per-route rows.
package window

import (
	"sort"

	"github.com/toll-telemetry/ingester/internal/transit"
)

// Buffer holds unflushed records keyed by date and then by HH:MM.
// A Buffer is owned by a single ingestion pipeline and is not safe for
// concurrent use.
type Buffer struct {
	dates map[string]map[string][]transit.Record

	// flushed is the key of the most recently evicted window.
	flushed    transit.WindowKey
	hasFlushed bool
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{dates: make(map[string]map[string][]transit.Record)}
}

// Insert adds the record to the bucket of its window, creating the bucket if
// needed. Identical records are not deduplicated.
// A record whose window is not newer than the last evicted window is rejected
// and Insert returns false: evicted windows are never re-opened.
func (b *Buffer) Insert(r transit.Record) bool {
	key := r.Key()
	if b.hasFlushed && !b.flushed.Less(key) {
		return false
	}

	minutes, ok := b.dates[r.Date]
	if !ok {
		minutes = make(map[string][]transit.Record)
		b.dates[r.Date] = minutes
	}
	minutes[key.Minute] = append(minutes[key.Minute], r)
	return true
}

// InsertAll inserts every record of the batch and returns the records that
// arrived too late to be buffered.
func (b *Buffer) InsertAll(records []transit.Record) []transit.Record {
	var late []transit.Record
	for _, r := range records {
		if !b.Insert(r) {
			late = append(late, r)
		}
	}
	return late
}

// LastFlushed returns the key of the most recently evicted window.
func (b *Buffer) LastFlushed() (transit.WindowKey, bool) {
	return b.flushed, b.hasFlushed
}

// Len returns the number of minute buckets across all dates.
func (b *Buffer) Len() int {
	n := 0
	for _, minutes := range b.dates {
		n += len(minutes)
	}
	return n
}

// Dates returns the buffered dates in ascending order.
func (b *Buffer) Dates() []string {
	dates := make([]string, 0, len(b.dates))
	for d := range b.dates {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

// IsReady reports whether more than retention windows are buffered.
func (b *Buffer) IsReady(retention int) bool {
	return b.Len() > retention
}

// EvictOldest removes and returns the bucket with the smallest key.
//
// If the smallest date holds no minute buckets, the date entry is removed and
// nothing is returned, even when later dates still hold windows. Callers that
// still expect a window must call again.
func (b *Buffer) EvictOldest() (transit.WindowKey, []transit.Record, bool) {
	if len(b.dates) == 0 {
		return transit.WindowKey{}, nil, false
	}

	date := smallestKey(b.dates)
	minutes := b.dates[date]
	if len(minutes) == 0 {
		delete(b.dates, date)
		return transit.WindowKey{}, nil, false
	}

	minute := smallestKey(minutes)
	bucket := minutes[minute]
	delete(minutes, minute)
	if len(minutes) == 0 {
		delete(b.dates, date)
	}

	key := transit.WindowKey{Date: date, Minute: minute}
	b.flushed, b.hasFlushed = key, true
	return key, bucket, true
}

// DrainReady evicts and aggregates windows while the buffer holds more than
// retention windows. It returns nil when no window was flushed.
func (b *Buffer) DrainReady(retention int) []transit.AggregatedRow {
	var rows []transit.AggregatedRow
	for b.IsReady(retention) {
		key, bucket, ok := b.EvictOldest()
		if !ok {
			break
		}
		rows = append(rows, Aggregate(key, bucket)...)
	}
	return rows
}

func smallestKey[V any](m map[string]V) string {
	first := true
	var min string
	for k := range m {
		if first || k < min {
			min = k
			first = false
		}
	}
	return min
}
