// Package sinkutil holds sinks that do not persist anything.
package sinkutil

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"sync"

	"github.com/toll-telemetry/ingester/internal/transit"
)

// PrintSink writes raw batches as headerless CSV in the bulk loader's column
// order, so its output can be fed back to import-csv. Aggregated rows are
// written to a second writer when one is given and dropped otherwise.
// Deletes are no-ops.
type PrintSink struct {
	mu   sync.Mutex
	raw  *csv.Writer
	aggr *csv.Writer
}

// NewPrintSink returns a PrintSink. aggr may be nil.
func NewPrintSink(raw, aggr io.Writer) *PrintSink {
	p := &PrintSink{raw: csv.NewWriter(raw)}
	if aggr != nil {
		p.aggr = csv.NewWriter(aggr)
	}
	return p
}

// AppendRaw prints one line per record.
func (p *PrintSink) AppendRaw(_ context.Context, _ string, records []transit.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, r := range records {
		if err := p.raw.Write(r.Fields()); err != nil {
			return err
		}
	}
	p.raw.Flush()
	return p.raw.Error()
}

// AppendAggregated prints one line per row as
// date,time,source,destination,count,travel_time.
func (p *PrintSink) AppendAggregated(_ context.Context, _ string, rows []transit.AggregatedRow) error {
	if p.aggr == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, row := range rows {
		line := []string{
			row.Date,
			row.Time,
			strconv.Itoa(row.Source),
			strconv.Itoa(row.Destination),
			strconv.Itoa(row.Count),
			strconv.FormatInt(row.TravelTime, 10),
		}
		if err := p.aggr.Write(line); err != nil {
			return err
		}
	}
	p.aggr.Flush()
	return p.aggr.Error()
}

// DeleteRawDay is a no-op: printed records cannot be taken back.
func (p *PrintSink) DeleteRawDay(context.Context, string) error { return nil }

// DeleteAggregatedDay is a no-op, like DeleteRawDay.
func (p *PrintSink) DeleteAggregatedDay(context.Context, string) error { return nil }
