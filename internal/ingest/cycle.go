package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/toll-telemetry/ingester/internal/metrics"
	"github.com/toll-telemetry/ingester/internal/transit"
	"github.com/toll-telemetry/ingester/internal/window"
)

// Source returns the records of a day whose index is above cursor,
// ordered by time of day. An empty result means no new data.
type Source interface {
	Fetch(ctx context.Context, day string, cursor int64) ([]transit.Record, error)
}

// RawSink stores raw transit records.
type RawSink interface {
	AppendRaw(ctx context.Context, day string, records []transit.Record) error
	DeleteRawDay(ctx context.Context, day string) error
}

// AggregatedSink stores per-window route aggregates.
type AggregatedSink interface {
	AppendAggregated(ctx context.Context, day string, rows []transit.AggregatedRow) error
	DeleteAggregatedDay(ctx context.Context, day string) error
}

// Result describes one ingestion cycle.
type Result struct {
	NoData   bool
	Fetched  int
	Warnings int
	Late     int
	Rows     int
	Cursor   int64
}

// Cycle pulls one batch from the source, derives travel times, buffers the
// batch and flushes ready windows.
type Cycle struct {
	source Source
	raw    RawSink
	aggr   AggregatedSink
	mode   Mode
	// fetchTimeout bounds a fetch, which does not observe cancellation.
	// Zero means no bound.
	fetchTimeout time.Duration
	logger       *zap.SugaredLogger
}

// NewCycle returns a cycle reading from source and writing to the sinks.
func NewCycle(source Source, raw RawSink, aggr AggregatedSink, mode Mode, fetchTimeout time.Duration, logger *zap.SugaredLogger) *Cycle {
	return &Cycle{source: source, raw: raw, aggr: aggr, mode: mode, fetchTimeout: fetchTimeout, logger: logger}
}

// Run executes one cycle for day above cursor. The buffer is owned by the
// caller and keeps the retention most recent windows between cycles.
// stats may be nil.
//
// A cycle that has started runs to completion even if ctx is cancelled: the
// fetch and the writes use a context detached from ctx, so a cancellation
// never drops a fetched batch or interrupts a write.
func (c *Cycle) Run(ctx context.Context, buf *window.Buffer, stats *metrics.TravelTimeStats, day string, cursor int64, retention int) (Result, error) {
	start := time.Now()
	defer func() {
		metrics.CycleDuration.WithLabelValues(string(c.mode)).Observe(time.Since(start).Seconds())
	}()

	batch, err := c.fetch(ctx, day, cursor)
	if err != nil {
		metrics.FetchErrors.WithLabelValues(string(c.mode)).Inc()
		return Result{Cursor: cursor}, &FetchError{Day: day, Cursor: cursor, Err: err}
	}
	if len(batch) == 0 {
		return Result{NoData: true, Cursor: cursor}, nil
	}
	metrics.RecordsFetched.WithLabelValues(string(c.mode)).Add(float64(len(batch)))

	writeCtx := context.WithoutCancel(ctx)
	result := Result{Fetched: len(batch), Cursor: cursor}
	if top := transit.MaxIndex(batch); top > cursor {
		result.Cursor = top
	}

	derived, warnings := transit.DeriveBatch(batch)
	result.Warnings = len(warnings)
	for _, w := range warnings {
		metrics.ParseWarnings.Inc()
		c.logger.Warnw("Travel time set to 0, unparseable timestamp",
			"day", day, "messageID", w.MessageID, "index", w.Index, "field", w.Field, "value", w.Value, "error", w.Err)
	}
	if stats != nil {
		for _, r := range derived {
			stats.Observe(r.Source, r.Destination, r.TravelTimeSeconds)
		}
	}

	late := buf.InsertAll(derived)
	result.Late = len(late)
	if len(late) > 0 {
		metrics.LateRecords.Add(float64(len(late)))
		flushed, _ := buf.LastFlushed()
		c.logger.Warnw("Records arrived after their window was flushed, kept in raw store only",
			"day", day, "count", len(late), "lastFlushed", flushed.String())
	}

	rows := buf.DrainReady(retention)
	metrics.BufferedWindows.Set(float64(buf.Len()))

	if err := c.raw.AppendRaw(writeCtx, day, derived); err != nil {
		metrics.SinkErrors.WithLabelValues("raw").Inc()
		return result, &SinkError{Sink: "raw", Op: "append", Day: day, Cursor: cursor, Err: err}
	}
	metrics.RowsWritten.WithLabelValues("raw").Add(float64(len(derived)))

	if len(rows) > 0 {
		if err := c.aggr.AppendAggregated(writeCtx, day, rows); err != nil {
			metrics.SinkErrors.WithLabelValues("aggregated").Inc()
			return result, &SinkError{Sink: "aggregated", Op: "append", Day: day, Cursor: cursor, Err: err}
		}
		metrics.RowsWritten.WithLabelValues("aggregated").Add(float64(len(rows)))
	}
	result.Rows = len(rows)

	c.logger.Infow("Cycle processed",
		"day", day, "fetched", result.Fetched, "rows", result.Rows,
		"buffered", buf.Len(), "cursor", result.Cursor)
	return result, nil
}

func (c *Cycle) fetch(ctx context.Context, day string, cursor int64) ([]transit.Record, error) {
	fetchCtx := context.WithoutCancel(ctx)
	if c.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(fetchCtx, c.fetchTimeout)
		defer cancel()
	}
	return c.source.Fetch(fetchCtx, day, cursor)
}
