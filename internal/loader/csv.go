package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/toll-telemetry/ingester/internal/ingest"
	"github.com/toll-telemetry/ingester/internal/metrics"
	"github.com/toll-telemetry/ingester/internal/transit"
	"github.com/toll-telemetry/ingester/internal/window"
)

// Summary describes one bulk load.
type Summary struct {
	Records  int
	Warnings int
	Rows     int
	Days     []string
}

// Loader bulk loads raw records from CSV files into the sinks.
type Loader struct {
	raw    ingest.RawSink
	aggr   ingest.AggregatedSink
	logger *zap.SugaredLogger

	// Replace deletes every day present in the file before writing it.
	Replace bool
}

// New returns a Loader writing to the given sinks.
func New(raw ingest.RawSink, aggr ingest.AggregatedSink, logger *zap.SugaredLogger) *Loader {
	return &Loader{raw: raw, aggr: aggr, logger: logger.Named("loader")}
}

// LoadFile loads a headerless CSV file whose columns follow transit.RawColumns.
func (l *Loader) LoadFile(ctx context.Context, path string) (Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	summary, err := l.Load(ctx, f)
	if err != nil {
		return summary, fmt.Errorf("%s: %w", path, err)
	}
	return summary, nil
}

// Load reads every record, recomputes travel times, writes the raw records and
// then the aggregates of every window found in the input. All windows are
// flushed: nothing more is expected for a file.
func (l *Loader) Load(ctx context.Context, r io.Reader) (Summary, error) {
	records, err := readRecords(r)
	if err != nil {
		return Summary{}, err
	}

	derived, warnings := transit.DeriveBatch(records)
	for _, w := range warnings {
		metrics.ParseWarnings.Inc()
		l.logger.Warnw("Travel time set to 0, unparseable timestamp",
			"line", w.Index, "messageID", w.MessageID, "field", w.Field, "value", w.Value, "error", w.Err)
	}

	buf := window.NewBuffer()
	buf.InsertAll(derived)
	rows := buf.DrainReady(0)

	rawByDay, days := groupByDay(derived, func(r transit.Record) string { return r.Date })
	rowsByDay, _ := groupByDay(rows, func(r transit.AggregatedRow) string { return r.Date })

	summary := Summary{Records: len(derived), Warnings: len(warnings), Rows: len(rows), Days: days}

	if l.Replace {
		for _, day := range days {
			if err := l.raw.DeleteRawDay(ctx, day); err != nil {
				return summary, &ingest.SinkError{Sink: "raw", Op: "delete", Day: day, Err: err}
			}
			if err := l.aggr.DeleteAggregatedDay(ctx, day); err != nil {
				return summary, &ingest.SinkError{Sink: "aggregated", Op: "delete", Day: day, Err: err}
			}
		}
	}

	for _, day := range days {
		if err := l.raw.AppendRaw(ctx, day, rawByDay[day]); err != nil {
			return summary, &ingest.SinkError{Sink: "raw", Op: "append", Day: day, Err: err}
		}
		metrics.RowsWritten.WithLabelValues("raw").Add(float64(len(rawByDay[day])))
	}
	for _, day := range days {
		if len(rowsByDay[day]) == 0 {
			continue
		}
		if err := l.aggr.AppendAggregated(ctx, day, rowsByDay[day]); err != nil {
			return summary, &ingest.SinkError{Sink: "aggregated", Op: "append", Day: day, Err: err}
		}
		metrics.RowsWritten.WithLabelValues("aggregated").Add(float64(len(rowsByDay[day])))
	}

	l.logger.Infow("File loaded",
		"records", summary.Records, "rows", summary.Rows, "warnings", summary.Warnings, "days", days)
	return summary, nil
}

// readRecords parses the whole input. The line number is kept as the record
// index so warnings point back into the file.
func readRecords(r io.Reader) ([]transit.Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(transit.RawColumns)
	reader.ReuseRecord = true

	var records []transit.Record
	for line := int64(1); ; line++ {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		rec, err := transit.RecordFromFields(fields)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rec.Index = line
		records = append(records, rec)
	}
	return records, nil
}

// groupByDay splits items per day, keeping days in first-seen order.
func groupByDay[T any](items []T, day func(T) string) (map[string][]T, []string) {
	grouped := make(map[string][]T)
	var order []string
	for _, item := range items {
		d := day(item)
		if _, ok := grouped[d]; !ok {
			order = append(order, d)
		}
		grouped[d] = append(grouped[d], item)
	}
	return grouped, order
}
