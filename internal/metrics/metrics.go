package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	LabelMode = "mode"
	LabelSink = "sink"
)

var (
	// RecordsFetched counts raw transit records read from the source
	RecordsFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "ingester",
		Name:      "records_fetched_total",
		Help:      "Total number of transit records fetched from the source",
	}, []string{LabelMode})

	// FetchErrors counts failed source queries
	FetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "ingester",
		Name:      "fetch_error_total",
		Help:      "Total number of failed source fetches",
	}, []string{LabelMode})

	// ParseWarnings counts records whose travel time fell back to 0
	ParseWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "ingester",
		Name:      "parse_warning_total",
		Help:      "Total number of records with unparseable timestamps",
	})

	// LateRecords counts records that arrived after their window was flushed
	LateRecords = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "ingester",
		Name:      "late_record_total",
		Help:      "Total number of records dropped from aggregation because their window was already flushed",
	})

	// RowsWritten counts rows appended per sink
	RowsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "ingester",
		Name:      "rows_written_total",
		Help:      "Total number of rows appended to a sink",
	}, []string{LabelSink})

	// SinkErrors counts failed sink writes
	SinkErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "ingester",
		Name:      "sink_error_total",
		Help:      "Total number of failed sink writes",
	}, []string{LabelSink})

	// BufferedWindows is the number of minute windows held back by retention
	BufferedWindows = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "ingester",
		Name:      "buffered_windows",
		Help:      "Number of minute windows currently buffered",
	})

	// Cursor is the highest source index ingested for the current day
	Cursor = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "ingester",
		Name:      "cursor",
		Help:      "Highest source index ingested for the current day",
	})

	// CycleDuration observes the duration of one ingestion cycle
	CycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Subsystem: "ingester",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of one fetch/process/write cycle",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{LabelMode})
)
