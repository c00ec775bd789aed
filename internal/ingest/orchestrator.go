package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/toll-telemetry/ingester/internal/db"
	"github.com/toll-telemetry/ingester/internal/metrics"
	"github.com/toll-telemetry/ingester/internal/window"
)

// Mode selects how a day is ingested.
type Mode string

const (
	// ModeBatch reloads a finished day: every window is flushed eagerly and
	// the day is done as soon as the source has no more data.
	ModeBatch Mode = "batch"
	// ModeContinuous polls forever, keeping the most recent windows buffered.
	ModeContinuous Mode = "continuous"
)

// State is the position of the orchestrator in a day's ingestion.
type State string

const (
	StateIdle       State = "idle"
	StateDeleting   State = "deleting"
	StateFetching   State = "fetching"
	StateProcessing State = "processing"
	StateSleeping   State = "sleeping"
	StateDone       State = "done"
)

// Sleeper waits for d or until ctx is done, returning ctx.Err() in the latter case.
type Sleeper func(ctx context.Context, d time.Duration) error

// RunLedger records day loads for operator reconciliation.
type RunLedger interface {
	StartRun(ctx context.Context, day, mode string, startedAt time.Time) (string, error)
	CommitCursor(ctx context.Context, runID string, cursor int64) error
	FinishRun(ctx context.Context, runID, status string, finishedAt time.Time, runErr error) error
}

// Defaults applied by NewOrchestrator. The configuration layer uses the same
// values.
const (
	DefaultPollInterval    = 60 * time.Second
	DefaultRetention       = 5
	DefaultMaxFetchRetries = 3
	DefaultFetchTimeout    = 5 * time.Minute
)

// Options configure an Orchestrator.
type Options struct {
	Mode Mode
	// Retention is the number of windows kept buffered in continuous mode,
	// DefaultRetention when not positive. Batch mode always uses 0.
	Retention    int
	PollInterval time.Duration
	// MaxFetchRetries bounds consecutive fetch failures in batch mode.
	// Continuous mode retries fetches forever.
	MaxFetchRetries int
	// FetchTimeout bounds a single fetch. Fetches are not interrupted by
	// cancellation, so this is what stops a hung source.
	FetchTimeout time.Duration
	Sleeper         Sleeper
	Now             func() time.Time
	Ledger          RunLedger
}

// Status is a snapshot of the orchestrator for the status endpoint.
type Status struct {
	Mode            Mode      `json:"mode"`
	Day             string    `json:"day"`
	State           State     `json:"state"`
	RunID           string    `json:"runId,omitempty"`
	Cursor          int64     `json:"cursor"`
	BufferedWindows int       `json:"bufferedWindows"`
	Cycles          int       `json:"cycles"`
	LastCycleAt     time.Time `json:"lastCycleAt"`
	LastError       string    `json:"lastError,omitempty"`
}

// Orchestrator sequences the ingestion of one or more days. It owns the
// window buffer and the cursor; a single goroutine drives it.
type Orchestrator struct {
	cycle *Cycle
	raw   RawSink
	aggr  AggregatedSink
	opts  Options

	logger *zap.SugaredLogger

	mu     sync.RWMutex
	status Status
}

// NewOrchestrator returns an orchestrator with defaults applied to opts.
func NewOrchestrator(source Source, raw RawSink, aggr AggregatedSink, opts Options, logger *zap.SugaredLogger) *Orchestrator {
	if opts.Mode == "" {
		opts.Mode = ModeBatch
	}
	if opts.Mode == ModeBatch {
		opts.Retention = 0
	} else if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxFetchRetries <= 0 {
		opts.MaxFetchRetries = DefaultMaxFetchRetries
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.Sleeper == nil {
		opts.Sleeper = sleepContext
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	logger = logger.Named("orchestrator")
	return &Orchestrator{
		cycle:  NewCycle(source, raw, aggr, opts.Mode, opts.FetchTimeout, logger.Named("cycle")),
		raw:    raw,
		aggr:   aggr,
		opts:   opts,
		logger: logger,
		status: Status{Mode: opts.Mode, State: StateIdle},
	}
}

// Status returns a snapshot of the current state. Safe for concurrent use.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.status.State = s
	o.mu.Unlock()
	o.logger.Debugw("State", "day", o.status.Day, "state", s)
}

func (o *Orchestrator) update(fn func(*Status)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(&o.status)
}

// RunDays ingests the days strictly in the given order. It stops at the first
// fatal error or when ctx is cancelled.
func (o *Orchestrator) RunDays(ctx context.Context, days []string) error {
	for _, day := range days {
		if ctx.Err() != nil {
			return nil
		}
		if err := o.RunDay(ctx, day); err != nil {
			return err
		}
	}
	return nil
}

// RunDay deletes everything stored for day and ingests it again from cursor 0.
// In batch mode it returns once the source has no more data; in continuous
// mode it returns only when ctx is cancelled or a fatal error occurs.
// Cancellation is checked between cycles and is not an error.
func (o *Orchestrator) RunDay(ctx context.Context, day string) error {
	logger := o.logger.With("day", day, "mode", o.opts.Mode)

	buf := window.NewBuffer()
	stats := metrics.NewTravelTimeStats()
	var cursor int64

	o.update(func(s *Status) {
		*s = Status{Mode: o.opts.Mode, Day: day, State: StateDeleting}
	})
	metrics.Cursor.Set(0)
	metrics.BufferedWindows.Set(0)

	logger.Infow("Deleting stored data before reload")
	if err := o.deleteDay(ctx, day); err != nil {
		logger.Errorw("Delete failed", "error", err)
		return err
	}

	runID := o.startRun(ctx, day)
	logger = logger.With("runID", runID)
	logger.Infow("Loading day")

	fetchFailures := 0
	for {
		if ctx.Err() != nil {
			logger.Infow("Cancelled, stopping after last completed cycle",
				"cursor", cursor, "buffered", buf.Len(), "bufferedDates", buf.Dates())
			o.finishRun(ctx, runID, db.RunCancelled, nil)
			o.setState(StateIdle)
			return nil
		}

		o.setState(StateFetching)
		result, err := o.cycle.Run(ctx, buf, stats, day, cursor, o.opts.Retention)
		o.update(func(s *Status) {
			s.Cycles++
			s.LastCycleAt = o.opts.Now()
			s.BufferedWindows = buf.Len()
			s.LastError = ""
			if err != nil {
				s.LastError = err.Error()
			}
		})

		switch {
		case err != nil && IsTransient(err):
			fetchFailures++
			logger.Warnw("Fetch failed", "cursor", cursor, "attempt", fetchFailures, "error", err)
			if o.opts.Mode == ModeBatch && fetchFailures >= o.opts.MaxFetchRetries {
				err = fmt.Errorf("giving up on %s after %d fetch attempts: %w", day, fetchFailures, err)
				logger.Errorw("Day failed", "cursor", cursor, "error", err)
				o.finishRun(ctx, runID, db.RunFailed, err)
				return err
			}

		case err != nil:
			logger.Errorw("Day failed", "cursor", cursor, "error", err)
			o.finishRun(ctx, runID, db.RunFailed, err)
			return err

		case result.NoData:
			fetchFailures = 0
			if o.opts.Mode == ModeBatch {
				o.setState(StateDone)
				o.logSummary(logger, stats, cursor)
				o.finishRun(ctx, runID, db.RunDone, nil)
				return nil
			}

		default:
			fetchFailures = 0
			o.setState(StateProcessing)
			cursor = result.Cursor
			metrics.Cursor.Set(float64(cursor))
			o.update(func(s *Status) { s.Cursor = cursor })
			o.commitCursor(ctx, runID, cursor)
			if o.opts.Mode == ModeBatch {
				continue
			}
		}

		// Batch mode only gets here to back off after a fetch failure.
		o.setState(StateSleeping)
		if err := o.opts.Sleeper(ctx, o.opts.PollInterval); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("sleep between cycles: %w", err)
		}
	}
}

func (o *Orchestrator) deleteDay(ctx context.Context, day string) error {
	if err := o.raw.DeleteRawDay(ctx, day); err != nil {
		return &SinkError{Sink: "raw", Op: "delete", Day: day, Err: err}
	}
	if err := o.aggr.DeleteAggregatedDay(ctx, day); err != nil {
		return &SinkError{Sink: "aggregated", Op: "delete", Day: day, Err: err}
	}
	return nil
}

func (o *Orchestrator) startRun(ctx context.Context, day string) string {
	if o.opts.Ledger == nil {
		return ""
	}
	runID, err := o.opts.Ledger.StartRun(ctx, day, string(o.opts.Mode), o.opts.Now())
	if err != nil {
		o.logger.Warnw("Failed to record run start", "day", day, "error", err)
		return ""
	}
	o.update(func(s *Status) { s.RunID = runID })
	return runID
}

func (o *Orchestrator) commitCursor(ctx context.Context, runID string, cursor int64) {
	if o.opts.Ledger == nil || runID == "" {
		return
	}
	if err := o.opts.Ledger.CommitCursor(context.WithoutCancel(ctx), runID, cursor); err != nil {
		o.logger.Warnw("Failed to record cursor", "runID", runID, "cursor", cursor, "error", err)
	}
}

func (o *Orchestrator) finishRun(ctx context.Context, runID, status string, runErr error) {
	if o.opts.Ledger == nil || runID == "" {
		return
	}
	if err := o.opts.Ledger.FinishRun(context.WithoutCancel(ctx), runID, status, o.opts.Now(), runErr); err != nil {
		o.logger.Warnw("Failed to record run end", "runID", runID, "status", status, "error", err)
	}
}

func (o *Orchestrator) logSummary(logger *zap.SugaredLogger, stats *metrics.TravelTimeStats, cursor int64) {
	summaries := stats.Summaries()
	logger.Infow("Day loaded", "cursor", cursor, "routesWithTravelTime", len(summaries))
	for _, s := range summaries {
		logger.Debugw("Travel time",
			"source", s.Source, "destination", s.Destination, "samples", s.Samples,
			"mean", s.Mean, "stddev", s.StdDev, "min", s.Min, "max", s.Max)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
