package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/toll-telemetry/ingester/internal/transit"
)

// response is one scripted answer of fakeSource.
type response struct {
	records []transit.Record
	err     error
	// during runs inside Fetch, e.g. to cancel the context mid-cycle.
	during func()
}

// fakeSource answers fetches from a per-day script and then reports no data.
// Like the pgx source, a fetch whose context is cancelled fails.
type fakeSource struct {
	mu      sync.Mutex
	script  map[string][]response
	cursors map[string][]int64
}

func newFakeSource() *fakeSource {
	return &fakeSource{script: make(map[string][]response), cursors: make(map[string][]int64)}
}

func (s *fakeSource) add(day string, responses ...response) *fakeSource {
	s.script[day] = append(s.script[day], responses...)
	return s
}

func (s *fakeSource) Fetch(ctx context.Context, day string, cursor int64) ([]transit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[day] = append(s.cursors[day], cursor)

	queue := s.script[day]
	if len(queue) == 0 {
		return nil, nil
	}
	next := queue[0]
	s.script[day] = queue[1:]
	if next.during != nil {
		next.during()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if next.err != nil {
		return nil, next.err
	}

	var out []transit.Record
	for _, r := range next.records {
		if r.Index > cursor {
			out = append(out, r)
		}
	}
	return out, nil
}

// memSink is an in-memory raw and aggregated sink. Writes fail once their
// context is cancelled, like a real driver would.
type memSink struct {
	raw  map[string][]transit.Record
	aggr map[string][]transit.AggregatedRow
	ops  []string

	failRaw  error
	failAggr error
}

func newMemSink() *memSink {
	return &memSink{raw: make(map[string][]transit.Record), aggr: make(map[string][]transit.AggregatedRow)}
}

func (m *memSink) AppendRaw(ctx context.Context, day string, records []transit.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.failRaw != nil {
		return m.failRaw
	}
	m.ops = append(m.ops, "append raw "+day)
	for _, r := range records {
		r.Index = 0
		m.raw[day] = append(m.raw[day], r)
	}
	return nil
}

func (m *memSink) DeleteRawDay(ctx context.Context, day string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.ops = append(m.ops, "delete raw "+day)
	delete(m.raw, day)
	return nil
}

func (m *memSink) AppendAggregated(ctx context.Context, day string, rows []transit.AggregatedRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.failAggr != nil {
		return m.failAggr
	}
	m.ops = append(m.ops, "append aggregated "+day)
	m.aggr[day] = append(m.aggr[day], rows...)
	return nil
}

func (m *memSink) DeleteAggregatedDay(ctx context.Context, day string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.ops = append(m.ops, "delete aggregated "+day)
	delete(m.aggr, day)
	return nil
}

type ledgerEntry struct {
	day     string
	mode    string
	cursor  int64
	status  string
	lastErr error
}

type fakeLedger struct {
	runs map[string]*ledgerEntry
	ids  []string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{runs: make(map[string]*ledgerEntry)}
}

func (l *fakeLedger) StartRun(_ context.Context, day, mode string, _ time.Time) (string, error) {
	id := fmt.Sprintf("run-%d", len(l.ids)+1)
	l.ids = append(l.ids, id)
	l.runs[id] = &ledgerEntry{day: day, mode: mode, status: "running"}
	return id, nil
}

func (l *fakeLedger) CommitCursor(_ context.Context, runID string, cursor int64) error {
	l.runs[runID].cursor = cursor
	return nil
}

func (l *fakeLedger) FinishRun(_ context.Context, runID, status string, _ time.Time, runErr error) error {
	l.runs[runID].status = status
	l.runs[runID].lastErr = runErr
	return nil
}

// countingSleeper never waits. It cancels the run after limit sleeps.
type countingSleeper struct {
	calls  int
	limit  int
	cancel context.CancelFunc
}

func (s *countingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.calls++
	if s.limit > 0 && s.calls >= s.limit {
		s.cancel()
		return ctx.Err()
	}
	return nil
}

// transitRec builds a record whose derived travel time equals travel.
func transitRec(date, clock string, source, destination int, index, travel int64) transit.Record {
	r := transit.Record{
		MessageID:    index,
		StationID:    6,
		LaneID:       2,
		Date:         date,
		Time:         clock,
		VehicleKey:   "55555",
		Source:       source,
		Destination:  destination,
		PaymentType:  8,
		OBUEntryDate: "0000-00-00",
		OBUEntryTime: "00:00:00",
		Index:        index,
	}
	if travel > 0 {
		exit, err := transit.ParseTimestamp(date, clock)
		if err != nil {
			panic(err)
		}
		entry := exit.Add(-time.Duration(travel) * time.Second)
		r.OBUPayment = 1
		r.OBUEntryValid = 0
		r.OBUEntryDate = entry.Format("2006-01-02")
		r.OBUEntryTime = entry.Format("15:04:05")
	}
	return r
}
