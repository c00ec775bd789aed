package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/toll-telemetry/ingester/internal/db"
	"github.com/toll-telemetry/ingester/internal/ingest"
	"github.com/toll-telemetry/ingester/internal/transit"
)

// Travel time column is deliberately wrong; the loader recomputes it.
const sample = `1,6,2,2018-01-01,00:00:10,55555,6,7,8,0,5,8,2018-01-01,00:00:00,13,999
2,6,2,2018-01-01,00:00:50,55556,6,7,8,0,5,8,2018-01-01,00:00:30,13,999
3,6,3,2018-01-01,00:01:05,55557,6,1,8,0,0,0,0000-00-00,00:00:00,0,999
4,6,2,2018-01-02,00:00:20,55558,6,7,8,0,5,8,2018-01-01,23:59:50,13,999
5,6,2,2018-01-02,00:00:40,55559,6,7,8,0,5,8,bad-date,00:00:00,13,999
`

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Connect(filepath.Join(t.TempDir(), "toll.db"), zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.EnsureSchema(context.Background()))
	return database
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	l := New(database, database, zap.NewNop().Sugar())

	summary, err := l.Load(ctx, strings.NewReader(sample))
	require.NoError(t, err)
	assert.Equal(t, Summary{Records: 5, Warnings: 1, Rows: 3, Days: []string{"2018-01-01", "2018-01-02"}}, summary)

	raw, err := database.RawDay(ctx, "2018-01-01")
	require.NoError(t, err)
	require.Len(t, raw, 3)
	assert.Equal(t, []int64{10, 20, 0}, []int64{raw[0].TravelTimeSeconds, raw[1].TravelTimeSeconds, raw[2].TravelTimeSeconds})

	raw, err = database.RawDay(ctx, "2018-01-02")
	require.NoError(t, err)
	require.Len(t, raw, 2)
	assert.Equal(t, int64(30), raw[0].TravelTimeSeconds, "crosses midnight")
	assert.Equal(t, int64(0), raw[1].TravelTimeSeconds, "unparseable entry date")

	aggr, err := database.AggregatedDay(ctx, "2018-01-01")
	require.NoError(t, err)
	assert.Equal(t, []transit.AggregatedRow{
		{Date: "2018-01-01", Time: "00:00", Source: 6, Destination: 7, Count: 2, TravelTime: 10},
		{Date: "2018-01-01", Time: "00:01", Source: 6, Destination: 1, Count: 1, TravelTime: 0},
	}, aggr)

	aggr, err = database.AggregatedDay(ctx, "2018-01-02")
	require.NoError(t, err)
	assert.Equal(t, []transit.AggregatedRow{
		{Date: "2018-01-02", Time: "00:00", Source: 6, Destination: 7, Count: 2, TravelTime: 30},
	}, aggr)
}

func TestLoad_ReplaceMakesReloadIdempotent(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)

	appendOnly := New(database, database, zap.NewNop().Sugar())
	_, err := appendOnly.Load(ctx, strings.NewReader(sample))
	require.NoError(t, err)
	_, err = appendOnly.Load(ctx, strings.NewReader(sample))
	require.NoError(t, err)

	raw, err := database.RawDay(ctx, "2018-01-01")
	require.NoError(t, err)
	assert.Len(t, raw, 6, "plain loads append")

	replacing := New(database, database, zap.NewNop().Sugar())
	replacing.Replace = true
	_, err = replacing.Load(ctx, strings.NewReader(sample))
	require.NoError(t, err)

	raw, err = database.RawDay(ctx, "2018-01-01")
	require.NoError(t, err)
	assert.Len(t, raw, 3)
	aggr, err := database.AggregatedDay(ctx, "2018-01-01")
	require.NoError(t, err)
	assert.Len(t, aggr, 2)
}

func TestLoadFile(t *testing.T) {
	database := openTestDB(t)
	path := filepath.Join(t.TempDir(), "transits.csv")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	summary, err := New(database, database, zap.NewNop().Sugar()).LoadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Records)

	_, err = New(database, database, zap.NewNop().Sugar()).LoadFile(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestLoad_MalformedInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"short row", "1,6,2\n", "wrong number of fields"},
		{"bad number", strings.Replace(sample, "1,6,2,2018-01-01", "1,six,2,2018-01-01", 1), "line 1: column station_id"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			database := openTestDB(t)
			_, err := New(database, database, zap.NewNop().Sugar()).Load(context.Background(), strings.NewReader(tc.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)

			raw, err := database.RawDay(context.Background(), "2018-01-01")
			require.NoError(t, err)
			assert.Empty(t, raw, "nothing is written for a malformed file")
		})
	}
}

type failingSink struct{ err error }

func (f failingSink) AppendRaw(context.Context, string, []transit.Record) error { return f.err }
func (f failingSink) DeleteRawDay(context.Context, string) error                { return nil }

func TestLoad_SinkError(t *testing.T) {
	database := openTestDB(t)
	boom := errors.New("disk full")

	_, err := New(failingSink{err: boom}, database, zap.NewNop().Sugar()).Load(context.Background(), strings.NewReader(sample))
	require.Error(t, err)

	var se *ingest.SinkError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "raw", se.Sink)
	assert.Equal(t, "2018-01-01", se.Day)
	assert.ErrorIs(t, err, boom)
}
