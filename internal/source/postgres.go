package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toll-telemetry/ingester/internal/transit"
)

// Filter narrows the upstream transit table to the lanes of one toll station.
type Filter struct {
	StationID int
	MaxLane   int // exclusive
}

// transitQuery reads new transits of one day above a cursor. Rows are ordered
// by time of day. Missing OBU entry values are mapped to placeholders that
// never parse, so such records end up with a zero travel time.
const transitQuery = `
	SELECT
		n_mensaxe_c,
		n_estacion_c,
		n_via_c,
		to_char(d_data_c, 'YYYY-MM-DD'),
		to_char(t_hora_c, 'HH24:MI:SS'),
		sz_chave_c,
		n_orixen_x,
		n_destino_x,
		n_pago_x,
		n_obu_validez_in,
		n_obu_pago,
		COALESCE(n_obu_estacion, 0),
		COALESCE(to_char(d_obu_data, 'YYYY-MM-DD'), '0000-00-00'),
		COALESCE(to_char(t_obu_time, 'HH24:MI:SS'), '00:00:00'),
		COALESCE(n_obu_via_entrada, 0),
		indice
	FROM tb_mensaxes_in_transitos
	WHERE n_estacion_c = $1
		AND n_via_c < $2
		AND n_avance_x = 0
		AND d_data_c = $3::date
		AND indice > $4
	ORDER BY t_hora_c, indice
`

// PostgresSource reads transit records from the upstream toll database.
type PostgresSource struct {
	pool   *pgxpool.Pool
	filter Filter
}

// NewPostgresSource connects to the upstream database.
func NewPostgresSource(ctx context.Context, databaseURL string, filter Filter) (*PostgresSource, error) {
	if databaseURL == "" {
		return nil, errors.New("source database URL cannot be empty")
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping source database: %w", err)
	}

	return &PostgresSource{pool: pool, filter: filter}, nil
}

// Close releases the connection pool.
func (s *PostgresSource) Close() {
	s.pool.Close()
}

// Fetch returns the records of day whose index is above cursor, ordered by
// time of day. An empty slice means no new data.
func (s *PostgresSource) Fetch(ctx context.Context, day string, cursor int64) ([]transit.Record, error) {
	rows, err := s.pool.Query(ctx, transitQuery, s.filter.StationID, s.filter.MaxLane, day, cursor)
	if err != nil {
		return nil, fmt.Errorf("failed to query transits for %s above %d: %w", day, cursor, err)
	}

	records, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("failed to read transits for %s above %d: %w", day, cursor, err)
	}
	return records, nil
}

func scanRecord(row pgx.CollectableRow) (transit.Record, error) {
	var r transit.Record
	err := row.Scan(
		&r.MessageID,
		&r.StationID,
		&r.LaneID,
		&r.Date,
		&r.Time,
		&r.VehicleKey,
		&r.Source,
		&r.Destination,
		&r.PaymentType,
		&r.OBUEntryValid,
		&r.OBUPayment,
		&r.OBUEntryStation,
		&r.OBUEntryDate,
		&r.OBUEntryTime,
		&r.OBUEntryLane,
		&r.Index,
	)
	return r, err
}
