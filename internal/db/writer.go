package db

import (
	"context"
	"fmt"

	"github.com/toll-telemetry/ingester/internal/transit"
)

// AppendRaw inserts a batch of raw transit records. The upstream index is not stored.
func (db *DB) AppendRaw(ctx context.Context, day string, records []transit.Record) error {
	if len(records) == 0 {
		return nil
	}

	db.LockWrite()
	defer db.UnlockWrite()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO raw_transits (
			message_id, station_id, lane_id, transit_date, transit_time,
			vehicle_key, source, destination, payment_type, obu_entry_valid,
			obu_payment, obu_entry_station, obu_entry_date, obu_entry_time,
			obu_entry_lane, travel_time_seconds
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare raw statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			r.MessageID, r.StationID, r.LaneID, r.Date, r.Time,
			r.VehicleKey, r.Source, r.Destination, r.PaymentType, r.OBUEntryValid,
			r.OBUPayment, r.OBUEntryStation, r.OBUEntryDate, r.OBUEntryTime,
			r.OBUEntryLane, r.TravelTimeSeconds,
		)
		if err != nil {
			return fmt.Errorf("failed to insert raw message %d for %s: %w", r.MessageID, day, err)
		}
	}

	return tx.Commit()
}

// AppendAggregated inserts aggregated window rows.
func (db *DB) AppendAggregated(ctx context.Context, day string, rows []transit.AggregatedRow) error {
	if len(rows) == 0 {
		return nil
	}

	db.LockWrite()
	defer db.UnlockWrite()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO aggr_windows (window_date, window_time, source, destination, aht, travel_time)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare aggregated statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row.Date, row.Time, row.Source, row.Destination, row.Count, row.TravelTime); err != nil {
			return fmt.Errorf("failed to insert window %s %s (%d->%d) for %s: %w",
				row.Date, row.Time, row.Source, row.Destination, day, err)
		}
	}

	return tx.Commit()
}

// RawDay returns the raw records stored for a day, ordered by transit time.
func (db *DB) RawDay(ctx context.Context, day string) ([]transit.Record, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT message_id, station_id, lane_id, transit_date, transit_time,
			vehicle_key, source, destination, payment_type, obu_entry_valid,
			obu_payment, obu_entry_station, obu_entry_date, obu_entry_time,
			obu_entry_lane, travel_time_seconds
		FROM raw_transits
		WHERE transit_date = ?
		ORDER BY transit_time, rowid
	`, day)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw transits: %w", err)
	}
	defer rows.Close()

	var records []transit.Record
	for rows.Next() {
		var r transit.Record
		err := rows.Scan(
			&r.MessageID, &r.StationID, &r.LaneID, &r.Date, &r.Time,
			&r.VehicleKey, &r.Source, &r.Destination, &r.PaymentType, &r.OBUEntryValid,
			&r.OBUPayment, &r.OBUEntryStation, &r.OBUEntryDate, &r.OBUEntryTime,
			&r.OBUEntryLane, &r.TravelTimeSeconds,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan raw transit: %w", err)
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

// AggregatedDay returns the aggregated rows stored for a day, ordered by
// window then route.
func (db *DB) AggregatedDay(ctx context.Context, day string) ([]transit.AggregatedRow, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT window_date, window_time, source, destination, aht, travel_time
		FROM aggr_windows
		WHERE window_date = ?
		ORDER BY window_time, source, destination, rowid
	`, day)
	if err != nil {
		return nil, fmt.Errorf("failed to query aggregated windows: %w", err)
	}
	defer rows.Close()

	var out []transit.AggregatedRow
	for rows.Next() {
		var row transit.AggregatedRow
		if err := rows.Scan(&row.Date, &row.Time, &row.Source, &row.Destination, &row.Count, &row.TravelTime); err != nil {
			return nil, fmt.Errorf("failed to scan aggregated window: %w", err)
		}
		out = append(out, row)
	}

	return out, rows.Err()
}
