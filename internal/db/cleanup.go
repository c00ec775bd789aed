package db

import (
	"context"
	"fmt"
)

// DeleteRawDay deletes every raw record of a day.
func (db *DB) DeleteRawDay(ctx context.Context, day string) error {
	return db.deleteDay(ctx, "raw_transits", "transit_date", day)
}

// DeleteAggregatedDay deletes every aggregated row of a day.
func (db *DB) DeleteAggregatedDay(ctx context.Context, day string) error {
	return db.deleteDay(ctx, "aggr_windows", "window_date", day)
}

func (db *DB) deleteDay(ctx context.Context, table, dateColumn, day string) error {
	db.LockWrite()
	defer db.UnlockWrite()

	result, err := db.conn.ExecContext(ctx, "DELETE FROM "+table+" WHERE "+dateColumn+" = ?", day)
	if err != nil {
		return fmt.Errorf("failed to delete %s from %s: %w", day, table, err)
	}

	if rows, _ := result.RowsAffected(); rows > 0 {
		db.logger.Infow("Cleanup: deleted rows", "table", table, "day", day, "rows", rows)
	}
	return nil
}
