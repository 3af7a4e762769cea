package repository

import (
	"context"
	"fmt"

	"github.com/hlscan/pnlindexer/internal/models"
)

// HourlyRollup reads the pre-aggregated app.pnl_hourly table for traderID
// between bucket bounds (unix millis), ordered oldest first. The table is
// populated by a DB-side continuous aggregate outside the core; this is a
// read-only query path.
func (r *Repository) HourlyRollup(ctx context.Context, traderID int64, fromMillis, toMillis int64) ([]models.RollupRow, error) {
	return r.rollupQuery(ctx, "app.pnl_hourly", traderID, fromMillis, toMillis)
}

// DailyRollup reads the pre-aggregated app.pnl_daily table, same shape as
// HourlyRollup at a coarser bucket.
func (r *Repository) DailyRollup(ctx context.Context, traderID int64, fromMillis, toMillis int64) ([]models.RollupRow, error) {
	return r.rollupQuery(ctx, "app.pnl_daily", traderID, fromMillis, toMillis)
}

func (r *Repository) rollupQuery(ctx context.Context, table string, traderID int64, fromMillis, toMillis int64) ([]models.RollupRow, error) {
	query := fmt.Sprintf(`
		SELECT trader_id, EXTRACT(EPOCH FROM bucket)::bigint * 1000, positions, volume,
		       realized_pnl, unrealized_pnl, total_pnl
		FROM %s
		WHERE trader_id = $1 AND bucket BETWEEN to_timestamp($2 / 1000.0) AND to_timestamp($3 / 1000.0)
		ORDER BY bucket ASC
	`, table)

	rows, err := r.db.Query(ctx, query, traderID, fromMillis, toMillis)
	if err != nil {
		return nil, fmt.Errorf("query %s for trader %d: %w", table, traderID, err)
	}
	defer rows.Close()

	var out []models.RollupRow
	for rows.Next() {
		var row models.RollupRow
		if err := rows.Scan(&row.TraderID, &row.Bucket, &row.Positions, &row.Volume,
			&row.RealizedPnl, &row.UnrealizedPnl, &row.TotalPnl); err != nil {
			return nil, fmt.Errorf("scan rollup row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
