package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hlscan/pnlindexer/internal/models"
)

// UpsertSnapshot writes or replaces the (trader_id, timestamp) row wholesale:
// re-upserting with identical values is a no-op, with different values
// replaces every numeric column, matching the PK's full-row-replace contract.
func (r *Repository) UpsertSnapshot(ctx context.Context, s models.PnLSnapshot) error {
	var accountValue any
	if s.AccountValue != nil {
		accountValue = s.AccountValue.String()
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO app.pnl_snapshots (
			trader_id, timestamp, realized_pnl, unrealized_pnl, total_pnl,
			funding_pnl, trading_pnl, open_positions, total_volume, account_value
		)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8, $9::numeric, $10::numeric)
		ON CONFLICT (trader_id, timestamp) DO UPDATE SET
			realized_pnl = EXCLUDED.realized_pnl,
			unrealized_pnl = EXCLUDED.unrealized_pnl,
			total_pnl = EXCLUDED.total_pnl,
			funding_pnl = EXCLUDED.funding_pnl,
			trading_pnl = EXCLUDED.trading_pnl,
			open_positions = EXCLUDED.open_positions,
			total_volume = EXCLUDED.total_volume,
			account_value = EXCLUDED.account_value
	`, s.TraderID, time.UnixMilli(s.Timestamp).UTC(), s.RealizedPnl.String(), s.UnrealizedPnl.String(),
		s.TotalPnl.String(), s.FundingPnl.String(), s.TradingPnl.String(), s.OpenPositions,
		s.TotalVolume.String(), accountValue)
	if err != nil {
		return fmt.Errorf("upsert snapshot for trader %d at %d: %w", s.TraderID, s.Timestamp, err)
	}
	return nil
}

// SnapshotsRange returns every raw snapshot for traderID between fromMillis
// and toMillis inclusive, ordered oldest first. It backs the read API's
// Reader.SnapshotsRange contract for the "raw" granularity.
func (r *Repository) SnapshotsRange(ctx context.Context, traderID int64, fromMillis, toMillis int64) ([]models.PnLSnapshot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT trader_id, EXTRACT(EPOCH FROM timestamp)::bigint * 1000, realized_pnl, unrealized_pnl,
		       total_pnl, funding_pnl, trading_pnl, open_positions, total_volume, account_value
		FROM app.pnl_snapshots
		WHERE trader_id = $1 AND timestamp BETWEEN to_timestamp($2 / 1000.0) AND to_timestamp($3 / 1000.0)
		ORDER BY timestamp ASC
	`, traderID, fromMillis, toMillis)
	if err != nil {
		return nil, fmt.Errorf("query snapshots range for trader %d: %w", traderID, err)
	}
	defer rows.Close()

	var out []models.PnLSnapshot
	for rows.Next() {
		var s models.PnLSnapshot
		var accountValue *string
		if err := rows.Scan(&s.TraderID, &s.Timestamp, &s.RealizedPnl, &s.UnrealizedPnl, &s.TotalPnl,
			&s.FundingPnl, &s.TradingPnl, &s.OpenPositions, &s.TotalVolume, &accountValue); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if accountValue != nil {
			parsed, err := decimalFromScanned(*accountValue)
			if err != nil {
				return nil, fmt.Errorf("parse account_value: %w", err)
			}
			s.AccountValue = &parsed
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// LatestSnapshot returns the most recent snapshot for traderID, or (nil, nil)
// if the trader has never had one persisted (e.g. its first-ever Start) —
// absence of a prior snapshot is a normal condition for a resuming caller,
// not an error.
func (r *Repository) LatestSnapshot(ctx context.Context, traderID int64) (*models.PnLSnapshot, error) {
	var s models.PnLSnapshot
	var accountValue *string
	err := r.db.QueryRow(ctx, `
		SELECT trader_id, EXTRACT(EPOCH FROM timestamp)::bigint * 1000, realized_pnl, unrealized_pnl,
		       total_pnl, funding_pnl, trading_pnl, open_positions, total_volume, account_value
		FROM app.pnl_snapshots
		WHERE trader_id = $1
		ORDER BY timestamp DESC
		LIMIT 1
	`, traderID).Scan(&s.TraderID, &s.Timestamp, &s.RealizedPnl, &s.UnrealizedPnl, &s.TotalPnl,
		&s.FundingPnl, &s.TradingPnl, &s.OpenPositions, &s.TotalVolume, &accountValue)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest snapshot for trader %d: %w", traderID, err)
	}
	if accountValue != nil {
		parsed, err := decimalFromScanned(*accountValue)
		if err != nil {
			return nil, fmt.Errorf("parse account_value: %w", err)
		}
		s.AccountValue = &parsed
	}
	return &s, nil
}
