package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/hlscan/pnlindexer/internal/models"
)

// InsertFunding bulk-upserts a batch of funding payments via UNNEST, deduping
// on (trader_id, coin, time): a duplicate funding entry is a no-op.
func (r *Repository) InsertFunding(ctx context.Context, events []models.FundingEvent) error {
	if len(events) == 0 {
		return nil
	}

	traderIDs := make([]int64, len(events))
	coins := make([]string, len(events))
	times := make([]time.Time, len(events))
	rates := make([]string, len(events))
	payments := make([]string, len(events))
	sizes := make([]string, len(events))

	for i, e := range events {
		traderIDs[i] = e.TraderID
		coins[i] = e.Coin
		times[i] = time.UnixMilli(e.Time).UTC()
		rates[i] = e.FundingRate.String()
		payments[i] = e.Payment.String()
		sizes[i] = e.PositionSize.String()
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO app.funding_events (trader_id, coin, time, funding_rate, payment, position_size)
		SELECT u.trader_id, u.coin, u.time, u.funding_rate::numeric, u.payment::numeric, u.position_size::numeric
		FROM UNNEST(
			$1::bigint[], $2::text[], $3::timestamptz[], $4::text[], $5::text[], $6::text[]
		) AS u(trader_id, coin, time, funding_rate, payment, position_size)
		ON CONFLICT (trader_id, coin, time) DO NOTHING
	`, traderIDs, coins, times, rates, payments, sizes)
	if err != nil {
		return fmt.Errorf("insert funding batch: %w", err)
	}
	return nil
}

// FundingSince returns every funding event for traderID with time >= sinceMillis.
func (r *Repository) FundingSince(ctx context.Context, traderID int64, sinceMillis int64) ([]models.FundingEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT trader_id, coin, EXTRACT(EPOCH FROM time)::bigint * 1000, funding_rate, payment, position_size
		FROM app.funding_events
		WHERE trader_id = $1 AND time >= to_timestamp($2 / 1000.0)
		ORDER BY time ASC
	`, traderID, sinceMillis)
	if err != nil {
		return nil, fmt.Errorf("query funding since %d for trader %d: %w", sinceMillis, traderID, err)
	}
	defer rows.Close()

	var out []models.FundingEvent
	for rows.Next() {
		var f models.FundingEvent
		if err := rows.Scan(&f.TraderID, &f.Coin, &f.Time, &f.FundingRate, &f.Payment, &f.PositionSize); err != nil {
			return nil, fmt.Errorf("scan funding event: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
