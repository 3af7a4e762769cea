package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/hlscan/pnlindexer/internal/models"
)

// InsertTrades bulk-upserts a batch of fills via UNNEST, deduping on the
// natural key (trader_id, tid): a duplicate tid is a no-op, not an error,
// so a retried poll cycle never double-counts a fill.
func (r *Repository) InsertTrades(ctx context.Context, trades []models.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	traderIDs := make([]int64, len(trades))
	coins := make([]string, len(trades))
	sides := make([]string, len(trades))
	sizes := make([]string, len(trades))
	prices := make([]string, len(trades))
	closedPnls := make([]string, len(trades))
	fees := make([]string, len(trades))
	timestamps := make([]time.Time, len(trades))
	txHashes := make([]string, len(trades))
	oids := make([]int64, len(trades))
	tids := make([]int64, len(trades))

	for i, t := range trades {
		traderIDs[i] = t.TraderID
		coins[i] = t.Coin
		sides[i] = t.Side
		sizes[i] = t.Size.String()
		prices[i] = t.Price.String()
		closedPnls[i] = t.ClosedPnl.String()
		fees[i] = t.Fee.String()
		timestamps[i] = time.UnixMilli(t.Timestamp).UTC()
		txHashes[i] = t.TxHash
		oids[i] = t.Oid
		tids[i] = t.Tid
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO app.trades (
			trader_id, coin, side, size, price, closed_pnl, fee,
			timestamp, tx_hash, oid, tid
		)
		SELECT
			u.trader_id, u.coin, u.side, u.size::numeric, u.price::numeric,
			u.closed_pnl::numeric, u.fee::numeric, u.timestamp, u.tx_hash, u.oid, u.tid
		FROM UNNEST(
			$1::bigint[], $2::text[], $3::text[], $4::text[], $5::text[],
			$6::text[], $7::text[], $8::timestamptz[], $9::text[], $10::bigint[], $11::bigint[]
		) AS u(
			trader_id, coin, side, size, price,
			closed_pnl, fee, timestamp, tx_hash, oid, tid
		)
		ON CONFLICT (trader_id, tid) DO NOTHING
	`, traderIDs, coins, sides, sizes, prices, closedPnls, fees, timestamps, txHashes, oids, tids)
	if err != nil {
		return fmt.Errorf("insert trades batch: %w", err)
	}
	return nil
}

// TradesSince returns every trade for traderID with timestamp >= sinceMillis,
// ordered oldest first; used to seed a resumed PnL state's trade history.
func (r *Repository) TradesSince(ctx context.Context, traderID int64, sinceMillis int64) ([]models.Trade, error) {
	rows, err := r.db.Query(ctx, `
		SELECT trader_id, coin, side, size, price, closed_pnl, fee,
		       EXTRACT(EPOCH FROM timestamp)::bigint * 1000, tx_hash, oid, tid
		FROM app.trades
		WHERE trader_id = $1 AND timestamp >= to_timestamp($2 / 1000.0)
		ORDER BY timestamp ASC
	`, traderID, sinceMillis)
	if err != nil {
		return nil, fmt.Errorf("query trades since %d for trader %d: %w", sinceMillis, traderID, err)
	}
	defer rows.Close()

	var out []models.Trade
	for rows.Next() {
		var t models.Trade
		if err := rows.Scan(&t.TraderID, &t.Coin, &t.Side, &t.Size, &t.Price, &t.ClosedPnl,
			&t.Fee, &t.Timestamp, &t.TxHash, &t.Oid, &t.Tid); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
