package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// UpsertTrader inserts a trader by address if absent, or updates last_updated_at
// and is_active if present. Returns the trader's id.
func (r *Repository) UpsertTrader(ctx context.Context, address string, now time.Time) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO app.traders (address, first_seen_at, last_updated_at, is_active)
		VALUES ($1, $2, $2, true)
		ON CONFLICT (address) DO UPDATE SET
			last_updated_at = EXCLUDED.last_updated_at,
			is_active = true
		RETURNING id
	`, address, now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert trader %s: %w", address, err)
	}
	return id, nil
}

// Deactivate marks a trader inactive; Stop(address) calls this so the trader
// is not picked up by the next "fetch active traders" tick.
func (r *Repository) Deactivate(ctx context.Context, address string) error {
	_, err := r.db.Exec(ctx, `UPDATE app.traders SET is_active = false WHERE address = $1`, address)
	if err != nil {
		return fmt.Errorf("deactivate trader %s: %w", address, err)
	}
	return nil
}

// ActiveTraders returns the addresses of every trader currently flagged active,
// the set the source streams fan out over on each poll tick.
func (r *Repository) ActiveTraders(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT address FROM app.traders WHERE is_active = true ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query active traders: %w", err)
	}
	defer rows.Close()

	var addrs []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("scan active trader: %w", err)
		}
		addrs = append(addrs, addr)
	}
	return addrs, rows.Err()
}

// TraderIDByAddress looks up a trader's id, for callers that already know the
// address is registered (e.g. resuming a live ingest.Service map on restart).
func (r *Repository) TraderIDByAddress(ctx context.Context, address string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `SELECT id FROM app.traders WHERE address = $1`, address).Scan(&id)
	if err == pgx.ErrNoRows {
		return 0, fmt.Errorf("trader %s not registered", address)
	}
	if err != nil {
		return 0, fmt.Errorf("lookup trader %s: %w", address, err)
	}
	return id, nil
}
