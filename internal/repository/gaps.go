package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/hlscan/pnlindexer/internal/models"
)

// OpenGap records a new, unresolved coverage gap for traderID.
func (r *Repository) OpenGap(ctx context.Context, traderID int64, gapStart, gapEnd int64, gapType string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO app.data_gaps (trader_id, gap_start, gap_end, gap_type)
		VALUES ($1, $2, $3, $4)
	`, traderID, time.UnixMilli(gapStart).UTC(), time.UnixMilli(gapEnd).UTC(), gapType)
	if err != nil {
		return fmt.Errorf("open gap for trader %d: %w", traderID, err)
	}
	return nil
}

// ResolveGaps marks every open gap for traderID that ends at or before
// asOfMillis resolved, called whenever a fresh snapshot is written for that
// trader so the gap detector never has to poll for resolution.
func (r *Repository) ResolveGaps(ctx context.Context, traderID int64, asOfMillis int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE app.data_gaps
		SET resolved_at = $2
		WHERE trader_id = $1 AND resolved_at IS NULL AND gap_end <= to_timestamp($3 / 1000.0)
	`, traderID, time.UnixMilli(asOfMillis).UTC(), asOfMillis)
	if err != nil {
		return 0, fmt.Errorf("resolve gaps for trader %d: %w", traderID, err)
	}
	return tag.RowsAffected(), nil
}

// UnresolvedGaps returns every open gap across all traders, oldest first; used
// by the startup scan to rebuild the detector's in-memory view.
func (r *Repository) UnresolvedGaps(ctx context.Context) ([]models.DataGap, error) {
	rows, err := r.db.Query(ctx, `
		SELECT trader_id, EXTRACT(EPOCH FROM gap_start)::bigint * 1000,
		       EXTRACT(EPOCH FROM gap_end)::bigint * 1000, gap_type
		FROM app.data_gaps
		WHERE resolved_at IS NULL
		ORDER BY gap_start ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query unresolved gaps: %w", err)
	}
	defer rows.Close()

	var out []models.DataGap
	for rows.Next() {
		var g models.DataGap
		if err := rows.Scan(&g.TraderID, &g.GapStart, &g.GapEnd, &g.GapType); err != nil {
			return nil, fmt.Errorf("scan gap: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// GapStats is the aggregate view of open gaps as stored in app.data_gaps.
// Reader.GapStats does not use it; that method renders the detector's
// in-memory gap.Stats.
type GapStats struct {
	UnresolvedCount int   `json:"unresolvedCount"`
	DistinctTraders int   `json:"distinctTraders"`
	OldestGapStart  int64 `json:"oldestGapStart,omitempty"`
}

// GapStatsQuery computes the current GapStats directly from app.data_gaps.
func (r *Repository) GapStatsQuery(ctx context.Context) (GapStats, error) {
	var stats GapStats
	var oldest *time.Time
	err := r.db.QueryRow(ctx, `
		SELECT count(*), count(DISTINCT trader_id), min(gap_start)
		FROM app.data_gaps
		WHERE resolved_at IS NULL
	`).Scan(&stats.UnresolvedCount, &stats.DistinctTraders, &oldest)
	if err != nil {
		return GapStats{}, fmt.Errorf("query gap stats: %w", err)
	}
	if oldest != nil {
		stats.OldestGapStart = oldest.UnixMilli()
	}
	return stats, nil
}
