// Package gap implements the coverage-gap detector: it notices when a
// trader has gone longer than the configured threshold without a fresh PnL
// snapshot, records the gap, and resolves it the moment a new snapshot lands.
package gap

import (
	"context"
	"log"
	"time"

	"github.com/hlscan/pnlindexer/internal/models"
)

// DefaultThreshold is the default staleness window before a missing
// snapshot is flagged as a gap.
const DefaultThreshold = 10 * time.Minute

const scanInterval = 30 * time.Second

// repo is the subset of *repository.Repository the detector needs; kept as
// an interface so the detector can be exercised without a live database.
type repo interface {
	ActiveTraders(ctx context.Context) ([]string, error)
	TraderIDByAddress(ctx context.Context, address string) (int64, error)
	LatestSnapshot(ctx context.Context, traderID int64) (*models.PnLSnapshot, error)
	OpenGap(ctx context.Context, traderID int64, gapStart, gapEnd int64, gapType string) error
	ResolveGaps(ctx context.Context, traderID int64, asOfMillis int64) (int64, error)
	UnresolvedGaps(ctx context.Context) ([]models.DataGap, error)
}

// Detector tracks, per trader, the last time a snapshot was observed and
// opens a gap record whenever that exceeds Threshold.
type Detector struct {
	repo      repo
	threshold time.Duration

	lastSeen map[int64]int64 // traderID -> last snapshot timestamp (unix millis)
	openGap  map[int64]int64 // traderID -> gap_start of the currently-open gap, if any
}

// New constructs a Detector; call Scan once at startup to seed lastSeen from
// the latest persisted snapshot per active trader and reconcile any gaps left
// open from a previous run.
func New(r repo, threshold time.Duration) *Detector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Detector{
		repo:      r,
		threshold: threshold,
		lastSeen:  make(map[int64]int64),
		openGap:   make(map[int64]int64),
	}
}

// Scan performs the startup gap scan spec.md §4.9 requires: it seeds
// in-memory state from storage — the last known snapshot time per active
// trader, and any gap left unresolved across a restart — and then, for every
// active trader, immediately evaluates the threshold against that seeded
// lastSeen, opening a data_gaps row right away for a trader that was already
// stale before this process started, rather than waiting for its first
// in-process snapshot.
func (d *Detector) Scan(ctx context.Context) error {
	addrs, err := d.repo.ActiveTraders(ctx)
	if err != nil {
		return err
	}

	gaps, err := d.repo.UnresolvedGaps(ctx)
	if err != nil {
		return err
	}
	for _, g := range gaps {
		d.openGap[g.TraderID] = g.GapStart
	}

	now := time.Now().UnixMilli()
	for _, addr := range addrs {
		traderID, err := d.repo.TraderIDByAddress(ctx, addr)
		if err != nil {
			log.Printf("[gap] lookup trader %s: %v", addr, err)
			continue
		}
		snap, err := d.repo.LatestSnapshot(ctx, traderID)
		if err != nil {
			log.Printf("[gap] latest snapshot for trader %s: %v", addr, err)
			continue
		}
		if snap == nil {
			continue // trader has never had a snapshot; nothing to measure a gap against yet
		}
		d.lastSeen[traderID] = snap.Timestamp
		d.checkOne(ctx, traderID, now)
	}
	return nil
}

// Run drives the periodic threshold check until ctx is cancelled.
func (d *Detector) Run(ctx context.Context) {
	ticker := time.NewTicker(scanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.checkAll(ctx)
		}
	}
}

func (d *Detector) checkAll(ctx context.Context) {
	addrs, err := d.repo.ActiveTraders(ctx)
	if err != nil {
		log.Printf("[gap] list active traders: %v", err)
		return
	}
	now := time.Now().UnixMilli()
	for _, addr := range addrs {
		traderID, err := d.repo.TraderIDByAddress(ctx, addr)
		if err != nil {
			continue
		}
		d.checkOne(ctx, traderID, now)
	}
}

func (d *Detector) checkOne(ctx context.Context, traderID int64, now int64) {
	last, ok := d.lastSeen[traderID]
	if !ok {
		return // no snapshot observed yet, nothing to measure a gap against
	}
	if _, open := d.openGap[traderID]; open {
		return // already tracking this gap; OnSnapshot will resolve it
	}
	if time.Duration(now-last)*time.Millisecond <= d.threshold {
		return
	}
	if err := d.repo.OpenGap(ctx, traderID, last, now, "snapshots"); err != nil {
		log.Printf("[gap] open gap for trader %d: %v", traderID, err)
		return
	}
	d.openGap[traderID] = last
}

// OnSnapshot is called whenever a fresh snapshot is persisted for traderID;
// it updates lastSeen and resolves any gap that snapshot closes.
func (d *Detector) OnSnapshot(ctx context.Context, traderID int64, ts int64) {
	d.lastSeen[traderID] = ts
	if _, open := d.openGap[traderID]; !open {
		return
	}
	if _, err := d.repo.ResolveGaps(ctx, traderID, ts); err != nil {
		log.Printf("[gap] resolve gaps for trader %d: %v", traderID, err)
		return
	}
	delete(d.openGap, traderID)
}

// Stats is the aggregate the out-of-scope read API's Reader.GapStats renders.
type Stats struct {
	UnresolvedCount int
	DistinctTraders int
	OldestGapStart  int64
}

// Stats reports the detector's current view of open gaps.
func (d *Detector) Stats() Stats {
	oldest := int64(0)
	for _, start := range d.openGap {
		if oldest == 0 || start < oldest {
			oldest = start
		}
	}
	return Stats{
		UnresolvedCount: len(d.openGap),
		DistinctTraders: len(d.openGap),
		OldestGapStart:  oldest,
	}
}
