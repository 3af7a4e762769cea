// Package readapi defines the interface a route layer would call to serve
// the indexer's read-side HTTP API. Routing, handlers, and auth are out of
// scope; this package exists so the core's output types are exercised by a
// concrete contract rather than left implicit.
package readapi

import (
	"context"

	"github.com/hlscan/pnlindexer/internal/budget"
	"github.com/hlscan/pnlindexer/internal/gap"
	"github.com/hlscan/pnlindexer/internal/models"
)

// Reader is the handful of read methods a route layer needs: PnL history for
// a trader, and the two operational stats views.
type Reader interface {
	SnapshotsRange(ctx context.Context, traderID int64, fromMillis, toMillis int64) ([]models.PnLSnapshot, error)
	RateBudgetStats() budget.Stats
	GapStats() gap.Stats
}

// snapshotRepo is the subset of *repository.Repository Service needs.
type snapshotRepo interface {
	SnapshotsRange(ctx context.Context, traderID int64, fromMillis, toMillis int64) ([]models.PnLSnapshot, error)
}

// Service implements Reader by composing the repository, the rate-budget
// scheduler, and the gap detector that the rest of the core already owns.
type Service struct {
	repo      snapshotRepo
	scheduler *budget.Scheduler
	detector  *gap.Detector
}

// NewService wires a Reader over the core's existing collaborators.
func NewService(repo snapshotRepo, scheduler *budget.Scheduler, detector *gap.Detector) *Service {
	return &Service{repo: repo, scheduler: scheduler, detector: detector}
}

func (s *Service) SnapshotsRange(ctx context.Context, traderID int64, fromMillis, toMillis int64) ([]models.PnLSnapshot, error) {
	return s.repo.SnapshotsRange(ctx, traderID, fromMillis, toMillis)
}

func (s *Service) RateBudgetStats() budget.Stats {
	return s.scheduler.Stats()
}

func (s *Service) GapStats() gap.Stats {
	return s.detector.Stats()
}
