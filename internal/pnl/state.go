// Package pnl implements the per-trader PnL state machine: pure, deterministic
// folds over trade and funding events, with mark-price-driven unrealized PnL.
package pnl

import (
	"github.com/hlscan/pnlindexer/internal/decimal"
	"github.com/hlscan/pnlindexer/internal/models"
)

// State is the in-memory per-trader PnL accumulator. All operations return a
// new logical state; State is mutated in place, but callers must treat every
// Apply* call as producing the next state in the fold, not sharing the prior
// one concurrently.
type State struct {
	TraderID           int64
	Address            string
	RealizedTradingPnl decimal.Decimal
	RealizedFundingPnl decimal.Decimal
	TotalFees          decimal.Decimal
	TotalVolume        decimal.Decimal
	TradeCount         int64
	LiquidationCount   int64
	FlipCount          int64
	Positions          map[string]models.Position
	LastUpdated        int64
}

// Initial returns a fresh State for traderID/address: all decimals zero, an
// empty positions map.
func Initial(traderID int64, address string) *State {
	return &State{
		TraderID: traderID,
		Address:  address,
		Positions: make(map[string]models.Position),
	}
}

// ApplyTrade folds one fill into the state. Position bookkeeping is not
// performed here: positions are overwritten wholesale by UpdatePositions from
// clearinghouse snapshots, so unrealized PnL can run one poll cycle stale
// relative to the most recently applied trade.
func ApplyTrade(s *State, trade models.Trade) *State {
	s.RealizedTradingPnl = s.RealizedTradingPnl.Add(trade.ClosedPnl)
	s.TotalFees = s.TotalFees.Add(trade.Fee)
	s.TotalVolume = s.TotalVolume.Add(trade.Size.Mul(trade.Price))
	s.TradeCount++
	if trade.IsLiquidation {
		s.LiquidationCount++
	}
	if IsFlip(trade) {
		s.FlipCount++
	}
	s.LastUpdated = trade.Timestamp
	return s
}

// IsFlip reports whether trade flips the trader's position from long to short
// or vice versa. It requires trade.StartPosition to be present; trades without
// it (e.g. a fill recorded before the first clearinghouse poll) are never flips.
func IsFlip(trade models.Trade) bool {
	if trade.StartPosition == nil {
		return false
	}
	p := *trade.StartPosition
	if p.IsZero() {
		return false
	}
	switch {
	case p.Sign() > 0 && trade.Side == "A" && trade.Size.GreaterThan(p.Abs()):
		return true
	case p.Sign() < 0 && trade.Side == "B" && trade.Size.GreaterThan(p.Abs()):
		return true
	default:
		return false
	}
}

// ApplyFunding folds one funding payment into the state.
func ApplyFunding(s *State, funding models.FundingEvent) *State {
	s.RealizedFundingPnl = s.RealizedFundingPnl.Add(funding.Payment)
	return s
}

// UpdatePositions replaces the positions map wholesale with exactly those
// entries whose size is non-zero, per the latest clearinghouseState poll.
func UpdatePositions(s *State, positions []models.Position) *State {
	next := make(map[string]models.Position, len(positions))
	for _, p := range positions {
		if !p.Size.IsZero() {
			next[p.Coin] = p
		}
	}
	s.Positions = next
	return s
}

// PnL is the computed breakdown returned by CalculatePnL.
type PnL struct {
	Realized   decimal.Decimal
	Unrealized decimal.Decimal
	Total      decimal.Decimal
	Funding    decimal.Decimal
	Trading    decimal.Decimal
	Fees       decimal.Decimal
}

// CalculatePnL derives the full PnL breakdown from the current state.
func CalculatePnL(s *State) PnL {
	trading := s.RealizedTradingPnl.Sub(s.TotalFees)
	funding := s.RealizedFundingPnl
	realized := trading.Add(funding)

	unrealized := decimal.Zero()
	for _, p := range s.Positions {
		unrealized = unrealized.Add(p.UnrealizedPnl)
	}

	return PnL{
		Realized:   realized,
		Unrealized: unrealized,
		Total:      realized.Add(unrealized),
		Funding:    funding,
		Trading:    trading,
		Fees:       s.TotalFees,
	}
}

// UnrealizedFor computes the unrealized PnL of a single position given its
// signed size, entry price, and the current mark price.
func UnrealizedFor(size, entry, mark decimal.Decimal) decimal.Decimal {
	diff := mark.Sub(entry)
	magnitude := diff.Mul(size.Abs())
	if size.Sign() < 0 {
		return magnitude.Neg()
	}
	return magnitude
}
