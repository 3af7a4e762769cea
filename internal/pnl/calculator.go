package pnl

import (
	"github.com/hlscan/pnlindexer/internal/decimal"
	"github.com/hlscan/pnlindexer/internal/models"
)

// MarkPriceLookup resolves a coin's current mark price; the price service
// satisfies this via its Get method.
type MarkPriceLookup func(coin string) (decimal.Decimal, bool)

// RefreshUnrealized recomputes every open position's cached UnrealizedPnl
// against the latest mark prices. Positions whose coin has no known mark
// price are left untouched (their last computed value stands, consistent
// with the price service's no-staleness-expiry contract).
func RefreshUnrealized(s *State, marks MarkPriceLookup) *State {
	for coin, pos := range s.Positions {
		mark, ok := marks(coin)
		if !ok {
			continue
		}
		pos.UnrealizedPnl = UnrealizedFor(pos.Size, pos.EntryPrice, mark)
		s.Positions[coin] = pos
	}
	return s
}

// Snapshot builds the durable PnLSnapshot row for the current state at
// timestamp ts, optionally carrying an account value pulled from the latest
// clearinghouse poll's margin summary.
func Snapshot(s *State, ts int64, accountValue *decimal.Decimal) models.PnLSnapshot {
	pnl := CalculatePnL(s)
	return models.PnLSnapshot{
		TraderID:      s.TraderID,
		Timestamp:     ts,
		RealizedPnl:   pnl.Realized,
		UnrealizedPnl: pnl.Unrealized,
		TotalPnl:      pnl.Total,
		FundingPnl:    pnl.Funding,
		TradingPnl:    pnl.Trading,
		OpenPositions: len(s.Positions),
		TotalVolume:   s.TotalVolume,
		AccountValue:  accountValue,
	}
}
