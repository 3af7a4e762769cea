package ingest

import (
	"github.com/hlscan/pnlindexer/internal/decimal"
	"github.com/hlscan/pnlindexer/internal/exchange"
	"github.com/hlscan/pnlindexer/internal/models"
)

// fillToTrade maps one exchange.Fill onto the durable Trade shape. traderID
// is resolved by the caller (traders are registered by address at Start).
func fillToTrade(traderID int64, f exchange.Fill) models.Trade {
	start := f.StartPosition
	return models.Trade{
		TraderID:      traderID,
		Tid:           f.Tid,
		Oid:           f.Oid,
		TxHash:        f.TxHash,
		Coin:          f.Coin,
		Side:          f.Side,
		Size:          f.Sz,
		Price:         f.Px,
		ClosedPnl:     f.ClosedPnl,
		Fee:           f.Fee,
		Timestamp:     f.Time,
		StartPosition: &start,
		IsLiquidation: f.Liquidation,
	}
}

// fundingToEvent maps one exchange.FundingEntry onto the durable FundingEvent shape.
func fundingToEvent(traderID int64, e exchange.FundingEntry) models.FundingEvent {
	return models.FundingEvent{
		TraderID:     traderID,
		Coin:         e.Delta.Coin,
		Time:         e.Time,
		Payment:      e.Delta.Usdc,
		FundingRate:  e.Delta.FundingRate,
		PositionSize: e.Delta.Szi,
	}
}

// clearinghouseToPositions maps a clearinghouseState response onto the live
// Position list UpdatePositions expects, and returns the account value for
// the snapshot that follows.
func clearinghouseToPositions(cs *exchange.ClearinghouseState) ([]models.Position, decimal.Decimal) {
	positions := make([]models.Position, 0, len(cs.AssetPositions))
	for _, ap := range cs.AssetPositions {
		positions = append(positions, models.Position{
			Coin:          ap.Coin,
			Size:          ap.Szi,
			EntryPrice:    ap.EntryPx,
			UnrealizedPnl: ap.UnrealizedPnl,
		})
	}
	return positions, cs.MarginSummary.AccountValue
}
