// Package models holds the flat data-model structs shared by the ingestion
// pipeline and the storage layer.
package models

import "github.com/hlscan/pnlindexer/internal/decimal"

// MarginType is one of the exchange's two margin modes for a position.
type MarginType string

const (
	MarginCross    MarginType = "cross"
	MarginIsolated MarginType = "isolated"
)

// Trader is unique by its normalized lowercase 0x-prefixed 40-hex address.
type Trader struct {
	ID            int64  `json:"id"`
	Address       string `json:"address"`
	Label         string `json:"label,omitempty"` // operator-assigned nickname, never read by the core
	FirstSeenAt   int64  `json:"firstSeenAt"`
	LastUpdatedAt int64  `json:"lastUpdatedAt"`
	IsActive      bool   `json:"isActive"`
}

// Position is the live per-(trader,coin) state, overwritten wholesale by the
// latest clearinghouseState poll. size == 0 means the position does not
// exist in the live map.
type Position struct {
	Coin             string           `json:"coin"`
	Size             decimal.Decimal  `json:"size"`
	EntryPrice       decimal.Decimal  `json:"entryPrice"`
	UnrealizedPnl    decimal.Decimal  `json:"unrealizedPnl"`
	Leverage         decimal.Decimal  `json:"leverage,omitempty"`
	LiquidationPrice *decimal.Decimal `json:"liquidationPrice,omitempty"`
	MarginUsed       decimal.Decimal  `json:"marginUsed,omitempty"`
	MarginType       MarginType       `json:"marginType,omitempty"`
}

// Trade is a single fill, unique by (trader_id, tid).
type Trade struct {
	TraderID      int64            `json:"traderId"`
	Tid           int64            `json:"tid"`
	Oid           int64            `json:"oid"`
	TxHash        string           `json:"txHash,omitempty"`
	Coin          string           `json:"coin"`
	Side          string           `json:"side"` // "B" or "A"
	Size          decimal.Decimal  `json:"size"` // unsigned
	Price         decimal.Decimal  `json:"price"`
	ClosedPnl     decimal.Decimal  `json:"closedPnl"`
	Fee           decimal.Decimal  `json:"fee"`
	Timestamp     int64            `json:"timestamp"`
	Direction     string           `json:"direction,omitempty"`
	StartPosition *decimal.Decimal `json:"startPosition,omitempty"`
	IsLiquidation bool             `json:"isLiquidation,omitempty"`
}

// FundingEvent is a single funding payment for a (trader, coin, time).
type FundingEvent struct {
	TraderID     int64           `json:"traderId"`
	Coin         string          `json:"coin"`
	Time         int64           `json:"time"`
	FundingRate  decimal.Decimal `json:"fundingRate"`
	Payment      decimal.Decimal `json:"payment"` // signed USDC delta
	PositionSize decimal.Decimal `json:"positionSize"`
}

// PnLSnapshot is a durable row per (trader_id, timestamp); upsert-idempotent
// on that key.
type PnLSnapshot struct {
	TraderID      int64            `json:"traderId"`
	Timestamp     int64            `json:"timestamp"`
	RealizedPnl   decimal.Decimal  `json:"realizedPnl"`
	UnrealizedPnl decimal.Decimal  `json:"unrealizedPnl"`
	TotalPnl      decimal.Decimal  `json:"totalPnl"`
	FundingPnl    decimal.Decimal  `json:"fundingPnl"`
	TradingPnl    decimal.Decimal  `json:"tradingPnl"`
	OpenPositions int              `json:"openPositions"`
	TotalVolume   decimal.Decimal  `json:"totalVolume"`
	AccountValue  *decimal.Decimal `json:"accountValue,omitempty"`
}

// DataGap is an interval during which the ingester lacked coverage for a trader.
type DataGap struct {
	TraderID   int64  `json:"traderId"`
	GapStart   int64  `json:"gapStart"`
	GapEnd     int64  `json:"gapEnd"`
	GapType    string `json:"gapType"` // always "snapshots" today
	ResolvedAt *int64 `json:"resolvedAt,omitempty"`
}

// RollupRow is one bucketed row of the hourly/daily read-only aggregates.
// These tables are maintained outside the core (a DB-side continuous
// aggregate); the core only ever reads them.
type RollupRow struct {
	TraderID      int64           `json:"traderId"`
	Bucket        int64           `json:"bucket"`
	Positions     int             `json:"positions"`
	Volume        decimal.Decimal `json:"volume"`
	RealizedPnl   decimal.Decimal `json:"realizedPnl"`
	UnrealizedPnl decimal.Decimal `json:"unrealizedPnl"`
	TotalPnl      decimal.Decimal `json:"totalPnl"`
}

// Granularity is the resolution of a snapshot range query.
type Granularity string

const (
	GranularityRaw    Granularity = "raw"
	GranularityHourly Granularity = "hourly"
	GranularityDaily  Granularity = "daily"
)
