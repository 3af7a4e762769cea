// Package exchange implements the typed HTTP "info" client for the exchange's
// perpetual-futures API: request dispatch, per-endpoint weight lookup, rate
// budget admission, and retry with exponential backoff.
package exchange

import "github.com/hlscan/pnlindexer/internal/decimal"

// RequestType is the exchange's `type` discriminator field on POST /info bodies.
type RequestType string

const (
	TypeClearinghouseState RequestType = "clearinghouseState"
	TypeUserFillsByTime    RequestType = "userFillsByTime"
	TypeUserFunding        RequestType = "userFunding"
	TypePortfolio          RequestType = "portfolio"
	TypeUserRole           RequestType = "userRole"
	TypeAllMids            RequestType = "allMids"
)

// Weights is the per-endpoint cost table charged against the shared rate
// budget; endpoints not listed here cost the default weight of 20.
var Weights = map[RequestType]int{
	TypeClearinghouseState: 2,
	TypeAllMids:            2,
	TypeUserFillsByTime:    20,
	TypeUserFunding:        20,
	TypePortfolio:          20,
	TypeUserRole:           60,
}

// DefaultWeight is charged for any request type absent from Weights.
const DefaultWeight = 20

// WeightOf looks up the weight for a request type, falling back to DefaultWeight.
func WeightOf(t RequestType) int {
	if w, ok := Weights[t]; ok {
		return w
	}
	return DefaultWeight
}

// InfoRequest is the POST /info JSON body. Fields are omitted when empty so
// each request type only serializes what it needs.
type InfoRequest struct {
	Type      RequestType `json:"type"`
	User      string      `json:"user,omitempty"`
	StartTime int64       `json:"startTime,omitempty"`
	EndTime   int64       `json:"endTime,omitempty"`
}

// AssetPosition mirrors one entry of clearinghouseState's assetPositions list.
type AssetPosition struct {
	Coin           string          `json:"coin"`
	Szi            decimal.Decimal `json:"szi"`
	EntryPx        decimal.Decimal `json:"entryPx"`
	PositionValue  decimal.Decimal `json:"positionValue"`
	UnrealizedPnl  decimal.Decimal `json:"unrealizedPnl"`
}

// MarginSummary mirrors clearinghouseState's marginSummary object, from which
// PnLSnapshot.AccountValue is taken.
type MarginSummary struct {
	AccountValue decimal.Decimal `json:"accountValue"`
}

// ClearinghouseState is the parsed response to a `clearinghouseState` request.
type ClearinghouseState struct {
	AssetPositions []AssetPosition `json:"assetPositions"`
	MarginSummary  MarginSummary   `json:"marginSummary"`
}

// Fill mirrors one entry of userFillsByTime's response array.
type Fill struct {
	Coin          string          `json:"coin"`
	Px            decimal.Decimal `json:"px"`
	Sz            decimal.Decimal `json:"sz"`
	Side          string          `json:"side"` // "B" (buy) or "A" (sell/ask)
	Time          int64           `json:"time"`
	StartPosition decimal.Decimal `json:"startPosition"`
	Oid           int64           `json:"oid"`
	Tid           int64           `json:"tid"`
	TxHash        string          `json:"hash"`
	Fee           decimal.Decimal `json:"fee"`
	ClosedPnl     decimal.Decimal `json:"closedPnl"`
	Liquidation   bool            `json:"liquidation,omitempty"`
}

// FundingDelta mirrors the `delta` object of one userFunding entry.
type FundingDelta struct {
	Coin        string          `json:"coin"`
	Usdc        decimal.Decimal `json:"usdc"`
	FundingRate decimal.Decimal `json:"fundingRate"`
	Szi         decimal.Decimal `json:"szi"`
}

// FundingEntry mirrors one entry of userFunding's response array.
type FundingEntry struct {
	Time  int64        `json:"time"`
	Delta FundingDelta `json:"delta"`
}

// MidPrice is one coin's entry in the allMids push/response map.
type MidPrice struct {
	Coin string
	Px   decimal.Decimal
}
