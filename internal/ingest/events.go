// Package ingest wires the exchange clients, the rate-budget scheduler, the
// price service, and the PnL state machine into the five source streams
// and the top-level orchestration that drives them.
package ingest

import "github.com/hlscan/pnlindexer/internal/models"

// EventType is one of the three kinds of update the core emits downstream,
// as a {type, address, data, timestamp} envelope.
type EventType string

const (
	EventFill     EventType = "fill"
	EventSnapshot EventType = "snapshot"
	EventFunding  EventType = "funding"
)

// Event is the typed envelope consumed by the persistence layer and the
// (out of scope) read API.
type Event struct {
	Type      EventType
	Address   string
	Fill      *models.Trade
	Funding   *models.FundingEvent
	Snapshot  *models.PnLSnapshot
	Timestamp int64
}
