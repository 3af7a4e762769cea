// Package price implements the process-wide coin -> mid-price cache fed by
// the exchange's allMids push channel.
package price

import (
	"sync"

	"github.com/hlscan/pnlindexer/internal/decimal"
)

// Service is a process-wide singleton; prices have no staleness expiry, the
// last received value is authoritative until replaced. An RWMutex-guarded
// cache, simplified to latest-value-only since unrealized PnL only ever
// needs the latest mark.
type Service struct {
	mu      sync.RWMutex
	mids    map[string]decimal.Decimal
	started bool
	cancel  func()
}

// New returns a stopped Service ready for Start.
func New() *Service {
	return &Service{mids: make(map[string]decimal.Decimal)}
}

// Start subscribes to the allMids stream via updates and begins applying
// pushes to the in-memory map. Start is idempotent after Stop.
func (s *Service) Start(updates <-chan map[string]decimal.Decimal, cancel func()) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.cancel = cancel
	s.mu.Unlock()

	go func() {
		for snapshot := range updates {
			s.apply(snapshot)
		}
	}()
}

func (s *Service) apply(snapshot map[string]decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for coin, px := range snapshot {
		s.mids[coin] = px
	}
}

// Stop cancels the upstream subscription and clears the map.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mids = make(map[string]decimal.Decimal)
	s.started = false
	s.cancel = nil
}

// Get returns the latest mid price for coin, or false if unknown.
func (s *Service) Get(coin string) (decimal.Decimal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	px, ok := s.mids[coin]
	return px, ok
}

// GetAll returns a snapshot copy of the full coin -> price map.
func (s *Service) GetAll() map[string]decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(s.mids))
	for coin, px := range s.mids {
		out[coin] = px
	}
	return out
}

// Count returns the number of coins currently priced.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.mids)
}
