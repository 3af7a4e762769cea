package price

import (
	"testing"
	"time"

	"github.com/hlscan/pnlindexer/internal/decimal"
)

func TestStartAppliesUpdatesAndGet(t *testing.T) {
	s := New()
	updates := make(chan map[string]decimal.Decimal, 1)
	s.Start(updates, func() {})

	updates <- map[string]decimal.Decimal{"BTC": decimal.MustFromString("50000")}
	close(updates)

	waitUntil(t, func() bool {
		_, ok := s.Get("BTC")
		return ok
	})

	px, ok := s.Get("BTC")
	if !ok || px.Cmp(decimal.MustFromString("50000")) != 0 {
		t.Fatalf("expected BTC=50000, got %s ok=%v", px, ok)
	}
	if s.Count() != 1 {
		t.Fatalf("expected count 1, got %d", s.Count())
	}
}

func TestLaterUpdatesOverwriteEarlierOnes(t *testing.T) {
	s := New()
	updates := make(chan map[string]decimal.Decimal, 2)
	s.Start(updates, func() {})

	updates <- map[string]decimal.Decimal{"ETH": decimal.MustFromString("3000")}
	updates <- map[string]decimal.Decimal{"ETH": decimal.MustFromString("3100")}
	close(updates)

	waitUntil(t, func() bool {
		px, ok := s.Get("ETH")
		return ok && px.Cmp(decimal.MustFromString("3100")) == 0
	})
}

func TestStopClearsMapAndCancels(t *testing.T) {
	s := New()
	updates := make(chan map[string]decimal.Decimal, 1)
	var cancelled bool
	s.Start(updates, func() { cancelled = true })

	updates <- map[string]decimal.Decimal{"BTC": decimal.MustFromString("1")}
	waitUntil(t, func() bool { return s.Count() == 1 })

	s.Stop()
	if !cancelled {
		t.Fatalf("expected Stop to invoke cancel")
	}
	if s.Count() != 0 {
		t.Fatalf("expected map cleared after Stop")
	}
}

func TestStartIsIdempotentAfterStop(t *testing.T) {
	s := New()
	u1 := make(chan map[string]decimal.Decimal, 1)
	s.Start(u1, func() {})
	s.Stop()

	u2 := make(chan map[string]decimal.Decimal, 1)
	s.Start(u2, func() {})
	u2 <- map[string]decimal.Decimal{"SOL": decimal.MustFromString("100")}
	close(u2)

	waitUntil(t, func() bool {
		_, ok := s.Get("SOL")
		return ok
	})
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
