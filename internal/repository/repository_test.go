package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/hlscan/pnlindexer/internal/decimal"
	"github.com/hlscan/pnlindexer/internal/models"
)

// testRepo connects against TEST_DATABASE_URL when set; these are the only
// tests in the package that touch a real database, and are skipped in
// environments without one configured (CI provides it; a bare `go test`
// laptop run does not).
func testRepo(t *testing.T) *Repository {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping repository integration test")
	}
	repo, err := NewRepository(url)
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	t.Cleanup(repo.Close)
	return repo
}

func TestUpsertTraderIsIdempotent(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	id1, err := repo.UpsertTrader(ctx, "0xabc0000000000000000000000000000000000a", time.Now())
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	id2, err := repo.UpsertTrader(ctx, "0xabc0000000000000000000000000000000000a", time.Now())
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected stable id across upserts, got %d then %d", id1, id2)
	}
}

func TestInsertTradesDuplicateTidIsNoOp(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	traderID, err := repo.UpsertTrader(ctx, "0xabc0000000000000000000000000000000000b", time.Now())
	if err != nil {
		t.Fatalf("upsert trader: %v", err)
	}

	trade := models.Trade{
		TraderID:  traderID,
		Tid:       12345,
		Coin:      "BTC",
		Side:      "A",
		Size:      decimal.MustFromString("1.5"),
		Price:     decimal.MustFromString("60000"),
		ClosedPnl: decimal.MustFromString("10"),
		Fee:       decimal.MustFromString("0.5"),
		Timestamp: time.Now().UnixMilli(),
	}

	if err := repo.InsertTrades(ctx, []models.Trade{trade}); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := repo.InsertTrades(ctx, []models.Trade{trade}); err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}

	got, err := repo.TradesSince(ctx, traderID, 0)
	if err != nil {
		t.Fatalf("trades since: %v", err)
	}
	count := 0
	for _, tr := range got {
		if tr.Tid == 12345 {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 row for tid 12345, got %d", count)
	}
}

func TestUpsertSnapshotReplacesOnConflict(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	traderID, err := repo.UpsertTrader(ctx, "0xabc0000000000000000000000000000000000c", time.Now())
	if err != nil {
		t.Fatalf("upsert trader: %v", err)
	}

	ts := time.Now().UnixMilli()
	first := models.PnLSnapshot{TraderID: traderID, Timestamp: ts, TotalPnl: decimal.MustFromString("100")}
	if err := repo.UpsertSnapshot(ctx, first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second := first
	second.TotalPnl = decimal.MustFromString("200")
	if err := repo.UpsertSnapshot(ctx, second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := repo.LatestSnapshot(ctx, traderID)
	if err != nil {
		t.Fatalf("latest snapshot: %v", err)
	}
	if got.TotalPnl.Cmp(decimal.MustFromString("200")) != 0 {
		t.Fatalf("expected replaced total_pnl 200, got %s", got.TotalPnl)
	}
}
