package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/hlscan/pnlindexer/internal/budget"
)

func TestWeightOfKnownAndDefault(t *testing.T) {
	if WeightOf(TypeClearinghouseState) != 2 {
		t.Fatalf("expected clearinghouseState weight 2")
	}
	if WeightOf(TypeUserFillsByTime) != 20 {
		t.Fatalf("expected userFillsByTime weight 20")
	}
	if WeightOf(RequestType("somethingUnlisted")) != DefaultWeight {
		t.Fatalf("expected default weight for unlisted type")
	}
}

func TestClearinghouseStateDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req InfoRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Type != TypeClearinghouseState || req.User != "0xabc" {
			t.Errorf("unexpected request: %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"assetPositions":[{"coin":"BTC","szi":"1.5","entryPx":"50000","positionValue":"75000","unrealizedPnl":"100"}],"marginSummary":{"accountValue":"1000"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, budget.New())
	state, err := c.ClearinghouseState(context.Background(), budget.PriorityPolling, "0xabc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(state.AssetPositions) != 1 || state.AssetPositions[0].Coin != "BTC" {
		t.Fatalf("unexpected decoded state: %+v", state)
	}
}

func TestPostInfoRetriesTransientThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, budget.New())
	_, err := c.ClearinghouseState(context.Background(), budget.PriorityPolling, "0xabc")
	if err != nil {
		t.Fatalf("expected eventual success after transient retry, got: %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected exactly 2 calls (1 failure + 1 success), got %d", calls)
	}
}

func TestPostInfoDoesNotRetryProtocolError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`not-json`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, budget.New())
	_, err := c.ClearinghouseState(context.Background(), budget.PriorityPolling, "0xabc")
	if err == nil {
		t.Fatalf("expected protocol error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly 1 call, protocol errors are not retried, got %d", calls)
	}
}

func TestPostInfoDoesNotRetryClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, budget.New())
	_, err := c.ClearinghouseState(context.Background(), budget.PriorityPolling, "0xabc")
	if err == nil {
		t.Fatalf("expected exchange error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly 1 call, 4xx is not transient, got %d", calls)
	}
}

func TestAllMidsDecodesMap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"BTC":"50000.5","ETH":"3000.25"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, budget.New())
	mids, err := c.AllMids(context.Background(), budget.PriorityPolling)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mids["BTC"] != "50000.5" || mids["ETH"] != "3000.25" {
		t.Fatalf("unexpected mids: %+v", mids)
	}
}

func TestAwaitBudgetReturnsErrorWhenRefusedAndCancelled(t *testing.T) {
	s := budget.New()
	// Fill the budget so every subsequent backfill record refuses immediately.
	s.Record(budget.PriorityUser, budget.Target)

	c := &Client{scheduler: s}
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancelled context makes awaitBudget return immediately on first wait
	err := c.awaitBudget(ctx, budget.PriorityBackfill, 20)
	if err == nil {
		t.Fatalf("expected error when context is already cancelled and budget refused")
	}
}
