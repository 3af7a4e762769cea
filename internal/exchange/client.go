package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/hlscan/pnlindexer/internal/budget"
	"golang.org/x/time/rate"
)

const (
	// retryInitialDelay, retryMultiplier, retryMaxDelay, retryMaxAttempts govern
	// the exponential backoff applied by postInfo's higher-level helpers.
	retryInitialDelay = 1 * time.Second
	retryMultiplier   = 2
	retryMaxDelay     = 30 * time.Second
	retryMaxAttempts  = 3

	// budgetMaxRefusals is the number of times a non-user request will back off
	// and retry after a scheduler refusal before aborting as budget-exhausted.
	budgetMaxRefusals = 30
)

// Client is the single entry point for exchange /info requests. One Client
// is shared process-wide so every caller draws against the same Scheduler.
type Client struct {
	httpClient *http.Client
	scheduler  *budget.Scheduler
	limiter    *rate.Limiter
	baseURL    string
}

// NewClient builds a Client against baseURL (e.g. "https://api.hyperliquid.xyz"),
// sharing the given Scheduler with every other caller in the process. Besides
// the scheduler's per-minute weight accounting, requests are paced through a
// token-bucket limiter so a burst of admitted calls doesn't all leave in the
// same instant; EXCHANGE_REQUESTS_PER_SEC/EXCHANGE_REQUEST_BURST override the
// defaults derived from the scheduler's target.
func NewClient(baseURL string, scheduler *budget.Scheduler) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		scheduler:  scheduler,
		limiter:    newLimiterFromEnv(),
		baseURL:    baseURL,
	}
}

func newLimiterFromEnv() *rate.Limiter {
	rps := budget.Target / 60
	if rps < 1 {
		rps = 1
	}
	if v := os.Getenv("EXCHANGE_REQUESTS_PER_SEC"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			rps = parsed
		}
	}

	burst := rps * 2
	if v := os.Getenv("EXCHANGE_REQUEST_BURST"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			burst = parsed
		}
	}

	return rate.NewLimiter(rate.Limit(rps), burst)
}

// postInfo is the single low-level entry point: look up the request's weight,
// wait for budget admission, POST the body, and decode into out.
func (c *Client) postInfo(ctx context.Context, req InfoRequest, priority budget.Priority, out any) error {
	weight := WeightOf(req.Type)

	if err := c.awaitBudget(ctx, priority, weight); err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("exchange: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/info", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("exchange: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &TransientNetworkError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransientNetworkError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if IsTransient(resp.StatusCode) {
			return &TransientNetworkError{Err: &ExchangeError{Status: resp.StatusCode, Body: string(respBody)}}
		}
		return &ExchangeError{Status: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return &ProtocolError{RequestType: req.Type, Err: err}
		}
	}
	return nil
}

// awaitBudget records against the scheduler, jittered-retrying non-user
// priorities up to budgetMaxRefusals times on refusal. user priority is
// cap-bound (MAX), not target-bound, so it only fails once MAX itself is
// exhausted for the window -- it still goes through the same refusal loop,
// it simply refuses far less often in practice.
func (c *Client) awaitBudget(ctx context.Context, priority budget.Priority, weight int) error {
	for attempt := 0; attempt < budgetMaxRefusals; attempt++ {
		if c.scheduler.Record(priority, weight) {
			return nil
		}
		wait := 2000*time.Millisecond + time.Duration(rand.Intn(3000))*time.Millisecond
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return &budget.ErrBudgetExhausted{Priority: priority, Weight: weight, Attempts: budgetMaxRefusals}
}

// withRetry wraps fn with exponential backoff: initial 1s, multiplier 2,
// capped at 30s, at most retryMaxAttempts attempts. Only TransientNetworkError
// is retried; every other error (including ProtocolError and budget exhaustion)
// propagates immediately.
func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	delay := retryInitialDelay
	var lastErr error
	for attempt := 0; attempt < retryMaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		var transient *TransientNetworkError
		if !asTransient(err, &transient) {
			return err
		}
		if attempt == retryMaxAttempts-1 {
			break
		}
		log.Printf("[exchange] transient error (attempt %d/%d), retrying in %s: %v", attempt+1, retryMaxAttempts, delay, err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= retryMultiplier
		if delay > retryMaxDelay {
			delay = retryMaxDelay
		}
	}
	return fmt.Errorf("exchange: retries exhausted: %w", lastErr)
}

func asTransient(err error, target **TransientNetworkError) bool {
	t, ok := err.(*TransientNetworkError)
	if ok {
		*target = t
	}
	return ok
}

// ClearinghouseState fetches the authoritative position snapshot for a trader.
func (c *Client) ClearinghouseState(ctx context.Context, priority budget.Priority, address string) (*ClearinghouseState, error) {
	var out ClearinghouseState
	err := c.withRetry(ctx, func() error {
		return c.postInfo(ctx, InfoRequest{Type: TypeClearinghouseState, User: address}, priority, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UserFillsByTime fetches fills for a trader since sinceMillis (inclusive).
func (c *Client) UserFillsByTime(ctx context.Context, priority budget.Priority, address string, sinceMillis int64) ([]Fill, error) {
	var out []Fill
	err := c.withRetry(ctx, func() error {
		return c.postInfo(ctx, InfoRequest{Type: TypeUserFillsByTime, User: address, StartTime: sinceMillis}, priority, &out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UserFunding fetches funding events for a trader since sinceMillis (inclusive).
func (c *Client) UserFunding(ctx context.Context, priority budget.Priority, address string, sinceMillis int64) ([]FundingEntry, error) {
	var out []FundingEntry
	err := c.withRetry(ctx, func() error {
		return c.postInfo(ctx, InfoRequest{Type: TypeUserFunding, User: address, StartTime: sinceMillis}, priority, &out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AllMids fetches the full coin -> mid-price map in a single request.
func (c *Client) AllMids(ctx context.Context, priority budget.Priority) (map[string]string, error) {
	var out map[string]string
	err := c.withRetry(ctx, func() error {
		return c.postInfo(ctx, InfoRequest{Type: TypeAllMids}, priority, &out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
