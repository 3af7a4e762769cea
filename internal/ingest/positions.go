package ingest

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/hlscan/pnlindexer/internal/budget"
	"github.com/hlscan/pnlindexer/internal/exchange"
	"github.com/hlscan/pnlindexer/internal/stream"
)

const (
	positionsBatchSize         = 50
	positionsInnerConcurrency  = 10
	positionsBatchDelay        = 1 * time.Second
)

// positionsResult is one tick's clearinghouseState fetches, keyed by address.
type positionsResult struct {
	states map[string]*exchange.ClearinghouseState
}

// AddressLister returns the current set of active trader addresses; the
// positions/fills/funding streams re-fetch this at the top of every tick so
// newly-started traders are picked up without a restart.
type AddressLister func(ctx context.Context) ([]string, error)

// positionsSource polls clearinghouseState for every active trader, starting
// immediately on subscribe and then on each tick of interval thereafter, in
// batches of positionsBatchSize with positionsInnerConcurrency fetches in
// flight per batch and a pause between batches, a bounded-parallel fan-out
// over the active trader set.
func positionsSource(client *exchange.Client, listAddrs AddressLister, interval time.Duration) stream.Source[positionsResult] {
	return stream.SourceFunc[positionsResult](func(ctx context.Context) (<-chan stream.Event[positionsResult], error) {
		out := make(chan stream.Event[positionsResult])
		go func() {
			defer close(out)
			emit := func() bool {
				res, err := fetchPositionsTick(ctx, client, listAddrs)
				if err != nil {
					select {
					case out <- stream.Event[positionsResult]{Err: err}:
					case <-ctx.Done():
					}
					return false
				}
				select {
				case out <- stream.Event[positionsResult]{Value: res}:
				case <-ctx.Done():
					return false
				}
				return true
			}

			if !emit() {
				return
			}

			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if !emit() {
						return
					}
				}
			}
		}()
		return out, nil
	})
}

func fetchPositionsTick(ctx context.Context, client *exchange.Client, listAddrs AddressLister) (positionsResult, error) {
	addrs, err := listAddrs(ctx)
	if err != nil {
		return positionsResult{}, err
	}

	states := make(map[string]*exchange.ClearinghouseState, len(addrs))
	var mu sync.Mutex

	for start := 0; start < len(addrs); start += positionsBatchSize {
		end := start + positionsBatchSize
		if end > len(addrs) {
			end = len(addrs)
		}
		batch := addrs[start:end]

		var wg sync.WaitGroup
		sem := make(chan struct{}, positionsInnerConcurrency)
		for _, addr := range batch {
			addr := addr
			sem <- struct{}{}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				st, err := client.ClearinghouseState(ctx, budget.PriorityPolling, addr)
				if err != nil {
					log.Printf("[ingest:positions] clearinghouseState(%s): %v", addr, err)
					return
				}
				mu.Lock()
				states[addr] = st
				mu.Unlock()
			}()
		}
		wg.Wait()

		if end < len(addrs) {
			select {
			case <-time.After(positionsBatchDelay):
			case <-ctx.Done():
				return positionsResult{states: states}, ctx.Err()
			}
		}
	}

	return positionsResult{states: states}, nil
}
