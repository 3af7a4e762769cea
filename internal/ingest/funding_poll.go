package ingest

import (
	"context"
	"log"
	"time"

	"github.com/hlscan/pnlindexer/internal/budget"
	"github.com/hlscan/pnlindexer/internal/exchange"
	"github.com/hlscan/pnlindexer/internal/stream"
)

type fundingTick struct {
	entriesByAddr map[string][]exchange.FundingEntry
}

// fundingPollSource polls userFunding since each trader's funding high-water
// mark, sequentially (funding is low-rate relative to fills, so no inner
// concurrency is needed).
func fundingPollSource(client *exchange.Client, listAddrs AddressLister, hwm *hwmTracker, interval time.Duration) stream.Source[fundingTick] {
	return stream.SourceFunc[fundingTick](func(ctx context.Context) (<-chan stream.Event[fundingTick], error) {
		out := make(chan stream.Event[fundingTick])
		go func() {
			defer close(out)
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					tick, err := fetchFundingTick(ctx, client, listAddrs, hwm)
					if err != nil {
						select {
						case out <- stream.Event[fundingTick]{Err: err}:
						case <-ctx.Done():
						}
						return
					}
					select {
					case out <- stream.Event[fundingTick]{Value: tick}:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
		return out, nil
	})
}

func fetchFundingTick(ctx context.Context, client *exchange.Client, listAddrs AddressLister, hwm *hwmTracker) (fundingTick, error) {
	addrs, err := listAddrs(ctx)
	if err != nil {
		return fundingTick{}, err
	}

	result := make(map[string][]exchange.FundingEntry, len(addrs))
	for _, addr := range addrs {
		since := hwm.get(addr)
		entries, err := client.UserFunding(ctx, budget.PriorityPolling, addr, since)
		if err != nil {
			log.Printf("[ingest:funding] userFunding(%s): %v", addr, err)
			continue
		}
		if len(entries) == 0 {
			continue
		}

		maxTime := since
		for _, e := range entries {
			if e.Time > maxTime {
				maxTime = e.Time
			}
		}
		hwm.set(addr, maxTime)
		result[addr] = entries
	}

	return fundingTick{entriesByAddr: result}, nil
}
