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

const fillsPollConcurrency = 5

type fillsTick struct {
	fillsByAddr map[string][]exchange.Fill
}

// fillsPollSource polls userFillsByTime since each trader's high-water mark
// on every tick, concurrency bounded across traders (no inter-batch delay:
// the endpoint's weight of 20 and the 5-minute interval keep load low).
func fillsPollSource(client *exchange.Client, listAddrs AddressLister, hwm *hwmTracker, interval time.Duration) stream.Source[fillsTick] {
	return stream.SourceFunc[fillsTick](func(ctx context.Context) (<-chan stream.Event[fillsTick], error) {
		out := make(chan stream.Event[fillsTick])
		go func() {
			defer close(out)
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					tick, err := fetchFillsTick(ctx, client, listAddrs, hwm)
					if err != nil {
						select {
						case out <- stream.Event[fillsTick]{Err: err}:
						case <-ctx.Done():
						}
						return
					}
					select {
					case out <- stream.Event[fillsTick]{Value: tick}:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
		return out, nil
	})
}

func fetchFillsTick(ctx context.Context, client *exchange.Client, listAddrs AddressLister, hwm *hwmTracker) (fillsTick, error) {
	addrs, err := listAddrs(ctx)
	if err != nil {
		return fillsTick{}, err
	}

	result := make(map[string][]exchange.Fill, len(addrs))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, fillsPollConcurrency)

	for _, addr := range addrs {
		addr := addr
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			since := hwm.get(addr)
			fills, err := client.UserFillsByTime(ctx, budget.PriorityPolling, addr, since)
			if err != nil {
				log.Printf("[ingest:fills] userFillsByTime(%s): %v", addr, err)
				return
			}
			if len(fills) == 0 {
				return
			}

			maxTime := since
			for _, f := range fills {
				if f.Time > maxTime {
					maxTime = f.Time
				}
			}
			hwm.set(addr, maxTime)

			mu.Lock()
			result[addr] = fills
			mu.Unlock()
		}()
	}
	wg.Wait()

	return fillsTick{fillsByAddr: result}, nil
}

// hwmTracker is a mutex-guarded per-address high-water mark. The Service
// keeps one for fills and one for funding; each is seeded by replayHistory
// on Start and advanced by its poll stream. Fills received over the WS path
// do not advance it, and the next poll's request starts at the mark itself.
type hwmTracker struct {
	mu sync.Mutex
	m  map[string]int64
}

func newHWMTracker() *hwmTracker {
	return &hwmTracker{m: make(map[string]int64)}
}

func (h *hwmTracker) get(addr string) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.m[addr]
}

func (h *hwmTracker) set(addr string, t int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t > h.m[addr] {
		h.m[addr] = t
	}
}
