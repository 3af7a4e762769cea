package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hlscan/pnlindexer/internal/exchange"
	"github.com/hlscan/pnlindexer/internal/stream"
	"github.com/hlscan/pnlindexer/internal/wsclient"
)

// userEventsFrame is the payload shape of a userEvents push for a fills event.
type userEventsFrame struct {
	Fills []exchange.Fill `json:"fills"`
}

// fillsWSSource wraps one trader's userEvents subscription as a Source of
// fill batches, the real-time complement to the fills poll. It resubscribes
// through ws on every Subscribe call, consistent with the retry operator's
// contract.
func fillsWSSource(ws *wsclient.Client, address string) stream.Source[[]exchange.Fill] {
	return stream.SourceFunc[[]exchange.Fill](func(ctx context.Context) (<-chan stream.Event[[]exchange.Fill], error) {
		raw, unsub, err := ws.UserEvents(ctx, address)
		if err != nil {
			return nil, fmt.Errorf("subscribe userEvents(%s): %w", address, err)
		}

		out := make(chan stream.Event[[]exchange.Fill])
		go func() {
			defer close(out)
			defer unsub()
			for {
				select {
				case <-ctx.Done():
					return
				case payload, ok := <-raw:
					if !ok {
						select {
						case out <- stream.Event[[]exchange.Fill]{Err: fmt.Errorf("userEvents(%s): upstream closed", address)}:
						case <-ctx.Done():
						}
						return
					}
					var frame userEventsFrame
					if err := json.Unmarshal(payload, &frame); err != nil {
						continue // not a fills frame (e.g. liquidation/funding push); ignore
					}
					if len(frame.Fills) == 0 {
						continue
					}
					select {
					case out <- stream.Event[[]exchange.Fill]{Value: frame.Fills}:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
		return out, nil
	})
}
