package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hlscan/pnlindexer/internal/decimal"
	"github.com/hlscan/pnlindexer/internal/stream"
	"github.com/hlscan/pnlindexer/internal/wsclient"
)

// allMidsFrame is the payload shape of an allMids push: a flat coin -> price
// string map.
type allMidsFrame struct {
	Mids map[string]string `json:"mids"`
}

// allMidsSource wraps the single global allMids subscription as a Source of
// full coin -> price snapshots, feeding the price service on every push.
func allMidsSource(ws *wsclient.Client) stream.Source[map[string]decimal.Decimal] {
	return stream.SourceFunc[map[string]decimal.Decimal](func(ctx context.Context) (<-chan stream.Event[map[string]decimal.Decimal], error) {
		raw, unsub, err := ws.AllMids(ctx)
		if err != nil {
			return nil, fmt.Errorf("subscribe allMids: %w", err)
		}

		out := make(chan stream.Event[map[string]decimal.Decimal])
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
						case out <- stream.Event[map[string]decimal.Decimal]{Err: fmt.Errorf("allMids: upstream closed")}:
						case <-ctx.Done():
						}
						return
					}
					var frame allMidsFrame
					if err := json.Unmarshal(payload, &frame); err != nil {
						select {
						case out <- stream.Event[map[string]decimal.Decimal]{Err: fmt.Errorf("allMids: decode: %w", err)}:
						case <-ctx.Done():
						}
						continue
					}
					snapshot := make(map[string]decimal.Decimal, len(frame.Mids))
					for coin, px := range frame.Mids {
						d, err := decimal.FromString(px)
						if err != nil {
							continue
						}
						snapshot[coin] = d
					}
					select {
					case out <- stream.Event[map[string]decimal.Decimal]{Value: snapshot}:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
		return out, nil
	})
}
