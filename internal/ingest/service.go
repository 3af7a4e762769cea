package ingest

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/hlscan/pnlindexer/internal/addr"
	"github.com/hlscan/pnlindexer/internal/budget"
	"github.com/hlscan/pnlindexer/internal/decimal"
	"github.com/hlscan/pnlindexer/internal/exchange"
	"github.com/hlscan/pnlindexer/internal/gap"
	"github.com/hlscan/pnlindexer/internal/models"
	"github.com/hlscan/pnlindexer/internal/pnl"
	"github.com/hlscan/pnlindexer/internal/price"
	"github.com/hlscan/pnlindexer/internal/stream"
	"github.com/hlscan/pnlindexer/internal/wsclient"
)

// Config holds the poll intervals and retry/breaker tuning for a Service,
// one env-var-sourced field per knob an operator can tune at deploy time.
type Config struct {
	PositionPollInterval time.Duration
	FillsPollInterval    time.Duration
	FundingPollInterval  time.Duration
	SnapshotInterval     time.Duration
	Retry                stream.RetryConfig
	Breaker              stream.BreakerConfig
}

// DefaultConfig returns the documented interval defaults.
func DefaultConfig() Config {
	return Config{
		PositionPollInterval: 30 * time.Second,
		FillsPollInterval:    5 * time.Minute,
		FundingPollInterval:  1 * time.Hour,
		SnapshotInterval:     60 * time.Second,
	}
}

// storage is the subset of *repository.Repository the service writes
// through; kept as an interface so Service can be exercised without a
// database.
type storage interface {
	UpsertTrader(ctx context.Context, address string, now time.Time) (int64, error)
	Deactivate(ctx context.Context, address string) error
	ActiveTraders(ctx context.Context) ([]string, error)
	TraderIDByAddress(ctx context.Context, address string) (int64, error)
	InsertTrades(ctx context.Context, trades []models.Trade) error
	InsertFunding(ctx context.Context, events []models.FundingEvent) error
	UpsertSnapshot(ctx context.Context, s models.PnLSnapshot) error
	LatestSnapshot(ctx context.Context, traderID int64) (*models.PnLSnapshot, error)
	TradesSince(ctx context.Context, traderID int64, sinceMillis int64) ([]models.Trade, error)
	FundingSince(ctx context.Context, traderID int64, sinceMillis int64) ([]models.FundingEvent, error)
}

// Service is the top-level orchestrator: it owns the rate-budget
// scheduler, the exchange HTTP and WS clients, the price service, every
// source stream, the live per-trader PnL state map, and the gap detector.
type Service struct {
	cfg       Config
	client    *exchange.Client
	ws        *wsclient.Client
	scheduler *budget.Scheduler
	repo      storage
	prices    *price.Service
	detector  *gap.Detector

	mu            sync.Mutex
	states        map[string]*pnl.State
	cancels       map[string]context.CancelFunc
	accountValues map[string]decimal.Decimal

	fillsHWM   *hwmTracker
	fundingHWM *hwmTracker

	events chan Event

	wg sync.WaitGroup
}

// NewService wires every collaborator; the caller is responsible for
// starting repo/price lifecycle elsewhere (main.go) before calling Start.
func NewService(cfg Config, client *exchange.Client, ws *wsclient.Client, scheduler *budget.Scheduler, repo storage, prices *price.Service, detector *gap.Detector) *Service {
	return &Service{
		cfg:           cfg,
		client:        client,
		ws:            ws,
		scheduler:     scheduler,
		repo:          repo,
		prices:        prices,
		detector:      detector,
		states:        make(map[string]*pnl.State),
		cancels:       make(map[string]context.CancelFunc),
		accountValues: make(map[string]decimal.Decimal),
		fillsHWM:      newHWMTracker(),
		fundingHWM:    newHWMTracker(),
		events:        make(chan Event, 256),
	}
}

// Events returns the typed output channel of {type, address, data,
// timestamp} events, consumed by the persistence layer and the (out of
// scope) read API.
func (s *Service) Events() <-chan Event {
	return s.events
}

// Run starts the process-wide streams (price service, global tick-based
// streams) and blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	s.startAllMids(ctx)
	s.startPositions(ctx)
	s.startFillsPoll(ctx)
	s.startFundingPoll(ctx)
	s.startSnapshotTicker(ctx)

	<-ctx.Done()
	s.wg.Wait()
	close(s.events)
}

// Start begins ingestion for address: idempotent if already started. It
// registers/reactivates the trader in storage, reconstructs its in-memory
// PnL state from the last persisted snapshot plus every trade/funding event
// since (per spec.md §3's "PnLState is owned by the ingester and
// reconstructed on restart from persisted snapshots and trades for the
// relevant window"), and opens a per-trader userEvents WS subscription.
func (s *Service) Start(ctx context.Context, address string) error {
	address, err := addr.Normalize(address)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if _, already := s.states[address]; already {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	traderID, err := s.repo.UpsertTrader(ctx, address, time.Now())
	if err != nil {
		return err
	}

	state, sinceMillis := s.resumeState(ctx, traderID, address)
	s.replayHistory(ctx, state, traderID, address, sinceMillis)

	traderCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.states[address] = state
	s.cancels[address] = cancel
	s.mu.Unlock()

	s.startFillsWS(traderCtx, address, traderID)
	return nil
}

// resumeState seeds a fresh pnl.State from traderID's last persisted
// snapshot, if any, and returns the millis cutoff from which
// replayHistory must still fold trades/funding to bring the state current.
// The snapshot's already-netted trading_pnl/funding_pnl columns seed
// RealizedTradingPnl/RealizedFundingPnl directly; TotalFees resets to zero
// alongside the trading baseline, since CalculatePnL only ever reads the
// netted difference (trading = RealizedTradingPnl - TotalFees) and future
// ApplyTrade fee deductions still net out correctly relative to that
// baseline without needing the original fee total recovered separately.
func (s *Service) resumeState(ctx context.Context, traderID int64, address string) (*pnl.State, int64) {
	state := pnl.Initial(traderID, address)

	snap, err := s.repo.LatestSnapshot(ctx, traderID)
	if err != nil {
		log.Printf("[ingest] resume snapshot lookup for %s: %v", address, err)
		return state, 0
	}
	if snap == nil {
		return state, 0
	}

	state.RealizedTradingPnl = snap.TradingPnl
	state.RealizedFundingPnl = snap.FundingPnl
	state.TotalVolume = snap.TotalVolume
	state.LastUpdated = snap.Timestamp
	return state, snap.Timestamp
}

// replayHistory folds every trade and funding event persisted since
// sinceMillis onto state, bringing a resumed trader's counters forward from
// its snapshot baseline to the present, and seeds the shared fills/funding
// high-water-mark trackers from the max timestamp observed so the fills and
// funding polls resume from there instead of re-fetching from zero.
// InsertTrades/InsertFunding are upsert-ignore on their natural keys, so
// this replay and the first post-resume poll can never double-apply a row.
func (s *Service) replayHistory(ctx context.Context, state *pnl.State, traderID int64, address string, sinceMillis int64) {
	trades, err := s.repo.TradesSince(ctx, traderID, sinceMillis)
	if err != nil {
		log.Printf("[ingest] resume trades for %s: %v", address, err)
	}
	var maxTradeTime int64
	for _, t := range trades {
		pnl.ApplyTrade(state, t)
		if t.Timestamp > maxTradeTime {
			maxTradeTime = t.Timestamp
		}
	}
	if maxTradeTime > 0 {
		s.fillsHWM.set(address, maxTradeTime)
	}

	funding, err := s.repo.FundingSince(ctx, traderID, sinceMillis)
	if err != nil {
		log.Printf("[ingest] resume funding for %s: %v", address, err)
	}
	var maxFundingTime int64
	for _, f := range funding {
		pnl.ApplyFunding(state, f)
		if f.Time > maxFundingTime {
			maxFundingTime = f.Time
		}
	}
	if maxFundingTime > 0 {
		s.fundingHWM.set(address, maxFundingTime)
	}
}

// Stop unsubscribes address: its WS subscription is cancelled and it is
// deactivated in storage so the next tick's active-trader list excludes it.
func (s *Service) Stop(ctx context.Context, address string) error {
	address, err := addr.Normalize(address)
	if err != nil {
		return err
	}

	s.mu.Lock()
	cancel, ok := s.cancels[address]
	delete(s.cancels, address)
	delete(s.states, address)
	delete(s.accountValues, address)
	s.mu.Unlock()

	if ok {
		cancel()
	}
	return s.repo.Deactivate(ctx, address)
}

func (s *Service) listActiveAddrs(ctx context.Context) ([]string, error) {
	return s.repo.ActiveTraders(ctx)
}

func (s *Service) stateFor(address string) (*pnl.State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[address]
	return st, ok
}

func (s *Service) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		log.Printf("[ingest] event channel full, dropping %s event for %s", ev.Type, ev.Address)
	}
}

func (s *Service) startAllMids(ctx context.Context) {
	src := stream.Compose[map[string]decimal.Decimal]("allMids", allMidsSource(s.ws), s.cfg.Retry, s.cfg.Breaker)
	ch, err := src.Subscribe(ctx)
	if err != nil {
		log.Printf("[ingest] allMids subscribe: %v", err)
		return
	}

	bridged := make(chan map[string]decimal.Decimal)
	s.prices.Start(bridged, func() {})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(bridged)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if ev.Err != nil {
					log.Printf("[ingest] allMids stream error: %v", ev.Err)
					continue
				}
				select {
				case bridged <- ev.Value:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
}

func (s *Service) startPositions(ctx context.Context) {
	src := stream.Compose[positionsResult]("positions", positionsSource(s.client, s.listActiveAddrs, s.cfg.PositionPollInterval), s.cfg.Retry, s.cfg.Breaker)
	ch, err := src.Subscribe(ctx)
	if err != nil {
		log.Printf("[ingest] positions subscribe: %v", err)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if ev.Err != nil {
					log.Printf("[ingest] positions stream error: %v", ev.Err)
					continue
				}
				s.applyPositionsTick(ev.Value)
			}
		}
	}()
}

func (s *Service) applyPositionsTick(res positionsResult) {
	for address, cs := range res.states {
		st, ok := s.stateFor(address)
		if !ok {
			continue
		}
		positions, accountValue := clearinghouseToPositions(cs)
		s.mu.Lock()
		pnl.UpdatePositions(st, positions)
		pnl.RefreshUnrealized(st, s.prices.Get)
		s.accountValues[address] = accountValue
		s.mu.Unlock()
	}
}

func (s *Service) startFillsPoll(ctx context.Context) {
	src := stream.Compose[fillsTick]("fills-poll", fillsPollSource(s.client, s.listActiveAddrs, s.fillsHWM, s.cfg.FillsPollInterval), s.cfg.Retry, s.cfg.Breaker)
	ch, err := src.Subscribe(ctx)
	if err != nil {
		log.Printf("[ingest] fills-poll subscribe: %v", err)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if ev.Err != nil {
					log.Printf("[ingest] fills-poll stream error: %v", ev.Err)
					continue
				}
				for address, fills := range ev.Value.fillsByAddr {
					s.applyFills(ctx, address, fills)
				}
			}
		}
	}()
}

func (s *Service) applyFills(ctx context.Context, address string, fills []exchange.Fill) {
	st, ok := s.stateFor(address)
	if !ok {
		return
	}

	trades := make([]models.Trade, 0, len(fills))
	s.mu.Lock()
	for _, f := range fills {
		trade := fillToTrade(st.TraderID, f)
		pnl.ApplyTrade(st, trade)
		trades = append(trades, trade)
	}
	s.mu.Unlock()

	if err := s.repo.InsertTrades(ctx, trades); err != nil {
		log.Printf("[ingest] insert trades for %s: %v", address, err)
	}
	for i := range trades {
		s.emit(Event{Type: EventFill, Address: address, Fill: &trades[i], Timestamp: trades[i].Timestamp})
	}
}

func (s *Service) startFillsWS(ctx context.Context, address string, traderID int64) {
	if s.ws == nil {
		return
	}
	src := stream.Compose[[]exchange.Fill]("fills-ws:"+address, fillsWSSource(s.ws, address), s.cfg.Retry, s.cfg.Breaker)
	ch, err := src.Subscribe(ctx)
	if err != nil {
		log.Printf("[ingest] fills-ws subscribe(%s): %v", address, err)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if ev.Err != nil {
					log.Printf("[ingest] fills-ws(%s) stream error: %v", address, ev.Err)
					continue
				}
				s.applyFills(ctx, address, ev.Value)
			}
		}
	}()
}

func (s *Service) startFundingPoll(ctx context.Context) {
	src := stream.Compose[fundingTick]("funding", fundingPollSource(s.client, s.listActiveAddrs, s.fundingHWM, s.cfg.FundingPollInterval), s.cfg.Retry, s.cfg.Breaker)
	ch, err := src.Subscribe(ctx)
	if err != nil {
		log.Printf("[ingest] funding subscribe: %v", err)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if ev.Err != nil {
					log.Printf("[ingest] funding stream error: %v", ev.Err)
					continue
				}
				for address, entries := range ev.Value.entriesByAddr {
					s.applyFunding(ctx, address, entries)
				}
			}
		}
	}()
}

func (s *Service) applyFunding(ctx context.Context, address string, entries []exchange.FundingEntry) {
	st, ok := s.stateFor(address)
	if !ok {
		return
	}

	events := make([]models.FundingEvent, 0, len(entries))
	s.mu.Lock()
	for _, e := range entries {
		fe := fundingToEvent(st.TraderID, e)
		pnl.ApplyFunding(st, fe)
		events = append(events, fe)
	}
	s.mu.Unlock()

	if err := s.repo.InsertFunding(ctx, events); err != nil {
		log.Printf("[ingest] insert funding for %s: %v", address, err)
	}
	for i := range events {
		s.emit(Event{Type: EventFunding, Address: address, Funding: &events[i], Timestamp: events[i].Time})
	}
}

func (s *Service) startSnapshotTicker(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.SnapshotInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.snapshotAll(ctx)
			}
		}
	}()
}

func (s *Service) snapshotAll(ctx context.Context) {
	s.mu.Lock()
	addrs := make([]string, 0, len(s.states))
	for address := range s.states {
		addrs = append(addrs, address)
	}
	s.mu.Unlock()

	now := time.Now().UnixMilli()
	for _, address := range addrs {
		st, ok := s.stateFor(address)
		if !ok {
			continue
		}
		s.mu.Lock()
		var accountValue *decimal.Decimal
		if av, ok := s.accountValues[address]; ok {
			accountValue = &av
		}
		snap := pnl.Snapshot(st, now, accountValue)
		s.mu.Unlock()

		if err := s.repo.UpsertSnapshot(ctx, snap); err != nil {
			log.Printf("[ingest] upsert snapshot for %s: %v", address, err)
			continue
		}
		if s.detector != nil {
			s.detector.OnSnapshot(ctx, snap.TraderID, snap.Timestamp)
		}
		s.emit(Event{Type: EventSnapshot, Address: address, Snapshot: &snap, Timestamp: snap.Timestamp})
	}
}
