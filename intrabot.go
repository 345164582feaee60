// Package intrabot wires the intraday simulation pipeline: historical
// candles are replayed as a deterministic tick stream and driven through
// aggregation, strategies, risk checks, order execution, position tracking,
// trailing stops and the session time controller, all on one goroutine.
package intrabot

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/raykavin/intrabot/aggregator"
	"github.com/raykavin/intrabot/config"
	"github.com/raykavin/intrabot/core"
	"github.com/raykavin/intrabot/exchange"
	"github.com/raykavin/intrabot/notification"
	"github.com/raykavin/intrabot/order"
	"github.com/raykavin/intrabot/pkg/detrand"
	"github.com/raykavin/intrabot/risk"
	"github.com/raykavin/intrabot/simulator"
	"github.com/raykavin/intrabot/storage"
	"github.com/raykavin/intrabot/strategy"
	"github.com/raykavin/intrabot/trailing"
)

// Bot owns every pipeline component for one simulation session.
type Bot struct {
	cfg *config.Config
	log core.Logger

	feed       core.DataAdapter
	broker     *exchange.SimulatedBroker
	agg        *aggregator.Aggregator
	strategies *strategy.Manager
	trailing   *trailing.Manager
	riskMgr    *risk.Manager
	orders     *order.Manager
	positions  *order.PositionManager
	market     *simulator.Market
	store      *storage.Safe
	storeInner core.DataManager
	notifier   core.Notifier
	rng        *detrand.Source

	summaries map[string]*order.TradeSummary
	clock     *simulator.TimeController
	runDate   time.Time
	running   bool
}

// New builds a fully wired bot from the configuration.
func New(cfg *config.Config, log core.Logger, options ...Option) (*Bot, error) {
	b := &Bot{
		cfg:       cfg,
		log:       log,
		rng:       detrand.New(uint64(cfg.Simulation.Seed)),
		summaries: make(map[string]*order.TradeSummary),
		notifier:  notification.Nop{},
	}

	for _, option := range options {
		option(b)
	}

	if b.broker == nil {
		b.broker = exchange.NewSimulatedBroker(cfg.Risk.Capital, b.rng, log)
	}
	if b.feed == nil {
		feed, err := newCSVFeed(cfg.Data)
		if err != nil {
			return nil, err
		}
		b.feed = feed
	}

	agg, err := aggregator.New(cfg.Simulation.Timeframes, log)
	if err != nil {
		return nil, err
	}
	b.agg = agg

	b.positions = order.NewPositionManager(log)
	b.riskMgr = risk.NewManager(risk.Limits{
		PerStrategyCap: cfg.Risk.PerStrategyCap,
		GlobalCap:      cfg.Risk.GlobalCap,
		NotionalCap:    cfg.Risk.NotionalCap,
		DailyLossCap:   cfg.Risk.DailyLossCap,
	}, cfg.Risk.Capital, b.positions, log)
	b.orders = order.NewManager(b.broker, b.riskMgr.AvailableCapital, log,
		order.WithAllocationPct(cfg.Order.AllocationPct))
	b.trailing = trailing.NewManager(trailing.Config{}, log)

	if err := b.buildStrategies(); err != nil {
		return nil, err
	}
	if err := b.buildStorage(); err != nil {
		return nil, err
	}
	b.wireAggregator()

	b.market = simulator.NewMarket(b.rng, log,
		simulator.WithTicksPerCandle(cfg.Simulation.TicksPerCandle),
		simulator.WithSpread(cfg.Simulation.Spread),
		simulator.WithSpeed(int(cfg.Simulation.Speed)),
		simulator.WithAggregator(b.agg),
	)

	return b, nil
}

// buildStrategies instantiates and initializes every configured strategy and
// binds its trailing policy.
func (b *Bot) buildStrategies() error {
	b.strategies = strategy.NewManager(b.log)

	for _, sc := range b.cfg.Strategies {
		s, err := strategy.New(sc.Class, sc.ID, strategy.Params(sc.Params))
		if err != nil {
			return err
		}
		if err := s.Initialize(strategy.Deps{
			Log:      b.log.WithField("strategy", sc.ID),
			Trailing: b.trailing,
			Account:  b.accountSnapshot,
		}); err != nil {
			return fmt.Errorf("strategy %s: %w", sc.ID, err)
		}
		if sc.Trailing.Policy != "" {
			b.trailing.ConfigureStrategy(sc.ID, sc.Trailing)
		}
		b.strategies.Register(s)
		b.summaries[sc.ID] = order.NewTradeSummary(sc.ID)
	}

	if len(b.strategies.Strategies()) == 0 {
		return fmt.Errorf("no strategies configured, available classes: %v", strategy.Classes())
	}
	return nil
}

func (b *Bot) buildStorage() error {
	if b.storeInner != nil {
		b.store = storage.NewSafe(b.storeInner, b.log)
		return nil
	}

	var (
		inner core.DataManager
		err   error
	)
	switch b.cfg.Storage.Backend {
	case "buntdb":
		inner, err = storage.NewBuntDataManager(b.cfg.Storage.Path)
	case "sqlite":
		inner, err = storage.NewFromSQLite(b.cfg.Storage.Path, storage.DefaultSQLConfig())
	case "redis":
		inner, err = storage.NewRedisDataManager(context.Background(),
			b.cfg.Storage.Redis.Addr, b.cfg.Storage.Redis.Password, b.cfg.Storage.Redis.DB)
	default:
		inner = storage.Nop{}
	}
	if err != nil {
		return fmt.Errorf("storage backend %s: %w", b.cfg.Storage.Backend, err)
	}
	b.store = storage.NewSafe(inner, b.log)
	return nil
}

// wireAggregator registers close handlers per timeframe. Registration order is
// the dispatch order: trailing indicator state first, then storage, then
// strategies.
func (b *Bot) wireAggregator() {
	for _, tf := range b.agg.Timeframes() {
		b.agg.OnCandleClosed(tf, func(candle core.Candle, timeframe string) {
			b.trailing.OnCandleClosed(candle, timeframe)
			_ = b.store.LogCandle(context.Background(), candle)
			b.processSignals(b.strategies.OnCandleClosed(candle, timeframe))
			b.journalTrailingStops()
		})
	}
}

func (b *Bot) accountSnapshot() core.Account {
	account, err := b.broker.Account(context.Background())
	if err != nil {
		return core.Account{}
	}
	return account
}

// NewFeed opens the configured CSV feeds without building a full bot.
func NewFeed(cfg *config.Config) (*exchange.CSVFeed, error) {
	return newCSVFeed(cfg.Data)
}

func newCSVFeed(data config.DataConfig) (*exchange.CSVFeed, error) {
	feeds := make([]exchange.SymbolFeed, 0, len(data.Feeds))
	for _, f := range data.Feeds {
		file := f.File
		if !filepath.IsAbs(file) {
			file = filepath.Join(data.Dir, file)
		}
		feeds = append(feeds, exchange.SymbolFeed{Symbol: f.Symbol, File: file})
	}
	return exchange.NewCSVFeed(feeds...)
}

// Run simulates one trading date end to end: warmup, tick replay, session
// square-off and the final flush. It is not reentrant.
func (b *Bot) Run(ctx context.Context, date time.Time) error {
	clock, err := simulator.NewTimeController(date, b.cfg.Session.WarningAt, b.cfg.Session.SquareOffAt, b.log)
	if err != nil {
		return err
	}
	b.clock = clock
	b.runDate = date
	b.riskMgr.ResetDay(date)

	clock.OnWarning(func(now time.Time) {
		b.riskMgr.BlockTrading()
		b.notifier.Notify(fmt.Sprintf("Session warning at %s: new entries blocked.", now.Format("15:04")))
	})
	clock.OnSquareOff(func(now time.Time) {
		b.squareOff(now)
	})

	symbols := b.feed.ListSymbols()
	if len(symbols) == 0 {
		return fmt.Errorf("%w: no symbols configured", core.ErrNoData)
	}

	warmup := simulator.NewWarmup(b.feed, b.agg, b.strategies, b.log)
	warmup.ShowProgress = true
	if err := warmup.Run(ctx, date, symbols); err != nil {
		return err
	}

	candlesBySymbol := make(map[string][]core.Candle, len(symbols))
	for _, symbol := range symbols {
		candles, err := b.feed.LoadDay(date, symbol)
		if err != nil {
			b.log.WithError(err).Warnf("no candles for %s on %s", symbol, date.Format("2006-01-02"))
			continue
		}
		if len(candles) > 0 {
			candlesBySymbol[symbol] = candles
		}
	}
	if len(candlesBySymbol) == 0 {
		return fmt.Errorf("%w: no candles for %s", core.ErrNoData, date.Format("2006-01-02"))
	}

	b.running = true
	defer func() { b.running = false }()

	if err := b.market.Run(ctx, candlesBySymbol, b.onTick); err != nil {
		return err
	}

	// The data may end before the square-off threshold; close whatever is
	// still open so no position survives the session.
	if !clock.SquaredOff() {
		b.squareOff(clock.Now())
	}

	return nil
}

// Close releases the storage backend. Call after the final summary is read.
func (b *Bot) Close() error {
	return b.store.Close()
}

// onTick is the single-threaded pipeline entry point for every tick.
// Strategy exits run before the trailing evaluation, so a strategy's own
// stop (hard stops included) wins when both would fire on the same tick.
func (b *Bot) onTick(tick core.Tick) {
	b.clock.Advance(tick.Time)
	b.positions.MarkTick(tick)

	b.processSignals(b.strategies.OnTick(tick))
	b.processSignals(b.trailing.OnTick(tick))
}

// processSignals drains signals in emission order through risk validation and
// execution. Entry quantities are resolved before validation so the notional
// and capital checks see the size that would actually trade. Follow-up
// signals produced by fills are handled by the next tick.
func (b *Bot) processSignals(signals []core.Signal) {
	ctx := context.Background()
	for _, signal := range signals {
		if signal.IsEntry() && signal.Quantity <= 0 {
			signal.Quantity = b.orders.ResolveQuantity(signal)
		}

		approved, reason := b.riskMgr.Validate(signal)
		_ = b.store.LogSignal(ctx, signal, approved, reason)
		if !approved {
			b.log.WithFields(map[string]any{
				"strategy": signal.StrategyID,
				"symbol":   signal.Symbol,
				"side":     string(signal.Side),
				"reason":   reason,
			}).Debug("signal rejected")
			continue
		}

		if signal.IsEntry() {
			b.executeEntry(ctx, signal)
		} else {
			b.executeExit(ctx, signal)
		}
	}
}

func (b *Bot) executeEntry(ctx context.Context, signal core.Signal) {
	ord, fill, err := b.orders.ExecuteEntry(ctx, signal)
	if err != nil {
		b.log.WithError(err).Warn("entry submission failed")
		b.notifier.OnError(err)
		return
	}
	if fill == nil {
		b.notifier.OnOrder(ord)
		return
	}

	position := b.positions.OnEntryFill(*fill, signal)
	b.riskMgr.OnTradeOpened()
	b.trailing.OnPositionOpened(position)
	b.strategies.OnPositionOpened(fill.StrategyID, position.TradeID, *fill)
	_ = b.store.LogTradeOpen(ctx, position)
	b.notifier.OnOrder(ord)
}

func (b *Bot) executeExit(ctx context.Context, signal core.Signal) {
	position, ok := b.positions.Get(signal.StrategyID, signal.Symbol)
	if !ok {
		return
	}

	ord, fill, err := b.orders.ExecuteExit(ctx, signal, position)
	if err != nil {
		b.log.WithError(err).Warn("exit submission failed")
		b.notifier.OnError(err)
		return
	}
	if fill == nil {
		b.notifier.OnOrder(ord)
		return
	}

	pnl, post, closedOut := b.positions.OnExitFill(*fill)
	b.riskMgr.OnRealizedPnL(pnl)
	b.broker.ApplyRealized(pnl)

	if summary, ok := b.summaries[signal.StrategyID]; ok {
		summary.Record(pnl, post.EntryPrice, fill.Quantity)
	}

	if closedOut {
		b.trailing.OnPositionClosed(position.TradeID)
		_ = b.store.LogTradeClose(ctx, post, post.RealizedPnL)
	} else {
		b.trailing.OnPositionReduced(position.TradeID, math.Abs(post.Quantity))
		_ = b.store.LogPositionUpdate(ctx, post)
	}
	b.strategies.OnPositionClosed(fill.StrategyID, position.TradeID, *fill, pnl)
	b.notifier.OnOrder(ord)
}

// squareOff drains strategy-emitted exits first, then force-closes anything
// still open under the time controller's identity.
func (b *Bot) squareOff(now time.Time) {
	b.processSignals(b.strategies.SquareOffAll(now, b.positions.LastPrices()))

	for _, position := range b.positions.OpenPositions() {
		price, ok := b.positions.LastPrice(position.Symbol)
		if !ok {
			price = position.CurrentPrice
		}
		side := core.SideTypeSell
		var posSide core.PositionSide
		if !position.IsLong() {
			side = core.SideTypeBuy
			posSide = core.PositionShort
		}
		b.processSignals([]core.Signal{{
			StrategyID:   position.StrategyID,
			Side:         side,
			PositionSide: posSide,
			Symbol:       position.Symbol,
			Price:        price,
			Time:         now,
			Reason:       "square_off",
			Origin:       core.OriginTimeController,
		}})
	}
}

// journalTrailingStops records the current stop per open trade. Candle-close
// granularity keeps the journal useful without per-tick write volume.
func (b *Bot) journalTrailingStops() {
	ctx := context.Background()
	for _, position := range b.positions.OpenPositions() {
		if stop, ok := b.trailing.Stop(position.TradeID); ok {
			_ = b.store.UpdateTrailingSL(ctx, position.TradeID, stop)
		}
	}
}

// Market exposes the replayer for pause, resume, speed and jump control.
func (b *Bot) Market() *simulator.Market { return b.market }

// Positions exposes the position book, read-only by convention.
func (b *Bot) Positions() *order.PositionManager { return b.positions }

// Orders exposes the order journal, read-only by convention.
func (b *Bot) Orders() []core.Order { return b.orders.Orders() }

// Risk exposes the risk manager state.
func (b *Bot) Risk() *risk.Manager { return b.riskMgr }

// TradeSummaries exposes the per-strategy performance accumulators.
func (b *Bot) TradeSummaries() map[string]*order.TradeSummary { return b.summaries }

// DailySummary returns the journaled counters for the simulated date.
func (b *Bot) DailySummary(ctx context.Context) (core.DailySummary, error) {
	return b.store.DailySummary(ctx, b.runDate)
}
