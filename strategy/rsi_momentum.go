package strategy

import (
	"fmt"
	"time"

	"github.com/raykavin/intrabot/core"
	"github.com/raykavin/intrabot/indicator"
)

func init() {
	Register("rsi_momentum", func(id string, params Params) (Strategy, error) {
		return NewRsiMomentum(id, params), nil
	})
}

// RsiMomentum buys oversold dips above the moving average and manages the
// exit with a hard stop, a fixed target and an overbought unwind. Trailing
// exits are optionally delegated to the trailing stop manager.
type RsiMomentum struct {
	Base

	rsiPeriod     int
	rsiOversold   float64
	rsiOverbought float64
	maPeriod      int
	targetPct     float64
	initialSLPct  float64
	minHold       time.Duration
	breakevenPct  float64
	minVolume     float64
	externalTrail bool

	timeframe string
	sets      map[string]*indicator.Set

	trailing     TrailingControl
	breakevenSet map[string]bool
}

// NewRsiMomentum builds the strategy with its configured parameters.
func NewRsiMomentum(id string, params Params) *RsiMomentum {
	return &RsiMomentum{
		Base:          NewBase(id),
		rsiPeriod:     params.Int("rsi_period", 14),
		rsiOversold:   params.Float("rsi_oversold", 30),
		rsiOverbought: params.Float("rsi_overbought", 70),
		maPeriod:      params.Int("ma_period", 20),
		targetPct:     params.Float("target_pct", 0.015),
		initialSLPct:  params.Float("initial_sl_pct", 0.012),
		minHold:       params.Minutes("min_hold_minutes", 5*time.Minute),
		breakevenPct:  params.Float("breakeven_trigger_pct", 0.008),
		minVolume:     params.Float("min_volume", 0),
		externalTrail: params.Bool("use_external_trailing_sl", true),
		timeframe:     params.String("timeframe", "1m"),
		sets:          make(map[string]*indicator.Set),
		breakevenSet:  make(map[string]bool),
	}
}

func (s *RsiMomentum) Initialize(deps Deps) error {
	s.SetLog(deps.Log)
	s.trailing = deps.Trailing
	return nil
}

func (s *RsiMomentum) WarmupCandlesRequired() int {
	required := s.rsiPeriod + 1
	if s.maPeriod > required {
		required = s.maPeriod
	}
	return required + 4
}

func (s *RsiMomentum) RequiredTimeframes() []string { return []string{s.timeframe} }

func (s *RsiMomentum) OnWarmupCandle(candle core.Candle, timeframe string) {
	if timeframe == s.timeframe {
		s.set(candle.Symbol).AddClosed(candle)
	}
}

func (s *RsiMomentum) OnCandleClosed(candle core.Candle, timeframe string) []core.Signal {
	if timeframe != s.timeframe {
		return nil
	}

	set := s.set(candle.Symbol)
	set.AddClosed(candle)

	if !s.IsWarmedUp() || s.HasOpen(candle.Symbol) {
		return nil
	}

	rsi, rsiOK := set.RSI(s.rsiPeriod)
	ma, maOK := set.SMA(s.maPeriod)
	if !rsiOK || !maOK {
		return nil
	}

	if rsi >= s.rsiOversold || candle.Close <= ma || candle.Volume <= s.minVolume {
		return nil
	}

	reason := fmt.Sprintf("rsi_oversold: rsi=%.2f < %.2f, close=%.2f > sma%d=%.2f",
		rsi, s.rsiOversold, candle.Close, s.maPeriod, ma)
	return []core.Signal{
		s.Signal(core.SideTypeBuy, candle.Symbol, candle.Close, 0, candle.Time, reason, map[string]float64{
			"rsi":    rsi,
			"sma":    ma,
			"volume": candle.Volume,
		}),
	}
}

// OnTick runs the exit precedence for the open position, if any: hard stop
// first at any time, then target and overbought unwind after the minimum
// hold.
func (s *RsiMomentum) OnTick(tick core.Tick) []core.Signal {
	if !s.IsWarmedUp() || !s.HasOpen(tick.Symbol) {
		return nil
	}

	entry, _ := s.EntryPrice(tick.Symbol)
	pnlPct := (tick.Price - entry) / entry

	s.maybeSetBreakeven(tick.Symbol, pnlPct)

	if tick.Price <= entry*(1-s.initialSLPct) {
		return []core.Signal{s.Signal(core.SideTypeSell, tick.Symbol, tick.Price, 0, tick.Time, "hard_stop", nil)}
	}

	held, _ := s.HeldFor(tick.Symbol, tick.Time)
	if held < s.minHold {
		return nil
	}

	if pnlPct >= s.targetPct {
		return []core.Signal{s.Signal(core.SideTypeSell, tick.Symbol, tick.Price, 0, tick.Time, "target", nil)}
	}

	if pnlPct > 0 {
		set := s.set(tick.Symbol)
		set.SetForming(core.Candle{Symbol: tick.Symbol, Close: tick.Price})
		if rsi, ok := set.RSIWithForming(s.rsiPeriod); ok && rsi > s.rsiOverbought {
			return []core.Signal{s.Signal(core.SideTypeSell, tick.Symbol, tick.Price, 0, tick.Time, "rsi_overbought",
				map[string]float64{"rsi": rsi})}
		}
	}

	return nil
}

func (s *RsiMomentum) maybeSetBreakeven(symbol string, pnlPct float64) {
	if s.trailing == nil || !s.externalTrail || pnlPct < s.breakevenPct {
		return
	}
	tradeID, ok := s.TradeID(symbol)
	if !ok || s.breakevenSet[tradeID] {
		return
	}
	s.breakevenSet[tradeID] = true
	s.trailing.SetBreakeven(tradeID)
	s.Log().WithField("trade_id", tradeID).Debug("breakeven clamp requested")
}

func (s *RsiMomentum) OnPositionOpened(tradeID string, fill core.Fill) {
	s.TrackOpen(tradeID, fill)
}

func (s *RsiMomentum) OnPositionClosed(tradeID string, fill core.Fill, pnl float64) {
	s.TrackClose(fill)
	delete(s.breakevenSet, tradeID)
}

func (s *RsiMomentum) SquareOffAll(now time.Time, prices map[string]float64) []core.Signal {
	var out []core.Signal
	for _, symbol := range s.OpenSymbols() {
		out = append(out, s.Signal(core.SideTypeSell, symbol, prices[symbol], 0, now, "square_off", nil))
	}
	return out
}

func (s *RsiMomentum) set(symbol string) *indicator.Set {
	if existing, ok := s.sets[symbol]; ok {
		return existing
	}
	created := indicator.NewSet(symbol)
	s.sets[symbol] = created
	return created
}
