package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/raykavin/intrabot/core"
	"github.com/raykavin/intrabot/indicator"
)

func init() {
	Register("scalping_mtf_atr", func(id string, params Params) (Strategy, error) {
		return NewScalpingMtfAtr(id, params), nil
	})
}

// scalpTrade is the per-position exit plan: two partial targets and an ATR
// trail on the remainder, all derived from the ATR at entry. short flips the
// ladder: the stop sits above entry and the trail follows the low.
type scalpTrade struct {
	tradeID    string
	entry      float64
	initialQty float64
	remaining  float64
	atrAtEntry float64
	stop       float64
	extreme    float64
	short      bool
	tp1Done    bool
	tp2Done    bool
	trailing   bool
}

// ScalpingMtfAtr enters when three timeframes align, long or short (fast
// EMAs, a mid trend EMA and a slow trend EMA), and manages the trade with
// partial profit-taking and an ATR trail. Entries are sized from capital at
// risk.
type ScalpingMtfAtr struct {
	Base

	tfFast string
	tfMid  string
	tfSlow string

	emaFast  int
	emaSlow  int
	emaMid   int
	emaTrend int

	rsiPeriod  int
	rsiLongMin float64
	rsiLongMax float64

	macdFast   int
	macdSlow   int
	macdSignal int

	atrPeriod    int
	atrSLMult    float64
	atrTP1Mult   float64
	atrTP2Mult   float64
	atrTrailMult float64

	volPeriod     int
	volMultiplier float64

	riskPerTrade   float64
	maxPositions   int
	dailyLossLimit float64
	maxConsecutive int
	breakevenATR   float64
	trailStartATR  float64
	tp1Fraction    float64
	tp2Fraction    float64

	fast map[string]*indicator.Set
	mid  map[string]*indicator.Set
	slow map[string]*indicator.Set

	trades map[string]*scalpTrade

	consecutiveLosses int
	dailyLoss         float64
	entriesDisabled   bool

	account func() core.Account
}

// NewScalpingMtfAtr builds the strategy with its configured parameters.
func NewScalpingMtfAtr(id string, params Params) *ScalpingMtfAtr {
	return &ScalpingMtfAtr{
		Base:   NewBase(id),
		tfFast: params.String("tf_fast", "5m"),
		tfMid:  params.String("tf_mid", "15m"),
		tfSlow: params.String("tf_slow", "60m"),

		emaFast:  params.Int("ema_fast", 9),
		emaSlow:  params.Int("ema_slow", 21),
		emaMid:   params.Int("ema_mid", 50),
		emaTrend: params.Int("ema_trend", 200),

		rsiPeriod:  params.Int("rsi_period", 14),
		rsiLongMin: params.Float("rsi_long_min", 50),
		rsiLongMax: params.Float("rsi_long_max", 70),

		macdFast:   params.Int("macd_fast", 12),
		macdSlow:   params.Int("macd_slow", 26),
		macdSignal: params.Int("macd_signal", 9),

		atrPeriod:    params.Int("atr_period", 14),
		atrSLMult:    params.Float("atr_sl_mult", 2.5),
		atrTP1Mult:   params.Float("atr_tp1_mult", 2.0),
		atrTP2Mult:   params.Float("atr_tp2_mult", 3.0),
		atrTrailMult: params.Float("atr_trail_mult", 2.0),

		volPeriod:     params.Int("volume_period", 20),
		volMultiplier: params.Float("volume_multiplier", 1.5),

		riskPerTrade:   params.Float("risk_per_trade", 0.01),
		maxPositions:   params.Int("max_positions", 2),
		dailyLossLimit: params.Float("daily_loss_limit", 0.025),
		maxConsecutive: params.Int("max_consecutive_losses", 3),
		breakevenATR:   params.Float("breakeven_atr", 1.0),
		trailStartATR:  params.Float("trailing_start_atr", 1.5),
		tp1Fraction:    params.Float("tp1_fraction", 0.5),
		tp2Fraction:    params.Float("tp2_fraction", 0.3),

		fast:   make(map[string]*indicator.Set),
		mid:    make(map[string]*indicator.Set),
		slow:   make(map[string]*indicator.Set),
		trades: make(map[string]*scalpTrade),
	}
}

func (s *ScalpingMtfAtr) Initialize(deps Deps) error {
	s.SetLog(deps.Log)
	s.account = deps.Account
	return nil
}

// WarmupCandlesRequired returns the fast-timeframe requirement; the slower
// timeframes declare their own needs through WarmupCandlesForTimeframe.
func (s *ScalpingMtfAtr) WarmupCandlesRequired() int {
	return s.WarmupCandlesForTimeframe(s.tfFast)
}

// WarmupCandlesForTimeframe reports how many closed candles each declared
// timeframe needs before the alignment checks are meaningful.
func (s *ScalpingMtfAtr) WarmupCandlesForTimeframe(timeframe string) int {
	switch timeframe {
	case s.tfMid:
		return s.emaMid + 5
	case s.tfSlow:
		return s.emaTrend + 5
	default:
		required := s.macdSlow + s.macdSignal
		for _, p := range []int{s.emaSlow, s.rsiPeriod + 1, s.atrPeriod + 1, s.volPeriod} {
			if p > required {
				required = p
			}
		}
		return required + 5
	}
}

func (s *ScalpingMtfAtr) RequiredTimeframes() []string {
	return []string{s.tfFast, s.tfMid, s.tfSlow}
}

func (s *ScalpingMtfAtr) OnWarmupCandle(candle core.Candle, timeframe string) {
	if set := s.setFor(candle.Symbol, timeframe); set != nil {
		set.AddClosed(candle)
	}
}

func (s *ScalpingMtfAtr) OnCandleClosed(candle core.Candle, timeframe string) []core.Signal {
	set := s.setFor(candle.Symbol, timeframe)
	if set == nil {
		return nil
	}
	set.AddClosed(candle)

	if timeframe != s.tfFast || !s.IsWarmedUp() {
		return nil
	}
	return s.evaluateEntry(candle)
}

func (s *ScalpingMtfAtr) evaluateEntry(candle core.Candle) []core.Signal {
	symbol := candle.Symbol
	if s.entriesDisabled || s.HasOpen(symbol) || s.openSymbols.Length() >= s.maxPositions {
		return nil
	}

	fast := s.fast[symbol]
	mid := s.mid[symbol]
	slow := s.slow[symbol]
	if mid == nil || slow == nil {
		return nil
	}

	emaFast, ok1 := fast.EMA(s.emaFast)
	emaSlow, ok2 := fast.EMA(s.emaSlow)
	emaMid, ok3 := mid.EMA(s.emaMid)
	emaTrend, ok4 := slow.EMA(s.emaTrend)
	rsi, ok5 := fast.RSI(s.rsiPeriod)
	atr, ok6 := fast.ATR(s.atrPeriod)
	volMA, ok7 := fast.VolumeSMA(s.volPeriod)
	macd, macdSig, _, ok8 := fast.MACD(s.macdFast, s.macdSlow, s.macdSignal)
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6 && ok7 && ok8) {
		return nil
	}

	a := alignment{
		price:    candle.Close,
		volume:   candle.Volume,
		emaFast:  emaFast,
		emaSlow:  emaSlow,
		emaMid:   emaMid,
		emaTrend: emaTrend,
		rsi:      rsi,
		atr:      atr,
		volMA:    volMA,
		macd:     macd,
		macdSig:  macdSig,
	}
	return s.entrySignals(symbol, candle.Time, a)
}

// alignment is the indicator snapshot the entry predicates score.
type alignment struct {
	price    float64
	volume   float64
	emaFast  float64
	emaSlow  float64
	emaMid   float64
	emaTrend float64
	rsi      float64
	atr      float64
	volMA    float64
	macd     float64
	macdSig  float64
}

func (s *ScalpingMtfAtr) longAligned(a alignment) bool {
	return a.price > a.emaSlow &&
		a.emaFast > a.emaSlow &&
		a.price > a.emaMid &&
		a.price > a.emaTrend &&
		a.rsi >= s.rsiLongMin && a.rsi <= s.rsiLongMax &&
		a.macd > a.macdSig &&
		a.volume > a.volMA*s.volMultiplier &&
		math.Abs(a.price-a.emaFast) < 0.2*a.atr
}

// shortAligned is the exact mirror of longAligned: price under every EMA,
// the fast EMA under the slow, MACD under its signal line and RSI inside the
// reflected momentum band.
func (s *ScalpingMtfAtr) shortAligned(a alignment) bool {
	return a.price < a.emaSlow &&
		a.emaFast < a.emaSlow &&
		a.price < a.emaMid &&
		a.price < a.emaTrend &&
		a.rsi >= 100-s.rsiLongMax && a.rsi <= 100-s.rsiLongMin &&
		a.macd < a.macdSig &&
		a.volume > a.volMA*s.volMultiplier &&
		math.Abs(a.price-a.emaFast) < 0.2*a.atr
}

func (s *ScalpingMtfAtr) entrySignals(symbol string, ts time.Time, a alignment) []core.Signal {
	indicators := map[string]float64{
		"ema_fast":  a.emaFast,
		"ema_slow":  a.emaSlow,
		"ema_mid":   a.emaMid,
		"ema_trend": a.emaTrend,
		"rsi":       a.rsi,
		"atr":       a.atr,
		"macd":      a.macd,
	}

	if s.longAligned(a) {
		qty := s.sizeEntry(a.atr)
		if qty <= 0 {
			return nil
		}
		reason := fmt.Sprintf("mtf_long_aligned: ema%d=%.2f>ema%d=%.2f, rsi=%.1f, atr=%.2f",
			s.emaFast, a.emaFast, s.emaSlow, a.emaSlow, a.rsi, a.atr)
		return []core.Signal{s.Signal(core.SideTypeBuy, symbol, a.price, qty, ts, reason, indicators)}
	}

	if s.shortAligned(a) {
		qty := s.sizeEntry(a.atr)
		if qty <= 0 {
			return nil
		}
		reason := fmt.Sprintf("mtf_short_aligned: ema%d=%.2f<ema%d=%.2f, rsi=%.1f, atr=%.2f",
			s.emaFast, a.emaFast, s.emaSlow, a.emaSlow, a.rsi, a.atr)
		return []core.Signal{s.ShortSignal(core.SideTypeSell, symbol, a.price, qty, ts, reason, indicators)}
	}

	return nil
}

// sizeEntry converts capital at risk into a whole-unit quantity using the
// distance to the initial ATR stop.
func (s *ScalpingMtfAtr) sizeEntry(atr float64) float64 {
	if s.account == nil {
		return 0
	}
	capital := s.account().Capital
	riskPerUnit := s.atrSLMult * atr
	if riskPerUnit <= 0 {
		return 0
	}
	return math.Floor(capital * s.riskPerTrade / riskPerUnit)
}

// OnTick walks the exit ladder for the open trade: stop, TP1, TP2, then the
// ATR trail on the remainder.
func (s *ScalpingMtfAtr) OnTick(tick core.Tick) []core.Signal {
	if !s.IsWarmedUp() {
		return nil
	}
	trade, ok := s.trades[tick.Symbol]
	if !ok {
		return nil
	}

	price := tick.Price
	if trade.short {
		if price < trade.extreme {
			trade.extreme = price
		}
	} else if price > trade.extreme {
		trade.extreme = price
	}

	if stopHit(trade, price) {
		reason := "atr_stop"
		if trade.trailing {
			reason = "atr_trail_stop"
		}
		return []core.Signal{s.exitSignal(trade, tick.Symbol, price, trade.remaining, tick.Time, reason)}
	}

	atrGain := (price - trade.entry) / trade.atrAtEntry
	if trade.short {
		atrGain = -atrGain
	}

	if !trade.tp1Done && atrGain >= s.atrTP1Mult {
		trade.tp1Done = true
		qty := math.Floor(trade.initialQty * s.tp1Fraction)
		if qty >= 1 && qty < trade.remaining {
			return []core.Signal{s.exitSignal(trade, tick.Symbol, price, qty, tick.Time, "tp1")}
		}
	}

	if trade.tp1Done && !trade.tp2Done && atrGain >= s.atrTP2Mult {
		trade.tp2Done = true
		qty := math.Floor(trade.initialQty * s.tp2Fraction)
		if qty >= 1 && qty < trade.remaining {
			return []core.Signal{s.exitSignal(trade, tick.Symbol, price, qty, tick.Time, "tp2")}
		}
	}

	if atrGain >= s.breakevenATR && betterFor(trade, trade.entry, trade.stop) {
		trade.stop = trade.entry
	}

	if atrGain >= s.trailStartATR {
		trade.trailing = true
	}
	if trade.trailing {
		dir := 1.0
		if trade.short {
			dir = -1.0
		}
		trailed := trade.extreme - dir*s.atrTrailMult*trade.atrAtEntry
		// Once trailing activates the stop never crosses back past entry.
		if betterFor(trade, trade.entry, trailed) {
			trailed = trade.entry
		}
		if betterFor(trade, trailed, trade.stop) {
			trade.stop = trailed
		}
	}

	return nil
}

// stopHit reports whether the tick price touched the stop: at or below it
// for longs, at or above it for shorts.
func stopHit(trade *scalpTrade, price float64) bool {
	if trade.short {
		return price >= trade.stop
	}
	return price <= trade.stop
}

// betterFor reports whether candidate is a tighter stop than current for the
// trade's direction: higher for longs, lower for shorts.
func betterFor(trade *scalpTrade, candidate, current float64) bool {
	if trade.short {
		return candidate < current
	}
	return candidate > current
}

// exitSignal emits the direction-correct exit: a SELL for longs, a BUY cover
// for shorts.
func (s *ScalpingMtfAtr) exitSignal(trade *scalpTrade, symbol string, price, qty float64, ts time.Time, reason string) core.Signal {
	if trade.short {
		return s.ShortSignal(core.SideTypeBuy, symbol, price, qty, ts, reason, nil)
	}
	return s.Signal(core.SideTypeSell, symbol, price, qty, ts, reason, nil)
}

func (s *ScalpingMtfAtr) OnPositionOpened(tradeID string, fill core.Fill) {
	s.TrackOpen(tradeID, fill)

	atr := fill.Price * 0.005
	if set := s.fast[fill.Symbol]; set != nil {
		if a, ok := set.ATR(s.atrPeriod); ok {
			atr = a
		}
	}

	short := fill.Side == core.SideTypeSell
	stop := fill.Price - s.atrSLMult*atr
	if short {
		stop = fill.Price + s.atrSLMult*atr
	}

	s.trades[fill.Symbol] = &scalpTrade{
		tradeID:    tradeID,
		entry:      fill.Price,
		initialQty: fill.Quantity,
		remaining:  fill.Quantity,
		atrAtEntry: atr,
		stop:       stop,
		extreme:    fill.Price,
		short:      short,
	}
}

func (s *ScalpingMtfAtr) OnPositionClosed(tradeID string, fill core.Fill, pnl float64) {
	trade, ok := s.trades[fill.Symbol]
	if ok && fill.Quantity < trade.remaining {
		// Partial close: keep trailing the remainder.
		trade.remaining -= fill.Quantity
		return
	}

	s.TrackClose(fill)
	delete(s.trades, fill.Symbol)

	if pnl < 0 {
		s.consecutiveLosses++
		s.dailyLoss += -pnl
	} else {
		s.consecutiveLosses = 0
	}
	s.updateThrottles()
}

func (s *ScalpingMtfAtr) updateThrottles() {
	if s.entriesDisabled {
		return
	}
	if s.consecutiveLosses >= s.maxConsecutive {
		s.entriesDisabled = true
		s.Log().Warnf("entries disabled after %d consecutive losses", s.consecutiveLosses)
		return
	}
	if s.account != nil {
		capital := s.account().Capital
		if capital > 0 && s.dailyLoss >= capital*s.dailyLossLimit {
			s.entriesDisabled = true
			s.Log().Warnf("entries disabled, daily loss %.2f reached limit", s.dailyLoss)
		}
	}
}

func (s *ScalpingMtfAtr) SquareOffAll(now time.Time, prices map[string]float64) []core.Signal {
	var out []core.Signal
	for _, symbol := range s.OpenSymbols() {
		trade, ok := s.trades[symbol]
		if !ok {
			out = append(out, s.Signal(core.SideTypeSell, symbol, prices[symbol], 0, now, "square_off", nil))
			continue
		}
		out = append(out, s.exitSignal(trade, symbol, prices[symbol], trade.remaining, now, "square_off"))
	}
	return out
}

func (s *ScalpingMtfAtr) setFor(symbol, timeframe string) *indicator.Set {
	var sets map[string]*indicator.Set
	switch timeframe {
	case s.tfFast:
		sets = s.fast
	case s.tfMid:
		sets = s.mid
	case s.tfSlow:
		sets = s.slow
	default:
		return nil
	}
	if existing, ok := sets[symbol]; ok {
		return existing
	}
	created := indicator.NewSet(symbol)
	sets[symbol] = created
	return created
}
