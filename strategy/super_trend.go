package strategy

import (
	"fmt"
	"time"

	"github.com/raykavin/intrabot/core"
	"github.com/raykavin/intrabot/indicator"
)

func init() {
	Register("super_trend", func(id string, params Params) (Strategy, error) {
		return NewSuperTrend(id, params), nil
	})
}

// SuperTrend trades trend flips of the SuperTrend indicator on its declared
// timeframe: a bearish-to-bullish crossover opens a long and the opposite
// crossover closes it, subject to a minimum hold.
type SuperTrend struct {
	Base

	atrPeriod     int
	atrMultiplier float64
	minHold       time.Duration
	minVolume     float64
	hardStopPct   float64
	timeframe     string

	sets        map[string]*indicator.Set
	pendingExit map[string]bool
}

// NewSuperTrend builds the strategy with its configured parameters.
func NewSuperTrend(id string, params Params) *SuperTrend {
	return &SuperTrend{
		Base:          NewBase(id),
		atrPeriod:     params.Int("atr_period", 10),
		atrMultiplier: params.Float("atr_multiplier", 3),
		minHold:       params.Minutes("min_hold_minutes", 5*time.Minute),
		minVolume:     params.Float("min_volume", 0),
		hardStopPct:   params.Float("hard_stop_pct", 0.012),
		timeframe:     params.String("timeframe", "3m"),
		sets:          make(map[string]*indicator.Set),
		pendingExit:   make(map[string]bool),
	}
}

func (s *SuperTrend) Initialize(deps Deps) error {
	s.SetLog(deps.Log)
	return nil
}

func (s *SuperTrend) WarmupCandlesRequired() int { return s.atrPeriod*3 + 10 }

func (s *SuperTrend) RequiredTimeframes() []string { return []string{s.timeframe} }

func (s *SuperTrend) OnWarmupCandle(candle core.Candle, timeframe string) {
	if timeframe == s.timeframe {
		s.set(candle.Symbol).AddClosed(candle)
	}
}

func (s *SuperTrend) OnCandleClosed(candle core.Candle, timeframe string) []core.Signal {
	if timeframe != s.timeframe {
		return nil
	}

	set := s.set(candle.Symbol)
	set.AddClosed(candle)

	if !s.IsWarmedUp() {
		return nil
	}

	st, ok := set.SuperTrendAt(s.atrPeriod, s.atrMultiplier)
	if !ok {
		return nil
	}

	switch {
	case st.Bullish && !st.PrevBullish:
		if s.HasOpen(candle.Symbol) || candle.Volume <= s.minVolume {
			return nil
		}
		reason := fmt.Sprintf("supertrend_flip_bullish: close=%.2f crossed upper band %.2f", candle.Close, st.UpperBand)
		return []core.Signal{
			s.Signal(core.SideTypeBuy, candle.Symbol, candle.Close, 0, candle.Time, reason, map[string]float64{
				"supertrend": st.Value,
				"upper_band": st.UpperBand,
				"lower_band": st.LowerBand,
			}),
		}

	case !st.Bullish && st.PrevBullish:
		if !s.HasOpen(candle.Symbol) {
			return nil
		}
		held, _ := s.HeldFor(candle.Symbol, candle.Time.Add(mustDuration(s.timeframe)))
		if held < s.minHold {
			// Exit deferred until the hold elapses or the hard stop fires.
			s.pendingExit[candle.Symbol] = true
			return nil
		}
		reason := fmt.Sprintf("supertrend_flip_bearish: close=%.2f crossed lower band %.2f", candle.Close, st.LowerBand)
		return []core.Signal{
			s.Signal(core.SideTypeSell, candle.Symbol, candle.Close, 0, candle.Time, reason, map[string]float64{
				"supertrend": st.Value,
			}),
		}
	}

	return nil
}

func (s *SuperTrend) OnTick(tick core.Tick) []core.Signal {
	if !s.IsWarmedUp() || !s.HasOpen(tick.Symbol) {
		return nil
	}

	entry, _ := s.EntryPrice(tick.Symbol)
	if tick.Price <= entry*(1-s.hardStopPct) {
		return []core.Signal{s.Signal(core.SideTypeSell, tick.Symbol, tick.Price, 0, tick.Time, "hard_stop", nil)}
	}

	if s.pendingExit[tick.Symbol] {
		if held, _ := s.HeldFor(tick.Symbol, tick.Time); held >= s.minHold {
			return []core.Signal{s.Signal(core.SideTypeSell, tick.Symbol, tick.Price, 0, tick.Time,
				"supertrend_flip_bearish_deferred", nil)}
		}
	}

	return nil
}

func (s *SuperTrend) OnPositionOpened(tradeID string, fill core.Fill) {
	s.TrackOpen(tradeID, fill)
}

func (s *SuperTrend) OnPositionClosed(tradeID string, fill core.Fill, pnl float64) {
	s.TrackClose(fill)
	delete(s.pendingExit, fill.Symbol)
}

func (s *SuperTrend) SquareOffAll(now time.Time, prices map[string]float64) []core.Signal {
	var out []core.Signal
	for _, symbol := range s.OpenSymbols() {
		out = append(out, s.Signal(core.SideTypeSell, symbol, prices[symbol], 0, now, "square_off", nil))
	}
	return out
}

func (s *SuperTrend) set(symbol string) *indicator.Set {
	if existing, ok := s.sets[symbol]; ok {
		return existing
	}
	created := indicator.NewSet(symbol)
	s.sets[symbol] = created
	return created
}

func mustDuration(timeframe string) time.Duration {
	d, err := core.ParseTimeframe(timeframe)
	if err != nil {
		return time.Minute
	}
	return d
}
