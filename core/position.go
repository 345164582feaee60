package core

import "time"

// Position is an open exposure held by one strategy in one symbol. Positions
// are exclusively owned by the position manager; other components hold the
// trade ID, never a pointer.
type Position struct {
	TradeID       string    `json:"trade_id"`
	StrategyID    string    `json:"strategy_id"`
	Symbol        string    `json:"symbol"`
	EntryPrice    float64   `json:"entry_price"`
	Quantity      float64   `json:"quantity"` // signed: >0 long, <0 short
	EntryTime     time.Time `json:"entry_time"`
	CurrentPrice  float64   `json:"current_price"`
	HighestPrice  float64   `json:"highest_price"`
	LowestPrice   float64   `json:"lowest_price"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	RealizedPnL   float64   `json:"realized_pnl"`
	EntrySignal   Signal    `json:"entry_signal"`
}

// IsLong reports the position direction.
func (p Position) IsLong() bool { return p.Quantity > 0 }

// Notional returns the entry value of the position.
func (p Position) Notional() float64 {
	q := p.Quantity
	if q < 0 {
		q = -q
	}
	return p.EntryPrice * q
}

// MarkPrice updates the current price, the favorable extremes and the
// unrealized P&L. Highest is monotone non-decreasing for longs and lowest
// monotone non-increasing for shorts.
func (p *Position) MarkPrice(price float64) {
	p.CurrentPrice = price
	if price > p.HighestPrice {
		p.HighestPrice = price
	}
	if price < p.LowestPrice {
		p.LowestPrice = price
	}
	p.UnrealizedPnL = (price - p.EntryPrice) * p.Quantity
}

// PnLPercent returns the unrealized return relative to entry, signed by
// direction.
func (p Position) PnLPercent() float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	pct := (p.CurrentPrice - p.EntryPrice) / p.EntryPrice
	if !p.IsLong() {
		pct = -pct
	}
	return pct
}
