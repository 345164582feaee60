package core

import (
	"fmt"
	"time"

	str2duration "github.com/xhit/go-str2duration/v2"
)

// Candle represents an OHLCV bar for one (symbol, timeframe) pair. A forming
// candle is mutable and owned by the aggregator; once Complete is set it is
// emitted to subscribers and never touched again.
type Candle struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Time      time.Time `json:"time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	TickCount int       `json:"tick_count"`
	Complete  bool      `json:"complete"`
}

// IsEmpty reports whether the candle carries no data.
func (c Candle) IsEmpty() bool {
	return c.Symbol == "" && c.Open == 0 && c.Close == 0 && c.Volume == 0
}

// Range returns the high-low spread of the candle.
func (c Candle) Range() float64 { return c.High - c.Low }

// Bullish reports whether the candle closed at or above its open.
func (c Candle) Bullish() bool { return c.Close >= c.Open }

// Less orders candles by open time, then symbol. Used by the priority queue
// when merging multi-symbol streams.
func (c Candle) Less(j Item) bool {
	other := j.(Candle)

	if !c.Time.Equal(other.Time) {
		return c.Time.Before(other.Time)
	}
	return c.Symbol < other.Symbol
}

func (c Candle) String() string {
	return fmt.Sprintf("%s %s %s O:%.2f H:%.2f L:%.2f C:%.2f V:%.0f",
		c.Symbol, c.Timeframe, c.Time.Format("15:04:05"), c.Open, c.High, c.Low, c.Close, c.Volume)
}

// ParseTimeframe converts a timeframe string such as "1m", "5m", "1h" into a
// duration. Supported timeframes are whole-minute multiples up to one day.
func ParseTimeframe(timeframe string) (time.Duration, error) {
	d, err := str2duration.ParseDuration(timeframe)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeframe, timeframe)
	}

	if d < time.Minute || d > 24*time.Hour || d%time.Minute != 0 {
		return 0, fmt.Errorf("%w: %q must be a whole-minute multiple up to 1 day", ErrInvalidTimeframe, timeframe)
	}
	return d, nil
}

// AlignTime truncates ts down to the timeframe boundary containing it.
func AlignTime(ts time.Time, timeframe time.Duration) time.Time {
	return ts.Truncate(timeframe)
}
