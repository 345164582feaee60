package core

import "time"

// Tick is a single intra-candle price observation. Ticks are produced by the
// market simulator, are immutable, and are discarded after fan-out.
type Tick struct {
	Time   time.Time `json:"time"`
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	Volume float64   `json:"volume"`
	Source string    `json:"source"`
}

// Less orders ticks by timestamp, breaking ties by symbol so that the merged
// multi-symbol stream is deterministic.
func (t Tick) Less(j Item) bool {
	other := j.(Tick)

	if !t.Time.Equal(other.Time) {
		return t.Time.Before(other.Time)
	}
	return t.Symbol < other.Symbol
}
