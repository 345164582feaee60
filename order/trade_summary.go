package order

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gonum.org/v1/gonum/stat"
)

// TradeSummary accumulates per-strategy performance over a run.
type TradeSummary struct {
	StrategyID  string
	Wins        []float64
	WinsPct     []float64
	Losses      []float64
	LossesPct   []float64
	Volume      float64
	MaxDrawdown float64

	equity float64
	peak   float64
}

// NewTradeSummary builds an empty summary for one strategy.
func NewTradeSummary(strategyID string) *TradeSummary {
	return &TradeSummary{StrategyID: strategyID}
}

// Record folds one closed (or partially closed) trade into the summary.
func (s *TradeSummary) Record(pnl, entryPrice, qty float64) {
	pct := 0.0
	if entryPrice > 0 && qty > 0 {
		pct = pnl / (entryPrice * qty)
	}
	if pnl >= 0 {
		s.Wins = append(s.Wins, pnl)
		s.WinsPct = append(s.WinsPct, pct)
	} else {
		s.Losses = append(s.Losses, pnl)
		s.LossesPct = append(s.LossesPct, pct)
	}
	s.Volume += entryPrice * qty

	s.equity += pnl
	if s.equity > s.peak {
		s.peak = s.equity
	}
	if dd := s.peak - s.equity; dd > s.MaxDrawdown {
		s.MaxDrawdown = dd
	}
}

// Trades returns the number of recorded trades.
func (s *TradeSummary) Trades() int { return len(s.Wins) + len(s.Losses) }

// Profit returns total realized P&L.
func (s *TradeSummary) Profit() float64 {
	all := append(append([]float64{}, s.Wins...), s.Losses...)
	if len(all) == 0 {
		return 0
	}
	total := 0.0
	for _, v := range all {
		total += v
	}
	return total
}

// Returns exposes every per-trade return for resampling.
func (s *TradeSummary) Returns() []float64 {
	return append(append([]float64{}, s.WinsPct...), s.LossesPct...)
}

// WinPercentage returns the share of winning trades.
func (s *TradeSummary) WinPercentage() float64 {
	total := s.Trades()
	if total == 0 {
		return 0
	}
	return float64(len(s.Wins)) / float64(total) * 100
}

// Payoff returns average win over average loss, in percentage terms.
func (s *TradeSummary) Payoff() float64 {
	if len(s.WinsPct) == 0 || len(s.LossesPct) == 0 {
		return 0
	}
	avgLoss := stat.Mean(s.LossesPct, nil)
	if avgLoss == 0 {
		return 0
	}
	return stat.Mean(s.WinsPct, nil) / math.Abs(avgLoss)
}

// ProfitFactor returns gross profit over gross loss.
func (s *TradeSummary) ProfitFactor() float64 {
	gross := func(values []float64) float64 {
		total := 0.0
		for _, v := range values {
			total += v
		}
		return total
	}
	loss := gross(s.Losses)
	if loss == 0 {
		return 0
	}
	return gross(s.Wins) / math.Abs(loss)
}

// SQN is the system quality number: sqrt(n) * mean / stddev of per-trade
// P&L.
func (s *TradeSummary) SQN() float64 {
	all := append(append([]float64{}, s.Wins...), s.Losses...)
	n := float64(len(all))
	if n == 0 {
		return 0
	}
	sd := stat.StdDev(all, nil)
	if sd == 0 || math.IsNaN(sd) {
		return 0
	}
	return math.Sqrt(n) * stat.Mean(all, nil) / sd
}

// String renders the summary as a text table.
func (s *TradeSummary) String() string {
	builder := &strings.Builder{}
	table := tablewriter.NewWriter(builder)

	data := [][]string{
		{"Strategy", s.StrategyID},
		{"Trades", strconv.Itoa(s.Trades())},
		{"Win", strconv.Itoa(len(s.Wins))},
		{"Loss", strconv.Itoa(len(s.Losses))},
		{"% Win", fmt.Sprintf("%.1f", s.WinPercentage())},
		{"Payoff", fmt.Sprintf("%.2f", s.Payoff())},
		{"Pr.Fact", fmt.Sprintf("%.2f", s.ProfitFactor())},
		{"SQN", fmt.Sprintf("%.2f", s.SQN())},
		{"Profit", fmt.Sprintf("%.2f", s.Profit())},
		{"Drawdown", fmt.Sprintf("%.2f", s.MaxDrawdown)},
		{"Volume", fmt.Sprintf("%.2f", s.Volume)},
	}

	table.AppendBulk(data)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})
	table.Render()

	return builder.String()
}
