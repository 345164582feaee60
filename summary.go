package intrabot

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/olekukonko/tablewriter"
	"github.com/raykavin/intrabot/metric"
	"github.com/raykavin/intrabot/order"
)

const bootstrapSamples = 10_000

// StatusLine implements notification.StatusProvider.
func (b *Bot) StatusLine() string {
	if !b.running {
		return "idle"
	}
	state := b.riskMgr.State()
	return fmt.Sprintf("running %s | open %d | pnl %.2f | ticks %d",
		b.runDate.Format("2006-01-02"), b.positions.OpenCount(),
		state.DailyRealizedPnL, b.market.TicksProcessed())
}

// SummaryText implements notification.StatusProvider: the per-strategy tables
// without the histogram and interval sections.
func (b *Bot) SummaryText() string {
	var sb strings.Builder
	for _, id := range b.strategyIDs() {
		if summary := b.summaries[id]; summary.Trades() > 0 {
			sb.WriteString(summary.String())
		}
	}
	return sb.String()
}

func (b *Bot) strategyIDs() []string {
	ids := make([]string, 0, len(b.summaries))
	for id := range b.summaries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PrintSummary renders the end-of-run report: a combined strategy table, the
// distribution of per-trade returns and bootstrap confidence intervals.
func (b *Bot) PrintSummary(w io.Writer) {
	ids := b.strategyIDs()

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Strategy", "Trades", "Win", "Loss", "% Win", "Payoff", "Pr.Fact", "SQN", "Profit", "Drawdown", "Volume"})

	var (
		trades, wins, losses int
		profit, volume       float64
		returns              []float64
	)
	for _, id := range ids {
		s := b.summaries[id]
		table.Append([]string{
			s.StrategyID,
			strconv.Itoa(s.Trades()),
			strconv.Itoa(len(s.Wins)),
			strconv.Itoa(len(s.Losses)),
			fmt.Sprintf("%.1f %%", s.WinPercentage()),
			fmt.Sprintf("%.3f", s.Payoff()),
			fmt.Sprintf("%.3f", s.ProfitFactor()),
			fmt.Sprintf("%.1f", s.SQN()),
			fmt.Sprintf("%.2f", s.Profit()),
			fmt.Sprintf("%.2f", s.MaxDrawdown),
			fmt.Sprintf("%.2f", s.Volume),
		})
		trades += s.Trades()
		wins += len(s.Wins)
		losses += len(s.Losses)
		profit += s.Profit()
		volume += s.Volume
		returns = append(returns, s.Returns()...)
	}

	winPct := 0.0
	if trades > 0 {
		winPct = float64(wins) / float64(trades) * 100
	}
	table.SetFooter([]string{
		"TOTAL", strconv.Itoa(trades), strconv.Itoa(wins), strconv.Itoa(losses),
		fmt.Sprintf("%.1f %%", winPct), "", "", "",
		fmt.Sprintf("%.2f", profit), "", fmt.Sprintf("%.2f", volume),
	})
	table.Render()

	if faulted := b.strategies.Faulted(); len(faulted) > 0 {
		fmt.Fprintf(w, "\nfaulted strategies: %s\n", strings.Join(faulted, ", "))
	}
	fmt.Fprintf(w, "\nticks processed: %d\n", b.market.TicksProcessed())

	if len(returns) == 0 {
		fmt.Fprintln(w, "\nno closed trades")
		return
	}

	fmt.Fprintln(w, "\n------ RETURN DISTRIBUTION ------")
	returnsPercent := make([]float64, len(returns))
	for i, r := range returns {
		returnsPercent[i] = r * 100
	}
	hist := histogram.Hist(15, returnsPercent)
	_ = histogram.Fprint(w, hist, histogram.Linear(10))

	fmt.Fprintln(w, "\n------ CONFIDENCE INTERVAL (95%) ------")
	for _, id := range ids {
		s := b.summaries[id]
		if s.Trades() == 0 {
			continue
		}
		b.printIntervals(w, s)
	}
}

func (b *Bot) printIntervals(w io.Writer, s *order.TradeSummary) {
	returns := s.Returns()

	returnInterval := metric.Bootstrap(b.rng, returns, metric.Mean, bootstrapSamples, 0.95)
	payoffInterval := metric.Bootstrap(b.rng, returns, metric.Payoff, bootstrapSamples, 0.95)
	profitFactorInterval := metric.Bootstrap(b.rng, returns, metric.ProfitFactor, bootstrapSamples, 0.95)

	fmt.Fprintf(w, "| %s |\n", s.StrategyID)
	fmt.Fprintf(w, "RETURN:      %.2f%% (%.2f%% ~ %.2f%%)\n",
		returnInterval.Mean*100, returnInterval.Lower*100, returnInterval.Upper*100)
	fmt.Fprintf(w, "PAYOFF:      %.2f (%.2f ~ %.2f)\n",
		payoffInterval.Mean, payoffInterval.Lower, payoffInterval.Upper)
	fmt.Fprintf(w, "PROF.FACTOR: %.2f (%.2f ~ %.2f)\n",
		profitFactorInterval.Mean, profitFactorInterval.Lower, profitFactorInterval.Upper)
}
