package optimizer

import (
	"context"
	"fmt"
	"time"

	"github.com/raykavin/intrabot"
	"github.com/raykavin/intrabot/config"
	"github.com/raykavin/intrabot/core"
)

// SessionEvaluator scores a parameter set by replaying one full trading day
// with the set merged into the target strategy's configuration. Every run
// starts from the base configuration's seed, so scores differ only through
// the parameters themselves.
type SessionEvaluator struct {
	base       *config.Config
	strategyID string
	date       time.Time
	adapter    core.DataAdapter
	log        core.Logger
}

// EvaluatorOption customizes a SessionEvaluator.
type EvaluatorOption func(*SessionEvaluator)

// WithAdapter replaces the configured CSV feeds with another candle source,
// mainly for tests and in-memory datasets.
func WithAdapter(adapter core.DataAdapter) EvaluatorOption {
	return func(e *SessionEvaluator) { e.adapter = adapter }
}

// NewSessionEvaluator builds an evaluator for one strategy and one trading
// date. The base configuration is never mutated; each evaluation works on its
// own copy.
func NewSessionEvaluator(base *config.Config, strategyID string, date time.Time, log core.Logger, opts ...EvaluatorOption) *SessionEvaluator {
	e := &SessionEvaluator{base: base, strategyID: strategyID, date: date, log: log}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs one session with the parameter set applied and reports the
// aggregate performance metrics.
func (e *SessionEvaluator) Evaluate(ctx context.Context, params ParameterSet) (*Result, error) {
	start := time.Now()

	cfg, err := e.sessionConfig(params)
	if err != nil {
		return nil, err
	}

	var opts []intrabot.Option
	if e.adapter != nil {
		opts = append(opts, intrabot.WithDataAdapter(e.adapter))
	}

	bot, err := intrabot.New(cfg, e.log, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build session: %w", err)
	}
	defer bot.Close()

	if err := bot.Run(ctx, e.date); err != nil {
		return nil, fmt.Errorf("session failed: %w", err)
	}

	return &Result{
		Params:   params,
		Metrics:  collectMetrics(bot),
		Duration: time.Since(start),
	}, nil
}

// sessionConfig clones the base configuration, merges the parameter set into
// the target strategy and strips everything a search run has no use for:
// pacing, journaling and chat notifications.
func (e *SessionEvaluator) sessionConfig(params ParameterSet) (*config.Config, error) {
	cfg := cloneConfig(e.base)
	cfg.Simulation.Speed = 0
	cfg.Storage.Backend = "none"
	cfg.Telegram.Enabled = false

	for i := range cfg.Strategies {
		if cfg.Strategies[i].ID != e.strategyID {
			continue
		}
		if cfg.Strategies[i].Params == nil {
			cfg.Strategies[i].Params = make(map[string]any, len(params))
		}
		for key, value := range params {
			cfg.Strategies[i].Params[key] = value
		}
		return cfg, nil
	}
	return nil, fmt.Errorf("strategy %q not present in configuration", e.strategyID)
}

func cloneConfig(base *config.Config) *config.Config {
	cfg := *base

	cfg.Data.Feeds = append([]config.FeedConfig(nil), base.Data.Feeds...)
	cfg.Simulation.Timeframes = append([]string(nil), base.Simulation.Timeframes...)
	cfg.Telegram.Users = append([]int(nil), base.Telegram.Users...)

	cfg.Strategies = make([]config.StrategyConfig, len(base.Strategies))
	for i, sc := range base.Strategies {
		clone := sc
		clone.Params = make(map[string]any, len(sc.Params))
		for k, v := range sc.Params {
			clone.Params[k] = v
		}
		cfg.Strategies[i] = clone
	}

	return &cfg
}

// collectMetrics flattens the per-strategy summaries into one metric map.
// Payoff, profit factor and SQN are weighted by trade count so strategies
// with more activity dominate the aggregate.
func collectMetrics(bot *intrabot.Bot) map[string]float64 {
	metrics := map[string]float64{
		MetricProfit:       0,
		MetricWinRate:      0,
		MetricPayoff:       0,
		MetricProfitFactor: 0,
		MetricSQN:          0,
		MetricTradeCount:   0,
		MetricTicks:        float64(bot.Market().TicksProcessed()),
	}

	var totalProfit, weightedPayoff, weightedProfitFactor, weightedSQN float64
	var totalWins, totalTrades int

	for id, summary := range bot.TradeSummaries() {
		trades := summary.Trades()
		if trades == 0 {
			continue
		}

		totalProfit += summary.Profit()
		totalWins += len(summary.Wins)
		totalTrades += trades
		weightedPayoff += summary.Payoff() * float64(trades)
		weightedProfitFactor += summary.ProfitFactor() * float64(trades)
		weightedSQN += summary.SQN() * float64(trades)

		metrics[id+"_profit"] = summary.Profit()
		metrics[id+"_win_rate"] = summary.WinPercentage() / 100
		metrics[id+"_payoff"] = summary.Payoff()
		metrics[id+"_profit_factor"] = summary.ProfitFactor()
		metrics[id+"_sqn"] = summary.SQN()
		metrics[id+"_trades"] = float64(trades)
	}

	if totalTrades > 0 {
		metrics[MetricProfit] = totalProfit
		metrics[MetricWinRate] = float64(totalWins) / float64(totalTrades)
		metrics[MetricPayoff] = weightedPayoff / float64(totalTrades)
		metrics[MetricProfitFactor] = weightedProfitFactor / float64(totalTrades)
		metrics[MetricSQN] = weightedSQN / float64(totalTrades)
		metrics[MetricTradeCount] = float64(totalTrades)
	}

	return metrics
}
