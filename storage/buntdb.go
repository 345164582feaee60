package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/raykavin/intrabot/core"
	"github.com/tidwall/buntdb"
)

const signalIndexName = "signal_time"

// signalRecord is the journal entry written for every emitted signal,
// approved or not.
type signalRecord struct {
	ID       int64       `json:"id"`
	Signal   core.Signal `json:"signal"`
	Approved bool        `json:"approved"`
	Reason   string      `json:"reason,omitempty"`
	Time     time.Time   `json:"time"`
}

// tradeRecord tracks one trade from open to close.
type tradeRecord struct {
	TradeID    string    `json:"trade_id"`
	StrategyID string    `json:"strategy_id"`
	Symbol     string    `json:"symbol"`
	EntryPrice float64   `json:"entry_price"`
	Quantity   float64   `json:"quantity"`
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time,omitempty"`
	TrailingSL float64   `json:"trailing_sl,omitempty"`
	PnL        float64   `json:"pnl"`
	Closed     bool      `json:"closed"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// BuntDataManager journals pipeline activity into an embedded BuntDB file.
// Keys are namespaced by record type: signal:<n>, trade:<id>, summary:<day>,
// indicator:<symbol>:<ts> and candle:<symbol>:<tf>:<ts>.
type BuntDataManager struct {
	lastSignalID int64
	db           *buntdb.DB
}

// NewBuntFromMemory opens an in-memory journal, used by tests and dry runs.
func NewBuntFromMemory() (*BuntDataManager, error) {
	return NewBuntDataManager(":memory:")
}

// NewBuntDataManager opens or creates the journal file.
func NewBuntDataManager(sourceFile string) (*BuntDataManager, error) {
	db, err := buntdb.Open(sourceFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open buntdb: %w", err)
	}

	if err := db.SetConfig(buntdb.Config{SyncPolicy: buntdb.Never}); err != nil {
		return nil, fmt.Errorf("failed to configure buntdb: %w", err)
	}

	if err := db.CreateIndex(signalIndexName, "signal:*", buntdb.IndexJSON("time")); err != nil {
		return nil, fmt.Errorf("failed to create signal index: %w", err)
	}

	return &BuntDataManager{db: db}, nil
}

func (b *BuntDataManager) nextSignalID() int64 {
	return atomic.AddInt64(&b.lastSignalID, 1)
}

func (b *BuntDataManager) setJSON(key string, value any) error {
	content, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return b.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, string(content), nil)
		return err
	})
}

// LogSignal journals the signal and bumps the per-day summary counters.
func (b *BuntDataManager) LogSignal(_ context.Context, signal core.Signal, approved bool, reason string) error {
	record := signalRecord{
		ID:       b.nextSignalID(),
		Signal:   signal,
		Approved: approved,
		Reason:   reason,
		Time:     signal.Time,
	}
	if err := b.setJSON("signal:"+strconv.FormatInt(record.ID, 10), record); err != nil {
		return err
	}
	return b.bumpSummary(signal.Time, func(s *core.DailySummary) {
		s.SignalsEmitted++
		if approved {
			s.SignalsApproved++
		} else {
			s.SignalsRejected++
		}
	})
}

func (b *BuntDataManager) LogTradeOpen(_ context.Context, position core.Position) error {
	record := tradeRecord{
		TradeID:    position.TradeID,
		StrategyID: position.StrategyID,
		Symbol:     position.Symbol,
		EntryPrice: position.EntryPrice,
		Quantity:   position.Quantity,
		EntryTime:  position.EntryTime,
		UpdatedAt:  position.EntryTime,
	}
	if err := b.setJSON("trade:"+position.TradeID, record); err != nil {
		return err
	}
	return b.bumpSummary(position.EntryTime, func(s *core.DailySummary) {
		s.TradesOpened++
	})
}

func (b *BuntDataManager) LogTradeClose(_ context.Context, position core.Position, pnl float64) error {
	err := b.db.Update(func(tx *buntdb.Tx) error {
		key := "trade:" + position.TradeID
		record := tradeRecord{
			TradeID:    position.TradeID,
			StrategyID: position.StrategyID,
			Symbol:     position.Symbol,
			EntryPrice: position.EntryPrice,
			Quantity:   position.Quantity,
			EntryTime:  position.EntryTime,
		}
		if value, err := tx.Get(key); err == nil {
			_ = json.Unmarshal([]byte(value), &record)
		}
		record.PnL = pnl
		record.Closed = true
		record.ExitTime = time.Now()
		record.UpdatedAt = record.ExitTime

		content, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal trade: %w", err)
		}
		_, _, err = tx.Set(key, string(content), nil)
		return err
	})
	if err != nil {
		return err
	}
	return b.bumpSummary(position.EntryTime, func(s *core.DailySummary) {
		s.TradesClosed++
		s.RealizedPnL += pnl
	})
}

func (b *BuntDataManager) LogPositionUpdate(_ context.Context, position core.Position) error {
	key := fmt.Sprintf("position:%s:%d", position.TradeID, time.Now().UnixNano())
	return b.setJSON(key, position)
}

func (b *BuntDataManager) LogIndicatorValues(_ context.Context, symbol string, ts time.Time, values map[string]float64) error {
	key := fmt.Sprintf("indicator:%s:%d", symbol, ts.Unix())
	return b.setJSON(key, values)
}

func (b *BuntDataManager) LogCandle(_ context.Context, candle core.Candle) error {
	key := fmt.Sprintf("candle:%s:%s:%d", candle.Symbol, candle.Timeframe, candle.Time.Unix())
	return b.setJSON(key, candle)
}

// UpdateTrailingSL records the latest stop level on the open trade record.
func (b *BuntDataManager) UpdateTrailingSL(_ context.Context, tradeID string, stop float64) error {
	return b.db.Update(func(tx *buntdb.Tx) error {
		key := "trade:" + tradeID
		value, err := tx.Get(key)
		if err != nil {
			return fmt.Errorf("trade not found: %w", err)
		}
		var record tradeRecord
		if err := json.Unmarshal([]byte(value), &record); err != nil {
			return fmt.Errorf("failed to unmarshal trade: %w", err)
		}
		record.TrailingSL = stop
		record.UpdatedAt = time.Now()

		content, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal trade: %w", err)
		}
		_, _, err = tx.Set(key, string(content), nil)
		return err
	})
}

func (b *BuntDataManager) bumpSummary(ts time.Time, apply func(*core.DailySummary)) error {
	return b.db.Update(func(tx *buntdb.Tx) error {
		key := "summary:" + dayKey(ts)
		summary := core.DailySummary{Date: ts.Truncate(24 * time.Hour)}
		if value, err := tx.Get(key); err == nil {
			_ = json.Unmarshal([]byte(value), &summary)
		}
		apply(&summary)

		content, err := json.Marshal(summary)
		if err != nil {
			return fmt.Errorf("failed to marshal summary: %w", err)
		}
		_, _, err = tx.Set(key, string(content), nil)
		return err
	})
}

func (b *BuntDataManager) DailySummary(_ context.Context, date time.Time) (core.DailySummary, error) {
	summary := core.DailySummary{Date: date}
	err := b.db.View(func(tx *buntdb.Tx) error {
		value, err := tx.Get("summary:" + dayKey(date))
		if err != nil {
			if err == buntdb.ErrNotFound {
				return nil
			}
			return err
		}
		return json.Unmarshal([]byte(value), &summary)
	})
	if err != nil {
		return core.DailySummary{}, fmt.Errorf("failed to load summary: %w", err)
	}
	summary.Date = date
	return summary, nil
}

// Trades returns all closed and open trade records, used by end-of-day
// reporting.
func (b *BuntDataManager) Trades(_ context.Context) ([]tradeRecord, error) {
	trades := make([]tradeRecord, 0)
	err := b.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("trade:*", func(key, value string) bool {
			if !strings.HasPrefix(key, "trade:") {
				return true
			}
			var record tradeRecord
			if err := json.Unmarshal([]byte(value), &record); err == nil {
				trades = append(trades, record)
			}
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate trades: %w", err)
	}
	return trades, nil
}

func (b *BuntDataManager) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}
