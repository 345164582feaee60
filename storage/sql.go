package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/raykavin/intrabot/core"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SQLConfig holds connection pool settings for SQL backends.
type SQLConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// DefaultSQLConfig returns sensible pool defaults for a single-process bot.
func DefaultSQLConfig() SQLConfig {
	return SQLConfig{
		MaxIdleConns:    5,
		MaxOpenConns:    10,
		ConnMaxLifetime: time.Hour,
	}
}

// SignalModel is the persisted form of an emitted signal.
type SignalModel struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	StrategyID string    `gorm:"index"`
	Symbol     string    `gorm:"index"`
	Side       string    ``
	Price      float64   ``
	Quantity   float64   ``
	Origin     string    ``
	Reason     string    ``
	Approved   bool      ``
	RejectedBy string    ``
	Time       time.Time `gorm:"index"`
}

// TradeModel is the persisted form of a trade lifecycle.
type TradeModel struct {
	TradeID    string    `gorm:"primaryKey"`
	StrategyID string    `gorm:"index"`
	Symbol     string    `gorm:"index"`
	EntryPrice float64   ``
	Quantity   float64   ``
	EntryTime  time.Time `gorm:"index"`
	ExitTime   *time.Time
	TrailingSL float64
	PnL        float64
	Closed     bool `gorm:"index"`
}

// CandleModel stores every closed candle observed by the pipeline.
type CandleModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	Symbol    string    `gorm:"index:idx_candle,priority:1"`
	Timeframe string    `gorm:"index:idx_candle,priority:2"`
	Time      time.Time `gorm:"index:idx_candle,priority:3"`
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// IndicatorModel stores one indicator value at one timestamp.
type IndicatorModel struct {
	ID     int64     `gorm:"primaryKey;autoIncrement"`
	Symbol string    `gorm:"index"`
	Name   string    `gorm:"index"`
	Value  float64   ``
	Time   time.Time `gorm:"index"`
}

// SQLDataManager implements core.DataManager on a relational database via
// GORM. It is the backend of choice when the journal must outlive the run
// and be queryable.
type SQLDataManager struct {
	db *gorm.DB
}

// NewFromSQLite opens (or creates) a SQLite database at dbPath and migrates
// the schema.
func NewFromSQLite(dbPath string, config SQLConfig, opts ...gorm.Option) (*SQLDataManager, error) {
	return newFromSQL(sqlite.Open(dbPath), config, opts...)
}

func newFromSQL(dialect gorm.Dialector, config SQLConfig, opts ...gorm.Option) (*SQLDataManager, error) {
	db, err := gorm.Open(dialect, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)

	if err = db.AutoMigrate(
		&SignalModel{},
		&TradeModel{},
		&CandleModel{},
		&IndicatorModel{},
	); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLDataManager{db: db}, nil
}

func (s *SQLDataManager) LogSignal(ctx context.Context, signal core.Signal, approved bool, reason string) error {
	model := SignalModel{
		StrategyID: signal.StrategyID,
		Symbol:     signal.Symbol,
		Side:       string(signal.Side),
		Price:      signal.Price,
		Quantity:   signal.Quantity,
		Origin:     string(signal.Origin),
		Reason:     signal.Reason,
		Approved:   approved,
		Time:       signal.Time,
	}
	if !approved {
		model.RejectedBy = reason
	}
	if result := s.db.WithContext(ctx).Create(&model); result.Error != nil {
		return fmt.Errorf("failed to create signal: %w", result.Error)
	}
	return nil
}

func (s *SQLDataManager) LogTradeOpen(ctx context.Context, position core.Position) error {
	model := TradeModel{
		TradeID:    position.TradeID,
		StrategyID: position.StrategyID,
		Symbol:     position.Symbol,
		EntryPrice: position.EntryPrice,
		Quantity:   position.Quantity,
		EntryTime:  position.EntryTime,
	}
	if result := s.db.WithContext(ctx).Create(&model); result.Error != nil {
		return fmt.Errorf("failed to create trade: %w", result.Error)
	}
	return nil
}

func (s *SQLDataManager) LogTradeClose(ctx context.Context, position core.Position, pnl float64) error {
	now := time.Now()
	result := s.db.WithContext(ctx).Model(&TradeModel{}).
		Where("trade_id = ?", position.TradeID).
		Updates(map[string]any{
			"pn_l":      pnl,
			"closed":    true,
			"exit_time": &now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to close trade: %w", result.Error)
	}
	return nil
}

func (s *SQLDataManager) LogPositionUpdate(context.Context, core.Position) error {
	// Position marks arrive on every tick; persisting each one to SQL would
	// dominate write volume for no reporting value. The trade open and close
	// rows carry the durable state.
	return nil
}

func (s *SQLDataManager) LogIndicatorValues(ctx context.Context, symbol string, ts time.Time, values map[string]float64) error {
	if len(values) == 0 {
		return nil
	}
	models := make([]IndicatorModel, 0, len(values))
	for name, value := range values {
		models = append(models, IndicatorModel{
			Symbol: symbol,
			Name:   name,
			Value:  value,
			Time:   ts,
		})
	}
	if result := s.db.WithContext(ctx).Create(&models); result.Error != nil {
		return fmt.Errorf("failed to create indicator values: %w", result.Error)
	}
	return nil
}

func (s *SQLDataManager) LogCandle(ctx context.Context, candle core.Candle) error {
	model := CandleModel{
		Symbol:    candle.Symbol,
		Timeframe: candle.Timeframe,
		Time:      candle.Time,
		Open:      candle.Open,
		High:      candle.High,
		Low:       candle.Low,
		Close:     candle.Close,
		Volume:    candle.Volume,
	}
	if result := s.db.WithContext(ctx).Create(&model); result.Error != nil {
		return fmt.Errorf("failed to create candle: %w", result.Error)
	}
	return nil
}

func (s *SQLDataManager) UpdateTrailingSL(ctx context.Context, tradeID string, stop float64) error {
	result := s.db.WithContext(ctx).Model(&TradeModel{}).
		Where("trade_id = ?", tradeID).
		Update("trailing_sl", stop)
	if result.Error != nil {
		return fmt.Errorf("failed to update trailing stop: %w", result.Error)
	}
	return nil
}

// DailySummary aggregates the day's rows with count and sum queries.
func (s *SQLDataManager) DailySummary(ctx context.Context, date time.Time) (core.DailySummary, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.Add(24 * time.Hour)
	tx := s.db.WithContext(ctx)

	summary := core.DailySummary{Date: dayStart}

	var emitted, approved int64
	if result := tx.Model(&SignalModel{}).
		Where("time >= ? AND time < ?", dayStart, dayEnd).
		Count(&emitted); result.Error != nil {
		return core.DailySummary{}, fmt.Errorf("failed to count signals: %w", result.Error)
	}
	if result := tx.Model(&SignalModel{}).
		Where("time >= ? AND time < ? AND approved = ?", dayStart, dayEnd, true).
		Count(&approved); result.Error != nil {
		return core.DailySummary{}, fmt.Errorf("failed to count approved signals: %w", result.Error)
	}
	summary.SignalsEmitted = int(emitted)
	summary.SignalsApproved = int(approved)
	summary.SignalsRejected = int(emitted - approved)

	var opened, closed int64
	if result := tx.Model(&TradeModel{}).
		Where("entry_time >= ? AND entry_time < ?", dayStart, dayEnd).
		Count(&opened); result.Error != nil {
		return core.DailySummary{}, fmt.Errorf("failed to count trades: %w", result.Error)
	}
	if result := tx.Model(&TradeModel{}).
		Where("entry_time >= ? AND entry_time < ? AND closed = ?", dayStart, dayEnd, true).
		Count(&closed); result.Error != nil {
		return core.DailySummary{}, fmt.Errorf("failed to count closed trades: %w", result.Error)
	}
	summary.TradesOpened = int(opened)
	summary.TradesClosed = int(closed)

	var pnl struct{ Total float64 }
	if result := tx.Model(&TradeModel{}).
		Select("COALESCE(SUM(pn_l), 0) AS total").
		Where("entry_time >= ? AND entry_time < ? AND closed = ?", dayStart, dayEnd, true).
		Scan(&pnl); result.Error != nil {
		return core.DailySummary{}, fmt.Errorf("failed to sum pnl: %w", result.Error)
	}
	summary.RealizedPnL = pnl.Total

	return summary, nil
}

func (s *SQLDataManager) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}
