package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jpillora/backoff"
	"github.com/raykavin/intrabot/core"
	"github.com/redis/go-redis/v9"
)

const redisKeyTTL = 48 * time.Hour

// RedisDataManager mirrors live pipeline state into Redis so that external
// dashboards can watch a running simulation. Daily counters live in a hash
// per day, open positions in per-trade JSON keys.
type RedisDataManager struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisDataManager connects to Redis, retrying with exponential backoff
// until the context expires.
func NewRedisDataManager(ctx context.Context, addr, password string, db int) (*RedisDataManager, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	retry := &backoff.Backoff{
		Min:    250 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2,
		Jitter: true,
	}
	for {
		if err := client.Ping(ctx).Err(); err == nil {
			break
		} else if retry.Attempt() >= 5 {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
		}
		select {
		case <-ctx.Done():
			_ = client.Close()
			return nil, ctx.Err()
		case <-time.After(retry.Duration()):
		}
	}

	return &RedisDataManager{client: client, keyPrefix: "intrabot"}, nil
}

func (r *RedisDataManager) key(parts ...string) string {
	key := r.keyPrefix
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

func (r *RedisDataManager) summaryKey(ts time.Time) string {
	return r.key("summary", dayKey(ts))
}

func (r *RedisDataManager) LogSignal(ctx context.Context, signal core.Signal, approved bool, _ string) error {
	pipe := r.client.TxPipeline()
	key := r.summaryKey(signal.Time)
	pipe.HIncrBy(ctx, key, "signals_emitted", 1)
	if approved {
		pipe.HIncrBy(ctx, key, "signals_approved", 1)
	} else {
		pipe.HIncrBy(ctx, key, "signals_rejected", 1)
	}
	pipe.Expire(ctx, key, redisKeyTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisDataManager) LogTradeOpen(ctx context.Context, position core.Position) error {
	content, err := json.Marshal(position)
	if err != nil {
		return fmt.Errorf("failed to marshal position: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.key("position", position.TradeID), content, redisKeyTTL)
	key := r.summaryKey(position.EntryTime)
	pipe.HIncrBy(ctx, key, "trades_opened", 1)
	pipe.Expire(ctx, key, redisKeyTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisDataManager) LogTradeClose(ctx context.Context, position core.Position, pnl float64) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.key("position", position.TradeID))
	key := r.summaryKey(position.EntryTime)
	pipe.HIncrBy(ctx, key, "trades_closed", 1)
	pipe.HIncrByFloat(ctx, key, "realized_pnl", pnl)
	pipe.Expire(ctx, key, redisKeyTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisDataManager) LogPositionUpdate(ctx context.Context, position core.Position) error {
	content, err := json.Marshal(position)
	if err != nil {
		return fmt.Errorf("failed to marshal position: %w", err)
	}
	return r.client.Set(ctx, r.key("position", position.TradeID), content, redisKeyTTL).Err()
}

func (r *RedisDataManager) LogIndicatorValues(ctx context.Context, symbol string, _ time.Time, values map[string]float64) error {
	if len(values) == 0 {
		return nil
	}
	fields := make(map[string]any, len(values))
	for name, value := range values {
		fields[name] = value
	}
	key := r.key("indicators", symbol)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, redisKeyTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisDataManager) LogCandle(ctx context.Context, candle core.Candle) error {
	content, err := json.Marshal(candle)
	if err != nil {
		return fmt.Errorf("failed to marshal candle: %w", err)
	}
	key := r.key("candle", candle.Symbol, candle.Timeframe)
	return r.client.Set(ctx, key, content, redisKeyTTL).Err()
}

func (r *RedisDataManager) UpdateTrailingSL(ctx context.Context, tradeID string, stop float64) error {
	key := r.key("trailing", tradeID)
	return r.client.Set(ctx, key, stop, redisKeyTTL).Err()
}

func (r *RedisDataManager) DailySummary(ctx context.Context, date time.Time) (core.DailySummary, error) {
	fields, err := r.client.HGetAll(ctx, r.summaryKey(date)).Result()
	if err != nil {
		return core.DailySummary{}, fmt.Errorf("failed to load summary: %w", err)
	}
	summary := core.DailySummary{Date: date}
	read := func(field string) float64 {
		v, _ := strconv.ParseFloat(fields[field], 64)
		return v
	}
	summary.SignalsEmitted = int(read("signals_emitted"))
	summary.SignalsApproved = int(read("signals_approved"))
	summary.SignalsRejected = int(read("signals_rejected"))
	summary.TradesOpened = int(read("trades_opened"))
	summary.TradesClosed = int(read("trades_closed"))
	summary.RealizedPnL = read("realized_pnl")
	return summary, nil
}

func (r *RedisDataManager) Close() error {
	return r.client.Close()
}
