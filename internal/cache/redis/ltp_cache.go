package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/awsshrinath/autotrade/internal/domain"
)

// LTPCache stores the last traded price per symbol in Redis hashes. Each
// symbol lives at key "ltp:{symbol}" with fields "price" and "ts" (Unix
// nanosecond timestamp). The feed ingestor writes, the monitor loop reads.
type LTPCache struct {
	rdb *redis.Client
}

// NewLTPCache creates an LTPCache backed by the given Client.
func NewLTPCache(c *Client) *LTPCache {
	return &LTPCache{rdb: c.rdb}
}

func ltpKey(symbol string) string {
	return "ltp:" + symbol
}

// SetPrice stores the latest traded price and tick timestamp for a symbol.
func (lc *LTPCache) SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error {
	fields := map[string]interface{}{
		"price": strconv.FormatFloat(price, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := lc.rdb.HSet(ctx, ltpKey(symbol), fields).Err(); err != nil {
		return fmt.Errorf("redis: set ltp %s: %w", symbol, err)
	}
	return nil
}

// LastPrice retrieves the latest traded price and tick timestamp for one
// symbol. It returns domain.ErrNotFound when nothing has been seen yet.
func (lc *LTPCache) LastPrice(ctx context.Context, symbol string) (float64, time.Time, error) {
	vals, err := lc.rdb.HGetAll(ctx, ltpKey(symbol)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get ltp %s: %w", symbol, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	price, err := strconv.ParseFloat(vals["price"], 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse ltp %s: %w", symbol, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse ltp ts %s: %w", symbol, err)
	}
	return price, time.Unix(0, tsNano), nil
}

// BatchLastPrice retrieves the latest prices for multiple symbols using a
// single pipeline round trip. Symbols with no stored price are omitted from
// the result map.
func (lc *LTPCache) BatchLastPrice(ctx context.Context, symbols []string) (map[string]float64, error) {
	if len(symbols) == 0 {
		return map[string]float64{}, nil
	}

	pipe := lc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(symbols))
	for _, sym := range symbols {
		cmds[sym] = pipe.HGetAll(ctx, ltpKey(sym))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: batch ltp pipeline: %w", err)
	}

	result := make(map[string]float64, len(symbols))
	for sym, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		price, err := strconv.ParseFloat(vals["price"], 64)
		if err != nil {
			continue
		}
		result[sym] = price
	}
	return result, nil
}

// Compile-time interface check.
var _ domain.PriceFeed = (*LTPCache)(nil)
