package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// CachedFetcher keeps downloaded price histories in Redis. Cache failures are
// logged and the request falls through to the wrapped fetcher.
type CachedFetcher struct {
	next   Fetcher
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewCachedFetcher wraps next with a Redis cache.
func NewCachedFetcher(next Fetcher, client *redis.Client, ttl time.Duration, log zerolog.Logger) *CachedFetcher {
	return &CachedFetcher{
		next:   next,
		client: client,
		ttl:    ttl,
		log:    log.With().Str("component", "price_cache").Logger(),
	}
}

func cacheKey(ticker string, years int) string {
	return fmt.Sprintf("prices:%s:%d", ticker, years)
}

// FetchPrices returns the cached history for ticker or downloads and stores it.
func (c *CachedFetcher) FetchPrices(ctx context.Context, ticker string, years int) (*PriceData, error) {
	key := cacheKey(ticker, years)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var pd PriceData
		if err := json.Unmarshal(raw, &pd); err == nil {
			c.log.Debug().Str("ticker", ticker).Msg("cache hit")
			return &pd, nil
		}
		c.log.Warn().Str("key", key).Msg("discarding unreadable cache entry")
	case errors.Is(err, redis.Nil):
	default:
		c.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}

	pd, err := c.next.FetchPrices(ctx, ticker, years)
	if err != nil {
		return nil, err
	}

	raw, err = json.Marshal(pd)
	if err != nil {
		return pd, nil
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	return pd, nil
}
