// Package cache holds short-lived copies of bulk availability results.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/model"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "booking:availability:"
	genPrefix = "booking:availability:gen:"
	// genTTL only has to outlive one computation; a lapsed counter restarts at zero and any
	// in-flight Set holding the old value is discarded.
	genTTL = 48 * time.Hour
)

// RedisStatusCache stores one JSON document per date. Every replica shares it, so a booking on
// any replica invalidates the entry for all of them.
type RedisStatusCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStatusCache(rdb *redis.Client, ttl time.Duration) *RedisStatusCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisStatusCache{rdb: rdb, ttl: ttl}
}

func key(date model.Date) string {
	return keyPrefix + date.String()
}

func genKey(date model.Date) string {
	return genPrefix + date.String()
}

func (c *RedisStatusCache) Get(ctx context.Context, date model.Date) ([]availability.DayStatus, bool, error) {
	raw, err := c.rdb.Get(ctx, key(date)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var out []availability.DayStatus
	if err := json.Unmarshal(raw, &out); err != nil {
		// A corrupt entry is a miss; the next Set overwrites it.
		return nil, false, nil
	}
	return out, true, nil
}

// Generation reports how many times date has been invalidated (zero when never, or lapsed).
func (c *RedisStatusCache) Generation(ctx context.Context, date model.Date) (int64, error) {
	return readGeneration(ctx, c.rdb, date)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readGeneration(ctx context.Context, r getter, date model.Date) (int64, error) {
	n, err := r.Get(ctx, genKey(date)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get generation: %w", err)
	}
	return n, nil
}

// Set stores statuses only while the date's generation still equals version. The generation
// key is WATCHed so an Invalidate racing the write aborts the transaction.
func (c *RedisStatusCache) Set(ctx context.Context, date model.Date, version int64, statuses []availability.DayStatus) error {
	raw, err := json.Marshal(statuses)
	if err != nil {
		return err
	}
	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readGeneration(ctx, tx, date)
		if err != nil {
			return err
		}
		if current != version {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key(date), raw, c.ttl)
			return nil
		})
		return err
	}, genKey(date))
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

func (c *RedisStatusCache) Invalidate(ctx context.Context, date model.Date) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey(date))
		pipe.Expire(ctx, genKey(date), genTTL)
		pipe.Del(ctx, key(date))
		return nil
	})
	return err
}

// ReadyCheck pings Redis for /readyz.
func ReadyCheck(rdb *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if rdb == nil {
			return errors.New("redis not configured")
		}
		return rdb.Ping(ctx).Err()
	}
}
