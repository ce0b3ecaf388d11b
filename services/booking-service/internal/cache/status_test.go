package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/clinicportal/services/booking-service/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T) (*RedisStatusCache, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStatusCache(rdb, 30*time.Second), mr, rdb
}

func TestRedisStatusCacheRoundTrip(t *testing.T) {
	c, mr, rdb := newCache(t)
	ctx := context.Background()
	date := model.Date{Year: 2026, Month: time.October, Day: 19}

	_, hit, err := c.Get(ctx, date)
	require.NoError(t, err)
	assert.False(t, hit)

	want := []availability.DayStatus{
		{DoctorID: "d1", FullyBooked: true},
		{DoctorID: "d2", NotAvailableToday: true},
	}
	require.NoError(t, c.Set(ctx, date, 0, want))
	assert.True(t, mr.Exists("booking:availability:2026-10-19"))

	got, hit, err := c.Get(ctx, date)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, want, got)

	mr.FastForward(31 * time.Second)
	_, hit, err = c.Get(ctx, date)
	require.NoError(t, err)
	assert.False(t, hit, "entry should expire after the ttl")

	require.NoError(t, c.Set(ctx, date, 0, want))
	require.NoError(t, c.Invalidate(ctx, date))
	_, hit, _ = c.Get(ctx, date)
	assert.False(t, hit)

	require.NoError(t, ReadyCheck(rdb)(ctx))
}

func TestRedisStatusCacheDropsWriteAfterInvalidate(t *testing.T) {
	c, mr, _ := newCache(t)
	ctx := context.Background()
	date := model.Date{Year: 2026, Month: time.October, Day: 19}
	stale := []availability.DayStatus{{DoctorID: "d1"}}

	version, err := c.Generation(ctx, date)
	require.NoError(t, err)
	assert.Zero(t, version)

	// A booking lands while the result is being computed.
	require.NoError(t, c.Invalidate(ctx, date))
	require.NoError(t, c.Set(ctx, date, version, stale))
	assert.False(t, mr.Exists("booking:availability:2026-10-19"), "result computed before the invalidation must not be cached")

	version, err = c.Generation(ctx, date)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
	fresh := []availability.DayStatus{{DoctorID: "d1", FullyBooked: true}}
	require.NoError(t, c.Set(ctx, date, version, fresh))
	got, hit, err := c.Get(ctx, date)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, fresh, got)

	ttl := mr.TTL("booking:availability:gen:2026-10-19")
	assert.Positive(t, ttl)
}

func TestRedisStatusCacheCorruptEntryIsMiss(t *testing.T) {
	c, mr, _ := newCache(t)
	date := model.Date{Year: 2026, Month: time.October, Day: 20}
	require.NoError(t, mr.Set("booking:availability:2026-10-20", "{not json"))

	_, hit, err := c.Get(context.Background(), date)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestRedisStatusCacheDown(t *testing.T) {
	c, mr, _ := newCache(t)
	mr.Close()
	_, _, err := c.Get(context.Background(), model.Date{Year: 2026, Month: time.October, Day: 19})
	require.Error(t, err)
}
