package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// reserveScript is the whole reserve operation as one atomic unit: evict
// expired members, check the count, conditionally add. Split calls would
// race: two concurrent requests must never both see the last free slot.
var reserveScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
if redis.call("ZCARD", key) >= limit then
  return 0
end
redis.call("ZADD", key, now, member)
redis.call("PEXPIRE", key, window)
return 1
`)

// consumeScript re-keys a reserved member under a "done:" prefix at its
// original score. The slot keeps counting toward the window while ZREM on
// the reservation id stops matching, so a later release reports false.
var consumeScript = redis.NewScript(`
local key = KEYS[1]
local member = ARGV[1]

local score = redis.call("ZSCORE", key, member)
if not score then
  return 0
end
redis.call("ZREM", key, member)
redis.call("ZADD", key, tonumber(score), "done:" .. member)
return 1
`)

// RedisReserver is the primary quota backend: a sorted set per account,
// member = reservation id, score = reservation time in unix milliseconds.
type RedisReserver struct {
	rdb *redis.Client
}

func NewRedisReserver(rdb *redis.Client) *RedisReserver {
	return &RedisReserver{rdb: rdb}
}

func quotaKey(accountID int) string {
	return fmt.Sprintf("summary:quota:%d", accountID)
}

func (r *RedisReserver) Reserve(ctx context.Context, accountID int, maxPer24h int, now time.Time) (Reservation, error) {
	id := uuid.NewString()
	ok, err := reserveScript.Run(ctx, r.rdb,
		[]string{quotaKey(accountID)},
		now.UnixMilli(),
		Window.Milliseconds(),
		maxPer24h,
		id,
	).Int()
	if err != nil {
		return Reservation{}, fmt.Errorf("quota reserve script failed: %w", err)
	}
	if ok != 1 {
		return Reservation{Reserved: false, Source: SourcePrimary}, nil
	}
	return Reservation{Reserved: true, ID: id, Source: SourcePrimary}, nil
}

func (r *RedisReserver) Release(ctx context.Context, accountID int, reservationID string) (bool, error) {
	removed, err := r.rdb.ZRem(ctx, quotaKey(accountID), reservationID).Result()
	if err != nil {
		return false, fmt.Errorf("quota release failed: %w", err)
	}
	return removed > 0, nil
}

// Consume ignores threadID and content: the summary body is persisted by
// the digest store regardless of which backend held the slot.
func (r *RedisReserver) Consume(ctx context.Context, accountID int, reservationID string, _, _ string) (bool, error) {
	ok, err := consumeScript.Run(ctx, r.rdb, []string{quotaKey(accountID)}, reservationID).Int()
	if err != nil {
		return false, fmt.Errorf("quota consume script failed: %w", err)
	}
	return ok == 1, nil
}

func (r *RedisReserver) CountActive(ctx context.Context, accountID int, now time.Time) (int, error) {
	min := fmt.Sprintf("(%d", now.Add(-Window).UnixMilli())
	count, err := r.rdb.ZCount(ctx, quotaKey(accountID), min, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("quota count failed: %w", err)
	}
	return int(count), nil
}
