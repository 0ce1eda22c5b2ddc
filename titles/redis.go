package titles

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisNextScript raises the counter to at least floor, increments it and
// refreshes its expiry in one atomic step.
// KEYS[1] = counter key
// ARGV[1] = floor
// ARGV[2] = ttl in seconds
var redisNextScript = redis.NewScript(`
local cur = tonumber(redis.call("GET", KEYS[1]) or "0")
local floor = tonumber(ARGV[1])
if cur < floor then
    cur = floor
end
cur = cur + 1
redis.call("SET", KEYS[1], cur, "EX", tonumber(ARGV[2]))
return cur
`)

// RedisSequence implements Sequence with one counter per date prefix.
// Counters expire after two days since a prefix is only used on its own day.
type RedisSequence struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSequence connects to the Redis instance at url (redis://host:port/db).
func NewRedisSequence(url string) (*RedisSequence, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing REDIS_URL: %w", err)
	}
	return &RedisSequence{client: redis.NewClient(opts), ttl: 48 * time.Hour}, nil
}

func (s *RedisSequence) Next(ctx context.Context, prefix string, floor int) (int, error) {
	key := "title_seq:" + prefix
	v, err := redisNextScript.Run(ctx, s.client, []string{key}, floor, int(s.ttl.Seconds())).Int()
	if err != nil {
		return 0, fmt.Errorf("redis title sequence: %w", err)
	}
	return v, nil
}

func (s *RedisSequence) Close() error {
	return s.client.Close()
}
