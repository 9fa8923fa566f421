package cache

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"github.com/sony/gobreaker"
)

// pushIfPresent prepends only to an existing list so a partial list never
// masquerades as the full recent history.
var pushIfPresent = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	redis.call('LPUSH', KEYS[1], ARGV[1])
	redis.call('LTRIM', KEYS[1], 0, tonumber(ARGV[2]) - 1)
	redis.call('PEXPIRE', KEYS[1], tonumber(ARGV[3]))
	return 1
end
return 0
`)

type Options struct {
	TTL   time.Duration
	Limit int
	// Breaker trips after this many consecutive failures.
	MaxFailures  uint32
	BreakerReset time.Duration
}

type RedisCache struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	log     *slog.Logger
	ttl     time.Duration
	limit   int
}

// NewRedisClient parses a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return c, nil
}

func NewRedisCache(client *redis.Client, log *slog.Logger, opts Options) *RedisCache {
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Second
	}
	if opts.Limit <= 0 {
		opts.Limit = domain.RetentionLimit
	}
	if opts.MaxFailures == 0 {
		opts.MaxFailures = 5
	}
	if opts.BreakerReset <= 0 {
		opts.BreakerReset = 30 * time.Second
	}
	st := gobreaker.Settings{
		Name:        "recent-message-cache",
		MaxRequests: 1,
		Timeout:     opts.BreakerReset,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Info("Circuit breaker state", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &RedisCache{
		client:  client,
		breaker: gobreaker.NewCircuitBreaker(st),
		log:     log,
		ttl:     opts.TTL,
		limit:   opts.Limit,
	}
}

var _ IRecentMessageCache = (*RedisCache)(nil)

func (c *RedisCache) execute(fn func() (any, error)) (any, error) {
	res, err := c.breaker.Execute(fn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrCacheUnavailable, err)
	}
	return res, nil
}

func (c *RedisCache) Get(ctx context.Context, roomID domain.RoomID) ([]domain.MessageView, bool, error) {
	res, err := c.execute(func() (any, error) {
		return c.client.LRange(ctx, Key(roomID), 0, int64(c.limit-1)).Result()
	})
	if err != nil {
		return nil, false, err
	}
	raw := res.([]string)
	// Redis never keeps an empty list, so no entries means no key.
	if len(raw) == 0 {
		return nil, false, nil
	}
	views := make([]domain.MessageView, 0, len(raw))
	for _, item := range raw {
		var view domain.MessageView
		if err := json.Unmarshal([]byte(item), &view); err != nil {
			return nil, false, fmt.Errorf("%w: decode entry: %w", errors.ErrCacheUnavailable, err)
		}
		views = append(views, view)
	}
	return views, true, nil
}

func (c *RedisCache) Put(ctx context.Context, roomID domain.RoomID, views []domain.MessageView) error {
	views = lo.Slice(views, 0, c.limit)
	values := make([]any, 0, len(views))
	for _, view := range views {
		b, err := json.Marshal(view)
		if err != nil {
			return err
		}
		values = append(values, b)
	}
	key := Key(roomID)
	_, err := c.execute(func() (any, error) {
		return c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			if len(values) == 0 {
				return nil
			}
			// RPUSH keeps the newest-first order of views with the newest at the head.
			pipe.RPush(ctx, key, values...)
			pipe.LTrim(ctx, key, 0, int64(c.limit-1))
			pipe.PExpire(ctx, key, c.ttl)
			return nil
		})
	})
	return err
}

func (c *RedisCache) PushIfPresent(ctx context.Context, roomID domain.RoomID, view domain.MessageView) (bool, error) {
	b, err := json.Marshal(view)
	if err != nil {
		return false, err
	}
	res, err := c.execute(func() (any, error) {
		return pushIfPresent.Run(ctx, c.client, []string{Key(roomID)}, b, c.limit, c.ttl.Milliseconds()).Int()
	})
	if err != nil {
		return false, err
	}
	return res.(int) == 1, nil
}

func (c *RedisCache) Invalidate(ctx context.Context, roomID domain.RoomID) error {
	_, err := c.execute(func() (any, error) {
		return c.client.Del(ctx, Key(roomID)).Result()
	})
	return err
}

func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrCacheUnavailable, err)
	}
	return nil
}
