package cache

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T, opts Options) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client, slog.Default(), opts), mr
}

func views(texts ...string) []domain.MessageView {
	out := make([]domain.MessageView, len(texts))
	for i, text := range texts {
		out[i] = domain.MessageView{Text: text, UserID: 1, AvatarURL: "/a.png"}
	}
	return out
}

func TestCache_Miss_Then_Put_Then_Hit(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	c, _ := newCache(t, Options{})

	// Given nothing is cached
	_, ok, err := c.Get(ctx, 1)
	req.NoError(err)
	req.False(ok)

	// When the history is stored newest-first
	req.NoError(c.Put(ctx, 1, views("c", "b", "a")))

	// Then it is read back in the same order
	got, ok, err := c.Get(ctx, 1)
	req.NoError(err)
	req.True(ok)
	req.Equal(views("c", "b", "a"), got)
}

func TestCache_Put_Trims_To_Limit(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	c, _ := newCache(t, Options{Limit: 2})

	req.NoError(c.Put(ctx, 1, views("c", "b", "a")))

	got, ok, err := c.Get(ctx, 1)
	req.NoError(err)
	req.True(ok)
	req.Equal(views("c", "b"), got)
}

func TestCache_Entries_Expire(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	c, mr := newCache(t, Options{TTL: 10 * time.Second})

	req.NoError(c.Put(ctx, 1, views("a")))
	req.True(mr.Exists(Key(1)))

	// When the TTL elapses
	mr.FastForward(11 * time.Second)

	// Then the list is gone
	_, ok, err := c.Get(ctx, 1)
	req.NoError(err)
	req.False(ok)
}

func TestCache_PushIfPresent_Only_On_Existing_List(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	c, mr := newCache(t, Options{Limit: 3})

	// Given no list exists, a push must not create a partial one
	pushed, err := c.PushIfPresent(ctx, 1, views("x")[0])
	req.NoError(err)
	req.False(pushed)
	req.False(mr.Exists(Key(1)))

	// Given a full list exists
	req.NoError(c.Put(ctx, 1, views("c", "b", "a")))

	// When a new message is pushed
	pushed, err = c.PushIfPresent(ctx, 1, views("d")[0])
	req.NoError(err)
	req.True(pushed)

	// Then it is at the head and the tail is trimmed
	got, _, err := c.Get(ctx, 1)
	req.NoError(err)
	req.Equal(views("d", "c", "b"), got)
}

func TestCache_Invalidate(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	c, mr := newCache(t, Options{})

	req.NoError(c.Put(ctx, 1, views("a")))
	req.NoError(c.Invalidate(ctx, 1))
	req.False(mr.Exists(Key(1)))
}

func TestCache_Unavailable_Redis_Is_Reported_Then_Breaker_Opens(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	c, mr := newCache(t, Options{MaxFailures: 2})

	// Given redis goes away
	mr.Close()

	for i := 0; i < 3; i++ {
		_, ok, err := c.Get(ctx, 1)
		req.False(ok)
		req.ErrorIs(err, errors.ErrCacheUnavailable, fmt.Sprintf("attempt %d", i))
	}
	req.Error(c.Ping(ctx))
}
