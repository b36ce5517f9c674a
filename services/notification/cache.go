package notification

import (
	"context"
	"errors"
	"strconv"
	"time"

	"wayfinder/utils"

	"github.com/go-redis/redis/v8"
)

// UnreadCache memoises unread counts per recipient. Every write bumps the
// recipient's generation; a count read from the store is only cached if the
// generation it was read under is still current.
type UnreadCache interface {
	// Get reports ok=false on a miss.
	Get(ctx context.Context, recipientID string) (count int64, ok bool, err error)
	// Generation must be read before the store is counted.
	Generation(ctx context.Context, recipientID string) (int64, error)
	// SetIfGeneration stores count unless the generation moved past gen.
	SetIfGeneration(ctx context.Context, recipientID string, count, gen int64) error
	Invalidate(ctx context.Context, recipientID string) error
}

// generationTTL outlives any count entry by far, so an expired generation
// cannot come back with a value a pending reader still holds.
const generationTTL = 24 * time.Hour

type RedisUnreadCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisUnreadCache(client *redis.Client, ttl time.Duration) *RedisUnreadCache {
	if ttl <= 0 {
		ttl = utils.UnreadCacheTTL
	}
	return &RedisUnreadCache{client: client, ttl: ttl}
}

func unreadKey(recipientID string) string {
	return utils.UnreadCachePrefix + recipientID
}

func generationKey(recipientID string) string {
	return utils.UnreadCachePrefix + "gen:" + recipientID
}

func (c *RedisUnreadCache) Get(ctx context.Context, recipientID string) (int64, bool, error) {
	val, err := c.client.Get(ctx, unreadKey(recipientID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		// corrupt entry, treat as a miss so it gets overwritten
		return 0, false, nil
	}
	return count, true, nil
}

func (c *RedisUnreadCache) Generation(ctx context.Context, recipientID string) (int64, error) {
	return readGeneration(ctx, c.client, recipientID)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readGeneration(ctx context.Context, g getter, recipientID string) (int64, error) {
	gen, err := g.Get(ctx, generationKey(recipientID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// SetIfGeneration watches the generation key so an Invalidate landing
// between the check and the write aborts the transaction.
func (c *RedisUnreadCache) SetIfGeneration(ctx context.Context, recipientID string, count, gen int64) error {
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readGeneration(ctx, tx, recipientID)
		if err != nil {
			return err
		}
		if current != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, unreadKey(recipientID), count, c.ttl)
			return nil
		})
		return err
	}, generationKey(recipientID))
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

func (c *RedisUnreadCache) Invalidate(ctx context.Context, recipientID string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(recipientID))
		pipe.Expire(ctx, generationKey(recipientID), generationTTL)
		pipe.Del(ctx, unreadKey(recipientID))
		return nil
	})
	return err
}
