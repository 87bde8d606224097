package redis

import (
	"context"
	"crypto/tls"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisPregramCache struct {
	client redis.UniversalClient
}

func NewRedisPregramCache(ctx context.Context, devMode bool, redis_endpoint string) (*RedisPregramCache, error) {
	var client redis.UniversalClient
	if devMode {
		client = redis.NewClient(&redis.Options{
			Addr: redis_endpoint,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr: redis_endpoint,
			// AWS elasticache endpoints require TLS
			TLSConfig: &tls.Config{},
		})
	}

	err := client.Ping(ctx).Err()
	if err != nil {
		return nil, err
	}

	return &RedisPregramCache{client: client}, nil
}

func (redisCache *RedisPregramCache) Publish(ctx context.Context, channel string, message []byte) error {
	if err := redisCache.client.Publish(ctx, channel, message).Err(); err != nil {
		return err
	}
	return nil
}

func (redisCache *RedisPregramCache) Subscribe(ctx context.Context, channel string, handler func(message []byte)) error {
	pubsub := redisCache.client.Subscribe(ctx, channel)
	// Ensure subscription is established
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		log.Printf("Pubsub channel closed: %s", channel)
		return err
	}

	ch := pubsub.Channel()

	go func() {
		defer pubsub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()

	return nil
}

// Hash tags keep all keys of one account in the same cluster slot
func buildFeedKey(accountId string) string {
	return "feed:{" + accountId + "}"
}

const feedTTL = 10 * time.Minute

func (redisCache *RedisPregramCache) SetFeed(ctx context.Context, accountId string, feed []byte) error {
	return redisCache.client.Set(ctx, buildFeedKey(accountId), feed, feedTTL).Err()
}

// GetFeed returns nil with no error when no snapshot is cached
func (redisCache *RedisPregramCache) GetFeed(ctx context.Context, accountId string) ([]byte, error) {
	val, err := redisCache.client.Get(ctx, buildFeedKey(accountId)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	return val, nil
}

func (redisCache *RedisPregramCache) InvalidateFeeds(ctx context.Context, accountIds []string) error {
	if len(accountIds) == 0 {
		return nil
	}

	// In Redis Cluster, keys with different hash tags hash to different slots,
	// so each account's key is deleted separately.
	for _, accountId := range accountIds {
		if err := redisCache.client.Del(ctx, buildFeedKey(accountId)).Err(); err != nil {
			return err
		}
	}

	return nil
}
