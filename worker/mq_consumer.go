package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/pregram/pregram/cache"
	"github.com/pregram/pregram/mq"
	"github.com/pregram/pregram/store"
)

type MQConsumer struct {
	purgeAccountQueue mq.MessageQueue
	pregramStore      store.PregramStore
	pregramCache      cache.PregramCache
}

func NewMQConsumer(purgeAccountQueue mq.MessageQueue, pregramStore store.PregramStore, pregramCache cache.PregramCache) *MQConsumer {
	return &MQConsumer{
		purgeAccountQueue: purgeAccountQueue,
		pregramStore:      pregramStore,
		pregramCache:      pregramCache,
	}
}

const visibilityTimeout = 60

func (mqConsumer MQConsumer) Run(shutdownCtx context.Context) {
	for {
		msg, err := mqConsumer.purgeAccountQueue.Receive(shutdownCtx, visibilityTimeout)

		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			log.Printf("mqConsumer receive error: %v", err)
			continue
		}

		if msg == nil {
			continue
		}

		// timeout should be a little less than queue visibility timeout
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(visibilityTimeout-1)*time.Second)

		err = mqConsumer.pregramStore.DeleteBoardSet(ctx, msg.Job.AccountId)
		if err != nil && !errors.Is(err, store.ErrItemNotFound) {
			log.Printf("pregramStore delete board set error: %v", err)
			cancel()
			continue
		}

		if err := mqConsumer.pregramCache.InvalidateFeeds(ctx, []string{msg.Job.AccountId}); err != nil {
			log.Printf("Failed to invalidate feed for account %s: %v", msg.Job.AccountId, err)
		}
		cancel()

		err = mqConsumer.purgeAccountQueue.Delete(context.Background(), msg)
		if err != nil {
			log.Printf("mqConsumer delete error: %v", err)
			continue
		}
	}
}
