package cache

import "context"

type PregramCache interface {
	Publish(ctx context.Context, channel string, message []byte) error
	Subscribe(ctx context.Context, channel string, handler func(message []byte)) error

	SetFeed(ctx context.Context, accountId string, feed []byte) error
	GetFeed(ctx context.Context, accountId string) ([]byte, error)
	InvalidateFeeds(ctx context.Context, accountIds []string) error
}
