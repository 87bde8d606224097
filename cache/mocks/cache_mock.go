package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Publish(ctx context.Context, channel string, message []byte) error {
	args := m.Called(ctx, channel, message)
	return args.Error(0)
}

func (m *MockCache) Subscribe(ctx context.Context, channel string, handler func(message []byte)) error {
	args := m.Called(ctx, channel, handler)
	return args.Error(0)
}

func (m *MockCache) SetFeed(ctx context.Context, accountId string, feed []byte) error {
	args := m.Called(ctx, accountId, feed)
	return args.Error(0)
}

func (m *MockCache) GetFeed(ctx context.Context, accountId string) ([]byte, error) {
	args := m.Called(ctx, accountId)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockCache) InvalidateFeeds(ctx context.Context, accountIds []string) error {
	args := m.Called(ctx, accountIds)
	return args.Error(0)
}
