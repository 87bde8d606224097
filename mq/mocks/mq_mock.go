package mocks

import (
	"context"

	"github.com/pregram/pregram/mq"
	"github.com/stretchr/testify/mock"
)

type MockMQ struct {
	mock.Mock
}

func (m *MockMQ) SendPurge(ctx context.Context, job mq.PurgeAccountJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockMQ) Receive(ctx context.Context, visibilityTimeout int32) (*mq.Message, error) {
	args := m.Called(ctx, visibilityTimeout)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mq.Message), args.Error(1)
}

func (m *MockMQ) Delete(ctx context.Context, msg *mq.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}
