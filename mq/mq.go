package mq

import "context"

// PurgeAccountJob asks the consumer to remove everything persisted for
// a removed account: its board set and its cached feed snapshot.
type PurgeAccountJob struct {
	AccountId string `json:"accountId"`
	OwnerId   string `json:"ownerId"`
}

// Message is one received purge job plus the queue receipt needed to
// acknowledge it.
type Message struct {
	Receipt string
	Job     PurgeAccountJob
}

type MessageQueue interface {
	SendPurge(ctx context.Context, job PurgeAccountJob) error
	Receive(ctx context.Context, visibilityTimeout int32) (*Message, error)
	Delete(ctx context.Context, msg *Message) error
}
