package sqsmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/pregram/pregram/mq"
)

// SQSPurgeQueue carries account-purge jobs. One producer (account
// deletion), one consumer (the purge worker), JSON bodies.
type SQSPurgeQueue struct {
	client   *sqs.Client
	queueURL string
}

func NewSQSPurgeQueue(ctx context.Context, devMode bool, sqsEndpoint string, queueName string) (*SQSPurgeQueue, error) {
	client, err := newSQSClient(context.Background(), devMode, sqsEndpoint)
	if err != nil {
		return nil, err
	}

	queues, err := getQueues(client, ctx)
	if err != nil {
		return nil, err
	}

	var queueURL string
	foundQueue := false
	for _, q := range queues {
		if strings.HasSuffix(q, "/"+queueName) {
			foundQueue = true
			queueURL = q
			break
		}
	}
	if !foundQueue {
		return nil, fmt.Errorf("given queue name '%s' not found in SQS", queueName)
	}

	return &SQSPurgeQueue{client, queueURL}, nil
}

func (q *SQSPurgeQueue) SendPurge(ctx context.Context, job mq.PurgeAccountJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}

	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	return err
}

// Receive long-polls for the next purge job. A body that does not parse
// as a purge job is acknowledged and dropped, so it cannot poison the
// queue.
func (q *SQSPurgeQueue) Receive(ctx context.Context, visibilityTimeout int32) (*mq.Message, error) {
	resp, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     20, // long polling
		VisibilityTimeout:   visibilityTimeout,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Messages) == 0 {
		return nil, nil // no message this poll
	}

	raw := resp.Messages[0]
	msg := &mq.Message{Receipt: aws.ToString(raw.ReceiptHandle)}

	if err := json.Unmarshal([]byte(aws.ToString(raw.Body)), &msg.Job); err != nil || msg.Job.AccountId == "" {
		log.Printf("Dropping malformed purge message: %v", err)
		if derr := q.Delete(ctx, msg); derr != nil {
			log.Printf("Failed to delete malformed purge message: %v", derr)
		}
		return nil, nil
	}

	return msg, nil
}

func (q *SQSPurgeQueue) Delete(ctx context.Context, msg *mq.Message) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(msg.Receipt),
	})
	return err
}
