package aws

import (
	"context"
	"fmt"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"
)

// SQSAPI is the slice of the SQS client the queue helpers call.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// MessageSender enqueues one message body.
type MessageSender interface {
	SendMessage(ctx context.Context, body string) error
}

// MessageHandler processes one message body. A nil return deletes the
// message; an error leaves it for redelivery after the visibility timeout.
type MessageHandler func(ctx context.Context, body string) error

// SQSQueue sends to and long-polls a single queue.
type SQSQueue struct {
	client       SQSAPI
	queueURL     string
	logger       *zap.Logger
	errorBackoff time.Duration
}

func NewSQSQueue(cfg sdkaws.Config, queueURL string, logger *zap.Logger) *SQSQueue {
	return NewSQSQueueWith(sqs.NewFromConfig(cfg), queueURL, logger)
}

func NewSQSQueueWith(client SQSAPI, queueURL string, logger *zap.Logger) *SQSQueue {
	return &SQSQueue{client: client, queueURL: queueURL, logger: logger, errorBackoff: 5 * time.Second}
}

// StartPolling runs until ctx is cancelled.
func (q *SQSQueue) StartPolling(ctx context.Context, handler MessageHandler) error {
	q.logger.Info("Starting SQS polling", zap.String("queue", q.queueURL))
	for {
		select {
		case <-ctx.Done():
			q.logger.Info("SQS polling stopped", zap.String("queue", q.queueURL))
			return ctx.Err()
		default:
		}
		if err := q.PollOnce(ctx, handler); err != nil && ctx.Err() == nil {
			q.logger.Error("Error polling SQS", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(q.errorBackoff):
			}
		}
	}
}

// PollOnce receives one batch and hands each message to handler.
func (q *SQSQueue) PollOnce(ctx context.Context, handler MessageHandler) error {
	result, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            sdkaws.String(q.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     20,
		VisibilityTimeout:   60,
	})
	if err != nil {
		return fmt.Errorf("failed to receive messages: %w", err)
	}

	for _, msg := range result.Messages {
		if msg.Body == nil {
			continue
		}
		if err := handler(ctx, *msg.Body); err != nil {
			q.logger.Warn("Message left for redelivery",
				zap.String("message_id", sdkaws.ToString(msg.MessageId)),
				zap.Error(err))
			continue
		}
		if _, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      sdkaws.String(q.queueURL),
			ReceiptHandle: msg.ReceiptHandle,
		}); err != nil {
			q.logger.Error("Failed to delete message",
				zap.String("message_id", sdkaws.ToString(msg.MessageId)),
				zap.Error(err))
		}
	}
	return nil
}

func (q *SQSQueue) SendMessage(ctx context.Context, body string) error {
	_, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    sdkaws.String(q.queueURL),
		MessageBody: sdkaws.String(body),
	})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}
