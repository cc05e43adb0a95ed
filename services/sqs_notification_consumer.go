package services

import (
	"context"

	awspkg "github.com/hkshop/storefront/pkg/aws"
	"go.uber.org/zap"
)

// NotificationPoller is satisfied by *aws.SQSQueue.
type NotificationPoller interface {
	StartPolling(ctx context.Context, handler awspkg.MessageHandler) error
}

// SQSNotificationConsumer feeds queued notifications to the settlement
// listener. Only failures worth retrying leave the message on the queue.
type SQSNotificationConsumer struct {
	poller   NotificationPoller
	listener *SettlementListener
	logger   *zap.Logger
}

func NewSQSNotificationConsumer(poller NotificationPoller, listener *SettlementListener, logger *zap.Logger) *SQSNotificationConsumer {
	return &SQSNotificationConsumer{poller: poller, listener: listener, logger: logger}
}

func (c *SQSNotificationConsumer) Start(ctx context.Context) error {
	return c.poller.StartPolling(ctx, c.HandleMessage)
}

func (c *SQSNotificationConsumer) HandleMessage(ctx context.Context, body string) error {
	outcome, err := c.listener.Process(ctx, []byte(body))
	if err == nil || IsPermanent(err) {
		c.logger.Debug("Notification handled", zap.String("outcome", string(outcome)))
		return nil
	}
	return err
}
