package services

import (
	"context"
	"errors"
	"sync"
	"time"

	awspkg "github.com/hkshop/storefront/pkg/aws"
	"go.uber.org/zap"
)

var ErrDispatcherSaturated = errors.New("notification dispatcher saturated")

// NotificationDispatcher hands a raw notification to settlement without
// making the webhook wait for it.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, raw []byte) error
}

// NotificationHandler is satisfied by *SettlementListener.
type NotificationHandler interface {
	OnNotification(ctx context.Context, raw []byte)
}

// InProcessDispatcher settles each notification on its own goroutine. At
// most maxInFlight run at once; beyond that notifications are dropped and
// PayPal's redelivery brings them back.
type InProcessDispatcher struct {
	handler NotificationHandler
	timeout time.Duration
	slots   chan struct{}
	wg      sync.WaitGroup
	metrics MetricsRecorder
	logger  *zap.Logger
}

func NewInProcessDispatcher(handler NotificationHandler, maxInFlight int, timeout time.Duration, metrics MetricsRecorder, logger *zap.Logger) *InProcessDispatcher {
	if maxInFlight <= 0 {
		maxInFlight = 32
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &InProcessDispatcher{
		handler: handler,
		timeout: timeout,
		slots:   make(chan struct{}, maxInFlight),
		metrics: metrics,
		logger:  logger,
	}
}

func (d *InProcessDispatcher) Dispatch(ctx context.Context, raw []byte) error {
	select {
	case d.slots <- struct{}{}:
	default:
		d.logger.Warn("Dropping notification, dispatcher saturated", zap.Int("in_flight", cap(d.slots)))
		_ = d.metrics.RecordCount(ctx, awspkg.MetricNotificationsDropped, nil)
		return ErrDispatcherSaturated
	}

	body := append([]byte(nil), raw...)
	// The request context ends with the webhook response.
	workCtx := context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() { <-d.slots }()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("Notification handler panicked", zap.Any("panic", r))
			}
		}()

		workCtx, cancel := context.WithTimeout(workCtx, d.timeout)
		defer cancel()
		d.handler.OnNotification(workCtx, body)
	}()
	return nil
}

// Wait blocks until every dispatched notification has finished.
func (d *InProcessDispatcher) Wait() {
	d.wg.Wait()
}

// SQSDispatcher enqueues the raw body; SQSNotificationConsumer settles it.
type SQSDispatcher struct {
	queue awspkg.MessageSender
}

func NewSQSDispatcher(queue awspkg.MessageSender) *SQSDispatcher {
	return &SQSDispatcher{queue: queue}
}

func (d *SQSDispatcher) Dispatch(ctx context.Context, raw []byte) error {
	return d.queue.SendMessage(ctx, string(raw))
}
