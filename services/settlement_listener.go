package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hkshop/storefront/models"
	awspkg "github.com/hkshop/storefront/pkg/aws"
	"github.com/hkshop/storefront/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SettlementOutcome says how far a notification got through settlement.
type SettlementOutcome string

const (
	OutcomeSettled        SettlementOutcome = "settled"
	OutcomeAlreadySettled SettlementOutcome = "already_settled"
	OutcomeDuplicate      SettlementOutcome = "duplicate"
	OutcomeIgnored        SettlementOutcome = "ignored"
	OutcomeRejected       SettlementOutcome = "rejected"
	OutcomeFailed         SettlementOutcome = "failed"
)

// SettlementListener turns verified payment notifications into ledger
// completions. Each step is a gate; a notification that fails one is
// dropped without touching the ledger.
type SettlementListener struct {
	verifier    NotificationVerifier
	guard       *IdempotencyGuard
	ledger      repository.OrderLedger
	events      EventPublisher
	metrics     MetricsRecorder
	logger      *zap.Logger
	stepTimeout time.Duration
}

type SettlementListenerDeps struct {
	Verifier    NotificationVerifier
	Guard       *IdempotencyGuard
	Ledger      repository.OrderLedger
	Events      EventPublisher
	Metrics     MetricsRecorder
	Logger      *zap.Logger
	StepTimeout time.Duration
}

func NewSettlementListener(deps SettlementListenerDeps) *SettlementListener {
	l := &SettlementListener{
		verifier:    deps.Verifier,
		guard:       deps.Guard,
		ledger:      deps.Ledger,
		events:      deps.Events,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		stepTimeout: deps.StepTimeout,
	}
	if l.events == nil {
		l.events = NoopEventPublisher{}
	}
	if l.metrics == nil {
		l.metrics = noopMetrics{}
	}
	if l.stepTimeout <= 0 {
		l.stepTimeout = 10 * time.Second
	}
	return l
}

// OnNotification processes one notification and only logs the result.
func (l *SettlementListener) OnNotification(ctx context.Context, raw []byte) {
	outcome, err := l.Process(ctx, raw)
	if err != nil && outcome == OutcomeFailed {
		l.logger.Error("Settlement failed", zap.Error(err))
	}
}

// Process runs the settlement steps and reports where it stopped.
func (l *SettlementListener) Process(ctx context.Context, raw []byte) (SettlementOutcome, error) {
	if err := l.authenticate(ctx, raw); err != nil {
		return l.reject(ctx, err)
	}

	msg, err := models.ParseIPN(raw)
	if err != nil {
		return l.reject(ctx, fmt.Errorf("%w: %v", ErrMalformedNotification, err))
	}
	log := l.logger.With(zap.String("txn_id", msg.TxnID), zap.String("invoice", msg.Invoice))

	if msg.PaymentStatus != models.IPNPaymentStatusCompleted {
		log.Info("Ignoring notification", zap.String("payment_status", msg.PaymentStatus))
		return OutcomeIgnored, nil
	}
	if msg.TxnID == "" {
		return l.reject(ctx, fmt.Errorf("%w: missing txn_id", ErrMalformedNotification))
	}

	if l.guard.Seen(msg.TxnID) {
		log.Info("Transaction already settled in this process")
		_ = l.metrics.RecordCount(ctx, awspkg.MetricDuplicateNotification, nil)
		return OutcomeDuplicate, nil
	}

	orderID, err := uuid.Parse(msg.Invoice)
	if err != nil {
		log.Warn("Notification references an unknown order")
		return OutcomeRejected, fmt.Errorf("%w: invoice %q", ErrOrderNotFound, msg.Invoice)
	}

	order, err := l.loadOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn("Notification references an unknown order")
			return OutcomeRejected, err
		}
		return OutcomeFailed, fmt.Errorf("load order %s: %w", orderID, err)
	}

	expected, err := ComputeDigestForVersion(order.DigestVersion, order.CommitmentInput())
	if err != nil {
		log.Error("Cannot re-derive order digest", zap.Error(err))
		return OutcomeRejected, err
	}
	if !DigestsEqual(expected, msg.Custom) {
		log.Error("Order digest mismatch, refusing to settle",
			zap.String("order_id", orderID.String()),
			zap.String("expected_digest", expected),
			zap.String("received_digest", msg.Custom))
		_ = l.metrics.RecordCount(ctx, awspkg.MetricDigestMismatch, nil)
		return OutcomeRejected, ErrDigestMismatch
	}
	if field := paymentMismatch(msg, order); field != "" {
		log.Error("Payment does not match the committed order, refusing to settle",
			zap.String("order_id", orderID.String()),
			zap.String("field", field),
			zap.String("received_gross", msg.Gross),
			zap.String("received_currency", msg.Currency),
			zap.String("received_receiver", msg.ReceiverEmail))
		_ = l.metrics.RecordCount(ctx, awspkg.MetricDigestMismatch, nil)
		return OutcomeRejected, fmt.Errorf("%w: %s", ErrDigestMismatch, field)
	}

	if err := l.markCompleted(ctx, orderID, msg.TxnID); err != nil {
		if errors.Is(err, ErrAlreadyCompleted) {
			log.Info("Order already completed")
			return OutcomeAlreadySettled, nil
		}
		if errors.Is(err, repository.ErrDuplicateTransaction) {
			log.Error("Transaction id already settled another order", zap.Error(err))
			return OutcomeRejected, err
		}
		return OutcomeFailed, fmt.Errorf("complete order %s: %w", orderID, err)
	}

	l.guard.Record(msg.TxnID)
	log.Info("Order settled", zap.String("order_id", orderID.String()))
	_ = l.metrics.RecordCount(ctx, awspkg.MetricOrdersCompleted, nil)
	l.publish(ctx, models.OrderEvent{
		Type:          models.EventOrderCompleted,
		OrderID:       orderID,
		OwnerIdentity: order.OwnerIdentity,
		TotalPrice:    order.TotalPrice,
		Currency:      order.CurrencyCode,
		TransactionID: msg.TxnID,
		Timestamp:     time.Now().UTC(),
	})
	return OutcomeSettled, nil
}

// paymentMismatch names the first paid field that differs from the stored
// order, or returns "" when the payment covers it. receiver_email is only
// checked when present.
func paymentMismatch(msg *models.IPNMessage, order *models.Order) string {
	gross, err := decimal.NewFromString(strings.TrimSpace(msg.Gross))
	if err != nil || !gross.Equal(order.TotalPrice) {
		return "mc_gross"
	}
	if msg.Currency != order.CurrencyCode {
		return "mc_currency"
	}
	if msg.ReceiverEmail != "" && !strings.EqualFold(msg.ReceiverEmail, order.PayeeIdentity) {
		return "receiver_email"
	}
	return ""
}

func (l *SettlementListener) authenticate(ctx context.Context, raw []byte) error {
	ctx, cancel := context.WithTimeout(ctx, l.stepTimeout)
	defer cancel()
	return l.verifier.Verify(ctx, raw)
}

func (l *SettlementListener) loadOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, l.stepTimeout)
	defer cancel()
	return l.ledger.Get(ctx, orderID)
}

func (l *SettlementListener) markCompleted(ctx context.Context, orderID uuid.UUID, txnID string) error {
	ctx, cancel := context.WithTimeout(ctx, l.stepTimeout)
	defer cancel()
	return l.ledger.MarkCompleted(ctx, orderID, txnID)
}

// reject handles a failure at the authentication or parsing gates.
func (l *SettlementListener) reject(ctx context.Context, err error) (SettlementOutcome, error) {
	switch {
	case errors.Is(err, ErrUnverifiedNotification):
		l.logger.Warn("Dropping unverified notification", zap.Error(err))
		_ = l.metrics.RecordCount(ctx, awspkg.MetricUnverifiedNotification, nil)
		return OutcomeRejected, err
	case errors.Is(err, ErrMalformedNotification):
		l.logger.Warn("Dropping malformed notification", zap.Error(err))
		return OutcomeRejected, err
	default:
		return OutcomeFailed, fmt.Errorf("verify notification: %w", err)
	}
}

func (l *SettlementListener) publish(ctx context.Context, event models.OrderEvent) {
	if err := l.events.Publish(ctx, event); err != nil {
		l.logger.Warn("Failed to publish order event",
			zap.String("type", event.Type),
			zap.String("order_id", event.OrderID.String()),
			zap.Error(err))
	}
}
