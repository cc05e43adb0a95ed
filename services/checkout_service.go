package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/hkshop/storefront/models"
	awspkg "github.com/hkshop/storefront/pkg/aws"
	"github.com/hkshop/storefront/repository"
	"go.uber.org/zap"
)

// CheckoutService defines the checkout operations exposed over HTTP.
type CheckoutService interface {
	SubmitCart(ctx context.Context, cart []models.CartLineRequest, ownerIdentity string) (*models.SubmitCartResponse, error)
	CreatePaymentOrder(ctx context.Context, orderID uuid.UUID) (string, error)
	CapturePaymentOrder(ctx context.Context, externalOrderRef string) (*CaptureResult, error)
}

type checkoutServiceImpl struct {
	verifier      *CartVerifier
	ledger        repository.OrderLedger
	gateway       PaymentGateway
	events        EventPublisher
	metrics       MetricsRecorder
	logger        *zap.Logger
	ledgerTimeout time.Duration
}

type CheckoutServiceDeps struct {
	Verifier      *CartVerifier
	Ledger        repository.OrderLedger
	Gateway       PaymentGateway
	Events        EventPublisher
	Metrics       MetricsRecorder
	Logger        *zap.Logger
	LedgerTimeout time.Duration
}

func NewCheckoutService(deps CheckoutServiceDeps) CheckoutService {
	s := &checkoutServiceImpl{
		verifier:      deps.Verifier,
		ledger:        deps.Ledger,
		gateway:       deps.Gateway,
		events:        deps.Events,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		ledgerTimeout: deps.LedgerTimeout,
	}
	if s.events == nil {
		s.events = NoopEventPublisher{}
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.ledgerTimeout <= 0 {
		s.ledgerTimeout = 5 * time.Second
	}
	return s
}

// SubmitCart verifies the cart, seals it and records a pending order.
func (s *checkoutServiceImpl) SubmitCart(ctx context.Context, cart []models.CartLineRequest, ownerIdentity string) (*models.SubmitCartResponse, error) {
	input, err := s.verifier.Verify(ctx, cart, ownerIdentity)
	if err != nil {
		if errors.Is(err, ErrInvalidCart) {
			s.logger.Info("Cart rejected", zap.String("owner", ownerIdentity), zap.Error(err))
			_ = s.metrics.RecordCount(ctx, awspkg.MetricCartsRejected, nil)
		} else {
			s.logger.Error("Cart verification failed", zap.Error(err))
		}
		return nil, err
	}

	sealed := Seal(*input)

	ledgerCtx, cancel := context.WithTimeout(ctx, s.ledgerTimeout)
	orderID, err := s.ledger.Create(ledgerCtx, sealed, ownerIdentity)
	cancel()
	if err != nil {
		s.logger.Error("Failed to record order", zap.Error(err))
		return nil, err
	}

	s.logger.Info("Order committed",
		zap.String("order_id", orderID.String()),
		zap.String("owner", ownerIdentity),
		zap.String("total", input.TotalPrice.StringFixed(2)))
	_ = s.metrics.RecordCount(ctx, awspkg.MetricOrdersCreated, nil)
	s.publish(ctx, models.OrderEvent{
		Type:          models.EventOrderCreated,
		OrderID:       orderID,
		OwnerIdentity: ownerIdentity,
		TotalPrice:    input.TotalPrice,
		Currency:      input.CurrencyCode,
		Timestamp:     time.Now().UTC(),
	})

	return &models.SubmitCartResponse{OrderID: orderID, Digest: sealed.Digest}, nil
}

// CreatePaymentOrder opens a processor order for a pending ledger order.
// The amount comes from the ledger row, never from the client.
func (s *checkoutServiceImpl) CreatePaymentOrder(ctx context.Context, orderID uuid.UUID) (string, error) {
	ledgerCtx, cancel := context.WithTimeout(ctx, s.ledgerTimeout)
	order, err := s.ledger.Get(ledgerCtx, orderID)
	cancel()
	if err != nil {
		return "", err
	}
	if order.Status != models.OrderStatusPending {
		return "", ErrOrderNotPending
	}

	ref, err := s.gateway.CreateExternalOrder(ctx, ExternalOrderRequest{
		Amount:    order.TotalPrice,
		Currency:  order.CurrencyCode,
		InvoiceID: order.OrderID.String(),
		CustomID:  order.Digest,
	})
	if err != nil {
		s.logger.Error("Failed to create payment order", zap.String("order_id", orderID.String()), zap.Error(err))
		_ = s.metrics.RecordCount(ctx, awspkg.MetricGatewayErrors, map[string]string{"Operation": "create"})
		return "", err
	}

	ledgerCtx, cancel = context.WithTimeout(ctx, s.ledgerTimeout)
	err = s.ledger.SetExternalRef(ledgerCtx, orderID, ref)
	cancel()
	if err != nil {
		// The processor order exists either way; settlement matches on
		// invoice and digest, not on this reference.
		s.logger.Warn("Failed to store payment order reference",
			zap.String("order_id", orderID.String()),
			zap.String("external_ref", ref),
			zap.Error(err))
	}

	s.logger.Info("Payment order created", zap.String("order_id", orderID.String()), zap.String("external_ref", ref))
	return ref, nil
}

// CapturePaymentOrder captures an approved processor order. The ledger is
// only ever completed by the settlement listener.
func (s *checkoutServiceImpl) CapturePaymentOrder(ctx context.Context, externalOrderRef string) (*CaptureResult, error) {
	result, err := s.gateway.CaptureExternalOrder(ctx, externalOrderRef)
	if err != nil {
		s.logger.Error("Failed to capture payment order", zap.String("external_ref", externalOrderRef), zap.Error(err))
		_ = s.metrics.RecordCount(ctx, awspkg.MetricGatewayErrors, map[string]string{"Operation": "capture"})
		return nil, err
	}
	s.logger.Info("Payment order captured", zap.String("external_ref", externalOrderRef), zap.String("status", result.Status))
	return result, nil
}

func (s *checkoutServiceImpl) publish(ctx context.Context, event models.OrderEvent) {
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish order event",
			zap.String("type", event.Type),
			zap.String("order_id", event.OrderID.String()),
			zap.Error(err))
	}
}
