package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hkshop/storefront/models"
	"gorm.io/gorm"
)

// OrderLedger is the durable record of every committed order.
type OrderLedger interface {
	Create(ctx context.Context, sealed *models.SealedCommitment, ownerIdentity string) (uuid.UUID, error)
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	MarkCompleted(ctx context.Context, orderID uuid.UUID, txnID string) error
	SetExternalRef(ctx context.Context, orderID uuid.UUID, ref string) error
	ListByOwner(ctx context.Context, ownerIdentity string, limit int) ([]models.Order, error)
	ListAll(ctx context.Context, page, limit int) ([]models.Order, int64, error)
}

// GormOrderLedger implements OrderLedger on Postgres through GORM.
type GormOrderLedger struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormOrderLedger creates a new GormOrderLedger.
func NewGormOrderLedger(db *gorm.DB) OrderLedger {
	return &GormOrderLedger{db: db, now: time.Now}
}

// Create inserts a pending order and returns its generated id.
func (r *GormOrderLedger) Create(ctx context.Context, sealed *models.SealedCommitment, ownerIdentity string) (uuid.UUID, error) {
	order := &models.Order{
		OrderID:       uuid.New(),
		OwnerIdentity: ownerIdentity,
		CurrencyCode:  sealed.Input.CurrencyCode,
		PayeeIdentity: sealed.Input.PayeeIdentity,
		Salt:          sealed.Input.Salt,
		Lines:         sealed.Input.Lines,
		TotalPrice:    sealed.Input.TotalPrice,
		Digest:        sealed.Digest,
		DigestVersion: sealed.DigestVersion,
		Status:        models.OrderStatusPending,
	}
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return uuid.Nil, fmt.Errorf("insert order: %w", err)
	}
	return order.OrderID, nil
}

// Get loads one order by id.
func (r *GormOrderLedger) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// MarkCompleted moves a pending order to completed in one conditional
// UPDATE. Among concurrent callers at most one sees a row affected; the
// rest get ErrAlreadyCompleted.
func (r *GormOrderLedger) MarkCompleted(ctx context.Context, orderID uuid.UUID, txnID string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("order_id = ? AND status = ?", orderID, models.OrderStatusPending).
		Updates(map[string]interface{}{
			"status":                   models.OrderStatusCompleted,
			"processor_transaction_id": txnID,
			"completed_at":             r.now().UTC(),
		})
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s", ErrDuplicateTransaction, txnID)
		}
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}
	if _, err := r.Get(ctx, orderID); err != nil {
		return err
	}
	return ErrAlreadyCompleted
}

// SetExternalRef stores the processor order id on a pending order.
func (r *GormOrderLedger) SetExternalRef(ctx context.Context, orderID uuid.UUID, ref string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("order_id = ? AND status = ?", orderID, models.OrderStatusPending).
		Update("external_order_ref", ref)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}
	if _, err := r.Get(ctx, orderID); err != nil {
		return err
	}
	return ErrOrderNotPending
}

// ListByOwner returns the owner's most recent orders, newest first.
func (r *GormOrderLedger) ListByOwner(ctx context.Context, ownerIdentity string, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("owner_identity = ?", ownerIdentity).
		Order("created_at DESC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// ListAll retrieves paginated orders, newest first.
func (r *GormOrderLedger) ListAll(ctx context.Context, page, limit int) ([]models.Order, int64, error) {
	var orders []models.Order
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Order{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}
