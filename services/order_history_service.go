package services

import (
	"context"

	"github.com/hkshop/storefront/models"
	"github.com/hkshop/storefront/repository"
)

const (
	memberRecentOrders = 5
	defaultPageLimit   = 20
	maxPageLimit       = 100
)

// OrderHistoryService lists orders for members and administrators.
type OrderHistoryService interface {
	RecentOrders(ctx context.Context, ownerIdentity string) ([]models.Order, error)
	AllOrders(ctx context.Context, page, limit int) (*models.OrderPage, error)
}

type orderHistoryServiceImpl struct {
	ledger repository.OrderLedger
}

func NewOrderHistoryService(ledger repository.OrderLedger) OrderHistoryService {
	return &orderHistoryServiceImpl{ledger: ledger}
}

func (s *orderHistoryServiceImpl) RecentOrders(ctx context.Context, ownerIdentity string) ([]models.Order, error) {
	return s.ledger.ListByOwner(ctx, ownerIdentity, memberRecentOrders)
}

func (s *orderHistoryServiceImpl) AllOrders(ctx context.Context, page, limit int) (*models.OrderPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	orders, total, err := s.ledger.ListAll(ctx, page, limit)
	if err != nil {
		return nil, err
	}
	return &models.OrderPage{Orders: orders, Total: total, Page: page, Limit: limit}, nil
}
