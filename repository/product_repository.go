package repository

import (
	"context"
	"errors"

	"github.com/hkshop/storefront/models"
	"gorm.io/gorm"
)

// ProductRepository is the read side of the catalog used for pricing.
type ProductRepository interface {
	LookupProduct(ctx context.Context, pid int64) (*models.Product, error)
}

// GormProductRepository reads products from the relational catalog.
type GormProductRepository struct {
	db *gorm.DB
}

func NewGormProductRepository(db *gorm.DB) ProductRepository {
	return &GormProductRepository{db: db}
}

func (r *GormProductRepository) LookupProduct(ctx context.Context, pid int64) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).Where("pid = ?", pid).First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return &product, nil
}
