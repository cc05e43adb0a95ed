package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hkshop/storefront/models"
	"github.com/hkshop/storefront/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	maxCartLines    = 100
	maxLineQuantity = 10000
)

// orderTotalLimit is the first amount orders.total_price (numeric(12,2))
// cannot hold.
var orderTotalLimit = decimal.New(1, 10)

// CartVerifier turns an untrusted cart into a commitment priced from the
// catalog. It never writes anything.
type CartVerifier struct {
	catalog  repository.ProductRepository
	currency string
	payee    string
	newSalt  func() (string, error)
	logger   *zap.Logger
}

func NewCartVerifier(catalog repository.ProductRepository, currency, payee string, logger *zap.Logger) *CartVerifier {
	return &CartVerifier{
		catalog:  catalog,
		currency: currency,
		payee:    payee,
		newSalt:  NewSalt,
		logger:   logger,
	}
}

// Verify resolves every line against the catalog. Any line that cannot be
// resolved rejects the whole cart with ErrInvalidCart.
func (v *CartVerifier) Verify(ctx context.Context, cart []models.CartLineRequest, ownerIdentity string) (*models.CommitmentInput, error) {
	if len(cart) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", ErrInvalidCart)
	}
	if len(cart) > maxCartLines {
		return nil, fmt.Errorf("%w: cart has more than %d lines", ErrInvalidCart, maxCartLines)
	}

	lines := make(models.OrderLines, 0, len(cart))
	total := decimal.Zero
	for i, raw := range cart {
		pid, ok := parseInteger(raw.ProductID)
		if !ok || pid <= 0 {
			return nil, fmt.Errorf("%w: line %d has an invalid product id", ErrInvalidCart, i)
		}
		qty, ok := parseInteger(raw.Quantity)
		if !ok || qty <= 0 {
			return nil, fmt.Errorf("%w: line %d has an invalid quantity", ErrInvalidCart, i)
		}
		if qty > maxLineQuantity {
			return nil, fmt.Errorf("%w: line %d quantity exceeds %d", ErrInvalidCart, i, maxLineQuantity)
		}

		product, err := v.catalog.LookupProduct(ctx, pid)
		if err != nil {
			if errors.Is(err, repository.ErrProductNotFound) {
				return nil, fmt.Errorf("%w: product %d not found", ErrInvalidCart, pid)
			}
			return nil, fmt.Errorf("lookup product %d: %w", pid, err)
		}

		lines = append(lines, models.OrderLine{
			ProductID: pid,
			Quantity:  qty,
			UnitPrice: product.Price,
			Name:      product.Name,
		})
		total = total.Add(product.Price.Mul(decimal.NewFromInt(qty)))
		if total.Round(2).GreaterThanOrEqual(orderTotalLimit) {
			return nil, fmt.Errorf("%w: order total is too large", ErrInvalidCart)
		}
	}

	salt, err := v.newSalt()
	if err != nil {
		return nil, err
	}

	v.logger.Debug("Cart verified",
		zap.String("owner", ownerIdentity),
		zap.Int("lines", len(lines)),
		zap.String("total", total.StringFixed(2)))

	return &models.CommitmentInput{
		CurrencyCode:  v.currency,
		PayeeIdentity: v.payee,
		Salt:          salt,
		Lines:         lines,
		TotalPrice:    total.Round(2),
	}, nil
}

// parseInteger accepts a JSON number or a numeric string holding a whole
// number. Fractions, exponents and anything else are rejected.
func parseInteger(raw json.RawMessage) (int64, bool) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, false
	}
	if strings.HasPrefix(s, `"`) {
		var unquoted string
		if err := json.Unmarshal(raw, &unquoted); err != nil {
			return 0, false
		}
		s = strings.TrimSpace(unquoted)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
