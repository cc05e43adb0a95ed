package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
)

// OrderLine is a cart line after it has been priced from the catalog.
type OrderLine struct {
	ProductID int64           `json:"pid"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"price"`
	Name      string          `json:"name"`
}

// OrderLines is stored as a single jsonb column.
type OrderLines []OrderLine

func (l OrderLines) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *OrderLines) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for order lines", src)
	}
	return json.Unmarshal(raw, l)
}

// Order is one row of the order ledger. Digest and the fields it covers
// are written once at insert and never updated.
type Order struct {
	OrderID                uuid.UUID       `gorm:"column:order_id;type:uuid;primaryKey" json:"order_id"`
	OwnerIdentity          string          `gorm:"type:varchar(255);not null;index" json:"owner_identity"`
	CurrencyCode           string          `gorm:"type:varchar(3);not null" json:"currency_code"`
	PayeeIdentity          string          `gorm:"type:varchar(255);not null" json:"payee_identity"`
	Salt                   string          `gorm:"type:varchar(64);not null" json:"-"`
	Lines                  OrderLines      `gorm:"type:jsonb;not null" json:"lines"`
	TotalPrice             decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_price"`
	Digest                 string          `gorm:"type:char(64);not null" json:"digest"`
	DigestVersion          string          `gorm:"type:varchar(8);not null" json:"digest_version"`
	Status                 OrderStatus     `gorm:"type:varchar(20);not null;index" json:"status"`
	ProcessorTransactionID *string         `gorm:"type:varchar(64);uniqueIndex" json:"processor_transaction_id,omitempty"`
	ExternalOrderRef       *string         `gorm:"type:varchar(64);index" json:"external_order_ref,omitempty"`
	CreatedAt              time.Time       `gorm:"autoCreateTime" json:"created_at"`
	CompletedAt            *time.Time      `json:"completed_at,omitempty"`
	UpdatedAt              time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

// CommitmentInput rebuilds the committed values from the stored row.
func (o *Order) CommitmentInput() CommitmentInput {
	return CommitmentInput{
		CurrencyCode:  o.CurrencyCode,
		PayeeIdentity: o.PayeeIdentity,
		Salt:          o.Salt,
		Lines:         o.Lines,
		TotalPrice:    o.TotalPrice,
	}
}

// OrderPage is one page of the admin order listing.
type OrderPage struct {
	Orders []Order `json:"orders"`
	Total  int64   `json:"total"`
	Page   int     `json:"page"`
	Limit  int     `json:"limit"`
}
