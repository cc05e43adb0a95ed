package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated   = "order_created"
	EventOrderCompleted = "order_completed"
)

// OrderEvent is published after a ledger state change.
type OrderEvent struct {
	Type          string          `json:"type"`
	OrderID       uuid.UUID       `json:"order_id"`
	OwnerIdentity string          `json:"owner_identity"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	Currency      string          `json:"currency"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}
