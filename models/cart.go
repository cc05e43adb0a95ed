package models

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartLineRequest is a cart line as the storefront sends it. Both fields
// may arrive as JSON numbers or numeric strings. Any other field,
// including a client price, is ignored.
type CartLineRequest struct {
	ProductID json.RawMessage `json:"pid"`
	Quantity  json.RawMessage `json:"quantity"`
}

type SubmitCartRequest struct {
	Cart []CartLineRequest `json:"cart"`
}

type SubmitCartResponse struct {
	OrderID uuid.UUID `json:"orderID"`
	Digest  string    `json:"digest"`
}

type CreatePaymentOrderRequest struct {
	OrderID string `json:"orderID" binding:"required"`
}

// CommitmentInput is everything the order digest covers.
type CommitmentInput struct {
	CurrencyCode  string
	PayeeIdentity string
	Salt          string
	Lines         OrderLines
	TotalPrice    decimal.Decimal
}

// SealedCommitment pairs a commitment with the digest computed over it.
type SealedCommitment struct {
	Input         CommitmentInput
	Digest        string
	DigestVersion string
}
