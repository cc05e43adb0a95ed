package models

import (
	"fmt"
	"net/url"
)

const IPNPaymentStatusCompleted = "Completed"

// IPNMessage holds the instant payment notification fields settlement reads.
// Nothing in it is trusted until the raw body has been verified.
type IPNMessage struct {
	PaymentStatus string
	TxnID         string
	Invoice       string
	Custom        string
	ReceiverEmail string
	Gross         string
	Currency      string
}

// ParseIPN decodes a form-encoded notification body.
func ParseIPN(raw []byte) (*IPNMessage, error) {
	values, err := url.ParseQuery(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse notification body: %w", err)
	}
	return &IPNMessage{
		PaymentStatus: values.Get("payment_status"),
		TxnID:         values.Get("txn_id"),
		Invoice:       values.Get("invoice"),
		Custom:        values.Get("custom"),
		ReceiverEmail: values.Get("receiver_email"),
		Gross:         values.Get("mc_gross"),
		Currency:      values.Get("mc_currency"),
	}, nil
}
