package repository

import "errors"

var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrAlreadyCompleted     = errors.New("order already completed")
	ErrOrderNotPending      = errors.New("order is not pending")
	ErrDuplicateTransaction = errors.New("processor transaction already recorded")
	ErrProductNotFound      = errors.New("product not found")
)
