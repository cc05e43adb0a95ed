package services

import (
	"errors"

	"github.com/hkshop/storefront/repository"
)

var (
	ErrInvalidCart            = errors.New("invalid cart")
	ErrGateway                = errors.New("payment gateway error")
	ErrUnverifiedNotification = errors.New("unverified payment notification")
	ErrDigestMismatch         = errors.New("order digest mismatch")
	ErrMalformedNotification  = errors.New("malformed payment notification")
	ErrUnsupportedDigest      = errors.New("unsupported digest version")

	ErrOrderNotFound    = repository.ErrOrderNotFound
	ErrAlreadyCompleted = repository.ErrAlreadyCompleted
	ErrOrderNotPending  = repository.ErrOrderNotPending
)

// IsPermanent reports whether retrying a notification can never succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrUnverifiedNotification) ||
		errors.Is(err, ErrDigestMismatch) ||
		errors.Is(err, ErrMalformedNotification) ||
		errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrUnsupportedDigest) ||
		errors.Is(err, repository.ErrDuplicateTransaction)
}
