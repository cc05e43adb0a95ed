package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	apperrors "github.com/hkshop/storefront/common/errors"
	"github.com/hkshop/storefront/services"
)

// respondError maps service errors onto the HTTP error body.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidCart):
		// Rejection reasons name the offending line and are safe to show.
		apperrors.Respond(c, apperrors.New(http.StatusBadRequest, err.Error(), err))
	case errors.Is(err, services.ErrOrderNotFound):
		apperrors.Respond(c, apperrors.Wrap(apperrors.ErrNotFound, err))
	case errors.Is(err, services.ErrOrderNotPending), errors.Is(err, services.ErrAlreadyCompleted):
		apperrors.Respond(c, apperrors.New(http.StatusConflict, "Order is not pending", err))
	case errors.Is(err, services.ErrGateway):
		apperrors.Respond(c, apperrors.Wrap(apperrors.ErrBadGateway, err))
	default:
		apperrors.Respond(c, err)
	}
}

// parsePaginationParams extracts and validates pagination parameters.
func parsePaginationParams(c *gin.Context) (int, int) {
	const (
		maxLimit     = 100
		defaultPage  = 1
		defaultLimit = 20
	)

	page, err := strconv.Atoi(c.DefaultQuery("page", strconv.Itoa(defaultPage)))
	if err != nil || page < 1 {
		page = defaultPage
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil || limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}
