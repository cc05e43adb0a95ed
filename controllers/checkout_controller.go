package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	apperrors "github.com/hkshop/storefront/common/errors"
	"github.com/hkshop/storefront/middleware"
	"github.com/hkshop/storefront/models"
	"github.com/hkshop/storefront/services"
	"go.uber.org/zap"
)

// CheckoutController handles cart submission and PayPal order calls.
type CheckoutController struct {
	checkout services.CheckoutService
	logger   *zap.Logger
}

func NewCheckoutController(checkout services.CheckoutService, logger *zap.Logger) *CheckoutController {
	return &CheckoutController{checkout: checkout, logger: logger}
}

// ValidateCart handles POST /api/validate-cart.
func (cc *CheckoutController) ValidateCart(c *gin.Context) {
	var req models.SubmitCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.Respond(c, apperrors.New(http.StatusBadRequest, "Invalid cart data", err))
		return
	}

	resp, err := cc.checkout.SubmitCart(c.Request.Context(), req.Cart, middleware.GetOwnerIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// CreateOrder handles POST /api/orders.
func (cc *CheckoutController) CreateOrder(c *gin.Context) {
	var req models.CreatePaymentOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.Respond(c, apperrors.New(http.StatusBadRequest, "orderID is required", err))
		return
	}
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		apperrors.Respond(c, apperrors.New(http.StatusBadRequest, "Invalid orderID", err))
		return
	}

	ref, err := cc.checkout.CreatePaymentOrder(c.Request.Context(), orderID)
	if err != nil {
		cc.logger.Warn("Create PayPal order failed", zap.String("order_id", orderID.String()), zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": ref, "status": "CREATED"})
}

// CaptureOrder handles POST /api/orders/:externalRef/capture.
func (cc *CheckoutController) CaptureOrder(c *gin.Context) {
	ref := c.Param("externalRef")
	if ref == "" {
		apperrors.Respond(c, apperrors.New(http.StatusBadRequest, "PayPal order id is required", nil))
		return
	}

	result, err := cc.checkout.CapturePaymentOrder(c.Request.Context(), ref)
	if err != nil {
		cc.logger.Warn("Capture PayPal order failed", zap.String("external_ref", ref), zap.Error(err))
		respondError(c, err)
		return
	}
	if len(result.Raw) > 0 {
		c.Data(http.StatusOK, "application/json; charset=utf-8", result.Raw)
		return
	}
	c.JSON(http.StatusOK, result)
}
