package controllers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hkshop/storefront/services"
	"go.uber.org/zap"
)

const maxNotificationBytes = 64 << 10

// PaymentWebhookController receives PayPal IPN posts.
type PaymentWebhookController struct {
	dispatcher services.NotificationDispatcher
	logger     *zap.Logger
}

func NewPaymentWebhookController(dispatcher services.NotificationDispatcher, logger *zap.Logger) *PaymentWebhookController {
	return &PaymentWebhookController{dispatcher: dispatcher, logger: logger}
}

// HandleIPN handles POST /api/paypal-webhook. PayPal gets 200 OK before
// any verification runs; the raw body is settled asynchronously.
func (wc *PaymentWebhookController) HandleIPN(c *gin.Context) {
	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxNotificationBytes))

	c.String(http.StatusOK, "OK")
	c.Writer.Flush()

	if err != nil {
		wc.logger.Warn("Failed to read payment notification", zap.Error(err))
		return
	}
	if len(raw) == 0 {
		wc.logger.Warn("Empty payment notification")
		return
	}

	if err := wc.dispatcher.Dispatch(context.WithoutCancel(c.Request.Context()), raw); err != nil {
		wc.logger.Warn("Payment notification not dispatched", zap.Error(err))
	}
}
