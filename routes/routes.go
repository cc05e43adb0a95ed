package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hkshop/storefront/common/auth"
	commonmw "github.com/hkshop/storefront/common/middleware"
	"github.com/hkshop/storefront/controllers"
	"github.com/hkshop/storefront/middleware"
)

type Handlers struct {
	Checkout *controllers.CheckoutController
	Webhook  *controllers.PaymentWebhookController
	Orders   *controllers.OrderController
}

// RegisterRoutes sets up the storefront API.
func RegisterRoutes(r *gin.Engine, h Handlers, parser *auth.TokenParser, limiter *commonmw.RateLimiter) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "service": "storefront-checkout"})
	})

	api := r.Group("/api")

	// PayPal posts without a session. Not rate limited.
	api.POST("/paypal-webhook", h.Webhook.HandleIPN)

	shop := api.Group("")
	shop.Use(middleware.ResolveOwner(parser))

	checkout := shop.Group("")
	checkout.Use(commonmw.RequireJSON())
	if limiter != nil {
		checkout.Use(limiter.Middleware())
	}
	checkout.POST("/validate-cart", h.Checkout.ValidateCart)
	checkout.POST("/orders", h.Checkout.CreateOrder)
	checkout.POST("/orders/:externalRef/capture", h.Checkout.CaptureOrder)

	shop.GET("/orders/me", middleware.RequireMember(), h.Orders.MyOrders)

	admin := shop.Group("/admin")
	admin.Use(middleware.AdminOnly())
	admin.GET("/orders", h.Orders.ListOrders)
}
