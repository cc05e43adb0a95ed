package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hkshop/storefront/middleware"
	"github.com/hkshop/storefront/services"
)

// OrderController serves order history.
type OrderController struct {
	history services.OrderHistoryService
}

func NewOrderController(history services.OrderHistoryService) *OrderController {
	return &OrderController{history: history}
}

// MyOrders handles GET /api/orders/me.
func (oc *OrderController) MyOrders(c *gin.Context) {
	orders, err := oc.history.RecentOrders(c.Request.Context(), middleware.GetOwnerIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// ListOrders handles GET /api/admin/orders.
func (oc *OrderController) ListOrders(c *gin.Context) {
	page, limit := parsePaginationParams(c)

	result, err := oc.history.AllOrders(c.Request.Context(), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	totalPages := int64(0)
	if result.Limit > 0 {
		totalPages = (result.Total + int64(result.Limit) - 1) / int64(result.Limit)
	}
	c.JSON(http.StatusOK, gin.H{
		"orders": result.Orders,
		"meta": gin.H{
			"page":        result.Page,
			"limit":       result.Limit,
			"total":       result.Total,
			"total_pages": totalPages,
			"has_more":    result.Total > int64(result.Page*result.Limit),
		},
	})
}
