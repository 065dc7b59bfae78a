package router

import (
	"github.com/gin-gonic/gin"

	"github.com/saasops/backend/internal/interfaces/http/handler"
	"github.com/saasops/backend/internal/interfaces/http/middleware"
)

// Permissions guarding the management API
const (
	PermissionBillingRead   = "billing:read"
	PermissionBillingManage = "billing:manage"
	PermissionSeatsManage   = "seats:manage"
)

// BillingRoutes registers the billing management endpoints
type BillingRoutes struct {
	handler *handler.SubscriptionHandler
}

// NewBillingRoutes creates a new BillingRoutes registrar
func NewBillingRoutes(h *handler.SubscriptionHandler) *BillingRoutes {
	return &BillingRoutes{handler: h}
}

// RegisterRoutes implements RouteRegistrar. Reads need billing:read,
// subscription mutations need billing:manage, seat moves need seats:manage.
func (r *BillingRoutes) RegisterRoutes(rg *gin.RouterGroup) {
	billing := rg.Group("/billing")

	read := middleware.RequireAnyPermission(PermissionBillingRead, PermissionBillingManage)
	manage := middleware.RequirePermission(PermissionBillingManage)
	seats := middleware.RequireAnyPermission(PermissionSeatsManage, PermissionBillingManage)

	billing.GET("/subscription", read, r.handler.GetSubscription)
	billing.POST("/subscription", manage, r.handler.CreateSubscription)
	billing.PUT("/subscription/plan", manage, r.handler.ChangePlan)
	billing.DELETE("/subscription", manage, r.handler.CancelSubscription)
	billing.PUT("/subscription/seats", manage, r.handler.ResizeSeats)
	billing.GET("/subscription/seats", read, r.handler.GetSeatUsage)

	billing.POST("/seats/:userID", seats, r.handler.AssignSeat)
	billing.DELETE("/seats/:userID", seats, r.handler.UnassignSeat)

	billing.GET("/features/:feature", read, r.handler.CheckFeature)
	billing.GET("/invoices", read, r.handler.ListInvoices)
}
