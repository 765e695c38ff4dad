package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/flicky/smart-inventory/internal/metrics"
	"github.com/flicky/smart-inventory/internal/middleware"
	"github.com/flicky/smart-inventory/internal/service"
)

type Handlers struct {
	Account  *AccountHandler
	Category *CategoryHandler
	Product  *ProductHandler
	Order    *OrderHandler
	Health   *HealthHandler
}

// NewRouter registers every route. The metrics endpoint is skipped when m is nil.
func NewRouter(h Handlers, auth *middleware.Authenticator, policy service.Policy, m *metrics.Metrics) *gin.Engine {
	router := gin.Default()
	if m != nil {
		router.Use(middleware.Metrics(m))
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}
	if h.Health != nil {
		router.GET("/healthz", h.Health.Healthz)
		router.GET("/readyz", h.Health.Readyz)
	}

	allow := func(op service.Operation) gin.HandlerFunc { return middleware.RequireOperation(policy, op) }
	required := auth.Required()

	v1 := router.Group("/api/v1")
	{
		account := v1.Group("/account")
		account.POST("/register", h.Account.Register)
		account.POST("/login", h.Account.Login)
		account.POST("/logout", required, h.Account.Logout)
		account.GET("/confirm-email", h.Account.ConfirmEmail)
		account.GET("/security-questions", h.Account.SecurityQuestions)
		account.POST("/forgot-password", h.Account.ForgotPassword)
		account.POST("/reset-password", h.Account.ResetPassword)
		account.GET("/profile", required, allow(service.OpProfileView), h.Account.GetProfile)
		account.PUT("/profile", required, allow(service.OpProfileUpdate), h.Account.UpdateProfile)
		account.POST("/change-password", required, allow(service.OpProfileUpdate), h.Account.ChangePassword)
		account.GET("/orders", required, allow(service.OpProfileView), h.Order.MyOrders)

		categories := v1.Group("/categories")
		categories.GET("", h.Category.List)
		categories.GET("/:id", h.Category.GetByID)
		categories.POST("", required, allow(service.OpCategoryCreate), h.Category.Create)
		categories.PUT("/:id", required, allow(service.OpCategoryUpdate), h.Category.Update)
		categories.DELETE("/:id", required, allow(service.OpCategoryDelete), h.Category.Delete)

		products := v1.Group("/products")
		products.GET("", h.Product.List)
		products.GET("/:id", h.Product.GetByID)
		products.POST("", required, allow(service.OpProductCreate), h.Product.Create)
		products.PUT("/:id", required, allow(service.OpProductUpdate), h.Product.Update)
		products.DELETE("/:id", required, allow(service.OpProductDelete), h.Product.Delete)

		orders := v1.Group("/orders")
		orders.POST("", auth.Optional(), h.Order.PlaceOrder)
		orders.GET("/:id", h.Order.GetOrder)
		orders.GET("", required, allow(service.OpOrderList), h.Order.ListOrders)
		orders.PUT("/:id", required, allow(service.OpOrderUpdate), h.Order.UpdateOrder)
		orders.DELETE("/:id", required, allow(service.OpOrderDelete), h.Order.DeleteOrder)

		v1.PUT("/users/:id/role", required, allow(service.OpUserAssignRole), h.Account.AssignRole)
	}
	return router
}
