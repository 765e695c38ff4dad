package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/smart-inventory/internal/dto"
	"github.com/flicky/smart-inventory/internal/middleware"
	"github.com/flicky/smart-inventory/internal/service"
)

type OrderHandler struct {
	orderService *service.OrderService
	log          *slog.Logger
}

func NewOrderHandler(orderService *service.OrderService, log *slog.Logger) *OrderHandler {
	return &OrderHandler{orderService: orderService, log: log}
}

// PlaceOrder accepts guests and members; members are identified by an optional bearer token.
func (h *OrderHandler) PlaceOrder(c *gin.Context) {
	var req dto.PlaceOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	lines := make([]service.CartLine, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, service.CartLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	order, err := h.orderService.PlaceOrder(c.Request.Context(),
		middleware.GetIdentity(c),
		service.Guest{Name: req.GuestName, Email: req.GuestEmail},
		lines,
	)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	h.log.Info("order placed", "order_id", order.ID, "created_by", order.CreatedBy, "total", order.TotalPrice.String())
	c.JSON(http.StatusCreated, dto.FromOrder(order))
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	id, ok := parseID(c, "order")
	if !ok {
		return
	}

	order, err := h.orderService.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, dto.FromOrder(order))
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	orders, err := h.orderService.List(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	items := dto.FromOrders(orders)
	c.JSON(http.StatusOK, dto.OrderListResponse{Orders: items, Total: len(items)})
}

// MyOrders lists the orders placed by the authenticated member.
func (h *OrderHandler) MyOrders(c *gin.Context) {
	orders, err := h.orderService.ListByCreator(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	items := dto.FromOrders(orders)
	c.JSON(http.StatusOK, dto.OrderListResponse{Orders: items, Total: len(items)})
}

func (h *OrderHandler) UpdateOrder(c *gin.Context) {
	id, ok := parseID(c, "order")
	if !ok {
		return
	}
	var req dto.UpdateOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := h.orderService.UpdateOrder(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, dto.FromOrder(order))
}

func (h *OrderHandler) DeleteOrder(c *gin.Context) {
	id, ok := parseID(c, "order")
	if !ok {
		return
	}
	if err := h.orderService.Delete(c.Request.Context(), id); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}
