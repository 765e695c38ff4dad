package dto

import (
	"github.com/google/uuid"

	"github.com/flicky/smart-inventory/internal/model"
)

func FromUser(user *model.User) UserResponse {
	return UserResponse{
		ID: user.ID, Email: user.Email, FullName: user.FullName,
		Role: user.Role, EmailConfirmed: user.EmailConfirmed,
	}
}

func FromCategory(c *model.Category) CategoryResponse {
	return CategoryResponse{ID: c.ID, Name: c.Name, Description: c.Description}
}

func FromProduct(p *model.Product) ProductResponse {
	return ProductResponse{
		ID:                p.ID,
		Name:              p.Name,
		Price:             p.Price,
		CategoryID:        p.CategoryID,
		CategoryName:      p.CategoryName,
		QuantityInStock:   p.QuantityInStock,
		LowStockThreshold: p.LowStockThreshold,
		LowStock:          p.IsLowStock(),
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

func FromOrder(order *model.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		var productID *uuid.UUID
		if item.ProductID.Valid {
			id := item.ProductID.UUID
			productID = &id
		}
		items = append(items, OrderItemResponse{
			ID:          item.ID,
			ProductID:   productID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			Price:       item.Price,
			Subtotal:    item.Subtotal(),
		})
	}
	return OrderResponse{
		ID:          order.ID,
		GuestName:   order.GuestName,
		GuestEmail:  order.GuestEmail,
		TotalPrice:  order.TotalPrice,
		CreatedDate: order.CreatedDate,
		CreatedBy:   order.CreatedBy,
		Items:       items,
	}
}

func FromOrders(orders []model.Order) []OrderResponse {
	resp := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, FromOrder(&orders[i]))
	}
	return resp
}
