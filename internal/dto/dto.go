package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- Account ---

type RegisterRequest struct {
	FullName         string `json:"full_name" binding:"required,max=200"`
	Email            string `json:"email" binding:"required,email"`
	Password         string `json:"password" binding:"required,min=8,max=72"`
	ConfirmPassword  string `json:"confirm_password" binding:"required,eqfield=Password"`
	SecurityQuestion string `json:"security_question" binding:"required"`
	SecurityAnswer   string `json:"security_answer" binding:"required"`
}

type RegisterResponse struct {
	User    UserResponse `json:"user"`
	Message string       `json:"message"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      UserResponse `json:"user"`
}

type UserResponse struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	FullName       string    `json:"full_name"`
	Role           string    `json:"role"`
	EmailConfirmed bool      `json:"email_confirmed"`
}

type ForgotPasswordRequest struct {
	Email            string `json:"email" binding:"required,email"`
	SecurityQuestion string `json:"security_question" binding:"required"`
	SecurityAnswer   string `json:"security_answer" binding:"required"`
}

type ForgotPasswordResponse struct {
	ResetTicket string    `json:"reset_ticket"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type ResetPasswordRequest struct {
	Ticket          string `json:"ticket" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8,max=72"`
	ConfirmPassword string `json:"confirm_password" binding:"required,eqfield=NewPassword"`
}

type ChangePasswordRequest struct {
	SecurityAnswer  string `json:"security_answer" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8,max=72"`
	ConfirmPassword string `json:"confirm_password" binding:"required,eqfield=NewPassword"`
}

type ProfileResponse struct {
	FullName         string          `json:"full_name"`
	Email            string          `json:"email"`
	DateOfBirth      *time.Time      `json:"date_of_birth,omitempty"`
	Pronouns         string          `json:"pronouns"`
	Address          string          `json:"address"`
	SecurityQuestion string          `json:"security_question"`
	Orders           []OrderResponse `json:"orders"`
}

type UpdateProfileRequest struct {
	FullName    string     `json:"full_name" binding:"required,max=200"`
	DateOfBirth *time.Time `json:"date_of_birth"`
	Pronouns    string     `json:"pronouns" binding:"max=50"`
	Address     string     `json:"address"`
}

type AssignRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=Admin User"`
}

// --- Category ---

type CategoryRequest struct {
	Name        string `json:"name" binding:"required,max=100"`
	Description string `json:"description"`
}

type CategoryResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
}

// --- Product ---

type CreateProductRequest struct {
	Name              string          `json:"name" binding:"required,max=100"`
	Price             decimal.Decimal `json:"price" binding:"required"`
	CategoryID        uuid.UUID       `json:"category_id" binding:"required"`
	QuantityInStock   *int            `json:"quantity_in_stock" binding:"omitempty,min=0"`
	LowStockThreshold *int            `json:"low_stock_threshold" binding:"omitempty,min=1"`
}

type UpdateProductRequest struct {
	Name              *string          `json:"name" binding:"omitempty,max=100"`
	Price             *decimal.Decimal `json:"price"`
	CategoryID        *uuid.UUID       `json:"category_id"`
	QuantityInStock   *int             `json:"quantity_in_stock" binding:"omitempty,min=0"`
	LowStockThreshold *int             `json:"low_stock_threshold" binding:"omitempty,min=1"`
}

type ListProductsRequest struct {
	Search     string `form:"search"`
	CategoryID string `form:"category"`
	Sort       string `form:"sort"`
}

type ProductResponse struct {
	ID                uuid.UUID       `json:"id"`
	Name              string          `json:"name"`
	Price             decimal.Decimal `json:"price"`
	CategoryID        uuid.UUID       `json:"category_id"`
	CategoryName      string          `json:"category_name"`
	QuantityInStock   int             `json:"quantity_in_stock"`
	LowStockThreshold int             `json:"low_stock_threshold"`
	LowStock          bool            `json:"low_stock"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type ProductListResponse struct {
	Products   []ProductResponse  `json:"products"`
	LowStock   []ProductResponse  `json:"low_stock"`
	Categories []CategoryResponse `json:"categories"`
	Search     string             `json:"search"`
	CategoryID *uuid.UUID         `json:"category_id,omitempty"`
	Sort       string             `json:"sort"`
	Total      int                `json:"total"`
}

// --- Order ---

type OrderLineRequest struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// PlaceOrderRequest is validated by the order service so that failures are
// reported in workflow order.
type PlaceOrderRequest struct {
	GuestName  string             `json:"guest_name"`
	GuestEmail string             `json:"guest_email"`
	Items      []OrderLineRequest `json:"items"`
}

type UpdateOrderItemRequest struct {
	ID       uuid.UUID `json:"id" binding:"required"`
	Quantity int       `json:"quantity" binding:"required,min=1"`
}

type UpdateOrderRequest struct {
	GuestName  string                   `json:"guest_name" binding:"required,max=200"`
	GuestEmail string                   `json:"guest_email" binding:"required,email"`
	Items      []UpdateOrderItemRequest `json:"items" binding:"dive"`
}

type OrderResponse struct {
	ID          uuid.UUID           `json:"id"`
	GuestName   string              `json:"guest_name"`
	GuestEmail  string              `json:"guest_email"`
	TotalPrice  decimal.Decimal     `json:"total_price"`
	CreatedDate time.Time           `json:"created_date"`
	CreatedBy   string              `json:"created_by"`
	Items       []OrderItemResponse `json:"items"`
}

type OrderItemResponse struct {
	ID          uuid.UUID       `json:"id"`
	ProductID   *uuid.UUID      `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type OrderListResponse struct {
	Orders []OrderResponse `json:"orders"`
	Total  int             `json:"total"`
}
