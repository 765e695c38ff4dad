package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	RoleAdmin = "Admin"
	RoleUser  = "User"
)

// CreatedByGuest marks orders placed without an authenticated identity.
const CreatedByGuest = "Guest"

type User struct {
	ID               uuid.UUID
	Email            string
	Password         string
	FullName         string
	Address          string
	Pronouns         string
	DateOfBirth      *time.Time
	SecurityQuestion string
	SecurityAnswer   string
	Role             string
	EmailConfirmed   bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Category struct {
	ID          uuid.UUID
	Name        string
	Description string
	CreatedAt   time.Time
}

type Product struct {
	ID                uuid.UUID
	Name              string
	Price             decimal.Decimal
	CategoryID        uuid.UUID
	CategoryName      string
	QuantityInStock   int
	LowStockThreshold int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsLowStock reports whether the stock fell below the configured threshold.
func (p Product) IsLowStock() bool {
	return p.QuantityInStock < p.LowStockThreshold
}

type Order struct {
	ID          uuid.UUID
	GuestName   string
	GuestEmail  string
	TotalPrice  decimal.Decimal
	CreatedDate time.Time
	CreatedBy   string
	Items       []OrderItem
}

// OrderItem keeps the unit price paid at order time. ProductID is invalid once
// the product has been deleted.
type OrderItem struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	ProductID   uuid.NullUUID
	ProductName string
	Quantity    int
	Price       decimal.Decimal
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// EmailMessage is the payload published to the notification queue.
type EmailMessage struct {
	ID       uuid.UUID `json:"id"`
	To       string    `json:"to"`
	Subject  string    `json:"subject"`
	HTMLBody string    `json:"html_body"`
}
