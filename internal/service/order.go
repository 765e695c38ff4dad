package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/flicky/smart-inventory/internal/dto"
	"github.com/flicky/smart-inventory/internal/metrics"
	"github.com/flicky/smart-inventory/internal/model"
	"github.com/flicky/smart-inventory/internal/notify"
	"github.com/flicky/smart-inventory/internal/repository"
)

// Identity is the authenticated caller. A nil *Identity means a guest.
type Identity struct {
	UserID uuid.UUID
	Role   string
}

type Guest struct {
	Name  string
	Email string
}

type CartLine struct {
	ProductID uuid.UUID
	Quantity  int
}

type OrderService struct {
	orderRepo repository.OrderRepository
	userRepo  repository.UserRepository
	cache     productCache
	notifier  notify.Notifier
	metrics   *metrics.Metrics
	log       *slog.Logger
	validate  *validator.Validate
	receipts  bool
	now       func() time.Time
}

func NewOrderService(
	orderRepo repository.OrderRepository,
	userRepo repository.UserRepository,
	redisClient *redis.Client,
	notifier notify.Notifier,
	m *metrics.Metrics,
	log *slog.Logger,
	receipts bool,
) *OrderService {
	return &OrderService{
		orderRepo: orderRepo,
		userRepo:  userRepo,
		cache:     productCache{rdb: redisClient},
		notifier:  notifier,
		metrics:   m,
		log:       log,
		validate:  validator.New(),
		receipts:  receipts,
		now:       time.Now,
	}
}

// PlaceOrder validates the cart, then in one transaction locks the products,
// checks stock for every line, decrements stock and stores the order. Nothing
// is written unless every line passes.
func (s *OrderService) PlaceOrder(ctx context.Context, identity *Identity, guest Guest, lines []CartLine) (*model.Order, error) {
	order, err := s.placeOrder(ctx, identity, guest, lines)
	if err != nil {
		s.metrics.RecordOrderRejected(rejectReason(err))
		return nil, err
	}

	units := 0
	ids := make([]uuid.UUID, 0, len(order.Items))
	for _, item := range order.Items {
		units += item.Quantity
		ids = append(ids, item.ProductID.UUID)
	}
	s.metrics.RecordOrderPlaced(units)
	s.cache.invalidate(ctx, ids...)

	if s.receipts && s.notifier != nil {
		s.sendReceipt(ctx, order)
	}
	return order, nil
}

func (s *OrderService) placeOrder(ctx context.Context, identity *Identity, guest Guest, lines []CartLine) (*model.Order, error) {
	if identity == nil {
		if err := s.validateGuest(guest); err != nil {
			return nil, err
		}
	}
	if err := validateCart(lines); err != nil {
		return nil, err
	}
	name, email, createdBy, err := s.resolveSubmitter(ctx, identity, guest)
	if err != nil {
		return nil, err
	}

	order := &model.Order{
		GuestName:   name,
		GuestEmail:  email,
		CreatedBy:   createdBy,
		CreatedDate: s.now().UTC(),
	}

	err = s.orderRepo.WithinTx(ctx, func(tx repository.OrderTx) error {
		products, err := tx.LockProducts(ctx, distinctProductIDs(lines))
		if err != nil {
			return err
		}
		for _, line := range lines {
			if _, ok := products[line.ProductID]; !ok {
				return notFound("product", line.ProductID)
			}
		}

		demand := make(map[uuid.UUID]int, len(products))
		for _, line := range lines {
			p := products[line.ProductID]
			demand[p.ID] += line.Quantity
			if demand[p.ID] > p.QuantityInStock {
				return &InsufficientStockError{
					ProductID: p.ID, ProductName: p.Name,
					Available: p.QuantityInStock, Requested: demand[p.ID],
				}
			}
		}

		total := decimal.Zero
		items := make([]model.OrderItem, 0, len(lines))
		for _, line := range lines {
			p := products[line.ProductID]
			if err := tx.DecrementStock(ctx, p.ID, line.Quantity); err != nil {
				return err
			}
			item := model.OrderItem{
				ProductID:   uuid.NullUUID{UUID: p.ID, Valid: true},
				ProductName: p.Name,
				Quantity:    line.Quantity,
				Price:       p.Price,
			}
			total = total.Add(item.Subtotal())
			items = append(items, item)
		}
		order.TotalPrice = total
		order.Items = items
		return tx.InsertOrder(ctx, order)
	})
	if err != nil {
		return nil, fmt.Errorf("place order: %w", err)
	}
	return order, nil
}

// resolveSubmitter returns name, email and the created-by tag. Members are
// resolved from their account and any guest fields are ignored. Guest fields
// must already have passed validateGuest.
func (s *OrderService) resolveSubmitter(ctx context.Context, identity *Identity, guest Guest) (string, string, string, error) {
	if identity != nil {
		user, err := s.userRepo.GetByID(ctx, identity.UserID)
		if err != nil {
			return "", "", "", fmt.Errorf("get user: %w", err)
		}
		if user == nil {
			return "", "", "", notFound("user", identity.UserID)
		}
		return user.FullName, user.Email, user.ID.String(), nil
	}

	return strings.TrimSpace(guest.Name), strings.TrimSpace(guest.Email), model.CreatedByGuest, nil
}

func (s *OrderService) validateGuest(guest Guest) error {
	name := strings.TrimSpace(guest.Name)
	email := strings.TrimSpace(guest.Email)
	if name == "" || email == "" {
		return NewValidationError("missing guest identity")
	}
	if s.validate.Var(email, "email") != nil {
		return NewValidationError("invalid guest email")
	}
	return nil
}

func validateCart(lines []CartLine) error {
	if len(lines) == 0 {
		return NewValidationError("invalid cart")
	}
	for _, line := range lines {
		if line.Quantity <= 0 {
			return NewValidationError("invalid cart")
		}
	}
	return nil
}

func distinctProductIDs(lines []CartLine) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(lines))
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		if !seen[line.ProductID] {
			seen[line.ProductID] = true
			ids = append(ids, line.ProductID)
		}
	}
	return ids
}

func rejectReason(err error) string {
	var stockErr *InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		return "insufficient_stock"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

var receiptTemplate = template.Must(template.New("receipt").Parse(
	`<p>Thank you for your order, {{.GuestName}}.</p>
<p>Order {{.ID}} placed on {{.CreatedDate.Format "2006-01-02 15:04 MST"}}.</p>
<table>
{{range .Items}}<tr><td>{{.ProductName}}</td><td>{{.Quantity}}</td><td>{{.Price.StringFixed 2}}</td></tr>
{{end}}</table>
<p>Total: {{.TotalPrice.StringFixed 2}}</p>`))

func (s *OrderService) sendReceipt(ctx context.Context, order *model.Order) {
	var body bytes.Buffer
	if err := receiptTemplate.Execute(&body, order); err != nil {
		s.log.Error("render order receipt", "order_id", order.ID, "error", err)
		return
	}
	if err := s.notifier.SendEmail(ctx, order.GuestEmail, "Your order confirmation", body.String()); err != nil {
		s.log.Error("send order receipt", "order_id", order.ID, "error", err)
	}
}

// GetByID is open to everyone so guests can see their confirmation.
func (s *OrderService) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, notFound("order", id)
	}
	return order, nil
}

func (s *OrderService) List(ctx context.Context) ([]model.Order, error) {
	orders, err := s.orderRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

func (s *OrderService) ListByCreator(ctx context.Context, userID uuid.UUID) ([]model.Order, error) {
	orders, err := s.orderRepo.ListByCreator(ctx, userID.String())
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// UpdateOrder changes the submitter details and item quantities. The stored
// total and product stock are intentionally left as they are.
func (s *OrderService) UpdateOrder(ctx context.Context, id uuid.UUID, req dto.UpdateOrderRequest) (*model.Order, error) {
	order, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.GuestName)
	email := strings.TrimSpace(req.GuestEmail)
	if name == "" || email == "" {
		return nil, NewValidationError("guest name and email are required")
	}
	if s.validate.Var(email, "email") != nil {
		return nil, NewValidationError("invalid guest email")
	}
	order.GuestName = name
	order.GuestEmail = email

	quantities := make(map[uuid.UUID]int, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity < 1 {
			return nil, NewValidationError("quantity must be at least 1")
		}
		quantities[item.ID] = item.Quantity
	}
	for i := range order.Items {
		if q, ok := quantities[order.Items[i].ID]; ok {
			order.Items[i].Quantity = q
		}
	}

	if err := s.orderRepo.UpdateDetails(ctx, order); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("order", id)
		}
		return nil, fmt.Errorf("update order: %w", err)
	}
	return order, nil
}

func (s *OrderService) Delete(ctx context.Context, id uuid.UUID) error {
	deleted, err := s.orderRepo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if !deleted {
		return notFound("order", id)
	}
	return nil
}
