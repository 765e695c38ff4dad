package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/smart-inventory/internal/dto"
	"github.com/flicky/smart-inventory/internal/metrics"
	"github.com/flicky/smart-inventory/internal/model"
	"github.com/flicky/smart-inventory/internal/repository"
)

// mockOrderRepo shares the product map with mockProductRepo. WithinTx
// restores every stock level when fn fails, like a rolled back transaction.
type mockOrderRepo struct {
	orders   map[uuid.UUID]*model.Order
	products *mockProductRepo
	txCalls  int
	failNext error
	onUpdate func()
}

func newMockOrderRepo(products *mockProductRepo) *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[uuid.UUID]*model.Order), products: products}
}

func (m *mockOrderRepo) WithinTx(_ context.Context, fn func(tx repository.OrderTx) error) error {
	m.txCalls++
	snapshot := make(map[uuid.UUID]int, len(m.products.products))
	for id, p := range m.products.products {
		snapshot[id] = p.QuantityInStock
	}
	tx := &mockOrderTx{repo: m}
	if err := fn(tx); err != nil {
		for id, q := range snapshot {
			m.products.products[id].QuantityInStock = q
		}
		return err
	}
	for _, o := range tx.inserted {
		m.orders[o.ID] = o
	}
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	cp.Items = append([]model.OrderItem(nil), o.Items...)
	return &cp, nil
}

func (m *mockOrderRepo) List(_ context.Context) ([]model.Order, error) {
	var all []model.Order
	for _, o := range m.orders {
		all = append(all, *o)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedDate.After(all[j].CreatedDate) })
	return all, nil
}

func (m *mockOrderRepo) ListByCreator(_ context.Context, createdBy string) ([]model.Order, error) {
	var all []model.Order
	for _, o := range m.orders {
		if o.CreatedBy == createdBy {
			all = append(all, *o)
		}
	}
	return all, nil
}

func (m *mockOrderRepo) UpdateDetails(_ context.Context, order *model.Order) error {
	if m.onUpdate != nil {
		m.onUpdate()
	}
	if _, ok := m.orders[order.ID]; !ok {
		return pgx.ErrNoRows
	}
	m.orders[order.ID] = order
	return nil
}

func (m *mockOrderRepo) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	if _, ok := m.orders[id]; !ok {
		return false, nil
	}
	delete(m.orders, id)
	return true, nil
}

type mockOrderTx struct {
	repo     *mockOrderRepo
	inserted []*model.Order
}

func (t *mockOrderTx) LockProducts(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Product, error) {
	out := make(map[uuid.UUID]*model.Product, len(ids))
	for _, id := range ids {
		if p, ok := t.repo.products.products[id]; ok {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

func (t *mockOrderTx) DecrementStock(_ context.Context, id uuid.UUID, n int) error {
	p := t.repo.products.products[id]
	if p.QuantityInStock < n {
		return errors.New("stock guard")
	}
	p.QuantityInStock -= n
	return nil
}

func (t *mockOrderTx) InsertOrder(_ context.Context, order *model.Order) error {
	if err := t.repo.failNext; err != nil {
		t.repo.failNext = nil
		return err
	}
	order.ID = uuid.New()
	for i := range order.Items {
		order.Items[i].ID = uuid.New()
		order.Items[i].OrderID = order.ID
	}
	t.inserted = append(t.inserted, order)
	return nil
}

type sentEmail struct{ to, subject, body string }

type mockNotifier struct {
	sent []sentEmail
	err  error
}

func (m *mockNotifier) SendEmail(_ context.Context, to, subject, body string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentEmail{to, subject, body})
	return nil
}

type orderFixture struct {
	products *mockProductRepo
	orders   *mockOrderRepo
	users    *mockUserRepo
	notifier *mockNotifier
	metrics  *metrics.Metrics
	svc      *OrderService
}

func newOrderFixture(receipts bool) *orderFixture {
	f := &orderFixture{
		products: newMockProductRepo(),
		users:    newMockUserRepo(),
		notifier: &mockNotifier{},
		metrics:  metrics.New(),
	}
	f.orders = newMockOrderRepo(f.products)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = NewOrderService(f.orders, f.users, nil, f.notifier, f.metrics, log, receipts)
	return f
}

var guest = Guest{Name: "Jane Doe", Email: "jane@example.com"}

func TestPlaceOrder_Success(t *testing.T) {
	f := newOrderFixture(false)
	p1 := f.products.add("Widget", "10.00", 5, 1, uuid.New())

	order, err := f.svc.PlaceOrder(context.Background(), nil, guest, []CartLine{{ProductID: p1.ID, Quantity: 2}})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("20.00").Equal(order.TotalPrice))
	assert.Equal(t, 3, f.products.products[p1.ID].QuantityInStock)
	assert.Equal(t, model.CreatedByGuest, order.CreatedBy)
	require.Len(t, order.Items, 1)
	assert.True(t, decimal.RequireFromString("10.00").Equal(order.Items[0].Price))
	assert.Contains(t, f.orders.orders, order.ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OrdersPlaced))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.ItemsSold))
	assert.Empty(t, f.notifier.sent)
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	f := newOrderFixture(false)
	p1 := f.products.add("Widget", "10.00", 1, 1, uuid.New())

	_, err := f.svc.PlaceOrder(context.Background(), nil, guest, []CartLine{{ProductID: p1.ID, Quantity: 2}})
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, p1.ID, stockErr.ProductID)
	assert.Equal(t, 1, stockErr.Available)
	assert.Equal(t, 1, f.products.products[p1.ID].QuantityInStock)
	assert.Empty(t, f.orders.orders)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OrdersRejected.WithLabelValues("insufficient_stock")))
}

func TestPlaceOrder_OneBadLineChangesNothing(t *testing.T) {
	f := newOrderFixture(false)
	ok := f.products.add("Plenty", "1.00", 100, 1, uuid.New())
	short := f.products.add("Scarce", "2.00", 1, 1, uuid.New())

	_, err := f.svc.PlaceOrder(context.Background(), nil, guest, []CartLine{
		{ProductID: ok.ID, Quantity: 10},
		{ProductID: short.ID, Quantity: 5},
	})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 100, f.products.products[ok.ID].QuantityInStock)
	assert.Equal(t, 1, f.products.products[short.ID].QuantityInStock)
	assert.Empty(t, f.orders.orders)
}

func TestPlaceOrder_DuplicateLinesAreSummed(t *testing.T) {
	f := newOrderFixture(false)
	p := f.products.add("Widget", "3.00", 3, 1, uuid.New())

	_, err := f.svc.PlaceOrder(context.Background(), nil, guest, []CartLine{
		{ProductID: p.ID, Quantity: 2},
		{ProductID: p.ID, Quantity: 2},
	})
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 4, stockErr.Requested)
	assert.Equal(t, 3, f.products.products[p.ID].QuantityInStock)
}

func TestPlaceOrder_InvalidCartDoesNotTouchStorage(t *testing.T) {
	f := newOrderFixture(false)
	p := f.products.add("Widget", "3.00", 3, 1, uuid.New())

	for name, lines := range map[string][]CartLine{
		"empty":    nil,
		"zero qty": {{ProductID: p.ID, Quantity: 0}},
		"negative": {{ProductID: p.ID, Quantity: -1}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.PlaceOrder(context.Background(), nil, guest, lines)
			require.ErrorIs(t, err, ErrValidation)
			assert.EqualError(t, err, "invalid cart")

			// Member whose account is gone still gets the cart error.
			_, err = f.svc.PlaceOrder(context.Background(), &Identity{UserID: uuid.New(), Role: model.RoleUser}, Guest{}, lines)
			require.ErrorIs(t, err, ErrValidation)
			assert.EqualError(t, err, "invalid cart")
		})
	}
	assert.Zero(t, f.orders.txCalls)
	assert.Zero(t, f.users.lookups)
}

func TestPlaceOrder_GuestIdentity(t *testing.T) {
	f := newOrderFixture(false)
	p := f.products.add("Widget", "3.00", 3, 1, uuid.New())
	lines := []CartLine{{ProductID: p.ID, Quantity: 1}}

	_, err := f.svc.PlaceOrder(context.Background(), nil, Guest{Name: "Jane"}, lines)
	assert.EqualError(t, err, "missing guest identity")

	_, err = f.svc.PlaceOrder(context.Background(), nil, Guest{Name: "Jane", Email: "not-an-email"}, lines)
	assert.EqualError(t, err, "invalid guest email")
	assert.Zero(t, f.orders.txCalls)
}

func TestPlaceOrder_MemberOverridesGuestFields(t *testing.T) {
	f := newOrderFixture(false)
	p := f.products.add("Widget", "3.00", 3, 1, uuid.New())
	member := f.users.add("member@example.com", "Member Name", model.RoleUser)

	order, err := f.svc.PlaceOrder(context.Background(),
		&Identity{UserID: member.ID, Role: member.Role},
		Guest{Name: "ignored", Email: "ignored@example.com"},
		[]CartLine{{ProductID: p.ID, Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, "Member Name", order.GuestName)
	assert.Equal(t, "member@example.com", order.GuestEmail)
	assert.Equal(t, member.ID.String(), order.CreatedBy)

	mine, err := f.svc.ListByCreator(context.Background(), member.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestPlaceOrder_UnknownProduct(t *testing.T) {
	f := newOrderFixture(false)
	p := f.products.add("Widget", "3.00", 3, 1, uuid.New())

	_, err := f.svc.PlaceOrder(context.Background(), nil, guest, []CartLine{
		{ProductID: p.ID, Quantity: 1},
		{ProductID: uuid.New(), Quantity: 1},
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 3, f.products.products[p.ID].QuantityInStock)
}

func TestPlaceOrder_InsertFailureRollsBack(t *testing.T) {
	f := newOrderFixture(false)
	p := f.products.add("Widget", "3.00", 3, 1, uuid.New())
	f.orders.failNext = errors.New("connection reset")

	_, err := f.svc.PlaceOrder(context.Background(), nil, guest, []CartLine{{ProductID: p.ID, Quantity: 2}})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrValidation)
	assert.Equal(t, 3, f.products.products[p.ID].QuantityInStock)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OrdersRejected.WithLabelValues("error")))
}

func TestPlaceOrder_Receipt(t *testing.T) {
	f := newOrderFixture(true)
	p := f.products.add("Widget", "3.50", 3, 1, uuid.New())

	_, err := f.svc.PlaceOrder(context.Background(), nil, guest, []CartLine{{ProductID: p.ID, Quantity: 2}})
	require.NoError(t, err)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, guest.Email, f.notifier.sent[0].to)
	assert.True(t, strings.Contains(f.notifier.sent[0].body, "7.00"))
}

func TestPlaceOrder_ReceiptFailureKeepsOrder(t *testing.T) {
	f := newOrderFixture(true)
	f.notifier.err = errors.New("broker down")
	p := f.products.add("Widget", "3.50", 3, 1, uuid.New())

	order, err := f.svc.PlaceOrder(context.Background(), nil, guest, []CartLine{{ProductID: p.ID, Quantity: 1}})
	require.NoError(t, err)
	assert.Contains(t, f.orders.orders, order.ID)
}

func TestOrderService_UpdateOrder(t *testing.T) {
	f := newOrderFixture(false)
	p := f.products.add("Widget", "5.00", 10, 1, uuid.New())
	order, err := f.svc.PlaceOrder(context.Background(), nil, guest, []CartLine{{ProductID: p.ID, Quantity: 2}})
	require.NoError(t, err)
	itemID := order.Items[0].ID

	updated, err := f.svc.UpdateOrder(context.Background(), order.ID, dto.UpdateOrderRequest{
		GuestName:  "Janet",
		GuestEmail: "janet@example.com",
		Items: []dto.UpdateOrderItemRequest{
			{ID: itemID, Quantity: 4},
			{ID: uuid.New(), Quantity: 9},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Janet", updated.GuestName)
	assert.Equal(t, 4, updated.Items[0].Quantity)
	assert.True(t, decimal.NewFromInt(10).Equal(updated.TotalPrice))
	assert.Equal(t, 8, f.products.products[p.ID].QuantityInStock)

	_, err = f.svc.UpdateOrder(context.Background(), order.ID, dto.UpdateOrderRequest{
		GuestName: "Janet", GuestEmail: "janet@example.com",
		Items: []dto.UpdateOrderItemRequest{{ID: itemID, Quantity: 0}},
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.UpdateOrder(context.Background(), uuid.New(), dto.UpdateOrderRequest{GuestName: "x", GuestEmail: "x@example.com"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOrderService_UpdateOrder_DeletedConcurrently(t *testing.T) {
	f := newOrderFixture(false)
	p := f.products.add("Widget", "5.00", 10, 1, uuid.New())
	order, err := f.svc.PlaceOrder(context.Background(), nil, guest, []CartLine{{ProductID: p.ID, Quantity: 1}})
	require.NoError(t, err)

	f.orders.onUpdate = func() { delete(f.orders.orders, order.ID) }
	_, err = f.svc.UpdateOrder(context.Background(), order.ID, dto.UpdateOrderRequest{
		GuestName: "Janet", GuestEmail: "janet@example.com",
	})
	require.ErrorIs(t, err, ErrNotFound)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "order", nf.Entity)
}

func TestOrderService_GetListDelete(t *testing.T) {
	f := newOrderFixture(false)
	f.svc.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	p := f.products.add("Widget", "5.00", 10, 1, uuid.New())
	first, err := f.svc.PlaceOrder(context.Background(), nil, guest, []CartLine{{ProductID: p.ID, Quantity: 1}})
	require.NoError(t, err)
	f.svc.now = func() time.Time { return time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC) }
	second, err := f.svc.PlaceOrder(context.Background(), nil, guest, []CartLine{{ProductID: p.ID, Quantity: 1}})
	require.NoError(t, err)

	got, err := f.svc.GetByID(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	all, err := f.svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)

	require.NoError(t, f.svc.Delete(context.Background(), first.ID))
	_, err = f.svc.GetByID(context.Background(), first.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, f.svc.Delete(context.Background(), first.ID), ErrNotFound)
}
